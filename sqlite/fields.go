package sqlite

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"reflect"
)

// JSONBlob type for marshaling/unmarshaling inner type to json.
type JSONBlob struct {
	Data interface{}
}

// Scan implements sql.Scanner. TEXT and BLOB columns are both accepted.
func (blob *JSONBlob) Scan(value interface{}) error {
	if value == nil || reflect.ValueOf(blob.Data).IsNil() {
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("json blob: unsupported column type")
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, blob.Data)
}

// Value implements driver.Valuer.
func (blob *JSONBlob) Value() (driver.Value, error) {
	if blob.Data == nil || reflect.ValueOf(blob.Data).IsNil() {
		return nil, nil
	}
	return json.Marshal(blob.Data)
}
