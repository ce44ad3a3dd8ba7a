package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"

	_ "github.com/mutecomm/go-sqlcipher/v4" // registers the sqlite3 driver with encryption support
)

// Fewer key derivation iterations than the sqlcipher default, so opening
// the database at startup stays fast.
const kdfIterations = 3200

// OpenDB opens or creates the encrypted database at path. The key is
// derived from password; opening an existing file with another password
// fails.
func OpenDB(path, password string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// The driver does not support concurrent connections.
	db.SetMaxOpenConns(1)

	key := sha3.Sum256([]byte(password))
	pragmas := []struct {
		name, stmt string
	}{
		{"key", fmt.Sprintf("PRAGMA key = '%x'", key)},
		{"kdf_iter", fmt.Sprintf("PRAGMA kdf_iter = %d", kdfIterations)},
		{"foreign_keys", "PRAGMA foreign_keys = ON"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "setting %s", p.name)
		}
	}

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode = WAL").Scan(&mode); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "opening database")
	}
	if mode != "wal" {
		db.Close()
		return nil, fmt.Errorf("journal mode is %s, want wal", mode)
	}
	return db, nil
}
