package queue

import (
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/status-im/connector-txqueue/services/connector/requests"
	"github.com/status-im/connector-txqueue/sqlite"
)

const (
	requestsTable = "connector_requests"
	stateTable    = "connector_state"

	mostRecentBatchedOriginKey = "most_recent_batched_origin"
)

// Migrations creates the schema used by DBStorage.
var Migrations = []sqlite.Migration{
	{
		Version: 1,
		Up: `CREATE TABLE IF NOT EXISTS connector_requests (
			request_id VARCHAR PRIMARY KEY,
			status     VARCHAR NOT NULL,
			created_at BIGINT NOT NULL,
			seq        UNSIGNED BIGINT NOT NULL,
			request    BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS connector_state (
			key   VARCHAR PRIMARY KEY,
			value VARCHAR NOT NULL
		);`,
	},
}

// DBStorage persists the queue in sqlite.
type DBStorage struct {
	db *sql.DB
}

func NewDBStorage(db *sql.DB) *DBStorage {
	return &DBStorage{db: db}
}

func (s *DBStorage) SaveEntry(entry Entry) error {
	_, err := sq.Insert(requestsTable).
		Columns("request_id", "status", "created_at", "seq", "request").
		Values(entry.Request.RequestID, string(entry.Status), entry.CreatedAt.UnixNano(), entry.Seq, &sqlite.JSONBlob{Data: &entry.Request}).
		Suffix("ON CONFLICT(request_id) DO UPDATE SET status = excluded.status, created_at = excluded.created_at, seq = excluded.seq, request = excluded.request").
		RunWith(s.db).
		Exec()
	return errors.Wrapf(err, "saving request %s", entry.Request.RequestID)
}

func (s *DBStorage) DeleteEntry(requestID string) error {
	_, err := sq.Delete(requestsTable).
		Where(sq.Eq{"request_id": requestID}).
		RunWith(s.db).
		Exec()
	return errors.Wrapf(err, "deleting request %s", requestID)
}

func (s *DBStorage) DeleteAllEntries() error {
	_, err := sq.Delete(requestsTable).RunWith(s.db).Exec()
	return errors.Wrap(err, "deleting requests")
}

func (s *DBStorage) LoadEntries() ([]Entry, error) {
	rows, err := sq.Select("status", "created_at", "seq", "request").
		From(requestsTable).
		OrderBy("created_at", "seq").
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(err, "loading requests")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			status    string
			createdAt int64
			entry     Entry
		)
		request := &requests.ExternalRequest{}
		if err := rows.Scan(&status, &createdAt, &entry.Seq, &sqlite.JSONBlob{Data: request}); err != nil {
			return nil, errors.Wrap(err, "scanning request")
		}
		entry.Request = *request
		entry.Status = EntryStatus(status)
		entry.CreatedAt = time.Unix(0, createdAt)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *DBStorage) SaveMostRecentBatchedOrigin(origin string) error {
	_, err := sq.Insert(stateTable).
		Columns("key", "value").
		Values(mostRecentBatchedOriginKey, origin).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value").
		RunWith(s.db).
		Exec()
	return errors.Wrap(err, "saving batched origin")
}

func (s *DBStorage) LoadMostRecentBatchedOrigin() (string, error) {
	var origin string
	err := sq.Select("value").
		From(stateTable).
		Where(sq.Eq{"key": mostRecentBatchedOriginKey}).
		RunWith(s.db).
		QueryRow().
		Scan(&origin)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return origin, errors.Wrap(err, "loading batched origin")
}
