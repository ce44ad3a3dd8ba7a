package transactions

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/status-im/connector-txqueue/sqlite"
)

const trackedTransactionsTable = "tracked_transactions"

// Migrations creates the schema used by DBPersistence.
var Migrations = []sqlite.Migration{
	{
		Version: 1,
		Up: `CREATE TABLE IF NOT EXISTS tracked_transactions (
			address  VARCHAR NOT NULL,
			chain_id UNSIGNED BIGINT NOT NULL,
			id       VARCHAR NOT NULL,
			status   VARCHAR NOT NULL,
			record   BLOB NOT NULL,
			PRIMARY KEY (address, chain_id, id)
		) WITHOUT ROWID`,
	},
}

// DBPersistence keeps tracked records in sqlite as JSON blobs.
type DBPersistence struct {
	db *sql.DB
}

func NewDBPersistence(db *sql.DB) *DBPersistence {
	return &DBPersistence{db: db}
}

func (p *DBPersistence) SaveRecord(rec *TransactionRecord) error {
	_, err := sq.Insert(trackedTransactionsTable).
		Columns("address", "chain_id", "id", "status", "record").
		Values(rec.From.Hex(), rec.ChainID, string(rec.ID), string(rec.Status), &sqlite.JSONBlob{Data: rec}).
		Suffix("ON CONFLICT(address, chain_id, id) DO UPDATE SET status = excluded.status, record = excluded.record").
		RunWith(p.db).
		Exec()
	return errors.Wrapf(err, "saving transaction %s", rec.Identity())
}

func (p *DBPersistence) DeleteRecord(id TxIdentity) error {
	_, err := sq.Delete(trackedTransactionsTable).
		Where(sq.Eq{"address": id.From.Hex(), "chain_id": id.ChainID, "id": string(id.ID)}).
		RunWith(p.db).
		Exec()
	return errors.Wrapf(err, "deleting transaction %s", id)
}

func (p *DBPersistence) LoadRecords() ([]*TransactionRecord, error) {
	rows, err := sq.Select("record").
		From(trackedTransactionsTable).
		RunWith(p.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(err, "loading transactions")
	}
	defer rows.Close()

	var records []*TransactionRecord
	for rows.Next() {
		rec := &TransactionRecord{}
		if err := rows.Scan(&sqlite.JSONBlob{Data: rec}); err != nil {
			return nil, errors.Wrap(err, "scanning transaction")
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
