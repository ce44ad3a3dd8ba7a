package sqlite

import (
	"database/sql"

	"github.com/pkg/errors"
)

// Migration is a single schema step. Versions must be strictly increasing.
type Migration struct {
	Version int
	Up      string
}

// Migrate applies every migration newer than the version recorded in table.
// Each step runs in its own transaction together with the version bump.
func Migrate(db *sql.DB, table string, migrations []Migration) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + table + ` (version INTEGER NOT NULL)`); err != nil {
		return errors.Wrap(err, "creating migrations table")
	}

	var current sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM ` + table).Scan(&current); err != nil {
		return errors.Wrap(err, "reading schema version")
	}

	for _, m := range migrations {
		if current.Valid && int64(m.Version) <= current.Int64 {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err = tx.Exec(m.Up); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "applying migration %d", m.Version)
		}
		if _, err = tx.Exec(`INSERT INTO `+table+` (version) VALUES (?)`, m.Version); err != nil {
			_ = tx.Rollback()
			return errors.Wrapf(err, "recording migration %d", m.Version)
		}
		if err = tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
