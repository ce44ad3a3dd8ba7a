package persistence

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/status-im/connector-txqueue/sqlite"
)

const dAppsTable = "connector_dapps"

var Migrations = []sqlite.Migration{
	{
		Version: 1,
		Up: `CREATE TABLE IF NOT EXISTS connector_dapps (
			url            TEXT PRIMARY KEY,
			name           TEXT NOT NULL,
			icon_url       TEXT NOT NULL,
			shared_account TEXT NOT NULL,
			chain_id       UNSIGNED BIGINT NOT NULL
		)`,
	},
}

// DApp is a site the user shared an account with.
type DApp struct {
	URL           string         `json:"url"`
	Name          string         `json:"name"`
	IconURL       string         `json:"iconUrl"`
	SharedAccount common.Address `json:"sharedAccount"`
	ChainID       uint64         `json:"chainId"`
}

// DB stores connected dApps in sqlite.
type DB struct {
	db *sql.DB
}

func NewDB(db *sql.DB) *DB {
	return &DB{db: db}
}

func (p *DB) UpsertDApp(dApp *DApp) error {
	_, err := sq.Insert(dAppsTable).
		Columns("url", "name", "icon_url", "shared_account", "chain_id").
		Values(dApp.URL, dApp.Name, dApp.IconURL, dApp.SharedAccount.Hex(), dApp.ChainID).
		Suffix("ON CONFLICT(url) DO UPDATE SET name = excluded.name, icon_url = excluded.icon_url, shared_account = excluded.shared_account, chain_id = excluded.chain_id").
		RunWith(p.db).
		Exec()
	return errors.Wrapf(err, "saving dApp %s", dApp.URL)
}

// SelectDAppByURL returns nil without error if the dApp is not connected.
func (p *DB) SelectDAppByURL(url string) (*DApp, error) {
	dApp := &DApp{
		URL: url,
	}
	var account string
	err := sq.Select("name", "icon_url", "shared_account", "chain_id").
		From(dAppsTable).
		Where(sq.Eq{"url": url}).
		RunWith(p.db).
		QueryRow().
		Scan(&dApp.Name, &dApp.IconURL, &account, &dApp.ChainID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "loading dApp %s", url)
	}
	dApp.SharedAccount = common.HexToAddress(account)
	return dApp, nil
}

func (p *DB) DeleteDApp(url string) error {
	_, err := sq.Delete(dAppsTable).
		Where(sq.Eq{"url": url}).
		RunWith(p.db).
		Exec()
	return errors.Wrapf(err, "deleting dApp %s", url)
}
