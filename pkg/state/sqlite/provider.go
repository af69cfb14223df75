package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/eahazardswatch/geoingest/pkg/state"
	"github.com/hashicorp/go-hclog"
	"github.com/jmoiron/sqlx"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	// sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
)

// ProviderName is the name of the provider.
const ProviderName = "sqlite"

const schema = `
CREATE TABLE IF NOT EXISTS dataset_state (
	dataset_id TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (dataset_id, key)
);`

type providerConfig struct {
	Path string `mapstructure:"path"`
}

type stateRow struct {
	DatasetID string `db:"dataset_id"`
	Key       string `db:"key"`
	Value     string `db:"value"`
}

type provider struct {
	config *providerConfig
	db     *sqlx.DB
	logger hclog.Logger
}

// New returns a new instance of the provider.
func New(logger hclog.Logger) state.Provider {
	return &provider{
		logger: logger,
	}
}

func (p *provider) Configure(mapConfig map[string]interface{}) error {
	pConfig := &providerConfig{}
	if err := mapstructure.Decode(&mapConfig, pConfig); err != nil {
		p.logger.Error("error when decoding configuration", "reason", err)
		return errors.Wrap(err, "failed decoding provider configuration")
	}
	if pConfig.Path == "" {
		return errors.New("sqlite path not configured")
	}
	if err := os.MkdirAll(filepath.Dir(pConfig.Path), 0755); err != nil {
		return errors.Wrap(err, "failed creating database directory")
	}
	db, err := sqlx.Open("sqlite3", pConfig.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return errors.Wrap(err, "failed opening state database")
	}
	// a single writer avoids SQLITE_BUSY within the process
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return errors.Wrap(err, "failed creating state schema")
	}
	p.config = pConfig
	p.db = db
	return nil
}

func (p *provider) Get(ctx context.Context, datasetID string) (state.State, bool, error) {
	if p.db == nil {
		return nil, false, errors.New("provider not configured")
	}
	rows := []stateRow{}
	if err := p.db.SelectContext(ctx, &rows,
		`SELECT dataset_id, key, value FROM dataset_state WHERE dataset_id = ?`, datasetID); err != nil {
		return nil, false, errors.Wrap(err, "failed querying state")
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	result := state.State{}
	for _, row := range rows {
		result[row.Key] = row.Value
	}
	return result, true, nil
}

func (p *provider) Update(ctx context.Context, datasetID string, update state.State) error {
	if p.db == nil {
		return errors.New("provider not configured")
	}
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed starting transaction")
	}
	now := time.Now().UTC()
	for _, key := range update.Keys() {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO dataset_state (dataset_id, key, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (dataset_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			datasetID, key, update[key], now); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed writing state key %s", key)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed committing state")
	}
	p.logger.Debug("state written", "dataset", datasetID, "keys", update.Keys())
	return nil
}

func (p *provider) Reset(ctx context.Context, datasetID string) error {
	if p.db == nil {
		return errors.New("provider not configured")
	}
	if _, err := p.db.ExecContext(ctx, `DELETE FROM dataset_state WHERE dataset_id = ?`, datasetID); err != nil {
		return errors.Wrap(err, "failed resetting state")
	}
	return nil
}

func (p *provider) List(ctx context.Context) (map[string]state.State, error) {
	if p.db == nil {
		return nil, errors.New("provider not configured")
	}
	rows := []stateRow{}
	if err := p.db.SelectContext(ctx, &rows, `SELECT dataset_id, key, value FROM dataset_state`); err != nil {
		return nil, errors.Wrap(err, "failed querying state")
	}
	result := map[string]state.State{}
	for _, row := range rows {
		if _, ok := result[row.DatasetID]; !ok {
			result[row.DatasetID] = state.State{}
		}
		result[row.DatasetID][row.Key] = row.Value
	}
	return result, nil
}

func (p *provider) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}
