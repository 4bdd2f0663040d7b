package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sjsage522/runewatcher/internal/catalog"
	"sjsage522/runewatcher/internal/models"
	"sjsage522/runewatcher/logger"
	"sjsage522/runewatcher/pkg/errors"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS prices (
	code         TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	position     INTEGER NOT NULL,
	price_a      REAL,
	price_b      REAL,
	last_updated TEXT
);
CREATE TABLE IF NOT EXISTS settings (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	data TEXT NOT NULL
);`

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA foreign_keys = ON",
}

// SQLiteStore keeps one row per rune in an SQLite database
type SQLiteStore struct {
	db      *sql.DB
	catalog *catalog.Catalog
	logger  *logger.Logger
}

// OpenSQLite opens or creates the database at path
func OpenSQLite(ctx context.Context, path string, c *catalog.Catalog) (*SQLiteStore, error) {
	if path == "" {
		path = "data/prices.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.NewStore(BackendSQLite, "failed to create data directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewStore(BackendSQLite, "failed to open database", err)
	}
	// a single connection serializes writers and keeps :memory: databases whole
	db.SetMaxOpenConns(1)

	for _, p := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, errors.NewStore(BackendSQLite, p, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, errors.NewStore(BackendSQLite, "failed to create schema", err)
	}

	s := &SQLiteStore{
		db:      db,
		catalog: c,
		logger:  logger.ForStore().WithField("backend", BackendSQLite),
	}
	if err := s.seed(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// seed inserts the catalog runes that are not stored yet
func (s *SQLiteStore) seed(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStore(BackendSQLite, "failed to begin seed", err)
	}
	defer tx.Rollback()

	for i, r := range s.catalog.Runes() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO prices (code, display_name, position) VALUES (?, ?, ?)
			 ON CONFLICT(code) DO UPDATE SET display_name = excluded.display_name, position = excluded.position`,
			r.Code, r.DisplayName, i); err != nil {
			return errors.NewStore(BackendSQLite, "failed to seed "+r.Code, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewStore(BackendSQLite, "failed to commit seed", err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQLiteStore) read(ctx context.Context, q queryer) (models.PriceTable, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT code, display_name, price_a, price_b, last_updated FROM prices ORDER BY position`)
	if err != nil {
		return nil, errors.NewStore(BackendSQLite, "failed to query prices", err)
	}
	defer rows.Close()

	var table models.PriceTable
	for rows.Next() {
		var (
			r       models.PriceRecord
			a, b    sql.NullFloat64
			updated sql.NullString
		)
		if err := rows.Scan(&r.Code, &r.DisplayName, &a, &b, &updated); err != nil {
			return nil, errors.NewStore(BackendSQLite, "failed to scan price row", err)
		}
		if a.Valid {
			r.PriceA = models.Float(a.Float64)
		}
		if b.Valid {
			r.PriceB = models.Float(b.Float64)
		}
		if updated.Valid {
			if ts, err := time.Parse(time.RFC3339Nano, updated.String); err == nil {
				r.LastUpdated = &ts
			}
		}
		table = append(table, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStore(BackendSQLite, "failed to read prices", err)
	}
	return reconcile(s.catalog, table), nil
}

// Snapshot returns the current table
func (s *SQLiteStore) Snapshot(ctx context.Context) (models.PriceTable, error) {
	return s.read(ctx, s.db)
}

// Apply merges one marketplace result inside a single transaction
func (s *SQLiteStore) Apply(ctx context.Context, m models.Marketplace, prices models.PriceMap, at time.Time) (models.PriceTable, int, error) {
	var column string
	switch m {
	case models.MarketplaceA:
		column = "price_a"
	case models.MarketplaceB:
		column = "price_b"
	default:
		table, err := s.Snapshot(ctx)
		return table, 0, err
	}

	updates := accepted(s.catalog, prices)
	if len(updates) == 0 {
		table, err := s.Snapshot(ctx)
		return table, 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, errors.NewStore(BackendSQLite, "failed to begin apply", err)
	}
	defer tx.Rollback()

	stamp := at.UTC().Format(time.RFC3339Nano)
	query := fmt.Sprintf(`UPDATE prices SET %s = ?, last_updated = ? WHERE code = ?`, column)
	for code, price := range updates {
		if _, err := tx.ExecContext(ctx, query, price, stamp, code); err != nil {
			return nil, 0, errors.NewStore(BackendSQLite, "failed to update "+code, err)
		}
	}

	table, err := s.read(ctx, tx)
	if err != nil {
		return nil, 0, err
	}
	if err := tx.Commit(); err != nil {
		return nil, 0, errors.NewStore(BackendSQLite, "failed to commit apply", err)
	}

	s.logger.Debug().
		Str("marketplace", string(m)).
		Int("updated", len(updates)).
		Msg("Applied prices")
	return table, len(updates), nil
}

// LoadSettings returns the stored settings or the defaults
func (s *SQLiteStore) LoadSettings(ctx context.Context) (models.Settings, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.Settings{}, errors.NewStore(BackendSQLite, "failed to load settings", err)
	}

	settings := models.DefaultSettings()
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return models.Settings{}, errors.NewStore(BackendSQLite, "failed to decode settings", err)
	}
	return settings.Normalize(), nil
}

// SaveSettings persists the settings
func (s *SQLiteStore) SaveSettings(ctx context.Context, settings models.Settings) error {
	data, err := json.Marshal(settings.Normalize())
	if err != nil {
		return errors.NewStore(BackendSQLite, "failed to encode settings", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (id, data) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		string(data)); err != nil {
		return errors.NewStore(BackendSQLite, "failed to save settings", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
