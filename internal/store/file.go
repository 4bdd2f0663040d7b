package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"sjsage522/runewatcher/internal/catalog"
	"sjsage522/runewatcher/internal/models"
	"sjsage522/runewatcher/logger"
	"sjsage522/runewatcher/pkg/errors"
)

const fileVersion = "1.0"

// persistenceFile is the on-disk document of the file backend
type persistenceFile struct {
	Version  string            `json:"version"`
	SavedAt  time.Time         `json:"savedAt"`
	Prices   models.PriceTable `json:"prices"`
	Settings *models.Settings  `json:"settings,omitempty"`
}

// FileStore keeps the table in memory and mirrors it to a JSON file
type FileStore struct {
	mu       sync.Mutex
	path     string
	catalog  *catalog.Catalog
	table    models.PriceTable
	settings *models.Settings
	logger   *logger.Logger
}

// OpenFile loads path, or starts from an empty table when it does not exist
func OpenFile(path string, c *catalog.Catalog) (*FileStore, error) {
	if path == "" {
		path = "data/prices.json"
	}
	s := &FileStore{
		path:    path,
		catalog: c,
		table:   InitialTable(c),
		logger:  logger.ForStore().WithField("backend", BackendFile),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	// a temp file left behind by a crash is never the live copy
	tempPath := s.path + ".tmp"
	if _, err := os.Stat(tempPath); err == nil {
		_ = os.Remove(tempPath)
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Info().Str("path", s.path).Msg("No price file yet, starting fresh")
		return s.save(s.table, s.settings)
	}
	if err != nil {
		return errors.NewStore(BackendFile, "failed to read file", err)
	}

	var file persistenceFile
	if err := json.Unmarshal(data, &file); err != nil {
		return errors.NewStore(BackendFile, "failed to unmarshal data", err)
	}

	s.table = reconcile(s.catalog, file.Prices)
	s.settings = file.Settings
	return nil
}

// save writes the document to a temp file and renames it into place
func (s *FileStore) save(table models.PriceTable, settings *models.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.NewStore(BackendFile, "failed to create data directory", err)
	}

	data, err := json.MarshalIndent(persistenceFile{
		Version:  fileVersion,
		SavedAt:  time.Now(),
		Prices:   table,
		Settings: settings,
	}, "", "  ")
	if err != nil {
		return errors.NewStore(BackendFile, "failed to marshal data", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return errors.NewStore(BackendFile, "failed to write file", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		_ = os.Remove(tempPath)
		return errors.NewStore(BackendFile, "failed to rename file", err)
	}
	return nil
}

// Snapshot returns a copy of the current table
func (s *FileStore) Snapshot(ctx context.Context) (models.PriceTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Clone(), nil
}

// Apply merges one marketplace result. The in-memory table only changes
// once the file write succeeded.
func (s *FileStore) Apply(ctx context.Context, m models.Marketplace, prices models.PriceMap, at time.Time) (models.PriceTable, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, updated := Merge(s.table, m, prices, at)
	if updated == 0 {
		return s.table.Clone(), 0, nil
	}
	if err := s.save(next, s.settings); err != nil {
		return nil, 0, err
	}
	s.table = next

	s.logger.Debug().
		Str("marketplace", string(m)).
		Int("updated", updated).
		Msg("Applied prices")
	return next.Clone(), updated, nil
}

// LoadSettings returns the stored settings or the defaults
func (s *FileStore) LoadSettings(ctx context.Context) (models.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		return models.DefaultSettings(), nil
	}
	return s.settings.Normalize(), nil
}

// SaveSettings persists the settings
func (s *FileStore) SaveSettings(ctx context.Context, settings models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := settings.Normalize()
	if err := s.save(s.table, &normalized); err != nil {
		return err
	}
	s.settings = &normalized
	return nil
}

// Close is a no-op; every change is already on disk
func (s *FileStore) Close() error {
	return nil
}
