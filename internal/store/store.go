package store

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"sjsage522/runewatcher/internal/catalog"
	"sjsage522/runewatcher/internal/models"
)

// Store keeps the latest price per rune per marketplace and the settings
type Store interface {
	// Snapshot returns the current table in catalog order
	Snapshot(ctx context.Context) (models.PriceTable, error)

	// Apply writes one marketplace extraction result atomically and returns
	// the new table plus the number of runes updated
	Apply(ctx context.Context, m models.Marketplace, prices models.PriceMap, at time.Time) (models.PriceTable, int, error)

	// LoadSettings returns the stored settings, or the defaults
	LoadSettings(ctx context.Context) (models.Settings, error)

	// SaveSettings persists the settings
	SaveSettings(ctx context.Context, s models.Settings) error

	// Close releases the backend
	Close() error
}

// Backend names accepted by Open
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config selects and configures a backend
type Config struct {
	Backend   string
	Path      string
	RedisAddr string
	RedisDB   int
	KeyPrefix string
}

// Open creates the configured backend
func Open(ctx context.Context, cfg Config, c *catalog.Catalog) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendFile:
		return OpenFile(cfg.Path, c)
	case BackendSQLite:
		return OpenSQLite(ctx, cfg.Path, c)
	case BackendRedis:
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.KeyPrefix, c)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

// InitialTable returns one record per rune with no prices
func InitialTable(c *catalog.Catalog) models.PriceTable {
	table := make(models.PriceTable, 0, c.Len())
	for _, r := range c.Runes() {
		table = append(table, models.PriceRecord{
			Code:        r.Code,
			DisplayName: r.DisplayName,
		})
	}
	return table
}

// Merge writes the prices of one marketplace into a copy of the table.
// Only that marketplace's field changes, and only for runes present in
// prices; codes missing from the table are ignored.
func Merge(table models.PriceTable, m models.Marketplace, prices models.PriceMap, at time.Time) (models.PriceTable, int) {
	out := table.Clone()
	if m != models.MarketplaceA && m != models.MarketplaceB {
		return out, 0
	}

	updated := 0
	for i := range out {
		price, ok := prices[out[i].Code]
		if !ok || !validPrice(price) {
			continue
		}
		v := price
		if m == models.MarketplaceA {
			out[i].PriceA = &v
		} else {
			out[i].PriceB = &v
		}
		ts := at
		out[i].LastUpdated = &ts
		updated++
	}
	return out, updated
}

// accepted filters prices down to catalog runes with usable values
func accepted(c *catalog.Catalog, prices models.PriceMap) models.PriceMap {
	out := models.PriceMap{}
	for code, price := range prices {
		if c.Valid(code) && validPrice(price) {
			out[code] = price
		}
	}
	return out
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

// reconcile lays a persisted table over the catalog so the result always
// holds every rune in catalog order
func reconcile(c *catalog.Catalog, stored models.PriceTable) models.PriceTable {
	byCode := stored.ByCode()
	table := InitialTable(c)
	for i := range table {
		if r, ok := byCode[table[i].Code]; ok {
			r.DisplayName = table[i].DisplayName
			table[i] = r.Clone()
		}
	}
	return table
}
