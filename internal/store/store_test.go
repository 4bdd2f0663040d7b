package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sjsage522/runewatcher/internal/catalog"
	"sjsage522/runewatcher/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialTable(t *testing.T) {
	table := InitialTable(catalog.Default())

	require.Len(t, table, 11)
	assert.Equal(t, "23#", table[0].Code)
	assert.Equal(t, "Mal", table[0].DisplayName)
	assert.Equal(t, "33#", table[10].Code)
	for _, r := range table {
		assert.Nil(t, r.PriceA)
		assert.Nil(t, r.PriceB)
		assert.Nil(t, r.LastUpdated)
	}
}

func TestMergeTouchesOnlyOneMarketplace(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	table := InitialTable(catalog.Default())

	table, updated := Merge(table, models.MarketplaceB, models.PriceMap{"30#": 300}, at)
	assert.Equal(t, 1, updated)

	later := at.Add(time.Minute)
	merged, updated := Merge(table, models.MarketplaceA, models.PriceMap{"30#": 420, "31#": 500}, later)
	assert.Equal(t, 2, updated)

	ber := merged.ByCode()["30#"]
	require.NotNil(t, ber.PriceA)
	require.NotNil(t, ber.PriceB)
	assert.Equal(t, 420.0, *ber.PriceA)
	assert.Equal(t, 300.0, *ber.PriceB)
	assert.Equal(t, later, *ber.LastUpdated)

	jah := merged.ByCode()["31#"]
	assert.Equal(t, 500.0, *jah.PriceA)
	assert.Nil(t, jah.PriceB)

	zod := merged.ByCode()["33#"]
	assert.Nil(t, zod.PriceA)
	assert.Nil(t, zod.LastUpdated)

	// the input table is never modified
	assert.Nil(t, table.ByCode()["30#"].PriceA)
}

func TestMergeIsIdempotent(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	prices := models.PriceMap{"23#": 12.5, "33#": 1100}

	once, _ := Merge(InitialTable(catalog.Default()), models.MarketplaceA, prices, at)
	twice, _ := Merge(once, models.MarketplaceA, prices, at)

	assert.Equal(t, once, twice)
}

func TestMergeIgnoresUnknownAndInvalid(t *testing.T) {
	at := time.Now()
	table := InitialTable(catalog.Default())

	merged, updated := Merge(table, models.MarketplaceA, models.PriceMap{"99#": 10, "30#": -1, "31#": 0}, at)
	assert.Equal(t, 0, updated)
	assert.Equal(t, table, merged)

	merged, updated = Merge(table, models.Marketplace("ebay"), models.PriceMap{"30#": 10}, at)
	assert.Equal(t, 0, updated)
	assert.Equal(t, table, merged)
}

// exerciseStore runs the contract every backend has to honour
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	table, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, table, 11)

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	_, updated, err := s.Apply(ctx, models.MarketplaceA, models.PriceMap{"30#": 420, "99#": 1}, at)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	table, updated, err = s.Apply(ctx, models.MarketplaceB, models.PriceMap{"30#": 300, "23#": 2.5}, at.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, updated)

	ber := table.ByCode()["30#"]
	require.NotNil(t, ber.PriceA)
	require.NotNil(t, ber.PriceB)
	assert.Equal(t, 420.0, *ber.PriceA)
	assert.Equal(t, 300.0, *ber.PriceB)
	require.NotNil(t, ber.LastUpdated)
	assert.True(t, at.Add(time.Minute).Equal(*ber.LastUpdated))
	assert.Nil(t, table.ByCode()["23#"].PriceA)

	_, updated, err = s.Apply(ctx, models.MarketplaceA, models.PriceMap{}, at)
	require.NoError(t, err)
	assert.Equal(t, 0, updated)

	settings, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSettings(), settings)

	settings.MinProfit = 12
	settings.SortBy = models.SortByRuneNumber
	require.NoError(t, s.SaveSettings(ctx, settings))

	loaded, err := s.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings, loaded)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")

	s, err := OpenFile(path, catalog.Default())
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	reopened, err := OpenFile(path, catalog.Default())
	require.NoError(t, err)

	table, err := reopened.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 420.0, *table.ByCode()["30#"].PriceA)
	assert.Equal(t, 300.0, *table.ByCode()["30#"].PriceB)

	settings, err := reopened.LoadSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12.0, settings.MinProfit)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := OpenFile(path, catalog.Default())
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prices.db")

	s, err := OpenSQLite(ctx, path, catalog.Default())
	require.NoError(t, err)
	exerciseStore(t, s)
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(ctx, path, catalog.Default())
	require.NoError(t, err)
	defer reopened.Close()

	table, err := reopened.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, table, 11)
	assert.Equal(t, 420.0, *table.ByCode()["30#"].PriceA)
	assert.Equal(t, 2.5, *table.ByCode()["23#"].PriceB)
}

// This test requires a running Redis instance
// If Redis is not available, the test will be skipped
func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("Redis is not available, skipping test")
	}

	prefix := "runewatcher_test:" + time.Now().Format("150405.000000")
	defer func() {
		keys, _ := client.Keys(ctx, prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	}()

	s, err := NewRedisStore(ctx, client, prefix, catalog.Default())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "etcd"}, catalog.Default())
	assert.Error(t, err)
}
