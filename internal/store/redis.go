package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"sjsage522/runewatcher/internal/catalog"
	"sjsage522/runewatcher/internal/models"
	"sjsage522/runewatcher/logger"
	"sjsage522/runewatcher/pkg/errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per rune plus a settings key
type RedisStore struct {
	client  *redis.Client
	prefix  string
	catalog *catalog.Catalog
	logger  *logger.Logger
}

// OpenRedis connects to Redis and seeds missing rune hashes
func OpenRedis(ctx context.Context, addr string, db int, prefix string, c *catalog.Catalog) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	s, err := NewRedisStore(ctx, client, prefix, c)
	if err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

// NewRedisStore wraps an existing client
func NewRedisStore(ctx context.Context, client *redis.Client, prefix string, c *catalog.Catalog) (*RedisStore, error) {
	if prefix == "" {
		prefix = "runewatcher"
	}
	s := &RedisStore{
		client:  client,
		prefix:  prefix,
		catalog: c,
		logger:  logger.ForStore().WithField("backend", BackendRedis),
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.NewStore(BackendRedis, "failed to connect", err)
	}

	_, err := client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, r := range c.Runes() {
			key := s.runeKey(r.Code)
			pipe.HSetNX(ctx, key, "code", r.Code)
			pipe.HSet(ctx, key, "displayName", r.DisplayName)
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewStore(BackendRedis, "failed to seed runes", err)
	}
	return s, nil
}

func (s *RedisStore) runeKey(code string) string {
	return s.prefix + ":rune:" + code
}

func (s *RedisStore) settingsKey() string {
	return s.prefix + ":settings"
}

func marketplaceField(m models.Marketplace) (string, bool) {
	switch m {
	case models.MarketplaceA:
		return "priceA", true
	case models.MarketplaceB:
		return "priceB", true
	}
	return "", false
}

// Snapshot reads every rune hash in one pipeline
func (s *RedisStore) Snapshot(ctx context.Context) (models.PriceTable, error) {
	codes := s.catalog.Codes()
	cmds := make([]*redis.MapStringStringCmd, len(codes))

	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, code := range codes {
			cmds[i] = pipe.HGetAll(ctx, s.runeKey(code))
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewStore(BackendRedis, "failed to read prices", err)
	}

	table := make(models.PriceTable, 0, len(codes))
	for i, code := range codes {
		fields := cmds[i].Val()
		r := models.PriceRecord{Code: code}
		if v, err := strconv.ParseFloat(fields["priceA"], 64); err == nil {
			r.PriceA = models.Float(v)
		}
		if v, err := strconv.ParseFloat(fields["priceB"], 64); err == nil {
			r.PriceB = models.Float(v)
		}
		if ts, err := time.Parse(time.RFC3339Nano, fields["lastUpdated"]); err == nil {
			r.LastUpdated = &ts
		}
		table = append(table, r)
	}
	return reconcile(s.catalog, table), nil
}

// Apply writes one marketplace field per rune inside MULTI/EXEC, so the
// other marketplace's field is never rewritten
func (s *RedisStore) Apply(ctx context.Context, m models.Marketplace, prices models.PriceMap, at time.Time) (models.PriceTable, int, error) {
	field, ok := marketplaceField(m)
	updates := accepted(s.catalog, prices)
	if !ok || len(updates) == 0 {
		table, err := s.Snapshot(ctx)
		return table, 0, err
	}

	stamp := at.UTC().Format(time.RFC3339Nano)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for code, price := range updates {
			pipe.HSet(ctx, s.runeKey(code),
				field, strconv.FormatFloat(price, 'f', -1, 64),
				"lastUpdated", stamp,
			)
		}
		return nil
	})
	if err != nil {
		return nil, 0, errors.NewStore(BackendRedis, "failed to apply prices", err)
	}

	s.logger.Debug().
		Str("marketplace", string(m)).
		Int("updated", len(updates)).
		Msg("Applied prices")

	table, err := s.Snapshot(ctx)
	return table, len(updates), err
}

// LoadSettings returns the stored settings or the defaults
func (s *RedisStore) LoadSettings(ctx context.Context) (models.Settings, error) {
	data, err := s.client.Get(ctx, s.settingsKey()).Bytes()
	if err == redis.Nil {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return models.Settings{}, errors.NewStore(BackendRedis, "failed to load settings", err)
	}

	settings := models.DefaultSettings()
	if err := json.Unmarshal(data, &settings); err != nil {
		return models.Settings{}, errors.NewStore(BackendRedis, "failed to decode settings", err)
	}
	return settings.Normalize(), nil
}

// SaveSettings persists the settings
func (s *RedisStore) SaveSettings(ctx context.Context, settings models.Settings) error {
	data, err := json.Marshal(settings.Normalize())
	if err != nil {
		return errors.NewStore(BackendRedis, "failed to encode settings", err)
	}
	if err := s.client.Set(ctx, s.settingsKey(), data, 0).Err(); err != nil {
		return errors.NewStore(BackendRedis, "failed to save settings", err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
