package crawler

import (
	"context"
	"time"

	"sjsage522/runewatcher/internal/extractor"
	"sjsage522/runewatcher/internal/models"
	"sjsage522/runewatcher/services/cache"
)

// ConfigurableCrawler is a crawler driven entirely by a marketplace profile
type ConfigurableCrawler struct {
	BaseCrawler
	Marketplace models.Marketplace
	extractor   *extractor.Extractor
}

// NewConfigurableCrawler creates a new configurable crawler
func NewConfigurableCrawler(config CrawlerConfig, cacheSvc cache.CacheService, renderer Renderer, ex *extractor.Extractor) *ConfigurableCrawler {
	name := config.Name
	if name == "" {
		name = string(config.Marketplace)
	}
	return &ConfigurableCrawler{
		BaseCrawler: BaseCrawler{
			Name:      name,
			URL:       config.URL,
			CacheKey:  config.CacheKey,
			CacheSvc:  cacheSvc,
			BlockTime: time.Duration(config.BlockTime) * time.Second,
			Renderer:  renderer,
			Render:    config.Render,
		},
		Marketplace: config.Marketplace,
		extractor:   ex,
	}
}

// FetchPrices fetches the marketplace page and extracts rune prices
func (c *ConfigurableCrawler) FetchPrices(ctx context.Context) (models.PriceMap, error) {
	// Fetch the page with rate limiting
	utf8Body, err := c.fetchWithCache(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := c.createDocument(utf8Body)
	if err != nil {
		return nil, err
	}

	prices := c.extractor.ExtractDocument(doc)
	c.log().Debug().
		Int("runes", len(prices)).
		Msg("Extracted prices")
	return prices, nil
}

// GetMarketplace returns the marketplace the crawler reads
func (c *ConfigurableCrawler) GetMarketplace() models.Marketplace {
	return c.Marketplace
}
