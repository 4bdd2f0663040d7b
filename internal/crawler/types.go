package crawler

import (
	"context"

	"sjsage522/runewatcher/internal/extractor"
	"sjsage522/runewatcher/internal/models"
)

// Crawler interface defines the contract for all marketplace collectors
type Crawler interface {
	// FetchPrices retrieves the lowest price per rune from a marketplace
	FetchPrices(ctx context.Context) (models.PriceMap, error)

	// GetName returns the crawler's name for logging and identification
	GetName() string

	// GetMarketplace returns the marketplace the crawler reads
	GetMarketplace() models.Marketplace
}

// Renderer loads a page in a browser and returns the resolved markup
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// CrawlerConfig contains configuration for a crawler
type CrawlerConfig struct {
	Name        string
	URL         string
	CacheKey    string
	BlockTime   int
	Marketplace models.Marketplace
	Profile     extractor.Profile
	// Render fetches through the headless browser instead of plain HTTP
	Render bool
}
