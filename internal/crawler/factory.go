package crawler

import (
	"sjsage522/runewatcher/config"
	"sjsage522/runewatcher/internal/catalog"
	"sjsage522/runewatcher/internal/extractor"
	"sjsage522/runewatcher/internal/models"
	"sjsage522/runewatcher/logger"
	"sjsage522/runewatcher/services/cache"
)

// Configurations returns the crawler definitions for both marketplaces
func Configurations(cfg *config.Config, profiles map[models.Marketplace]extractor.Profile) []CrawlerConfig {
	return []CrawlerConfig{
		{
			Name:        "G2G",
			URL:         cfg.G2GURL,
			CacheKey:    "g2g_rate_limited",
			BlockTime:   300,
			Marketplace: models.MarketplaceA,
			Profile:     profiles[models.MarketplaceA],
			Render:      cfg.RenderPages,
		},
		{
			Name:        "DD373",
			URL:         cfg.DD373URL,
			CacheKey:    "dd373_rate_limited",
			BlockTime:   300,
			Marketplace: models.MarketplaceB,
			Profile:     profiles[models.MarketplaceB],
			Render:      cfg.RenderPages,
		},
	}
}

// NewExtractor builds the extractor for one marketplace profile with the
// configured price ceiling and pairing window
func NewExtractor(cfg *config.Config, profile extractor.Profile, c *catalog.Catalog, log *logger.Logger) *extractor.Extractor {
	bounds := extractor.DefaultBounds()
	if cfg.PriceMax > 0 {
		bounds.Max = cfg.PriceMax
	}
	return extractor.New(c, profile,
		extractor.WithBounds(bounds),
		extractor.WithWindow(cfg.ExtractWindow),
		extractor.WithLogger(log),
	)
}

// CreateCrawlers creates all the crawlers based on the configuration
func CreateCrawlers(cfg *config.Config, cacheSvc cache.CacheService, renderer Renderer, profiles map[models.Marketplace]extractor.Profile, c *catalog.Catalog) []Crawler {
	var crawlers []Crawler
	for _, conf := range Configurations(cfg, profiles) {
		if conf.URL == "" {
			continue
		}
		log := logger.ForMarketplace(conf.Name)
		ex := NewExtractor(cfg, conf.Profile, c, log)
		crawler := NewConfigurableCrawler(conf, cacheSvc, renderer, ex)
		crawler.logger = log
		crawlers = append(crawlers, crawler)

		log.Info().
			Str("url", conf.URL).
			Bool("render", conf.Render && renderer != nil).
			Msg("Created crawler")
	}
	return crawlers
}
