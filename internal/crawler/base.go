package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"sjsage522/runewatcher/helpers"
	"sjsage522/runewatcher/logger"
	watcherrors "sjsage522/runewatcher/pkg/errors"
	"sjsage522/runewatcher/services/cache"

	"github.com/PuerkitoBio/goquery"
)

// BaseCrawler provides common functionality for all crawlers
type BaseCrawler struct {
	Name      string
	URL       string
	CacheKey  string
	CacheSvc  cache.CacheService
	BlockTime time.Duration
	Renderer  Renderer
	Render    bool
	logger    *logger.Logger
}

// fetchWithCache fetches the page unless a rate-limit marker is set, and
// sets the marker for BlockTime when the marketplace throttles us
func (c *BaseCrawler) fetchWithCache(ctx context.Context) (io.Reader, error) {
	if c.CacheSvc != nil && c.CacheKey != "" {
		if _, err := c.CacheSvc.Get(c.CacheKey); err == nil {
			return nil, watcherrors.NewRateLimit(c.Name, c.BlockTime)
		}
	}

	if c.Render && c.Renderer != nil {
		markup, err := c.Renderer.Render(ctx, c.URL)
		if err != nil {
			return nil, watcherrors.NewNetwork(c.Name, "render failed", err)
		}
		return strings.NewReader(markup), nil
	}

	utf8Body, err := helpers.FetchWithRandomHeaders(ctx, c.URL)
	if err != nil {
		var rateErr *helpers.RateLimitError
		if errors.As(err, &rateErr) {
			if c.CacheSvc != nil && c.CacheKey != "" {
				if cacheErr := c.CacheSvc.Set(c.CacheKey, []byte(fmt.Sprintf("%d", c.BlockTime/time.Second)), c.BlockTime); cacheErr != nil {
					c.log().Warn().Err(cacheErr).Msg("Failed to set rate limit marker")
				}
			}
			return nil, watcherrors.NewRateLimit(c.Name, c.BlockTime)
		}
		return nil, watcherrors.NewNetwork(c.Name, "fetch failed", err)
	}

	return utf8Body, nil
}

// createDocument creates a goquery document from a reader
func (c *BaseCrawler) createDocument(reader io.Reader) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, watcherrors.NewParsing(c.Name, "failed to parse HTML", err)
	}
	return doc, nil
}

func (c *BaseCrawler) log() *logger.Logger {
	if c.logger == nil {
		c.logger = logger.ForMarketplace(c.Name)
	}
	return c.logger
}

// GetName returns the crawler's name for logging
func (c *BaseCrawler) GetName() string {
	return c.Name
}
