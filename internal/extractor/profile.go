package extractor

import (
	"fmt"
	"os"
	"strings"

	"sjsage522/runewatcher/internal/models"

	"gopkg.in/yaml.v3"
)

// Profile holds the structural hints for one marketplace. Selectors are
// tried in order: the first card selector that yields any element is used,
// and inside a card the first title/price selector with text wins.
type Profile struct {
	Marketplace    models.Marketplace `yaml:"marketplace"`
	CardSelectors  []string           `yaml:"card_selectors"`
	TitleSelectors []string           `yaml:"title_selectors"`
	PriceSelectors []string           `yaml:"price_selectors"`
}

// Validate checks the profile is usable
func (p Profile) Validate() error {
	if strings.TrimSpace(string(p.Marketplace)) == "" {
		return fmt.Errorf("profile: marketplace is required")
	}
	if len(p.CardSelectors) == 0 {
		return fmt.Errorf("profile %s: at least one card selector is required", p.Marketplace)
	}
	if len(p.TitleSelectors) == 0 || len(p.PriceSelectors) == 0 {
		return fmt.Errorf("profile %s: title and price selectors are required", p.Marketplace)
	}
	return nil
}

// DefaultProfiles returns the built-in G2G and DD373 vocabularies
func DefaultProfiles() map[models.Marketplace]Profile {
	return map[models.Marketplace]Profile{
		models.MarketplaceA: {
			Marketplace: models.MarketplaceA,
			CardSelectors: []string{
				".product-item",
				".offer-item",
				".listing-item",
				".product-card",
				".item-card",
				`[class*="item"][class*="product"]`,
				`[class*="item"][class*="offer"]`,
				`[class*="product"]`,
				`[class*="listing"]`,
				`[class*="item"]`,
			},
			TitleSelectors: []string{
				".product-title",
				".offer-title",
				".title",
				`[class*="title"]`,
				"h3",
				"h4",
			},
			PriceSelectors: []string{
				".product-price",
				".offer-price",
				".price",
				`[class*="price"]`,
				".amount",
				".cost",
			},
		},
		models.MarketplaceB: {
			Marketplace: models.MarketplaceB,
			CardSelectors: []string{
				".goods-item",
				".goods-list-item",
				".item",
				".product",
				".list-item",
				`[class*="goods"]`,
				`[class*="item"]`,
				`[class*="product"]`,
			},
			TitleSelectors: []string{
				".goods-name",
				".item-title",
				".title",
				".name",
				"h3",
				"h4",
			},
			PriceSelectors: []string{
				".goods-price",
				".item-price",
				".price",
				".cost",
				".amount",
			},
		},
	}
}

type profilesFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadProfiles reads marketplace profiles from a YAML file and lays them
// over the defaults. An empty path returns the defaults.
func LoadProfiles(path string) (map[models.Marketplace]Profile, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var file profilesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	for _, p := range file.Profiles {
		if m, ok := models.ParseMarketplace(string(p.Marketplace)); ok {
			p.Marketplace = m
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		profiles[p.Marketplace] = p
	}
	return profiles, nil
}
