package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Marketplace identifies a price source
type Marketplace string

const (
	// MarketplaceA is G2G, the side runes are sold on
	MarketplaceA Marketplace = "g2g"
	// MarketplaceB is DD373, the side runes are bought on
	MarketplaceB Marketplace = "dd373"
)

// Marketplaces lists the tracked marketplaces
func Marketplaces() []Marketplace {
	return []Marketplace{MarketplaceA, MarketplaceB}
}

// ParseMarketplace normalizes a marketplace name
func ParseMarketplace(name string) (Marketplace, bool) {
	switch Marketplace(strings.ToLower(strings.TrimSpace(name))) {
	case MarketplaceA, "a":
		return MarketplaceA, true
	case MarketplaceB, "b":
		return MarketplaceB, true
	}
	return "", false
}

// PriceMap maps a rune code to the lowest price seen in one extraction pass
type PriceMap map[string]float64

// Observe keeps the lower of the current and the new price
func (p PriceMap) Observe(code string, price float64) {
	if current, ok := p[code]; !ok || price < current {
		p[code] = price
	}
}

// PriceRecord is the persisted state of one rune
type PriceRecord struct {
	Code        string     `json:"code"`
	DisplayName string     `json:"displayName"`
	PriceA      *float64   `json:"priceA"`
	PriceB      *float64   `json:"priceB"`
	LastUpdated *time.Time `json:"lastUpdated"`
}

// Price returns the price for a marketplace
func (r PriceRecord) Price(m Marketplace) *float64 {
	switch m {
	case MarketplaceA:
		return r.PriceA
	case MarketplaceB:
		return r.PriceB
	}
	return nil
}

// Clone returns a deep copy
func (r PriceRecord) Clone() PriceRecord {
	out := PriceRecord{Code: r.Code, DisplayName: r.DisplayName}
	if r.PriceA != nil {
		v := *r.PriceA
		out.PriceA = &v
	}
	if r.PriceB != nil {
		v := *r.PriceB
		out.PriceB = &v
	}
	if r.LastUpdated != nil {
		v := *r.LastUpdated
		out.LastUpdated = &v
	}
	return out
}

// PriceTable holds one record per rune in catalog order
type PriceTable []PriceRecord

// Clone returns a deep copy of the table
func (t PriceTable) Clone() PriceTable {
	out := make(PriceTable, len(t))
	for i, r := range t {
		out[i] = r.Clone()
	}
	return out
}

// ByCode indexes the table by rune code
func (t PriceTable) ByCode() map[string]PriceRecord {
	out := make(map[string]PriceRecord, len(t))
	for _, r := range t {
		out[r.Code] = r
	}
	return out
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// SortKey selects how opportunities are ordered
type SortKey string

const (
	SortByProfit     SortKey = "profit"
	SortByProfitRate SortKey = "profitRate"
	SortByRuneNumber SortKey = "runeNumber"
	SortBySellPrice  SortKey = "sellPrice"
	SortByBuyPrice   SortKey = "buyPrice"
)

// ParseSortKey accepts the sort keys plus the marketplace-named aliases
// used by older settings files. Unknown keys fall back to profit.
func ParseSortKey(s string) SortKey {
	switch strings.TrimSpace(s) {
	case string(SortByProfitRate):
		return SortByProfitRate
	case string(SortByRuneNumber):
		return SortByRuneNumber
	case string(SortBySellPrice), "g2gPrice":
		return SortBySellPrice
	case string(SortByBuyPrice), "dd373Price":
		return SortByBuyPrice
	}
	return SortByProfit
}

// UnmarshalJSON normalizes the stored value
func (k *SortKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = ParseSortKey(s)
	return nil
}

// Settings are the operator-controlled options
type Settings struct {
	RefreshIntervalMinutes int     `json:"refreshIntervalMinutes"`
	NotificationThreshold  float64 `json:"notificationThreshold"`
	MinProfit              float64 `json:"minProfit"`
	MinProfitRate          float64 `json:"minProfitRate"`
	SortBy                 SortKey `json:"sortBy"`
	NotificationsEnabled   bool    `json:"notificationsEnabled"`
	HighlightBest          bool    `json:"highlightBest"`
}

// DefaultSettings returns the first-run settings
func DefaultSettings() Settings {
	return Settings{
		RefreshIntervalMinutes: 3,
		NotificationThreshold:  20,
		MinProfit:              5,
		MinProfitRate:          10,
		SortBy:                 SortByProfit,
		NotificationsEnabled:   true,
		HighlightBest:          true,
	}
}

// Normalize clamps out-of-range values
func (s Settings) Normalize() Settings {
	if s.RefreshIntervalMinutes < 1 {
		s.RefreshIntervalMinutes = 1
	}
	s.SortBy = ParseSortKey(string(s.SortBy))
	return s
}

// RefreshInterval returns the refresh interval as a duration
func (s Settings) RefreshInterval() time.Duration {
	return time.Duration(s.RefreshIntervalMinutes) * time.Minute
}
