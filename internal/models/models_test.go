package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMarketplace(t *testing.T) {
	m, ok := ParseMarketplace(" G2G ")
	assert.True(t, ok)
	assert.Equal(t, MarketplaceA, m)

	m, ok = ParseMarketplace("b")
	assert.True(t, ok)
	assert.Equal(t, MarketplaceB, m)

	_, ok = ParseMarketplace("ebay")
	assert.False(t, ok)
}

func TestPriceMapObserveKeepsMinimum(t *testing.T) {
	p := PriceMap{}
	p.Observe("30#", 320)
	p.Observe("30#", 300)
	p.Observe("30#", 310)

	assert.Equal(t, PriceMap{"30#": 300}, p)
}

func TestPriceRecordJSON(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := PriceRecord{Code: "30#", DisplayName: "Ber", PriceA: Float(420), LastUpdated: &at}

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"30#","displayName":"Ber","priceA":420,"priceB":null,"lastUpdated":"2026-05-01T12:00:00Z"}`, string(data))
}

func TestPriceRecordCloneIsDeep(t *testing.T) {
	r := PriceRecord{Code: "30#", PriceA: Float(420)}
	c := r.Clone()
	*c.PriceA = 1

	assert.Equal(t, 420.0, *r.PriceA)
	assert.Equal(t, 420.0, *r.Price(MarketplaceA))
	assert.Nil(t, r.Price(MarketplaceB))
}

func TestParseSortKey(t *testing.T) {
	assert.Equal(t, SortByProfit, ParseSortKey("profit"))
	assert.Equal(t, SortByProfitRate, ParseSortKey("profitRate"))
	assert.Equal(t, SortByRuneNumber, ParseSortKey("runeNumber"))
	assert.Equal(t, SortBySellPrice, ParseSortKey("g2gPrice"))
	assert.Equal(t, SortByBuyPrice, ParseSortKey("dd373Price"))
	assert.Equal(t, SortByProfit, ParseSortKey("volume"))
}

func TestSettingsNormalize(t *testing.T) {
	var s Settings
	require.NoError(t, json.Unmarshal([]byte(`{"refreshIntervalMinutes":0,"sortBy":"g2gPrice","minProfit":7}`), &s))

	s = s.Normalize()
	assert.Equal(t, 1, s.RefreshIntervalMinutes)
	assert.Equal(t, SortBySellPrice, s.SortBy)
	assert.Equal(t, 7.0, s.MinProfit)
	assert.Equal(t, time.Minute, s.RefreshInterval())

	d := DefaultSettings()
	assert.Equal(t, 3*time.Minute, d.RefreshInterval())
	assert.Equal(t, 20.0, d.NotificationThreshold)
	assert.True(t, d.NotificationsEnabled)
}

func TestRefreshResult(t *testing.T) {
	r := RefreshResult{Outcomes: []Outcome{
		{Marketplace: MarketplaceA, Status: OutcomeFailed, Error: "timeout"},
		{Marketplace: MarketplaceB, Status: OutcomeEmpty},
	}}
	assert.False(t, r.Succeeded())
	assert.Len(t, r.Failed(), 1)

	r.Outcomes[1].Status = OutcomeSuccess
	assert.True(t, r.Succeeded())
}
