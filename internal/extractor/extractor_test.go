package extractor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sjsage522/runewatcher/internal/catalog"
	"sjsage522/runewatcher/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor(m models.Marketplace, opts ...Option) *Extractor {
	return New(catalog.Default(), DefaultProfiles()[m], opts...)
}

func TestParsePriceGrammar(t *testing.T) {
	variants := []string{
		"¥850.75",
		"￥ 850.75",
		"850.75元",
		"价格: 850.75",
		"单价：850.75",
		"Price: ¥850.75",
		"cost: 850.75",
		"CNY 850.75",
		"850.75 CNY",
		"850.75rmb",
		"850.75起",
	}

	for _, v := range variants {
		t.Run(v, func(t *testing.T) {
			price, ok := ParsePrice(v, DefaultBounds())
			require.True(t, ok)
			assert.Equal(t, 850.75, price)
		})
	}

	price, ok := ParsePrice("¥1,250.50", DefaultBounds())
	require.True(t, ok)
	assert.Equal(t, 1250.50, price)
}

func TestParsePriceBounds(t *testing.T) {
	for _, text := range []string{"¥0", "¥10000", "¥99999", "no price here", ""} {
		_, ok := ParsePrice(text, DefaultBounds())
		assert.False(t, ok, text)
	}

	price, ok := ParsePrice("¥99999", Bounds{Min: 0, Max: 100000})
	assert.True(t, ok)
	assert.Equal(t, 99999.0, price)

	// the first accepted value wins inside a pattern
	price, ok = ParsePrice("¥0 ¥12", DefaultBounds())
	assert.True(t, ok)
	assert.Equal(t, 12.0, price)
}

func TestExtractHTMLGrammarVariants(t *testing.T) {
	e := newTestExtractor(models.MarketplaceB)

	for _, v := range []string{"¥850.75", "850.75元", "价格: 850.75", "850.75 CNY", "CNY 850.75"} {
		prices := e.ExtractHTML(`<html><body><div class="row">Ber ` + v + `</div></body></html>`)
		assert.Equal(t, models.PriceMap{"30#": 850.75}, prices, v)
	}
}

func TestExtractHTMLKeepsMinimum(t *testing.T) {
	e := newTestExtractor(models.MarketplaceB)

	prices := e.ExtractHTML(`
		<ul>
			<li>Ber Rune ¥320</li>
			<li>贝 <span>¥300</span></li>
			<li>30# 310元</li>
		</ul>`)

	assert.Equal(t, models.PriceMap{"30#": 300}, prices)
}

func TestExtractHTMLDoesNotMispairContainers(t *testing.T) {
	e := newTestExtractor(models.MarketplaceA)

	prices := e.ExtractHTML(`
		<div id="list">
			<div class="offer">Ber ¥300</div>
			<div class="offer">Jah <b>¥400</b></div>
			<div class="promo">Coupon ¥1</div>
		</div>`)

	assert.Equal(t, models.PriceMap{"30#": 300, "31#": 400}, prices)
}

func TestExtractHTMLSharedElementListings(t *testing.T) {
	e := newTestExtractor(models.MarketplaceA)

	tests := []struct {
		name   string
		markup string
		want   models.PriceMap
	}{
		{
			name:   "same rune twice keeps the lower price",
			markup: `<div>Ber ¥900<br>Ber ¥850</div>`,
			want:   models.PriceMap{"30#": 850},
		},
		{
			name:   "two runes in one element",
			markup: `<div>Mal 23# ¥100<br>Ist 24# ¥200</div>`,
			want:   models.PriceMap{"23#": 100, "24#": 200},
		},
		{
			name:   "names and prices in sibling elements",
			markup: `<div><div>Ber</div><div>¥850</div><div>Jah</div><div>¥900</div></div>`,
			want:   models.PriceMap{"30#": 850, "31#": 900},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ExtractHTML(tt.markup))
		})
	}
}

func TestExtractHTMLSkipsScripts(t *testing.T) {
	e := newTestExtractor(models.MarketplaceA)

	prices := e.ExtractHTML(`
		<html>
			<head><title>Zod ¥1</title></head>
			<body>
				<script>var listing = "Ber ¥2";</script>
				<div>Ber ¥300</div>
			</body>
		</html>`)

	assert.Equal(t, models.PriceMap{"30#": 300}, prices)
}

func TestExtractHTMLEmptyAndMalformed(t *testing.T) {
	e := newTestExtractor(models.MarketplaceA)

	assert.Empty(t, e.ExtractHTML(""))
	assert.Empty(t, e.ExtractHTML("<<<>>>"))
	assert.Empty(t, e.ExtractHTML("<div>Login ¥5</div>"))
	assert.Empty(t, e.ExtractHTML("<div>99# ¥5</div>"))
	assert.Empty(t, e.ExtractHTML("<div>Ber ¥0</div><div>Jah ¥20000</div>"))
	assert.Empty(t, e.ExtractDocument(nil))
}

func TestExtractHTMLCardFallback(t *testing.T) {
	e := newTestExtractor(models.MarketplaceB)

	prices := e.ExtractHTML(`
		<div class="goods-list">
			<div class="goods-item">
				<h3 class="goods-name">30# Ber Rune</h3>
				<span class="goods-price">298.50</span>
			</div>
			<div class="goods-item">
				<h3 class="goods-name">30# Ber Rune</h3>
				<span class="goods-price">305</span>
			</div>
			<div class="goods-item">
				<h3 class="goods-name">Jah</h3>
				<span class="goods-price">sold out</span>
			</div>
		</div>`)

	assert.Equal(t, models.PriceMap{"30#": 298.50}, prices)
}

func TestExtractHTMLCardFallbackPrefersTitleAttribute(t *testing.T) {
	e := newTestExtractor(models.MarketplaceA)

	prices := e.ExtractHTML(`
		<div class="product-item">
			<a class="title" title="Jah Rune">View offer</a>
			<div class="product-price">412.00</div>
		</div>`)

	assert.Equal(t, models.PriceMap{"31#": 412}, prices)
}

func TestExtractTextWindowPairing(t *testing.T) {
	e := newTestExtractor(models.MarketplaceA)

	prices := e.ExtractText("Ber ¥300 Jah ¥400 Mal")
	assert.Equal(t, models.PriceMap{"30#": 300, "31#": 400}, prices)

	prices = e.ExtractText("¥25 马尔 | 乔 ¥410")
	assert.Equal(t, models.PriceMap{"23#": 25, "31#": 410}, prices)

	prices = e.ExtractText("Ber Rune ¥300, another Ber listing ¥280")
	assert.Equal(t, models.PriceMap{"30#": 280}, prices)
}

func TestExtractTextRespectsWindow(t *testing.T) {
	text := "Ber" + strings.Repeat(" ", 50) + "¥300"

	assert.Empty(t, newTestExtractor(models.MarketplaceA, WithWindow(20)).ExtractText(text))
	assert.Equal(t, models.PriceMap{"30#": 300}, newTestExtractor(models.MarketplaceA, WithWindow(60)).ExtractText(text))
	assert.Empty(t, newTestExtractor(models.MarketplaceA).ExtractText(""))
}

func TestLoadProfiles(t *testing.T) {
	profiles, err := LoadProfiles("")
	require.NoError(t, err)
	assert.Len(t, profiles, 2)

	path := filepath.Join(t.TempDir(), "profiles.yaml")
	data := `
profiles:
  - marketplace: G2G
    card_selectors: [".rune-offer"]
    title_selectors: [".rune-name"]
    price_selectors: [".rune-price"]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	profiles, err = LoadProfiles(path)
	require.NoError(t, err)
	assert.Equal(t, []string{".rune-offer"}, profiles[models.MarketplaceA].CardSelectors)
	assert.Equal(t, DefaultProfiles()[models.MarketplaceB], profiles[models.MarketplaceB])

	e := New(catalog.Default(), profiles[models.MarketplaceA])
	prices := e.ExtractHTML(`<div class="rune-offer"><p class="rune-name">Zod</p><p class="rune-price">1200</p></div>`)
	assert.Equal(t, models.PriceMap{"33#": 1200}, prices)
}

func TestLoadProfilesRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles:\n  - marketplace: g2g\n"), 0o644))

	_, err := LoadProfiles(path)
	assert.Error(t, err)

	_, err = LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
