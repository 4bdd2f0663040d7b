package extractor

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"sjsage522/runewatcher/internal/catalog"
	"sjsage522/runewatcher/internal/models"
	"sjsage522/runewatcher/logger"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DefaultWindow is how many characters may separate a rune mention from
// its price in flat text
const DefaultWindow = 200

// Extractor turns marketplace pages into the lowest price per rune
type Extractor struct {
	catalog *catalog.Catalog
	profile Profile
	bounds  Bounds
	window  int
	logger  *logger.Logger
}

// Option configures an Extractor
type Option func(*Extractor)

// WithBounds overrides the accepted price range
func WithBounds(b Bounds) Option {
	return func(e *Extractor) {
		e.bounds = b
	}
}

// WithWindow overrides the flat-text pairing window
func WithWindow(chars int) Option {
	return func(e *Extractor) {
		if chars > 0 {
			e.window = chars
		}
	}
}

// WithLogger sets the logger used for skipped candidates
func WithLogger(l *logger.Logger) Option {
	return func(e *Extractor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an extractor for one marketplace profile
func New(c *catalog.Catalog, p Profile, opts ...Option) *Extractor {
	e := &Extractor{
		catalog: c,
		profile: p,
		bounds:  DefaultBounds(),
		window:  DefaultWindow,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Profile returns the marketplace profile
func (e *Extractor) Profile() Profile {
	return e.profile
}

// ExtractHTML parses raw markup without running any script and extracts
// prices from it. Unparseable input yields an empty map.
func (e *Extractor) ExtractHTML(markup string) models.PriceMap {
	if strings.TrimSpace(markup) == "" {
		return models.PriceMap{}
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		e.logger.Debug().Err(err).Msg("Failed to parse markup")
		return models.PriceMap{}
	}
	return e.ExtractDocument(doc)
}

// ExtractDocument runs the element scan and, when that finds nothing,
// the card fallback driven by the profile selectors
func (e *Extractor) ExtractDocument(doc *goquery.Document) models.PriceMap {
	prices := models.PriceMap{}
	if doc == nil || len(doc.Nodes) == 0 {
		return prices
	}

	e.scanElements(doc.Nodes[0], prices)
	if len(prices) > 0 {
		return prices
	}

	e.scanCards(doc, prices)
	if len(prices) == 0 {
		e.logger.Debug().
			Str("marketplace", string(e.profile.Marketplace)).
			Msg("No rune prices found in document")
	}
	return prices
}

// ExtractText pairs each rune mention in a flat text with the nearest
// price token inside the window
func (e *Extractor) ExtractText(text string) models.PriceMap {
	prices := models.PriceMap{}
	e.guard("text", func() {
		e.pairWindow(text, prices)
	})
	return prices
}

// guard runs one candidate and swallows a panic so the pass can go on
func (e *Extractor) guard(candidate string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn().
				Str("candidate", candidate).
				Str("panic", fmt.Sprint(r)).
				Msg("Skipped candidate")
		}
	}()
	fn()
}

var skipTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

var inlineTags = map[string]bool{
	"a": true, "span": true, "b": true, "i": true, "em": true,
	"strong": true, "small": true, "sup": true, "sub": true, "font": true,
	"label": true, "u": true, "s": true, "mark": true, "abbr": true,
	"code": true,
}

// scanElements accepts the deepest elements whose visible text pairs a
// rune with a price. An element holding several listings is paired by
// window.
func (e *Extractor) scanElements(root *html.Node, prices models.PriceMap) {
	e.collect(root, prices)
}

// collect returns the visible text of n and whether n or a descendant was
// accepted
func (e *Extractor) collect(n *html.Node, prices models.PriceMap) (string, bool) {
	switch n.Type {
	case html.TextNode:
		return n.Data, false
	case html.ElementNode:
		if skipTags[n.Data] {
			return "", false
		}
		if n.Data == "br" {
			return "\n", false
		}
	case html.DocumentNode:
	default:
		return "", false
	}

	var b strings.Builder
	found := false
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		text, ok := e.collect(c, prices)
		found = found || ok
		if c.Type == html.ElementNode && !inlineTags[c.Data] {
			b.WriteString("\n")
			b.WriteString(text)
			b.WriteString("\n")
			continue
		}
		b.WriteString(text)
	}
	text := b.String()

	if found || n.Type != html.ElementNode {
		return text, found
	}

	accepted := false
	e.guard(n.Data, func() {
		matches := e.catalog.FindAll(text)
		if len(matches) == 0 {
			return
		}
		// several listings share this element
		if len(matches) > 1 || len(e.priceTokens(text, matches)) > 1 {
			accepted = e.pairWindow(text, prices) > 0
			return
		}
		price, ok := ParsePrice(text, e.bounds)
		if !ok {
			return
		}
		prices.Observe(matches[0].Code, price)
		accepted = true
	})
	return text, accepted
}

// scanCards walks the listing cards of the first card selector that
// matches anything
func (e *Extractor) scanCards(doc *goquery.Document, prices models.PriceMap) {
	for _, selector := range e.profile.CardSelectors {
		var cards *goquery.Selection
		e.guard(selector, func() {
			cards = doc.Find(selector)
		})
		if cards == nil || cards.Length() == 0 {
			continue
		}

		cards.Each(func(i int, card *goquery.Selection) {
			e.guard(selector, func() {
				title := firstText(card, e.profile.TitleSelectors, true)
				code, ok := e.catalog.Lookup(title)
				if !ok {
					return
				}
				price, ok := e.cardPrice(firstText(card, e.profile.PriceSelectors, false))
				if !ok {
					return
				}
				prices.Observe(code, price)
			})
		})
		return
	}
}

var bareNumber = regexp.MustCompile(number)

// cardPrice reads a dedicated price element. Such elements often carry a
// bare number, so it is accepted when the grammar finds nothing.
func (e *Extractor) cardPrice(text string) (float64, bool) {
	if price, ok := ParsePrice(text, e.bounds); ok {
		return price, true
	}
	m := bareNumber.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, ok := parseNumber(m[1])
	if !ok || !e.bounds.Accept(v) {
		return 0, false
	}
	return v, true
}

// firstText returns the text of the first selector with non-empty content.
// With preferTitle the title attribute wins over the element text.
func firstText(card *goquery.Selection, selectors []string, preferTitle bool) string {
	for _, selector := range selectors {
		el := card.Find(selector).First()
		if el.Length() == 0 {
			continue
		}
		if preferTitle {
			if title, ok := el.Attr("title"); ok && strings.TrimSpace(title) != "" {
				return strings.TrimSpace(title)
			}
		}
		if text := strings.TrimSpace(el.Text()); text != "" {
			return text
		}
	}
	return ""
}

// priceTokens returns the price tokens of text that are not part of a
// rune mention
func (e *Extractor) priceTokens(text string, matches []catalog.Match) []priceToken {
	var tokens []priceToken
	for _, t := range findPriceTokens(text, e.bounds) {
		if !tokenOverlapsMatch(t, matches) {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// pairWindow implements the flat-text scan and returns how many pairs it
// observed. A rune takes the nearest price after it that comes before any
// other rune; failing that, the nearest price before it that no earlier
// rune claimed.
func (e *Extractor) pairWindow(text string, prices models.PriceMap) int {
	matches := e.catalog.FindAll(text)
	if len(matches) == 0 {
		return 0
	}

	tokens := e.priceTokens(text, matches)
	if len(tokens) == 0 {
		return 0
	}

	chars := func(from, to int) int {
		return utf8.RuneCountInString(text[from:to])
	}
	consumed := make([]bool, len(tokens))
	observed := 0

	for i, m := range matches {
		next := len(text)
		for _, n := range matches[i+1:] {
			if n.Code != m.Code {
				next = n.Start
				break
			}
		}

		picked := -1
		for j, t := range tokens {
			if t.Start < m.End {
				continue
			}
			if t.Start >= next || chars(m.End, t.Start) > e.window {
				break
			}
			picked = j
			break
		}

		if picked == -1 {
			prev := 0
			for k := i - 1; k >= 0; k-- {
				if matches[k].Code != m.Code {
					prev = matches[k].End
					break
				}
			}
			for j := len(tokens) - 1; j >= 0; j-- {
				t := tokens[j]
				if t.End > m.Start {
					continue
				}
				if t.Start < prev || chars(t.End, m.Start) > e.window {
					break
				}
				if !consumed[j] {
					picked = j
				}
				break
			}
		}

		if picked >= 0 {
			consumed[picked] = true
			prices.Observe(m.Code, tokens[picked].Value)
			observed++
		}
	}
	return observed
}

func tokenOverlapsMatch(t priceToken, matches []catalog.Match) bool {
	for _, m := range matches {
		if t.Start < m.End && m.Start < t.End {
			return true
		}
	}
	return false
}
