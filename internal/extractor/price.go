package extractor

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Bounds is the open interval a price must fall in to be accepted.
// It filters out item ids, page numbers and other unrelated numbers.
type Bounds struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// DefaultBounds accepts prices in (0, 10000) CNY
func DefaultBounds() Bounds {
	return Bounds{Min: 0, Max: 10000}
}

// Accept reports whether v is a finite price inside the bounds
func (b Bounds) Accept(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v > b.Min && v < b.Max
}

const number = `([0-9]{1,3}(?:,[0-9]{3})+(?:\.[0-9]+)?|[0-9]+(?:\.[0-9]+)?)`

// pricePatterns are tried in order; the first one with an accepted value wins
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`[¥￥]\s*` + number),
	regexp.MustCompile(number + `\s*元`),
	regexp.MustCompile(`(?i)(?:价格|单价|price|cost)\s*[:：]?\s*[¥￥]?\s*` + number),
	regexp.MustCompile(`(?i)(?:CNY|RMB)\s*` + number),
	regexp.MustCompile(`(?i)` + number + `\s*(?:CNY|RMB)`),
	regexp.MustCompile(number + `\s*起`),
}

// priceToken is a price found at a byte range of a text
type priceToken struct {
	Value float64
	Start int
	End   int
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParsePrice returns the first price in text that follows the price
// grammar and falls inside bounds
func ParsePrice(text string, bounds Bounds) (float64, bool) {
	if text == "" {
		return 0, false
	}
	for _, re := range pricePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			v, ok := parseNumber(m[1])
			if ok && bounds.Accept(v) {
				return v, true
			}
		}
	}
	return 0, false
}

// findPriceTokens returns every accepted price token ordered by position.
// Where tokens of different patterns overlap the earlier pattern wins.
func findPriceTokens(text string, bounds Bounds) []priceToken {
	var tokens []priceToken
	for _, re := range pricePatterns {
		for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
			v, ok := parseNumber(text[loc[2]:loc[3]])
			if !ok || !bounds.Accept(v) {
				continue
			}
			if tokenOverlaps(tokens, loc[0], loc[1]) {
				continue
			}
			tokens = append(tokens, priceToken{Value: v, Start: loc[0], End: loc[1]})
		}
	}
	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].Start < tokens[j].Start
	})
	return tokens
}

func tokenOverlaps(tokens []priceToken, start, end int) bool {
	for _, t := range tokens {
		if start < t.End && t.Start < end {
			return true
		}
	}
	return false
}
