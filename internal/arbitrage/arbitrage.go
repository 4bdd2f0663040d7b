package arbitrage

import (
	"sort"

	"sjsage522/runewatcher/internal/catalog"
	"sjsage522/runewatcher/internal/models"
)

const (
	// SellFeeRate is charged on the sale side (marketplace A)
	SellFeeRate = 0.09
	// BuyFeeRate is charged on the purchase side (marketplace B)
	BuyFeeRate = 0.05
)

// Opportunity is a record with its computed figures
type Opportunity struct {
	Record     models.PriceRecord `json:"record"`
	Profit     float64            `json:"profit"`
	ProfitRate float64            `json:"profitRate"`
	Best       bool               `json:"best"`
}

// Filter holds the minimums an opportunity must reach
type Filter struct {
	MinProfit     float64
	MinProfitRate float64
}

// FilterFromSettings builds a filter from the operator settings
func FilterFromSettings(s models.Settings) Filter {
	return Filter{MinProfit: s.MinProfit, MinProfitRate: s.MinProfitRate}
}

// Profit is what buying on B and selling on A yields after both fees.
// It is 0 when either price is missing.
func Profit(r models.PriceRecord) float64 {
	if r.PriceA == nil || r.PriceB == nil {
		return 0
	}
	return *r.PriceA*(1-SellFeeRate) - *r.PriceB*(1+BuyFeeRate)
}

// ProfitRate is the profit as a percentage of the fee-inclusive cost.
// It is 0 when the profit is not positive.
func ProfitRate(r models.PriceRecord) float64 {
	profit := Profit(r)
	if profit <= 0 || r.PriceB == nil {
		return 0
	}
	cost := *r.PriceB * (1 + BuyFeeRate)
	if cost <= 0 {
		return 0
	}
	return profit / cost * 100
}

// Evaluate computes the figures of every record without filtering
func Evaluate(records models.PriceTable) []Opportunity {
	opps := make([]Opportunity, 0, len(records))
	for _, r := range records {
		opps = append(opps, Opportunity{
			Record:     r.Clone(),
			Profit:     Profit(r),
			ProfitRate: ProfitRate(r),
		})
	}
	return opps
}

// Rank keeps the records meeting both minimums, sorts them by key and
// flags the first entry with the highest profit as best
func Rank(records models.PriceTable, f Filter, key models.SortKey) []Opportunity {
	var opps []Opportunity
	for _, o := range Evaluate(records) {
		if o.Profit >= f.MinProfit && o.ProfitRate >= f.MinProfitRate {
			opps = append(opps, o)
		}
	}

	sort.SliceStable(opps, less(opps, key))

	best := -1
	for i, o := range opps {
		if best == -1 || o.Profit > opps[best].Profit {
			best = i
		}
	}
	if best >= 0 {
		opps[best].Best = true
	}
	return opps
}

func less(opps []Opportunity, key models.SortKey) func(i, j int) bool {
	switch models.ParseSortKey(string(key)) {
	case models.SortByProfitRate:
		return func(i, j int) bool { return opps[i].ProfitRate > opps[j].ProfitRate }
	case models.SortByRuneNumber:
		return func(i, j int) bool {
			return catalog.Number(opps[i].Record.Code) < catalog.Number(opps[j].Record.Code)
		}
	case models.SortBySellPrice:
		return func(i, j int) bool { return price(opps[i].Record.PriceA) > price(opps[j].Record.PriceA) }
	case models.SortByBuyPrice:
		return func(i, j int) bool { return price(opps[i].Record.PriceB) > price(opps[j].Record.PriceB) }
	default:
		return func(i, j int) bool { return opps[i].Profit > opps[j].Profit }
	}
}

func price(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Summary condenses a ranking for display and export
type Summary struct {
	BestRune      string  `json:"bestRune"`
	BestName      string  `json:"bestName,omitempty"`
	MaxProfit     float64 `json:"maxProfit"`
	AvgProfitRate float64 `json:"avgProfitRate"`
}

// Summarize reports the best rune and the average rate over the
// opportunities that make money
func Summarize(opps []Opportunity) Summary {
	var s Summary
	var total float64
	var positive int

	for _, o := range opps {
		if o.Profit > s.MaxProfit {
			s.MaxProfit = o.Profit
			s.BestRune = o.Record.Code
			s.BestName = o.Record.DisplayName
		}
		if o.Profit > 0 {
			total += o.ProfitRate
			positive++
		}
	}
	if positive > 0 {
		s.AvgProfitRate = total / float64(positive)
	}
	return s
}

// Best returns the flagged best opportunity
func Best(opps []Opportunity) (Opportunity, bool) {
	for _, o := range opps {
		if o.Best {
			return o, true
		}
	}
	return Opportunity{}, false
}

// Alert returns the best opportunity when notifications are on and its
// profit reaches the threshold
func Alert(opps []Opportunity, s models.Settings) (Opportunity, bool) {
	if !s.NotificationsEnabled {
		return Opportunity{}, false
	}
	best, ok := Best(opps)
	if !ok || best.Profit < s.NotificationThreshold {
		return Opportunity{}, false
	}
	return best, true
}
