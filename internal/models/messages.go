package models

import "time"

// PagePricesRequest carries one page-context extraction result
type PagePricesRequest struct {
	Marketplace Marketplace `json:"site"`
	Prices      PriceMap    `json:"prices"`
	Timestamp   time.Time   `json:"timestamp"`
	URL         string      `json:"url,omitempty"`
}

// Response is the generic reply to a request
type Response struct {
	Success  bool       `json:"success"`
	Error    string     `json:"error,omitempty"`
	Received int        `json:"received,omitempty"`
	Prices   PriceTable `json:"prices,omitempty"`
}

// OutcomeStatus is the pass-level result for one marketplace
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeEmpty   OutcomeStatus = "empty"
	OutcomeFailed  OutcomeStatus = "failed"
)

// Outcome reports how one marketplace fared during a refresh
type Outcome struct {
	Marketplace Marketplace   `json:"marketplace"`
	Status      OutcomeStatus `json:"status"`
	Count       int           `json:"count"`
	Error       string        `json:"error,omitempty"`
}

// RefreshResult summarizes one refresh across marketplaces
type RefreshResult struct {
	RunID      string     `json:"runId"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	Outcomes   []Outcome  `json:"outcomes"`
	Prices     PriceTable `json:"prices,omitempty"`
}

// Succeeded reports whether at least one marketplace delivered prices
func (r RefreshResult) Succeeded() bool {
	for _, o := range r.Outcomes {
		if o.Status == OutcomeSuccess {
			return true
		}
	}
	return false
}

// Failed returns the failed outcomes
func (r RefreshResult) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Status == OutcomeFailed {
			failed = append(failed, o)
		}
	}
	return failed
}
