package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"sjsage522/runewatcher/internal/arbitrage"
	"sjsage522/runewatcher/internal/models"
)

// Document is the operator snapshot written to disk or synced elsewhere
type Document struct {
	Timestamp time.Time                     `json:"timestamp"`
	Prices    map[string]models.PriceRecord `json:"prices"`
	Summary   arbitrage.Summary             `json:"summary"`
}

// Build assembles a document from the table and its ranking
func Build(table models.PriceTable, opps []arbitrage.Opportunity, now time.Time) Document {
	return Document{
		Timestamp: now.UTC(),
		Prices:    table.Clone().ByCode(),
		Summary:   arbitrage.Summarize(opps),
	}
}

// Encode writes the document as indented JSON
func Encode(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// Decode reads a document written by Encode
func Decode(r io.Reader) (Document, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode export: %w", err)
	}
	if doc.Prices == nil {
		doc.Prices = map[string]models.PriceRecord{}
	}
	return doc, nil
}

// FileName is the suggested download name for a document taken at now
func FileName(now time.Time) string {
	return fmt.Sprintf("d2r-arbitrage-%s.json", now.Format("2006-01-02"))
}

// PriceMap returns the prices one marketplace holds in the document
func (d Document) PriceMap(m models.Marketplace) models.PriceMap {
	out := models.PriceMap{}
	for code, r := range d.Prices {
		if p := r.Price(m); p != nil {
			out[code] = *p
		}
	}
	return out
}
