package export

import (
	"fmt"
	"io"
	"math"

	"sjsage522/runewatcher/internal/arbitrage"
	"sjsage522/runewatcher/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	pricesSheet        = "Prices"
	opportunitiesSheet = "Opportunities"
)

// XLSXFileName is the suggested download name of the workbook
func XLSXFileName(doc Document) string {
	return fmt.Sprintf("d2r-arbitrage-%s.xlsx", doc.Timestamp.Format("2006-01-02"))
}

// WriteXLSX writes a workbook with the price table and the ranking
func WriteXLSX(w io.Writer, table models.PriceTable, opps []arbitrage.Opportunity) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", pricesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(opportunitiesSheet); err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}

	rows := [][]interface{}{{"Code", "Rune", "G2G (CNY)", "DD373 (CNY)", "Last updated"}}
	for _, r := range table {
		updated := ""
		if r.LastUpdated != nil {
			updated = r.LastUpdated.UTC().Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []interface{}{r.Code, r.DisplayName, cell(r.PriceA), cell(r.PriceB), updated})
	}
	if err := writeRows(f, pricesSheet, rows); err != nil {
		return err
	}

	rows = [][]interface{}{{"Code", "Rune", "Profit", "Profit rate (%)", "Best"}}
	for _, o := range opps {
		best := ""
		if o.Best {
			best = "yes"
		}
		rows = append(rows, []interface{}{
			o.Record.Code,
			o.Record.DisplayName,
			round2(o.Profit),
			round2(o.ProfitRate),
			best,
		})
	}
	if err := writeRows(f, opportunitiesSheet, rows); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, axis, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func cell(p *float64) interface{} {
	if p == nil {
		return ""
	}
	return *p
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
