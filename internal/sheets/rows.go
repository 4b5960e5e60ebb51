// Package sheets mirrors finished reports into a spreadsheet, one sheet per
// season.
package sheets

import (
	"fmt"
	"strings"

	"tani/internal/report"
)

// maxTitle is the sheet title limit imposed by Google Sheets.
const maxTitle = 100

// SheetName returns "<season name> <year>". The year comes from the season
// start, or the generation time when the season has no dates.
func SheetName(r report.Report) string {
	name := strings.Join(strings.Fields(r.Season.Name), " ")
	if name == "" {
		name = "Musim"
	}
	year := r.GeneratedAt.Year()
	if !r.Season.StartDate.IsZero() {
		year = r.Season.StartDate.Year()
	}
	suffix := fmt.Sprintf(" %d", year)
	if len(name)+len(suffix) > maxTitle {
		name = strings.TrimSpace(name[:maxTitle-len(suffix)])
	}
	return name + suffix
}

// Rows lays the statement out top to bottom: a header block, each section
// with its lines and subtotal, then the totals.
func Rows(r report.Report) [][]any {
	rows := [][]any{
		{r.Title},
		{"Usaha tani", r.Farm.Name},
		{"Pemilik", r.Farm.Owner},
		{"Musim", r.Season.Name, r.Season.Commodity},
		{"Periode", r.Season.StartDate.String(), r.Season.EndDate.String(), r.SeasonDays},
		{"Dibuat", r.GeneratedAt.Format("2006-01-02 15:04")},
		{},
		{"Uraian", "Keterangan", "Jumlah", "Satuan", "Tunai", "Nilai (Rp)"},
	}

	for _, s := range []report.Section{r.Production, r.CashCosts, r.Labor, r.Depreciation, r.Extras} {
		rows = append(rows, []any{s.Title})
		for _, l := range s.Lines {
			cash := "Tidak"
			if l.Cash {
				cash = "Ya"
			}
			rows = append(rows, []any{l.Name, l.Detail, l.Quantity, l.Unit, cash, l.Amount})
		}
		rows = append(rows, []any{"Subtotal " + s.Title, "", "", "", "", s.Total}, []any{})
	}

	t := r.Totals
	return append(rows,
		[]any{"Total produksi", "", "", "", "", t.Production},
		[]any{"Total biaya tunai", "", "", "", "", t.CashCost},
		[]any{"Total biaya non tunai", "", "", "", "", t.NonCashCost},
		[]any{"Total biaya", "", "", "", "", t.TotalCost},
		[]any{"Pendapatan atas biaya tunai", "", "", "", "", t.IncomeOverCash},
		[]any{"Pendapatan atas biaya total", "", "", "", "", t.IncomeOverTotal},
		[]any{"R/C atas biaya tunai", "", "", "", "", t.RCCash},
		[]any{"R/C atas biaya total", "", "", "", "", t.RCTotal},
	)
}
