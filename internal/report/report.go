// Package report turns a season's receipts and expenses into a farm
// profit-and-loss statement and renders it as HTML and PDF.
package report

import (
	"sort"
	"strings"
	"time"

	"tani/internal/core"
)

// DaysPerYear converts yearly tool depreciation into a season share.
const DaysPerYear = 365

type Input struct {
	Title       string
	Farm        core.Farm
	Season      core.Season
	Receipts    []core.Receipt
	Expenses    []core.Expense
	GeneratedAt time.Time
}

// Line is one row of a report section.
type Line struct {
	Name     string  `json:"name"`
	Detail   string  `json:"detail,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
	Unit     string  `json:"unit,omitempty"`
	Cash     bool    `json:"cash"`
	Amount   float64 `json:"amount"`
}

type Section struct {
	Title string  `json:"title"`
	Lines []Line  `json:"lines"`
	Total float64 `json:"total"`
}

func (s *Section) add(l Line) {
	s.Lines = append(s.Lines, l)
	s.Total += l.Amount
}

// Totals is the bottom of the statement. Income figures can be negative.
type Totals struct {
	Production      float64 `json:"total_produksi"`
	CashCost        float64 `json:"total_biaya_tunai"`
	NonCashCost     float64 `json:"total_biaya_non_tunai"`
	TotalCost       float64 `json:"total_biaya"`
	IncomeOverCash  float64 `json:"pendapatan_atas_biaya_tunai"`
	IncomeOverTotal float64 `json:"pendapatan_atas_biaya_total"`
	RCCash          float64 `json:"rc_tunai"`
	RCTotal         float64 `json:"rc_total"`
}

type Report struct {
	Title       string      `json:"title"`
	Farm        core.Farm   `json:"farm"`
	Season      core.Season `json:"season"`
	GeneratedAt time.Time   `json:"generated_at"`
	SeasonDays  int         `json:"season_days"`
	// ProrateFactor scales yearly depreciation to the season length.
	ProrateFactor float64 `json:"prorate_factor"`

	Production   Section `json:"production"`
	CashCosts    Section `json:"cash_costs"`
	Labor        Section `json:"labor"`
	Depreciation Section `json:"depreciation"`
	Extras       Section `json:"extras"`

	Totals Totals `json:"totals"`
}

// Build aggregates the inputs. Cash line items are always cash costs.
// Labor and extras follow the expense type: cash expenses are hired labor
// and paid extras, non-cash ones are family labor and imputed extras. Tool
// depreciation is always non-cash.
func Build(in Input) Report {
	r := Report{
		Title:         in.Title,
		Farm:          in.Farm,
		Season:        in.Season,
		GeneratedAt:   in.GeneratedAt,
		ProrateFactor: 1,
		Production:    Section{Title: "Produksi"},
		CashCosts:     Section{Title: "Biaya Sarana Produksi"},
		Labor:         Section{Title: "Tenaga Kerja"},
		Depreciation:  Section{Title: "Penyusutan Alat"},
		Extras:        Section{Title: "Biaya Lain-lain"},
	}
	if days := in.Season.StartDate.DaysUntil(in.Season.EndDate); days > 0 {
		r.SeasonDays = days
		r.ProrateFactor = float64(days) / DaysPerYear
	}

	buildProduction(&r, in.Receipts)

	var cash, nonCash float64
	for _, e := range sortedExpenses(in.Expenses) {
		paid := e.Type != core.ExpenseNonCash
		for _, it := range e.Items {
			switch it.Kind {
			case core.ItemCash:
				r.CashCosts.add(Line{Name: it.Name, Quantity: it.Quantity, Unit: it.Unit, Cash: true, Amount: it.Amount()})
				cash += it.Amount()
			case core.ItemLabor:
				detail := "Keluarga"
				if paid {
					detail = "Upahan"
				}
				r.Labor.add(Line{Name: it.Name, Detail: detail, Quantity: it.Workers * it.Days, Unit: "HOK", Cash: paid, Amount: it.Amount()})
				if paid {
					cash += it.Amount()
				} else {
					nonCash += it.Amount()
				}
			case core.ItemExtra:
				r.Extras.add(Line{Name: it.Name, Quantity: it.Quantity, Unit: it.Unit, Cash: paid, Amount: it.Amount()})
				if paid {
					cash += it.Amount()
				} else {
					nonCash += it.Amount()
				}
			case core.ItemTool:
				v := it.Amount() * r.ProrateFactor
				r.Depreciation.add(Line{Name: it.Name, Detail: "per tahun " + core.FormatRupiah(it.Amount()), Quantity: it.Quantity, Unit: it.Unit, Amount: v})
				nonCash += v
			}
		}
	}

	t := &r.Totals
	t.Production = r.Production.Total
	t.CashCost = cash
	t.NonCashCost = nonCash
	t.TotalCost = t.CashCost + t.NonCashCost
	t.IncomeOverCash = t.Production - t.CashCost
	t.IncomeOverTotal = t.Production - t.TotalCost
	t.RCCash = core.Ratio(t.Production, t.CashCost)
	t.RCTotal = core.Ratio(t.Production, t.TotalCost)
	return r
}

// buildProduction groups receipts by description, case-insensitively, in
// order of first appearance.
func buildProduction(r *Report, receipts []core.Receipt) {
	type group struct {
		line  Line
		order int
	}
	groups := map[string]*group{}
	for i, rc := range sortedReceipts(receipts) {
		key := strings.ToLower(strings.TrimSpace(rc.Description))
		g, ok := groups[key]
		if !ok {
			g = &group{line: Line{Name: strings.TrimSpace(rc.Description), Unit: rc.Unit, Cash: true}, order: i}
			groups[key] = g
		}
		g.line.Quantity += rc.Quantity
		g.line.Amount += rc.Total()
		if g.line.Unit != rc.Unit {
			g.line.Unit = ""
		}
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].order < ordered[j].order })
	for _, g := range ordered {
		if g.line.Quantity > 0 {
			g.line.Detail = "@ " + core.FormatRupiah(g.line.Amount/g.line.Quantity)
		}
		r.Production.add(g.line)
	}
}

func sortedReceipts(in []core.Receipt) []core.Receipt {
	out := append([]core.Receipt(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}

func sortedExpenses(in []core.Expense) []core.Expense {
	out := append([]core.Expense(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}
