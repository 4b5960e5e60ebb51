package report

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tani/internal/core"
)

func sampleInput() Input {
	return Input{
		Title: "Laporan Laba Rugi Usaha Tani",
		Farm:  core.Farm{Name: "Tani Makmur", Owner: "Pak Budi", Village: "Sukamaju"},
		Season: core.Season{
			ID: "s-1", Name: "MT I 2025", Commodity: "Padi", LandArea: 0.5,
			StartDate: core.NewDate(2025, 1, 1), EndDate: core.NewDate(2025, 4, 30),
		},
		Receipts: []core.Receipt{
			{Date: core.NewDate(2025, 4, 20), Description: "Gabah kering", Quantity: 2000, Unit: "kg", UnitPrice: 6000},
			{Date: core.NewDate(2025, 4, 25), Description: "gabah kering ", Quantity: 1000, Unit: "kg", UnitPrice: 6500},
			{Date: core.NewDate(2025, 4, 26), Description: "Jerami", Quantity: 1, UnitPrice: 200000},
		},
		Expenses: []core.Expense{
			{Date: core.NewDate(2025, 1, 5), Type: core.ExpenseCash, Items: []core.ExpenseItem{
				{Kind: core.ItemCash, Name: "Urea", Quantity: 100, Unit: "kg", UnitPrice: 2500},
				{Kind: core.ItemLabor, Name: "Tanam", Workers: 5, Days: 2, Wage: 80000},
				{Kind: core.ItemExtra, Name: "Sewa traktor", Quantity: 1, UnitPrice: 500000},
			}},
			{Date: core.NewDate(2025, 1, 6), Type: core.ExpenseNonCash, Items: []core.ExpenseItem{
				{Kind: core.ItemLabor, Name: "Penyiangan", Workers: 2, Days: 3, Wage: 70000},
				{Kind: core.ItemExtra, Name: "Sewa lahan sendiri", Quantity: 1, UnitPrice: 1000000},
				{Kind: core.ItemTool, Name: "Cangkul", Quantity: 2, PurchasePrice: 150000, SalvageValue: 25000, LifespanYears: 5},
			}},
		},
		GeneratedAt: time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestBuildClassifiesCosts(t *testing.T) {
	r := Build(sampleInput())

	assert.Equal(t, 120, r.SeasonDays)
	assert.InDelta(t, 120.0/365.0, r.ProrateFactor, 1e-12)

	require.Len(t, r.Production.Lines, 2)
	assert.Equal(t, "Gabah kering", r.Production.Lines[0].Name)
	assert.Equal(t, 3000.0, r.Production.Lines[0].Quantity)
	assert.Equal(t, "kg", r.Production.Lines[0].Unit)
	assert.Equal(t, 18500000.0+200000.0, r.Totals.Production)

	hired := 5.0 * 2 * 80000
	family := 2.0 * 3 * 70000
	depreciation := 2 * (150000.0 - 25000) / 5 * (120.0 / 365.0)

	assert.Equal(t, 250000.0+hired+500000, r.Totals.CashCost)
	assert.InDelta(t, family+1000000+depreciation, r.Totals.NonCashCost, 1e-6)
	require.Len(t, r.Labor.Lines, 2)
	assert.Equal(t, "Upahan", r.Labor.Lines[0].Detail)
	assert.Equal(t, "Keluarga", r.Labor.Lines[1].Detail)
	assert.False(t, r.Depreciation.Lines[0].Cash)

	assert.InDelta(t, r.Totals.Production/r.Totals.CashCost, r.Totals.RCCash, 1e-12)
	assert.InDelta(t, r.Totals.Production/r.Totals.TotalCost, r.Totals.RCTotal, 1e-12)
}

func TestBuildWithoutSeasonDatesUsesFullYear(t *testing.T) {
	in := sampleInput()
	in.Season.StartDate = core.Date{}
	r := Build(in)
	assert.Equal(t, 1.0, r.ProrateFactor)
	assert.Equal(t, 2*(150000.0-25000)/5, r.Depreciation.Total)
}

func TestBuildEmpty(t *testing.T) {
	r := Build(Input{})
	assert.Zero(t, r.Totals.RCCash)
	assert.Zero(t, r.Totals.RCTotal)
	assert.Zero(t, r.Totals.TotalCost)
}

func TestTotalsInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	kinds := []core.ItemKind{core.ItemCash, core.ItemLabor, core.ItemTool, core.ItemExtra}
	types := []core.ExpenseType{core.ExpenseCash, core.ExpenseNonCash}

	for i := 0; i < 200; i++ {
		in := Input{Season: core.Season{StartDate: core.NewDate(2025, 1, 1), EndDate: core.NewDate(2025, 1, 1+rng.Intn(200))}}
		for j := rng.Intn(5); j > 0; j-- {
			in.Receipts = append(in.Receipts, core.Receipt{
				Description: "hasil", Quantity: rng.Float64() * 1000, UnitPrice: rng.Float64() * 10000,
			})
		}
		for j := rng.Intn(5); j > 0; j-- {
			e := core.Expense{Type: types[rng.Intn(2)]}
			for k := 1 + rng.Intn(4); k > 0; k-- {
				e.Items = append(e.Items, core.ExpenseItem{
					Kind: kinds[rng.Intn(len(kinds))], Name: "x",
					Quantity: rng.Float64() * 100, UnitPrice: rng.Float64() * 5000,
					Workers: float64(rng.Intn(10)), Days: float64(rng.Intn(10)), Wage: rng.Float64() * 100000,
					PurchasePrice: 100000 + rng.Float64()*1e6, SalvageValue: rng.Float64() * 100000,
					LifespanYears: 1 + float64(rng.Intn(10)),
				})
			}
			in.Expenses = append(in.Expenses, e)
		}

		tot := Build(in).Totals
		assert.Equal(t, tot.CashCost+tot.NonCashCost, tot.TotalCost)
		assert.Equal(t, tot.Production-tot.TotalCost, tot.IncomeOverTotal)
		assert.Equal(t, tot.Production-tot.CashCost, tot.IncomeOverCash)
		assert.GreaterOrEqual(t, tot.CashCost, 0.0)
		assert.GreaterOrEqual(t, tot.NonCashCost, 0.0)
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(Build(sampleInput()))
	require.NoError(t, err)
	s := string(html)
	assert.Contains(t, s, "Laporan Laba Rugi Usaha Tani")
	assert.Contains(t, s, "Tani Makmur")
	assert.Contains(t, s, "01/01/2025 s.d. 30/04/2025 (120 hari)")
	assert.Contains(t, s, "Rp 250.000")
	assert.Contains(t, s, "Upahan")
	assert.Contains(t, s, "R/C atas biaya total")
}

func TestFileName(t *testing.T) {
	at := time.Date(2025, 5, 1, 9, 30, 5, 0, time.UTC)
	tests := []struct {
		season string
		tag    string
		want   string
	}{
		{"MT I 2025", "", "laporan-mt-i-2025-20250501-093005.pdf"},
		{"  Padi / Jagung!! ", "", "laporan-padi-jagung-20250501-093005.pdf"},
		{"../../etc", "", "laporan-etc-20250501-093005.pdf"},
		{"", "", "laporan-musim-20250501-093005.pdf"},
		{"MT I 2025", "3f2a9c01", "laporan-mt-i-2025-20250501-093005-3f2a9c01.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileName(tt.season, at, tt.tag), tt.season)
	}
}

type fakeRenderer struct {
	err  error
	html string
}

func (f *fakeRenderer) PDF(_ context.Context, html []byte) ([]byte, error) {
	f.html = string(html)
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.4 fake"), nil
}

func TestExporterWritesIntoCacheDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	fr := &fakeRenderer{}
	e := NewExporter(dir, fr, nil, nil)

	path, err := e.Export(context.Background(), Build(sampleInput()))
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, `^laporan-mt-i-2025-20250501-093000-[0-9a-f]{8}\.pdf$`, filepath.Base(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExporterKeepsSameSecondRendersApart(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, &fakeRenderer{}, nil, nil)
	r := Build(sampleInput())

	first, err := e.Export(context.Background(), r)
	require.NoError(t, err)
	second, err := e.Export(context.Background(), r)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

type fakeLauncher struct{ cleanups int }

func (f *fakeLauncher) Cleanup() { f.cleanups++ }

func TestChromeRendererStopsLaunchedBrowser(t *testing.T) {
	l := &fakeLauncher{}
	c := NewChromeRenderer("", "")
	c.launcher = l
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, l.cleanups)
}

func TestChromeRendererReconnectStopsOldBrowser(t *testing.T) {
	l := &fakeLauncher{}
	c := NewChromeRenderer("", "ws://127.0.0.1:1/devtools/browser/gone")
	c.launcher = l

	_, err := c.PDF(context.Background(), []byte("<html></html>"))
	require.Error(t, err)
	assert.Equal(t, 1, l.cleanups)
	assert.Nil(t, c.launcher)
}

func TestExporterRenderFailureLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(dir, &fakeRenderer{err: errors.New("chrome crashed")}, nil, nil)
	_, err := e.Export(context.Background(), Build(sampleInput()))
	require.Error(t, err)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

type fakeSource struct {
	in  Input
	err error
}

func (f fakeSource) Season(context.Context, string, string) (core.Season, error) {
	return f.in.Season, f.err
}

func (f fakeSource) ListReceipts(context.Context, string, string) ([]core.Receipt, error) {
	return f.in.Receipts, nil
}

func (f fakeSource) ListExpenses(context.Context, string, string) ([]core.Expense, error) {
	return f.in.Expenses, nil
}

func TestGenerator(t *testing.T) {
	in := sampleInput()
	e := NewExporter(t.TempDir(), &fakeRenderer{}, nil, nil)
	g := NewGenerator(fakeSource{in: in}, e, in.Title, in.Farm)
	g.now = func() time.Time { return in.GeneratedAt }

	res, err := g.Generate(context.Background(), "u-1", "s-1")
	require.NoError(t, err)
	assert.Equal(t, Build(in).Totals, res.Report.Totals)
	assert.FileExists(t, res.Path)

	g = NewGenerator(fakeSource{err: errors.New("not found")}, e, in.Title, in.Farm)
	_, err = g.Generate(context.Background(), "u-1", "s-1")
	assert.ErrorContains(t, err, "load season data")
}
