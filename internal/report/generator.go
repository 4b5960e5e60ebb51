package report

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tani/internal/core"
)

// Source reads the records of one user's season.
type Source interface {
	Season(ctx context.Context, userID, id string) (core.Season, error)
	ListReceipts(ctx context.Context, userID, seasonID string) ([]core.Receipt, error)
	ListExpenses(ctx context.Context, userID, seasonID string) ([]core.Expense, error)
}

// Generator fetches a season's records, builds the report and exports it.
type Generator struct {
	source   Source
	exporter *Exporter
	title    string
	farm     core.Farm
	now      func() time.Time
}

func NewGenerator(source Source, exporter *Exporter, title string, farm core.Farm) *Generator {
	return &Generator{source: source, exporter: exporter, title: title, farm: farm, now: time.Now}
}

// Result is a generated report and where its PDF was written.
type Result struct {
	Report Report `json:"report"`
	Path   string `json:"path"`
}

// Build fetches the three record sets concurrently and aggregates them.
func (g *Generator) Build(ctx context.Context, userID, seasonID string) (Report, error) {
	var (
		season   core.Season
		receipts []core.Receipt
		expenses []core.Expense
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		season, err = g.source.Season(ctx, userID, seasonID)
		return err
	})
	eg.Go(func() error {
		var err error
		receipts, err = g.source.ListReceipts(ctx, userID, seasonID)
		return err
	})
	eg.Go(func() error {
		var err error
		expenses, err = g.source.ListExpenses(ctx, userID, seasonID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return Report{}, fmt.Errorf("load season data: %w", err)
	}

	return Build(Input{
		Title:       g.title,
		Farm:        g.farm,
		Season:      season,
		Receipts:    receipts,
		Expenses:    expenses,
		GeneratedAt: g.now(),
	}), nil
}

// Generate builds and exports the report.
func (g *Generator) Generate(ctx context.Context, userID, seasonID string) (Result, error) {
	r, err := g.Build(ctx, userID, seasonID)
	if err != nil {
		return Result{}, err
	}
	path, err := g.exporter.Export(ctx, r)
	if err != nil {
		return Result{}, err
	}
	return Result{Report: r, Path: path}, nil
}
