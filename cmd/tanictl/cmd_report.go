package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"tani/internal/core"
	"tani/internal/report"
)

var (
	reportInput string
	reportHTML  string
	reportPDF   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build P&L reports offline",
}

var reportRenderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a report from a JSON file of season, receipts and expenses",
	Long: `Render reads {"season": {...}, "receipts": [...], "expenses": [...]}
from --input (or stdin with "-"), prints the totals and writes the HTML
and/or PDF statement. The farm profile comes from the TOML config file.`,
	RunE: runReportRender,
}

func init() {
	reportRenderCmd.Flags().StringVarP(&reportInput, "input", "i", "-", "JSON input file, - for stdin")
	reportRenderCmd.Flags().StringVar(&reportHTML, "html", "", "Write the HTML statement here")
	reportRenderCmd.Flags().StringVar(&reportPDF, "pdf", "", "Write the PDF statement here (needs a browser)")
	reportCmd.AddCommand(reportRenderCmd)
}

func readReportInput(r io.Reader) (report.Input, error) {
	var in report.Input
	dec := json.NewDecoder(r)
	if err := dec.Decode(&in); err != nil {
		return report.Input{}, fmt.Errorf("decode report input: %w", err)
	}
	if !in.Season.StartDate.IsZero() && !in.Season.EndDate.IsZero() && in.Season.EndDate.Before(in.Season.StartDate.Time) {
		return report.Input{}, core.ErrInvalidDates
	}
	return in, nil
}

func runReportRender(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	var src io.Reader = cmd.InOrStdin()
	if reportInput != "-" {
		f, err := os.Open(reportInput)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}
	in, err := readReportInput(src)
	if err != nil {
		return err
	}
	if in.Title == "" {
		in.Title = cfg.ReportTitle
	}
	if in.Farm == (core.Farm{}) {
		in.Farm = cfg.Farm
	}
	in.GeneratedAt = time.Now()

	r := report.Build(in)
	printTotals(cmd.OutOrStdout(), r)

	if reportHTML == "" && reportPDF == "" {
		return nil
	}
	html, err := report.RenderHTML(r)
	if err != nil {
		return err
	}
	if reportHTML != "" {
		if err := writeFile(reportHTML, html); err != nil {
			return err
		}
	}
	if reportPDF != "" {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.RenderTimeout)
		defer cancel()
		renderer := report.NewChromeRenderer(cfg.ChromeBin, cfg.ChromeControlURL)
		pdf, err := renderer.PDF(ctx, html)
		closeErr := renderer.Close()
		if err != nil {
			return err
		}
		if err := writeFile(reportPDF, pdf); err != nil {
			return errors.Join(err, closeErr)
		}
	}
	return nil
}

func printTotals(w io.Writer, r report.Report) {
	t := r.Totals
	fmt.Fprintf(w, "%s - %s\n", r.Title, r.Season.Name)
	fmt.Fprintf(w, "  Production          %s\n", core.FormatRupiah(t.Production))
	fmt.Fprintf(w, "  Cash costs          %s\n", core.FormatRupiah(t.CashCost))
	fmt.Fprintf(w, "  Non-cash costs      %s\n", core.FormatRupiah(t.NonCashCost))
	fmt.Fprintf(w, "  Total costs         %s\n", core.FormatRupiah(t.TotalCost))
	fmt.Fprintf(w, "  Income over cash    %s\n", core.FormatRupiah(t.IncomeOverCash))
	fmt.Fprintf(w, "  Income over total   %s\n", core.FormatRupiah(t.IncomeOverTotal))
	fmt.Fprintf(w, "  R/C cash            %s\n", core.FormatDecimal(t.RCCash, 2))
	fmt.Fprintf(w, "  R/C total           %s\n", core.FormatDecimal(t.RCTotal, 2))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
