package sheets

import (
	"context"

	"tani/internal/report"
)

// ReportExporter mirrors a finished report into a spreadsheet and returns
// a reference to the written range.
type ReportExporter interface {
	ExportReport(ctx context.Context, r report.Report) (rowRef string, err error)
}
