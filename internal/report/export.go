package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	applog "tani/internal/log"
	"tani/internal/metrics"
)

// Exporter renders reports to PDF files under a cache directory.
type Exporter struct {
	dir      string
	renderer Renderer
	metrics  *metrics.Metrics
	log      *applog.Logger
}

func NewExporter(dir string, renderer Renderer, m *metrics.Metrics, logger *applog.Logger) *Exporter {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Exporter{dir: dir, renderer: renderer, metrics: m, log: logger.WithComponent(applog.ComponentReport)}
}

// Dir is where finished reports are stored.
func (e *Exporter) Dir() string {
	return e.dir
}

// Export renders r and moves the PDF into the cache directory. The file
// only appears there once complete.
func (e *Exporter) Export(ctx context.Context, r Report) (path string, err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveRender(err, time.Since(start)) }()

	html, err := RenderHTML(r)
	if err != nil {
		return "", err
	}
	pdf, err := e.renderer.PDF(ctx, html)
	if err != nil {
		return "", fmt.Errorf("render pdf: %w", err)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	tmp, err := os.CreateTemp(e.dir, ".report-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(pdf); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close pdf: %w", err)
	}

	path = filepath.Join(e.dir, FileName(r.Season.Name, r.GeneratedAt, uuid.NewString()[:8]))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move pdf: %w", err)
	}

	e.log.InfoContext(ctx, "Report exported",
		applog.FieldOperation, applog.OpExport, applog.FieldSeasonID, r.Season.ID,
		applog.FieldReportPath, path, applog.FieldBytes, len(pdf))
	return path, nil
}

// FileName builds "laporan-<season>-<timestamp>-<tag>.pdf" with the season
// name reduced to lowercase letters, digits and dashes. tag keeps two renders
// in the same second apart; it is left out when empty.
func FileName(season string, at time.Time, tag string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(season) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "musim"
	}
	if len(slug) > 60 {
		slug = strings.TrimSuffix(slug[:60], "-")
	}
	if at.IsZero() {
		at = time.Now()
	}
	name := "laporan-" + slug + "-" + at.Format("20060102-150405")
	if tag != "" {
		name += "-" + tag
	}
	return name + ".pdf"
}
