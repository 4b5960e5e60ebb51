package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"tani/internal/core"
)

//go:embed templates/report.html
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html").Funcs(template.FuncMap{
	"rupiah":  core.FormatRupiah,
	"decimal": func(v float64) string { return core.FormatDecimal(v, 2) },
	"date": func(d core.Date) string {
		if d.IsZero() {
			return "-"
		}
		return d.Format("02/01/2006")
	},
}).ParseFS(templateFS, "templates/report.html"))

// RenderHTML renders the printable statement.
func RenderHTML(r Report) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, r); err != nil {
		return nil, fmt.Errorf("render report html: %w", err)
	}
	return buf.Bytes(), nil
}
