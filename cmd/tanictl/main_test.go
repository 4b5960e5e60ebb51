package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tani/internal/core"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TANI_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	t.Setenv("LOG_FORMAT", "json")
	numStrict = false
	reportInput, reportHTML, reportPDF = "-", "", ""
	dbPath = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestNumCommand(t *testing.T) {
	out, err := execute(t, "", "num", "1.500.000", "2,5", "abc")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Rp 1.500.000")
	assert.Contains(t, lines[1], "2,5")
	assert.Contains(t, lines[2], "Rp 0")

	_, err = execute(t, "", "num", "--strict", "abc")
	assert.ErrorIs(t, err, core.ErrInvalidNumber)
}

func TestMigrateAndSessionCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "tani.db")

	out, err := execute(t, "", "--db", db, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "(clean)")

	out, err = execute(t, "", "--db", db, "session", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "remember me: false")
	assert.Contains(t, out, "stored session: none")

	out, err = execute(t, "", "--db", db, "jobs", "prune")
	require.NoError(t, err)
	assert.Contains(t, out, "removed 0 report file(s)")
}

func TestReportRenderFromStdin(t *testing.T) {
	input := `{
		"season": {"name": "MT I", "start_date": "2025-01-01", "end_date": "2025-04-30"},
		"receipts": [{"date": "2025-04-20", "description": "Gabah", "quantity": 2, "unit_price": 5000000}],
		"expenses": [{"date": "2025-02-01", "type": "cash", "items": [
			{"kind": "cash", "name": "Urea", "quantity": 100, "unit_price": 2500}
		]}]
	}`
	html := filepath.Join(t.TempDir(), "out", "report.html")

	out, err := execute(t, input, "report", "render", "--html", html)
	require.NoError(t, err)
	assert.Contains(t, out, "MT I")
	assert.Contains(t, out, "Rp 10.000.000")
	assert.Contains(t, out, "Rp 250.000")
	assert.FileExists(t, html)
}

func TestReportRenderRejectsReversedDates(t *testing.T) {
	input := `{"season": {"name": "MT I", "start_date": "2025-04-30", "end_date": "2025-01-01"}}`
	_, err := execute(t, input, "report", "render")
	assert.ErrorIs(t, err, core.ErrInvalidDates)
}
