package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tani/internal/core"
	"tani/internal/report"
)

func TestStoreReplacesSheet(t *testing.T) {
	s := New()
	r := report.Build(report.Input{
		Season:      core.Season{Name: "Gadu"},
		GeneratedAt: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
	})

	ref, err := s.ExportReport(context.Background(), r)
	require.NoError(t, err)
	assert.Contains(t, ref, "mem:Gadu 2024!A1:F")

	_, err = s.ExportReport(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Writes())

	rows, ok := s.Sheet("Gadu 2024")
	require.True(t, ok)
	assert.NotEmpty(t, rows)

	_, ok = s.Sheet("missing")
	assert.False(t, ok)
}
