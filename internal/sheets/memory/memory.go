package memory

import (
	"context"
	"fmt"
	"sync"

	"tani/internal/report"
	ports "tani/internal/sheets"
)

var _ ports.ReportExporter = (*Store)(nil)

// Store keeps exported sheets in memory, keyed by sheet name. Used when no
// spreadsheet is configured in development, and in tests.
type Store struct {
	mu     sync.Mutex
	sheets map[string][][]any
	writes int
}

func New() *Store {
	return &Store{sheets: make(map[string][][]any)}
}

// ExportReport replaces the sheet contents and returns a synthetic
// reference.
func (s *Store) ExportReport(_ context.Context, r report.Report) (string, error) {
	name := ports.SheetName(r)
	rows := ports.Rows(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[name] = rows
	s.writes++
	return fmt.Sprintf("mem:%s!A1:F%d", name, len(rows)), nil
}

// Sheet returns a copy of the rows written to name.
func (s *Store) Sheet(name string) ([][]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.sheets[name]
	if !ok {
		return nil, false
	}
	return append([][]any(nil), rows...), true
}

// Writes counts ExportReport calls.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
