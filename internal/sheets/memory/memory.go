package memory

import (
	"context"
	"fmt"
	"sync"

	"oshikakeibo/internal/sheets"
)

// Mirror keeps mirrored rows in process. It backs the mirror port when no
// spreadsheet is configured in development and in tests.
type Mirror struct {
	mu   sync.Mutex
	rows []sheets.ExpenseRow
}

var _ sheets.ExpenseMirror = (*Mirror)(nil)

func New() *Mirror {
	return &Mirror{}
}

// AppendExpenses stores the rows and returns a synthetic row reference.
func (m *Mirror) AppendExpenses(_ context.Context, rows []sheets.ExpenseRow) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	first := len(m.rows) + 1
	m.rows = append(m.rows, rows...)
	return fmt.Sprintf("mem:%d-%d", first, len(m.rows)), nil
}

func (m *Mirror) MirroredIDs(_ context.Context) (map[int64]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[int64]bool, len(m.rows))
	for _, r := range m.rows {
		ids[r.ID] = true
	}
	return ids, nil
}

// Rows returns a copy of everything appended so far.
func (m *Mirror) Rows() []sheets.ExpenseRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sheets.ExpenseRow(nil), m.rows...)
}
