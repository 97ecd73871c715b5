package sheets

import (
	"context"

	"oshikakeibo/internal/core"
)

// ExpenseRow is an expense together with the display name of its person,
// as written to an external spreadsheet.
type ExpenseRow struct {
	core.Expense
	PersonName string
}

// Ports for outbound adapters.
type (
	// ExpenseMirror copies expenses to an external spreadsheet.
	ExpenseMirror interface {
		// AppendExpenses appends rows after the last used row and returns
		// the written range.
		AppendExpenses(ctx context.Context, rows []ExpenseRow) (rowRef string, err error)
		// MirroredIDs returns the ids of expenses already present in the sheet.
		MirroredIDs(ctx context.Context) (map[int64]bool, error)
	}
)

// Rows pairs each expense with its person's name. Expenses of unknown
// people get an empty name.
func Rows(people []core.Person, expenses []core.Expense) []ExpenseRow {
	names := make(map[int64]string, len(people))
	for _, p := range people {
		names[p.ID] = p.Name
	}
	out := make([]ExpenseRow, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, ExpenseRow{Expense: e, PersonName: names[e.PersonID]})
	}
	return out
}
