package importexport

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"oshikakeibo/internal/core"
)

// Snapshot is a full point-in-time backup of the store.
type Snapshot struct {
	People     []core.Person        `json:"people"`
	Expenses   []core.Expense       `json:"expenses"`
	Budgets    []core.Budget        `json:"budgets"`
	Events     []core.CalendarEvent `json:"events,omitempty"`
	ExportedAt time.Time            `json:"exportedAt"`
}

// ExportSnapshot stamps st with the export time. Nil collections become
// empty lists so the JSON always carries every key.
func ExportSnapshot(st core.State, now time.Time) Snapshot {
	snap := Snapshot{
		People:     st.People,
		Expenses:   st.Expenses,
		Budgets:    st.Budgets,
		Events:     st.Events,
		ExportedAt: now.UTC(),
	}
	if snap.People == nil {
		snap.People = []core.Person{}
	}
	if snap.Expenses == nil {
		snap.Expenses = []core.Expense{}
	}
	if snap.Budgets == nil {
		snap.Budgets = []core.Budget{}
	}
	return snap
}

// State returns the collections of the snapshot.
func (s Snapshot) State() core.State {
	return core.State{People: s.People, Expenses: s.Expenses, Budgets: s.Budgets, Events: s.Events}
}

// BackupFilename is the download name of a JSON backup taken at now.
func BackupFilename(now time.Time) string {
	return fmt.Sprintf("oshi-kakeibo-backup-%s.json", now.Format("2006-01-02"))
}

func WriteJSON(w io.Writer, snap Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a JSON backup written by WriteJSON.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decode snapshot: %w", core.ErrParse, err)
	}
	return snap, nil
}

// ShareReport is the text the client posts when sharing this month's total.
func ShareReport(monthTotal int64) string {
	return fmt.Sprintf("今月の推し活支出: %s\n推し活家計簿で管理中💕 #推し活 #家計簿 #推し活記録", core.FormatYen(monthTotal))
}
