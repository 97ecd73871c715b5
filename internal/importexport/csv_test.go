package importexport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"oshikakeibo/internal/core"
)

var importNow = time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)

type counter struct{ next int64 }

func (c *counter) NextID() int64 {
	c.next++
	return c.next
}

func TestImportSingleRow(t *testing.T) {
	in := "amount,date,category,personId,note\n3000,2025-06-01,グッズ代,1,stand\n"
	res, err := ImportExpenses(strings.NewReader(in), Options{
		FallbackPersonID: 1,
		Now:              importNow,
		KnownPerson:      func(id int64) bool { return id == 1 },
	})
	if err != nil {
		t.Fatalf("ImportExpenses: %v", err)
	}
	if len(res.Imported) != 1 {
		t.Fatalf("expected 1 expense, got %+v (errors %v)", res.Imported, res.Errors)
	}
	e := res.Imported[0]
	if e.Amount != 3000 || e.Category != core.CategoryGoods || e.PersonID != 1 || e.Note != "stand" {
		t.Fatalf("unexpected expense %+v", e)
	}
	if !e.Date.Equal(core.NewDate(2025, 6, 1).Time) {
		t.Fatalf("date = %v", e.Date)
	}
	if len(res.Errors) != 0 || len(res.Warnings) != 0 {
		t.Fatalf("unexpected diagnostics %v %v", res.Errors, res.Warnings)
	}
}

func TestImportShortRowIsReportedNotImported(t *testing.T) {
	in := "amount,date,category,personId,note\n3000,2025-06-01\n"
	res, err := ImportExpenses(strings.NewReader(in), Options{FallbackPersonID: 1, Now: importNow})
	if err != nil {
		t.Fatalf("ImportExpenses: %v", err)
	}
	if len(res.Imported) != 0 {
		t.Fatalf("expected no expenses, got %+v", res.Imported)
	}
	if len(res.Errors) != 1 || res.Errors[0].Line != 2 || !errors.Is(res.Errors[0], core.ErrParse) {
		t.Fatalf("expected one parse error on line 2, got %+v", res.Errors)
	}
}

func TestImportDefaults(t *testing.T) {
	in := strings.Join([]string{
		"amount,date,category,personId,note",
		"abc,,,,",
		"1500,not-a-date,食費,x",
		"",
		"800円,2025-05-30,チケット代,2,\"note, with comma\"",
	}, "\n")
	res, err := ImportExpenses(strings.NewReader(in), Options{FallbackPersonID: 9, Now: importNow})
	if err != nil {
		t.Fatalf("ImportExpenses: %v", err)
	}
	if len(res.Imported) != 3 {
		t.Fatalf("expected 3 expenses, got %+v, errors %v", res.Imported, res.Errors)
	}

	first := res.Imported[0]
	if first.Amount != 0 || first.Category != core.FallbackCategory || first.PersonID != 9 || first.Note != "" {
		t.Errorf("row defaults = %+v", first)
	}
	if !first.Date.Equal(core.NewDate(2025, 6, 15).Time) {
		t.Errorf("missing date must default to today, got %v", first.Date)
	}

	second := res.Imported[1]
	if second.Amount != 1500 || second.Category != core.FallbackCategory || second.PersonID != 9 {
		t.Errorf("malformed fields must default: %+v", second)
	}
	if !second.Date.Equal(core.NewDate(2025, 6, 15).Time) {
		t.Errorf("bad date must default to today, got %v", second.Date)
	}

	third := res.Imported[2]
	if third.Amount != 800 || third.Note != "note, with comma" || third.PersonID != 2 {
		t.Errorf("quoted row = %+v", third)
	}

	if len(res.Errors) != 0 {
		t.Errorf("unexpected errors %v", res.Errors)
	}
	fields := map[string]int{}
	for _, w := range res.Warnings {
		fields[w.Field]++
	}
	if fields["amount"] != 1 || fields["date"] != 1 || fields["category"] != 1 || fields["personId"] != 1 {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestImportIDsUniqueInBatch(t *testing.T) {
	var b strings.Builder
	b.WriteString("amount,date,category,personId,note\n")
	for i := 0; i < 200; i++ {
		b.WriteString("100,2025-06-01,その他,1,\n")
	}

	res, err := ImportExpenses(strings.NewReader(b.String()), Options{FallbackPersonID: 1, Now: importNow})
	if err != nil {
		t.Fatalf("ImportExpenses: %v", err)
	}
	seen := map[int64]bool{}
	for _, e := range res.Imported {
		if seen[e.ID] {
			t.Fatalf("duplicate id %d", e.ID)
		}
		seen[e.ID] = true
	}

	src := &counter{next: 41}
	res, err = ImportExpenses(strings.NewReader(b.String()), Options{FallbackPersonID: 1, Now: importNow, IDs: src})
	if err != nil {
		t.Fatalf("ImportExpenses: %v", err)
	}
	if res.Imported[0].ID != 42 || res.Imported[199].ID != 241 {
		t.Fatalf("ids must come from the source, got %d..%d", res.Imported[0].ID, res.Imported[199].ID)
	}
}

func TestImportUnknownPerson(t *testing.T) {
	in := "amount,date,category,personId,note\n100,2025-06-01,その他,5,\n200,2025-06-01,その他,1,\n"
	res, err := ImportExpenses(strings.NewReader(in), Options{
		FallbackPersonID: 1,
		Now:              importNow,
		KnownPerson:      func(id int64) bool { return id == 1 },
	})
	if err != nil {
		t.Fatalf("ImportExpenses: %v", err)
	}
	if len(res.Imported) != 1 || res.Imported[0].Amount != 200 {
		t.Fatalf("imported = %+v", res.Imported)
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], core.ErrMissingPerson) {
		t.Fatalf("errors = %+v", res.Errors)
	}
}

// scriptedReader replays fixed records and errors, one per Read.
type scriptedReader struct {
	steps []scriptedStep
	pos   int
	line  int
}

type scriptedStep struct {
	record []string
	err    error
}

func (r *scriptedReader) Read() ([]string, error) {
	if r.pos >= len(r.steps) {
		return nil, io.EOF
	}
	step := r.steps[r.pos]
	r.pos++
	r.line = r.pos
	return step.record, step.err
}

func (r *scriptedReader) FieldPos(int) (int, int) { return r.line, 1 }

func TestImportBrokenFirstRowStillCountsAsHeader(t *testing.T) {
	cr := &scriptedReader{steps: []scriptedStep{
		{err: &csv.ParseError{StartLine: 1, Line: 1, Column: 3, Err: csv.ErrQuote}},
		{record: []string{"3500", "2025-06-10", "グッズ代", "1", "アクスタ"}},
		{record: []string{"800", "2025-06-11", "カフェ代", "1", ""}},
	}}
	res, err := importRecords(cr, Options{FallbackPersonID: 1, Now: importNow})
	if err != nil {
		t.Fatalf("importRecords: %v", err)
	}
	if len(res.Errors) != 1 || res.Errors[0].Line != 1 || !errors.Is(res.Errors[0], core.ErrParse) {
		t.Fatalf("errors = %+v", res.Errors)
	}
	if len(res.Imported) != 2 || res.Imported[0].Amount != 3500 {
		t.Fatalf("the first data row must not be skipped: %+v", res.Imported)
	}
}

func TestResultReject(t *testing.T) {
	in := "amount,date,category,personId,note\n100,2025-06-01,その他,1,\n200,2025-06-01,その他,2,\n300,2025-06-01,その他,1,\n"
	res, err := ImportExpenses(strings.NewReader(in), Options{FallbackPersonID: 1, Now: importNow, IDs: &counter{}})
	if err != nil {
		t.Fatalf("ImportExpenses: %v", err)
	}
	res.Reject([]core.Expense{res.Imported[1]}, func(e core.Expense) error {
		return core.ErrMissingPerson
	})
	if len(res.Imported) != 2 || res.Imported[0].Amount != 100 || res.Imported[1].Amount != 300 {
		t.Fatalf("imported = %+v", res.Imported)
	}
	if len(res.Errors) != 1 || res.Errors[0].Line != 3 || res.Errors[0].Field != "personId" {
		t.Fatalf("errors = %+v", res.Errors)
	}

	res.Reject(nil, nil)
	if len(res.Imported) != 2 {
		t.Fatalf("rejecting nothing must not change the result")
	}
}

func TestImportEmptyInput(t *testing.T) {
	for _, in := range []string{"", "amount,date,category,personId,note\n"} {
		res, err := ImportExpenses(strings.NewReader(in), Options{Now: importNow})
		if err != nil {
			t.Fatalf("ImportExpenses(%q): %v", in, err)
		}
		if len(res.Imported) != 0 || len(res.Errors) != 0 {
			t.Fatalf("expected empty result for %q, got %+v", in, res)
		}
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	expenses := []core.Expense{
		{ID: 1, Amount: 3500, Date: core.NewDate(2025, 6, 10), Category: core.CategoryGoods, PersonID: 1, Note: "アクリルスタンド"},
		{ID: 2, Amount: 8000, Date: core.NewDate(2025, 6, 8), Category: core.CategoryTicket, PersonID: 2, Note: "a, b"},
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, expenses); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	res, err := ImportExpenses(&buf, Options{FallbackPersonID: 1, Now: importNow})
	if err != nil {
		t.Fatalf("ImportExpenses: %v", err)
	}
	if len(res.Imported) != 2 {
		t.Fatalf("expected 2 rows back, got %+v", res)
	}
	for i, e := range res.Imported {
		want := expenses[i]
		if e.Amount != want.Amount || e.Category != want.Category || e.PersonID != want.PersonID || e.Note != want.Note || !e.Date.Equal(want.Date.Time) {
			t.Errorf("row %d = %+v, want %+v", i, e, want)
		}
	}
}
