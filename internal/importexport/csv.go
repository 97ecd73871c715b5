// Package importexport moves ledger data in and out of the service: CSV
// expense import, JSON backup snapshots, CSV and XLSX exports.
package importexport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"oshikakeibo/internal/core"
)

// Columns is the fixed column order of the expense CSV format.
var Columns = []string{"amount", "date", "category", "personId", "note"}

// minFields is the shortest row that still describes an expense.
const minFields = 4

type (
	// IDSource hands out fresh expense ids.
	IDSource interface {
		NextID() int64
	}

	Options struct {
		// FallbackPersonID is used when a row has no usable personId.
		FallbackPersonID int64
		// Now supplies today's date for rows without one.
		Now time.Time
		// IDs assigns ids. When nil, ids are Now in milliseconds plus the row index.
		IDs IDSource
		// KnownPerson, when set, rejects rows that point at unknown people.
		KnownPerson func(id int64) bool
	}

	// RowError describes a row that was dropped, or a field that was
	// replaced by its default.
	RowError struct {
		Line  int    `json:"line"`
		Field string `json:"field,omitempty"`
		Err   error  `json:"-"`
	}

	Result struct {
		Imported []core.Expense `json:"imported"`
		// Errors lists rows that were not imported.
		Errors []RowError `json:"errors"`
		// Warnings lists malformed fields that fell back to a default.
		Warnings []RowError `json:"warnings"`

		// lines holds the source line of each Imported row.
		lines []int
	}
)

func (e RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Field, e.Err)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// MarshalJSON lets RowError render as its message in JSON responses.
func (e RowError) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(e.Error())), nil
}

// ImportExpenses parses CSV text in the Columns order. The first row is a
// header and is skipped. Malformed fields fall back to defaults instead of
// failing the row: amount 0, date today, category その他, personId the
// fallback, note empty. Rows with fewer than four fields are reported in
// Result.Errors and skipped. Only a read failure of r itself is returned as error.
func ImportExpenses(r io.Reader, opts Options) (Result, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return importRecords(cr, opts)
}

// recordReader is the part of *csv.Reader the importer uses.
type recordReader interface {
	Read() ([]string, error)
	FieldPos(field int) (line, column int)
}

func importRecords(cr recordReader, opts Options) (Result, error) {
	today := core.DateOf(opts.Now)
	base := opts.Now.UnixMilli()

	res := Result{Imported: []core.Expense{}, Errors: []RowError{}, Warnings: []RowError{}}
	header := true
	for index := 0; ; index++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				header = false
				res.Errors = append(res.Errors, RowError{Line: pe.StartLine, Err: fmt.Errorf("%w: %v", core.ErrParse, pe.Err)})
				continue
			}
			return res, fmt.Errorf("read csv: %w", err)
		}
		if header {
			header = false
			continue
		}
		line, _ := cr.FieldPos(0)
		if len(record) < minFields {
			res.Errors = append(res.Errors, RowError{
				Line: line,
				Err:  fmt.Errorf("%w: %d fields, need at least %d", core.ErrParse, len(record), minFields),
			})
			continue
		}

		e, warnings := parseRow(record, line, today, opts.FallbackPersonID)
		res.Warnings = append(res.Warnings, warnings...)
		if opts.KnownPerson != nil && !opts.KnownPerson(e.PersonID) {
			res.Errors = append(res.Errors, RowError{
				Line:  line,
				Field: "personId",
				Err:   fmt.Errorf("%w: unknown person %d", core.ErrMissingPerson, e.PersonID),
			})
			continue
		}
		if opts.IDs != nil {
			e.ID = opts.IDs.NextID()
		} else {
			e.ID = base + int64(index)
		}
		res.Imported = append(res.Imported, e)
		res.lines = append(res.lines, line)
	}
	return res, nil
}

// Reject moves the rejected rows from Imported to Errors, matching them by
// id. It is used for rows the store refused to append.
func (r *Result) Reject(rejected []core.Expense, reason func(core.Expense) error) {
	if len(rejected) == 0 {
		return
	}
	drop := make(map[int64]core.Expense, len(rejected))
	for _, e := range rejected {
		drop[e.ID] = e
	}
	kept := r.Imported[:0]
	keptLines := make([]int, 0, len(r.Imported))
	for i, e := range r.Imported {
		line := 0
		if i < len(r.lines) {
			line = r.lines[i]
		}
		if _, ok := drop[e.ID]; ok {
			r.Errors = append(r.Errors, RowError{Line: line, Field: "personId", Err: reason(e)})
			continue
		}
		kept = append(kept, e)
		keptLines = append(keptLines, line)
	}
	r.Imported = kept
	r.lines = keptLines
}

func parseRow(record []string, line int, today core.Date, fallbackPersonID int64) (core.Expense, []RowError) {
	var warnings []RowError
	warn := func(field string, err error) {
		warnings = append(warnings, RowError{Line: line, Field: field, Err: err})
	}
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	e := core.Expense{Date: today, Category: core.FallbackCategory, PersonID: fallbackPersonID}

	if raw := field(0); raw != "" {
		amount, err := core.ParseYen(raw)
		if err != nil {
			warn("amount", err)
		} else {
			e.Amount = amount
		}
	}

	if raw := field(1); raw != "" {
		d, err := core.ParseDate(raw)
		if err != nil {
			warn("date", err)
		} else {
			e.Date = d
		}
	}

	if raw := core.Category(field(2)); raw != "" {
		if raw.Known() {
			e.Category = raw
		} else {
			warn("category", fmt.Errorf("%w %q", core.ErrUnknownCategory, raw))
		}
	}

	if raw := field(3); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			warn("personId", fmt.Errorf("%w: person id %q", core.ErrParse, raw))
		} else {
			e.PersonID = id
		}
	}

	e.Note = field(4)
	return e, warnings
}

// WriteCSV writes expenses in the import format so an export can be
// imported again.
func WriteCSV(w io.Writer, expenses []core.Expense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range expenses {
		if err := cw.Write([]string{
			strconv.FormatInt(e.Amount, 10),
			e.Date.String(),
			string(e.Category),
			strconv.FormatInt(e.PersonID, 10),
			e.Note,
		}); err != nil {
			return fmt.Errorf("write expense %d: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
