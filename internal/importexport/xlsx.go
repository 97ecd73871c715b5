package importexport

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"oshikakeibo/internal/core"
)

const (
	sheetExpenses = "支出"
	sheetPeople   = "推し"
	sheetBudgets  = "予算"
)

// XLSXFilename is the download name of a workbook export taken at now.
func XLSXFilename(now time.Time) string {
	return fmt.Sprintf("oshi-kakeibo-%s.xlsx", now.Format("20060102"))
}

// WriteXLSX renders the snapshot as a workbook with one sheet per collection.
func WriteXLSX(w io.Writer, snap Snapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetExpenses); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{sheetPeople, sheetBudgets} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
	}

	names := make(map[int64]string, len(snap.People))
	for _, p := range snap.People {
		names[p.ID] = p.Name
	}

	expenseRows := [][]any{{"日付", "推し", "カテゴリ", "金額", "メモ"}}
	for _, e := range snap.Expenses {
		expenseRows = append(expenseRows, []any{e.Date.String(), personName(names, e.PersonID), string(e.Category), e.Amount, e.Note})
	}
	peopleRows := [][]any{{"ID", "名前", "ジャンル", "誕生日"}}
	for _, p := range snap.People {
		birthday := ""
		if p.Birthday != nil {
			birthday = p.Birthday.Format("01-02")
		}
		peopleRows = append(peopleRows, []any{p.ID, p.Name, string(p.Genre), birthday})
	}
	budgetRows := [][]any{{"推し", "期間", "金額", "作成日"}}
	for _, b := range snap.Budgets {
		budgetRows = append(budgetRows, []any{personName(names, b.PersonID), periodLabel(b.Period), b.Amount, b.CreatedAt.Format("2006-01-02")})
	}

	for sheet, rows := range map[string][][]any{
		sheetExpenses: expenseRows,
		sheetPeople:   peopleRows,
		sheetBudgets:  budgetRows,
	} {
		if err := writeRows(f, sheet, rows); err != nil {
			return err
		}
	}

	f.SetColWidth(sheetExpenses, "A", "A", 12)
	f.SetColWidth(sheetExpenses, "B", "C", 16)
	f.SetColWidth(sheetExpenses, "D", "D", 10)
	f.SetColWidth(sheetExpenses, "E", "E", 30)
	f.SetColWidth(sheetPeople, "B", "C", 16)
	f.SetColWidth(sheetBudgets, "A", "A", 16)
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return fmt.Errorf("cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("set %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return nil
}

func personName(names map[int64]string, id int64) string {
	if n, ok := names[id]; ok {
		return n
	}
	return strconv.FormatInt(id, 10)
}

func periodLabel(p core.Period) string {
	switch p {
	case core.PeriodMonthly:
		return "毎月"
	case core.PeriodEvent:
		return "臨時イベント"
	default:
		return string(p)
	}
}
