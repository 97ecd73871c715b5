// Package ledger computes the derived views of the ledger: totals per
// person, budget usage, category breakdowns and month series.
//
// Every function is pure. The current time is always passed in; nothing
// here reads the system clock.
package ledger

import (
	"fmt"
	"time"

	"oshikakeibo/internal/core"
)

// DefaultMonthsBack is the length of the analytics month series.
const DefaultMonthsBack = 6

const (
	ScopeAll          Scope = "all"
	ScopeCurrentMonth Scope = "currentMonth"
)

type (
	Scope string

	// Usage is the budget position of one person for the month of now.
	Usage struct {
		TotalBudget int64   `json:"totalBudget"`
		TotalSpent  int64   `json:"totalSpent"`
		Percentage  float64 `json:"percentage"`
	}

	CategoryTotal struct {
		Category core.Category `json:"category"`
		Total    int64         `json:"total"`
	}

	MonthTotal struct {
		Label string `json:"label"`
		Year  int    `json:"year"`
		Month int    `json:"month"`
		Total int64  `json:"total"`
	}

	PersonTotal struct {
		PersonID int64  `json:"personId"`
		Name     string `json:"name"`
		Color    string `json:"color,omitempty"`
		Total    int64  `json:"total"`
	}
)

func inMonth(d core.Date, now time.Time) bool {
	return d.Year() == now.Year() && d.Time.Month() == now.Month()
}

// TotalExpensesForPerson sums the person's expenses. With ScopeCurrentMonth
// only expenses in now's calendar month and year count.
func TotalExpensesForPerson(expenses []core.Expense, personID int64, scope Scope, now time.Time) int64 {
	var total int64
	for _, e := range expenses {
		if e.PersonID != personID {
			continue
		}
		if scope == ScopeCurrentMonth && !inMonth(e.Date, now) {
			continue
		}
		total += e.Amount
	}
	return total
}

// ApplicableBudgets returns the person's budgets that count toward now's month.
func ApplicableBudgets(budgets []core.Budget, personID int64, now time.Time) []core.Budget {
	var out []core.Budget
	for _, b := range budgets {
		if b.PersonID == personID && b.ActiveIn(now) {
			out = append(out, b)
		}
	}
	return out
}

// BudgetUsageForPerson compares the person's applicable budgets with what
// they spent this month across all categories. A person without applicable
// budgets yields the zero Usage.
func BudgetUsageForPerson(budgets []core.Budget, expenses []core.Expense, personID int64, now time.Time) Usage {
	applicable := ApplicableBudgets(budgets, personID, now)
	if len(applicable) == 0 {
		return Usage{}
	}
	var u Usage
	for _, b := range applicable {
		u.TotalBudget += b.Amount
	}
	u.TotalSpent = TotalExpensesForPerson(expenses, personID, ScopeCurrentMonth, now)
	if u.TotalBudget > 0 {
		u.Percentage = float64(u.TotalSpent) / float64(u.TotalBudget) * 100
	}
	return u
}

// CategoryBreakdown totals the person's expenses per category, keeping the
// order of categories and dropping categories with nothing spent.
func CategoryBreakdown(expenses []core.Expense, personID int64, categories []core.Category) []CategoryTotal {
	sums := make(map[core.Category]int64, len(categories))
	for _, e := range expenses {
		if e.PersonID == personID {
			sums[e.Category] += e.Amount
		}
	}
	out := make([]CategoryTotal, 0, len(categories))
	for _, c := range categories {
		if sums[c] > 0 {
			out = append(out, CategoryTotal{Category: c, Total: sums[c]})
		}
	}
	return out
}

// MonthlySeries totals all expenses per calendar month for the monthsBack
// months ending with now's month, oldest first. A non-positive monthsBack
// means DefaultMonthsBack.
func MonthlySeries(expenses []core.Expense, now time.Time, monthsBack int) []MonthTotal {
	if monthsBack <= 0 {
		monthsBack = DefaultMonthsBack
	}
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	series := make([]MonthTotal, monthsBack)
	index := make(map[[2]int]int, monthsBack)
	for i := 0; i < monthsBack; i++ {
		m := first.AddDate(0, i-monthsBack+1, 0)
		series[i] = MonthTotal{
			Label: MonthLabel(m.Month()),
			Year:  m.Year(),
			Month: int(m.Month()),
		}
		index[[2]int{m.Year(), int(m.Month())}] = i
	}
	for _, e := range expenses {
		if i, ok := index[[2]int{e.Date.Year(), int(e.Date.Time.Month())}]; ok {
			series[i].Total += e.Amount
		}
	}
	return series
}

// MonthLabel is the short Japanese month label, e.g. "6月".
func MonthLabel(m time.Month) string {
	return fmt.Sprintf("%d月", int(m))
}

// CurrentMonthTotal sums every expense in now's month.
func CurrentMonthTotal(expenses []core.Expense, now time.Time) int64 {
	var total int64
	for _, e := range expenses {
		if inMonth(e.Date, now) {
			total += e.Amount
		}
	}
	return total
}

// PersonBreakdown returns this month's spending per person, in people
// order, leaving out people who spent nothing.
func PersonBreakdown(people []core.Person, expenses []core.Expense, now time.Time) []PersonTotal {
	out := make([]PersonTotal, 0, len(people))
	for _, p := range people {
		total := TotalExpensesForPerson(expenses, p.ID, ScopeCurrentMonth, now)
		if total > 0 {
			out = append(out, PersonTotal{PersonID: p.ID, Name: p.Name, Color: p.Color, Total: total})
		}
	}
	return out
}

// ExpireEventBudgets splits budgets into those still valid for now's month
// and the event budgets created in an earlier month.
func ExpireEventBudgets(budgets []core.Budget, now time.Time) (kept, expired []core.Budget) {
	kept = make([]core.Budget, 0, len(budgets))
	for _, b := range budgets {
		if b.Period == core.PeriodEvent && !b.ActiveIn(now) {
			expired = append(expired, b)
			continue
		}
		kept = append(kept, b)
	}
	return kept, expired
}
