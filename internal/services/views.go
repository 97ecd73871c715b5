package services

import (
	"context"
	"time"

	"oshikakeibo/internal/cache"
	"oshikakeibo/internal/core"
	"oshikakeibo/internal/importexport"
	"oshikakeibo/internal/ledger"
	"oshikakeibo/internal/notify"
)

type (
	// PersonSummary is one card of the home screen.
	PersonSummary struct {
		Person         core.Person            `json:"person"`
		TotalAll       int64                  `json:"totalAll"`
		TotalMonth     int64                  `json:"totalMonth"`
		Usage          ledger.Usage           `json:"usage"`
		Budgets        []core.Budget          `json:"budgets"`
		Categories     []ledger.CategoryTotal `json:"categories"`
		RecentExpenses []core.Expense         `json:"recentExpenses"`
	}

	Dashboard struct {
		Date          core.Date             `json:"date"`
		MonthTotal    int64                 `json:"monthTotal"`
		People        []PersonSummary       `json:"people"`
		Notifications []notify.Notification `json:"notifications"`
	}

	Analytics struct {
		PersonID   int64                  `json:"personId,omitempty"`
		MonthTotal int64                  `json:"monthTotal"`
		Categories []ledger.CategoryTotal `json:"categories"`
		Monthly    []ledger.MonthTotal    `json:"monthly"`
		People     []ledger.PersonTotal   `json:"people"`
		ShareText  string                 `json:"shareText"`
	}
)

// recentLimit caps the expenses shown on a person card.
const recentLimit = 5

// Dashboard assembles the home screen: this month's total and one summary
// per person, plus the current notification feed.
func (s *LedgerService) Dashboard(ctx context.Context) Dashboard {
	s.catchUp(ctx)
	now := s.now()
	key := cache.Key("dashboard", s.store.Revision(), core.DateOf(now))
	d := cachedView(s, key, func() Dashboard {
		st := s.store.State()
		d := Dashboard{
			Date:       core.DateOf(now),
			MonthTotal: ledger.CurrentMonthTotal(st.Expenses, now),
			People:     make([]PersonSummary, 0, len(st.People)),
		}
		for _, p := range st.People {
			d.People = append(d.People, summarize(st, p, now))
		}
		return d
	})
	// The feed can change without a store mutation.
	d.Notifications = s.feed.List()
	return d
}

// PersonSummary returns the card of one person.
func (s *LedgerService) PersonSummary(id int64) (PersonSummary, error) {
	p, err := s.store.Person(id)
	if err != nil {
		return PersonSummary{}, err
	}
	now := s.now()
	key := cache.Key("person", s.store.Revision(), core.DateOf(now), id)
	return cachedView(s, key, func() PersonSummary {
		return summarize(s.store.State(), p, now)
	}), nil
}

// Analytics computes the analytics screen. A zero personID covers everyone.
func (s *LedgerService) Analytics(personID int64, monthsBack int) (Analytics, error) {
	if personID != 0 {
		if _, err := s.store.Person(personID); err != nil {
			return Analytics{}, err
		}
	}
	now := s.now()
	key := cache.Key("analytics", s.store.Revision(), core.DateOf(now), personID, monthsBack)
	return cachedView(s, key, func() Analytics {
		st := s.store.State()
		expenses := st.Expenses
		if personID != 0 {
			expenses = expensesOf(st.Expenses, personID)
		}
		monthTotal := ledger.CurrentMonthTotal(expenses, now)
		return Analytics{
			PersonID:   personID,
			MonthTotal: monthTotal,
			Categories: categoryTotals(st.People, st.Expenses, personID),
			Monthly:    ledger.MonthlySeries(expenses, now, monthsBack),
			People:     ledger.PersonBreakdown(st.People, st.Expenses, now),
			ShareText:  importexport.ShareReport(monthTotal),
		}
	}), nil
}

func summarize(st core.State, p core.Person, now time.Time) PersonSummary {
	recent := expensesOf(st.Expenses, p.ID)
	if len(recent) > recentLimit {
		recent = recent[len(recent)-recentLimit:]
	}
	return PersonSummary{
		Person:         p,
		TotalAll:       ledger.TotalExpensesForPerson(st.Expenses, p.ID, ledger.ScopeAll, now),
		TotalMonth:     ledger.TotalExpensesForPerson(st.Expenses, p.ID, ledger.ScopeCurrentMonth, now),
		Usage:          ledger.BudgetUsageForPerson(st.Budgets, st.Expenses, p.ID, now),
		Budgets:        ledger.ApplicableBudgets(st.Budgets, p.ID, now),
		Categories:     ledger.CategoryBreakdown(st.Expenses, p.ID, core.Categories()),
		RecentExpenses: recent,
	}
}

func expensesOf(expenses []core.Expense, personID int64) []core.Expense {
	out := make([]core.Expense, 0)
	for _, e := range expenses {
		if e.PersonID == personID {
			out = append(out, e)
		}
	}
	return out
}

// categoryTotals is the category breakdown of one person, or of everyone
// summed when personID is zero. Canonical category order is kept.
func categoryTotals(people []core.Person, expenses []core.Expense, personID int64) []ledger.CategoryTotal {
	categories := core.Categories()
	if personID != 0 {
		return ledger.CategoryBreakdown(expenses, personID, categories)
	}
	sums := make(map[core.Category]int64, len(categories))
	for _, p := range people {
		for _, ct := range ledger.CategoryBreakdown(expenses, p.ID, categories) {
			sums[ct.Category] += ct.Total
		}
	}
	out := make([]ledger.CategoryTotal, 0, len(sums))
	for _, c := range categories {
		if sums[c] > 0 {
			out = append(out, ledger.CategoryTotal{Category: c, Total: sums[c]})
		}
	}
	return out
}
