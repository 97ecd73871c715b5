// Package notify derives the budget and birthday notifications shown to the
// user. Derivation is pure; Feed keeps the merged list between recomputes.
package notify

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"oshikakeibo/internal/core"
	"oshikakeibo/internal/ledger"
)

const (
	KindBudgetWarning  Kind = "budget-warning"
	KindBudgetExceeded Kind = "budget-exceeded"
	KindBirthday       Kind = "birthday"
)

// Thresholds, in percent of the applicable budget.
const (
	WarningThreshold  = 80.0
	ExceededThreshold = 100.0
)

type (
	Kind string

	Notification struct {
		ID         string  `json:"id"`
		Kind       Kind    `json:"kind"`
		Message    string  `json:"message"`
		PersonID   int64   `json:"personId"`
		Percentage float64 `json:"percentage,omitempty"`
	}

	// Settings are the user's notification toggles.
	Settings struct {
		BudgetAlerts      bool `json:"budgetAlerts"`
		BirthdayReminders bool `json:"birthdayReminders"`
	}
)

// DefaultSettings has both toggles on.
func DefaultSettings() Settings {
	return Settings{BudgetAlerts: true, BirthdayReminders: true}
}

func budgetID(personID int64) string {
	return "budget-" + strconv.FormatInt(personID, 10)
}

func birthdayID(personID int64) string {
	return "birthday-" + strconv.FormatInt(personID, 10)
}

// BudgetNotifications emits at most one notification per person whose
// spending this month reached WarningThreshold of their applicable budgets.
// People are visited in the given order; budgets of unknown people are ignored.
func BudgetNotifications(budgets []core.Budget, expenses []core.Expense, people []core.Person, now time.Time, s Settings) []Notification {
	if !s.BudgetAlerts {
		return nil
	}
	var out []Notification
	for _, p := range people {
		u := ledger.BudgetUsageForPerson(budgets, expenses, p.ID, now)
		if u.TotalBudget <= 0 || u.Percentage < WarningThreshold {
			continue
		}
		kind := KindBudgetWarning
		if u.Percentage >= ExceededThreshold {
			kind = KindBudgetExceeded
		}
		out = append(out, Notification{
			ID:         budgetID(p.ID),
			Kind:       kind,
			Message:    fmt.Sprintf("%sの予算が%d%%に達しました", p.Name, int64(math.Round(u.Percentage))),
			PersonID:   p.ID,
			Percentage: u.Percentage,
		})
	}
	return out
}

// BirthdayNotifications emits one notification per person whose birthday
// recurs on now's date. The year of the birthday is ignored.
func BirthdayNotifications(people []core.Person, now time.Time, s Settings) []Notification {
	if !s.BirthdayReminders {
		return nil
	}
	var out []Notification
	for _, p := range people {
		if p.Birthday == nil {
			continue
		}
		at := p.Birthday.AnniversaryIn(now.Year())
		if at.Time.Month() != now.Month() || at.Day() != now.Day() {
			continue
		}
		out = append(out, Notification{
			ID:       birthdayID(p.ID),
			Kind:     KindBirthday,
			Message:  fmt.Sprintf("今日は%sの誕生日です！🎉", p.Name),
			PersonID: p.ID,
		})
	}
	return out
}
