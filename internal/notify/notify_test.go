package notify

import (
	"testing"
	"time"

	"oshikakeibo/internal/core"
)

var now = time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)

func budgetFixture(spent int64) ([]core.Budget, []core.Expense, []core.Person) {
	people := []core.Person{{ID: 1, Name: "みくにゃん", Genre: core.GenreVTuber}}
	budgets := []core.Budget{{ID: 1, PersonID: 1, Amount: 10000, Period: core.PeriodMonthly, CreatedAt: now}}
	var expenses []core.Expense
	if spent > 0 {
		expenses = []core.Expense{{ID: 1, PersonID: 1, Amount: spent, Category: core.CategoryGoods, Date: core.NewDate(2025, 6, 1)}}
	}
	return budgets, expenses, people
}

func TestBudgetNotificationsThresholds(t *testing.T) {
	tests := []struct {
		name  string
		spent int64
		want  []Kind
	}{
		{"below warning", 7999, nil},
		{"at warning", 8000, []Kind{KindBudgetWarning}},
		{"just below exceeded", 9999, []Kind{KindBudgetWarning}},
		{"at exceeded", 10000, []Kind{KindBudgetExceeded}},
		{"above exceeded", 25000, []Kind{KindBudgetExceeded}},
		{"nothing spent", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, e, p := budgetFixture(tt.spent)
			got := BudgetNotifications(b, e, p, now, DefaultSettings())
			if len(got) != len(tt.want) {
				t.Fatalf("got %d notifications %+v, want %d", len(got), got, len(tt.want))
			}
			for i, k := range tt.want {
				if got[i].Kind != k {
					t.Errorf("notification %d kind = %q, want %q", i, got[i].Kind, k)
				}
				if got[i].ID != "budget-1" || got[i].PersonID != 1 {
					t.Errorf("notification %d = %+v", i, got[i])
				}
			}
		})
	}
}

func TestBudgetNotificationMessage(t *testing.T) {
	b, e, p := budgetFixture(8260)
	got := BudgetNotifications(b, e, p, now, DefaultSettings())
	if len(got) != 1 {
		t.Fatalf("expected one notification, got %+v", got)
	}
	if got[0].Message != "みくにゃんの予算が83%に達しました" {
		t.Errorf("message = %q", got[0].Message)
	}
	if got[0].Percentage <= 82 || got[0].Percentage >= 83 {
		t.Errorf("percentage must stay unrounded, got %v", got[0].Percentage)
	}
}

func TestBudgetNotificationsDedupedPerPerson(t *testing.T) {
	b, e, p := budgetFixture(9000)
	b = append(b,
		core.Budget{ID: 2, PersonID: 1, Amount: 1000, Period: core.PeriodEvent, CreatedAt: now},
		core.Budget{ID: 3, PersonID: 99, Amount: 1, Period: core.PeriodMonthly, CreatedAt: now},
	)
	got := BudgetNotifications(b, e, p, now, DefaultSettings())
	if len(got) != 1 {
		t.Fatalf("expected one notification for the person, got %+v", got)
	}
	if got[0].Kind != KindBudgetWarning {
		t.Errorf("kind = %q, want warning at 9000/11000", got[0].Kind)
	}
}

func TestBudgetNotificationsDisabled(t *testing.T) {
	b, e, p := budgetFixture(50000)
	if got := BudgetNotifications(b, e, p, now, Settings{BirthdayReminders: true}); len(got) != 0 {
		t.Fatalf("expected none with alerts disabled, got %+v", got)
	}
}

func TestBirthdayNotifications(t *testing.T) {
	today := core.NewDate(1999, 6, 15)
	other := core.NewDate(1999, 6, 16)
	people := []core.Person{
		{ID: 1, Name: "みくにゃん", Birthday: &today},
		{ID: 2, Name: "アイドル太郎", Birthday: &other},
		{ID: 3, Name: "no birthday"},
	}

	for call := 0; call < 2; call++ {
		got := BirthdayNotifications(people, now, DefaultSettings())
		if len(got) != 1 {
			t.Fatalf("call %d: expected exactly one notification, got %+v", call, got)
		}
		if got[0].ID != "birthday-1" || got[0].Kind != KindBirthday || got[0].Message != "今日はみくにゃんの誕生日です！🎉" {
			t.Fatalf("call %d: unexpected notification %+v", call, got[0])
		}
	}

	if got := BirthdayNotifications(people, now, Settings{BudgetAlerts: true}); len(got) != 0 {
		t.Fatalf("expected none with reminders disabled, got %+v", got)
	}
}

func TestBirthdayLeapDay(t *testing.T) {
	leap := core.NewDate(2000, 2, 29)
	people := []core.Person{{ID: 7, Name: "うるう", Birthday: &leap}}

	feb28 := time.Date(2025, 2, 28, 10, 0, 0, 0, time.UTC)
	if got := BirthdayNotifications(people, feb28, DefaultSettings()); len(got) != 1 {
		t.Fatalf("expected Feb 28 reminder in a common year, got %+v", got)
	}
	feb28Leap := time.Date(2024, 2, 28, 10, 0, 0, 0, time.UTC)
	if got := BirthdayNotifications(people, feb28Leap, DefaultSettings()); len(got) != 0 {
		t.Fatalf("expected no Feb 28 reminder in a leap year, got %+v", got)
	}
}
