package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateJSON(t *testing.T) {
	d := NewDate(2025, 6, 1)
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"2025-06-01"` {
		t.Fatalf("got %s", b)
	}

	var back Date
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(d.Time) {
		t.Fatalf("round trip mismatch: %v != %v", back, d)
	}

	if err := json.Unmarshal([]byte(`"06/01/2025"`), &back); !errors.Is(err, ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestPersonValidate(t *testing.T) {
	bday := NewDate(2025, 7, 15)
	good := Person{Name: "みくにゃん", Genre: GenreVTuber, Birthday: &bday}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []struct {
		p    Person
		want error
	}{
		{Person{Name: "", Genre: GenreIdol}, ErrEmptyName},
		{Person{Name: "  ", Genre: GenreIdol}, ErrEmptyName},
		{Person{Name: "a", Genre: ""}, ErrEmptyGenre},
	}
	for i, tc := range bads {
		err := tc.p.Validate()
		if !errors.Is(err, tc.want) {
			t.Fatalf("case %d expected %v, got %v", i, tc.want, err)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestPersonPatchApply(t *testing.T) {
	bday := NewDate(2025, 7, 15)
	p := Person{ID: 1, Name: "old", Genre: GenreIdol, Color: "#FF69B4", Birthday: &bday}

	name := "new"
	got := PersonPatch{Name: &name}.Apply(p)
	if got.Name != "new" || got.Genre != GenreIdol || got.Color != "#FF69B4" || got.Birthday == nil {
		t.Fatalf("unexpected patch result: %+v", got)
	}

	got = PersonPatch{ClearBirthday: true}.Apply(p)
	if got.Birthday != nil {
		t.Fatalf("expected birthday cleared")
	}
	if p.Birthday == nil {
		t.Fatalf("patch must not mutate the original")
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{Amount: 3500, Date: NewDate(2025, 6, 1), Category: CategoryTicket, PersonID: 1}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Expense{
		{Amount: 0, Date: NewDate(2025, 6, 1), Category: CategoryTicket, PersonID: 1},
		{Amount: -5, Date: NewDate(2025, 6, 1), Category: CategoryTicket, PersonID: 1},
		{Amount: 1, Date: NewDate(2025, 6, 1), Category: "", PersonID: 1},
		{Amount: 1, Date: NewDate(2025, 6, 1), Category: "食費", PersonID: 1},
		{Amount: 1, Date: NewDate(2025, 6, 1), Category: CategoryGoods, PersonID: 0},
		{Amount: 1, Date: Date{}, Category: CategoryGoods, PersonID: 1},
	}
	for i, e := range bads {
		if err := e.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestBudgetValidate(t *testing.T) {
	if err := (Budget{PersonID: 1, Amount: 10000, Period: PeriodMonthly}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bads := []Budget{
		{PersonID: 0, Amount: 10000, Period: PeriodMonthly},
		{PersonID: 1, Amount: 0, Period: PeriodMonthly},
		{PersonID: 1, Amount: 100, Period: "weekly"},
	}
	for i, b := range bads {
		if err := b.Validate(); !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestBudgetActiveIn(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		b    Budget
		want bool
	}{
		{"monthly always", Budget{Period: PeriodMonthly, CreatedAt: now.AddDate(-1, 0, 0)}, true},
		{"event this month", Budget{Period: PeriodEvent, CreatedAt: now.AddDate(0, 0, -10)}, true},
		{"event last month", Budget{Period: PeriodEvent, CreatedAt: now.AddDate(0, -1, 0)}, false},
		{"event same month last year", Budget{Period: PeriodEvent, CreatedAt: now.AddDate(-1, 0, 0)}, false},
		{"unknown period", Budget{Period: "weekly", CreatedAt: now}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.ActiveIn(now); got != tt.want {
				t.Errorf("ActiveIn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCategoriesOrder(t *testing.T) {
	cats := Categories()
	want := []Category{"チケット代", "グッズ代", "遠征費", "配信チケット代", "カフェ代", "その他"}
	if len(cats) != len(want) {
		t.Fatalf("got %d categories, want %d", len(cats), len(want))
	}
	for i := range want {
		if cats[i] != want[i] {
			t.Fatalf("category %d = %q, want %q", i, cats[i], want[i])
		}
	}
	cats[0] = "mutated"
	if Categories()[0] != CategoryTicket {
		t.Fatalf("Categories must return a copy")
	}
	if !FallbackCategory.Known() {
		t.Fatalf("fallback category must be part of the fixed set")
	}
}

func TestCalendarEventValidate(t *testing.T) {
	ok := CalendarEvent{Title: "ライブ", Day: 1, Month: 7, Year: 2025, Type: EventCustom}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	bad := ok
	bad.Title = ""
	if err := bad.Validate(); !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
	bad = ok
	bad.Month = 13
	if err := bad.Validate(); !errors.Is(err, ErrInvalidMonth) {
		t.Fatalf("expected ErrInvalidMonth, got %v", err)
	}
}

func TestAnniversaryIn(t *testing.T) {
	tests := []struct {
		name string
		d    Date
		year int
		want Date
	}{
		{"plain", NewDate(2000, 7, 15), 2025, NewDate(2025, 7, 15)},
		{"leap day in leap year", NewDate(2000, 2, 29), 2024, NewDate(2024, 2, 29)},
		{"leap day in common year", NewDate(2000, 2, 29), 2025, NewDate(2025, 2, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.AnniversaryIn(tt.year); !got.Equal(tt.want.Time) {
				t.Errorf("AnniversaryIn(%d) = %v, want %v", tt.year, got, tt.want)
			}
		})
	}
}
