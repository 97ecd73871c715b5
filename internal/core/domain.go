package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	PeriodMonthly Period = "monthly"
	PeriodEvent   Period = "event"
)

const (
	EventBirthday EventType = "birthday"
	EventCustom   EventType = "custom"
)

const dateLayout = "2006-01-02"

type (
	Period    string
	EventType string

	Date struct {
		time.Time
	}

	// Person is someone the user follows and spends money on.
	Person struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Genre    Genre  `json:"genre"`
		Color    string `json:"color,omitempty"`
		Icon     string `json:"icon,omitempty"`
		Birthday *Date  `json:"birthday,omitempty"` // year ignored
	}

	// PersonPatch holds the editable fields of a Person; nil fields are left untouched.
	PersonPatch struct {
		Name          *string `json:"name,omitempty"`
		Genre         *Genre  `json:"genre,omitempty"`
		Color         *string `json:"color,omitempty"`
		Icon          *string `json:"icon,omitempty"`
		Birthday      *Date   `json:"birthday,omitempty"`
		ClearBirthday bool    `json:"clearBirthday,omitempty"`
	}

	Expense struct {
		ID       int64    `json:"id"`
		Amount   int64    `json:"amount"` // whole yen
		Date     Date     `json:"date"`
		Category Category `json:"category"`
		PersonID int64    `json:"personId"`
		Note     string   `json:"note,omitempty"`
		Photo    string   `json:"photo,omitempty"`
	}

	// Budget is a spending cap for one person. Event budgets only apply to
	// the month they were created in.
	Budget struct {
		ID        int64     `json:"id"`
		PersonID  int64     `json:"personId"`
		Amount    int64     `json:"amount"`
		Period    Period    `json:"period"`
		CreatedAt time.Time `json:"createdAt"`
	}

	CalendarEvent struct {
		ID          int64     `json:"id"`
		Title       string    `json:"title"`
		Description string    `json:"description,omitempty"`
		Day         int       `json:"day"`
		Month       int       `json:"month"`
		Year        int       `json:"year"`
		PersonID    int64     `json:"personId,omitempty"`
		Type        EventType `json:"type"`
	}

	// State is a fully materialized copy of every stored collection.
	State struct {
		People   []Person        `json:"people"`
		Expenses []Expense       `json:"expenses"`
		Budgets  []Budget        `json:"budgets"`
		Events   []CalendarEvent `json:"events,omitempty"`
	}
)

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrParse      = errors.New("parse error")
)

var (
	ErrInvalidDay      = fmt.Errorf("%w: invalid day", ErrValidation)
	ErrInvalidMonth    = fmt.Errorf("%w: invalid month", ErrValidation)
	ErrInvalidAmount   = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrEmptyName       = fmt.Errorf("%w: empty name", ErrValidation)
	ErrEmptyGenre      = fmt.Errorf("%w: empty genre", ErrValidation)
	ErrEmptyTitle      = fmt.Errorf("%w: empty title", ErrValidation)
	ErrUnknownCategory = fmt.Errorf("%w: unknown category", ErrValidation)
	ErrMissingPerson   = fmt.Errorf("%w: missing person", ErrValidation)
	ErrInvalidPeriod   = fmt.Errorf("%w: invalid period", ErrValidation)
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses an ISO calendar date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: date %q", ErrParse, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrValidation)
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// SameMonth reports whether d falls in t's calendar month and year.
func (d Date) SameMonth(t time.Time) bool {
	return d.Year() == t.Year() && d.Month() == t.Month()
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (p Period) Valid() bool {
	return p == PeriodMonthly || p == PeriodEvent
}

func (p Person) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if len(p.Name) > 100 {
		return fmt.Errorf("%w: name too long (max 100 characters)", ErrValidation)
	}
	if strings.TrimSpace(string(p.Genre)) == "" {
		return ErrEmptyGenre
	}
	if p.Birthday != nil {
		if err := p.Birthday.Validate(); err != nil {
			return fmt.Errorf("invalid birthday: %w", err)
		}
	}
	return nil
}

// Apply returns a copy of p with the patch merged in.
func (pp PersonPatch) Apply(p Person) Person {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Genre != nil {
		p.Genre = *pp.Genre
	}
	if pp.Color != nil {
		p.Color = *pp.Color
	}
	if pp.Icon != nil {
		p.Icon = *pp.Icon
	}
	if pp.Birthday != nil {
		b := *pp.Birthday
		p.Birthday = &b
	}
	if pp.ClearBirthday {
		p.Birthday = nil
	}
	return p
}

func (e Expense) Validate() error {
	if e.Amount <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(string(e.Category)) == "" {
		return fmt.Errorf("%w: empty category", ErrValidation)
	}
	if !e.Category.Known() {
		return fmt.Errorf("%w %q", ErrUnknownCategory, e.Category)
	}
	if e.PersonID == 0 {
		return ErrMissingPerson
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(e.Note) > 500 {
		return fmt.Errorf("%w: note too long (max 500 characters)", ErrValidation)
	}
	return nil
}

func (b Budget) Validate() error {
	if b.PersonID == 0 {
		return ErrMissingPerson
	}
	if b.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !b.Period.Valid() {
		return fmt.Errorf("%w %q", ErrInvalidPeriod, b.Period)
	}
	return nil
}

// ActiveIn reports whether the budget applies to t's month. Monthly budgets
// always do; event budgets only in the month they were created.
func (b Budget) ActiveIn(t time.Time) bool {
	switch b.Period {
	case PeriodMonthly:
		return true
	case PeriodEvent:
		c := b.CreatedAt.In(t.Location())
		return c.Year() == t.Year() && c.Month() == t.Month()
	default:
		return false
	}
}

func (ev CalendarEvent) Validate() error {
	if strings.TrimSpace(ev.Title) == "" {
		return ErrEmptyTitle
	}
	if ev.Month < 1 || ev.Month > 12 {
		return ErrInvalidMonth
	}
	if ev.Day < 1 || ev.Day > 31 {
		return ErrInvalidDay
	}
	if ev.Year < 1 {
		return fmt.Errorf("%w: invalid year", ErrValidation)
	}
	return nil
}

// AnniversaryIn returns the recurrence of d in the given year. A day that
// does not exist that year (Feb 29) falls back to the last day of the month.
func (d Date) AnniversaryIn(year int) Date {
	month := d.Time.Month()
	day := d.Day()
	lastDayOfMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDayOfMonth {
		day = lastDayOfMonth
	}
	return NewDate(year, int(month), day)
}
