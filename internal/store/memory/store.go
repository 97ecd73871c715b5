// Package memory is the in-process entity store: people, expenses, budgets
// and custom calendar events, guarded by one mutex so every mutation,
// including the cascade on person delete, is observed atomically.
package memory

import (
	"fmt"
	"sync"
	"time"

	"oshikakeibo/internal/core"
	"oshikakeibo/internal/ledger"
)

type Store struct {
	mu       sync.Mutex
	now      func() time.Time
	lastID   int64
	rev      uint64
	people   []core.Person
	expenses []core.Expense
	budgets  []core.Budget
	events   []core.CalendarEvent
}

type Option func(*Store)

// WithClock overrides the clock used for defaults such as Budget.CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Removed counts the records dropped by a cascading delete.
type Removed struct {
	Expenses int `json:"expenses"`
	Budgets  int `json:"budgets"`
	Events   int `json:"events"`
}

// Revision increases on every mutation. Cached views key on it.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

// NextID reserves a fresh id. Ids are shared by all collections and never reused.
func (s *Store) NextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIDLocked()
}

func (s *Store) nextIDLocked() int64 {
	s.lastID++
	return s.lastID
}

func (s *Store) seeID(id int64) {
	if id > s.lastID {
		s.lastID = id
	}
}

func (s *Store) personIndex(id int64) int {
	for i, p := range s.people {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) requirePerson(id int64) error {
	if s.personIndex(id) < 0 {
		return fmt.Errorf("%w: unknown person %d", core.ErrMissingPerson, id)
	}
	return nil
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%s %d: %w", kind, id, core.ErrNotFound)
}

// People

func (s *Store) AddPerson(p core.Person) (core.Person, error) {
	if err := p.Validate(); err != nil {
		return core.Person{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextIDLocked()
	s.people = append(s.people, p)
	s.rev++
	return p, nil
}

func (s *Store) UpdatePerson(id int64, patch core.PersonPatch) (core.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.personIndex(id)
	if i < 0 {
		return core.Person{}, notFound("person", id)
	}
	updated := patch.Apply(s.people[i])
	if err := updated.Validate(); err != nil {
		return core.Person{}, err
	}
	s.people[i] = updated
	s.rev++
	return updated, nil
}

// DeletePerson removes the person and everything that references them in
// one step.
func (s *Store) DeletePerson(id int64) (Removed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.personIndex(id)
	if i < 0 {
		return Removed{}, notFound("person", id)
	}
	var r Removed
	s.people = append(s.people[:i], s.people[i+1:]...)

	expenses := s.expenses[:0]
	for _, e := range s.expenses {
		if e.PersonID == id {
			r.Expenses++
			continue
		}
		expenses = append(expenses, e)
	}
	s.expenses = expenses

	budgets := s.budgets[:0]
	for _, b := range s.budgets {
		if b.PersonID == id {
			r.Budgets++
			continue
		}
		budgets = append(budgets, b)
	}
	s.budgets = budgets

	events := s.events[:0]
	for _, ev := range s.events {
		if ev.PersonID == id {
			r.Events++
			continue
		}
		events = append(events, ev)
	}
	s.events = events

	s.rev++
	return r, nil
}

func (s *Store) Person(id int64) (core.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.personIndex(id)
	if i < 0 {
		return core.Person{}, notFound("person", id)
	}
	return s.people[i], nil
}

func (s *Store) People() []core.Person {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Person(nil), s.people...)
}

// HasPerson reports whether id names a stored person.
func (s *Store) HasPerson(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.personIndex(id) >= 0
}

// Expenses

// AddExpense stores a new expense. A zero date means today.
func (s *Store) AddExpense(e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.Date.IsZero() {
		e.Date = core.DateOf(s.now())
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.requirePerson(e.PersonID); err != nil {
		return core.Expense{}, err
	}
	e.ID = s.nextIDLocked()
	s.expenses = append(s.expenses, e)
	s.rev++
	return e, nil
}

// UpdateExpense replaces the stored expense with e.
func (s *Store) UpdateExpense(id int64, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.expenseIndex(id)
	if i < 0 {
		return core.Expense{}, notFound("expense", id)
	}
	e.ID = id
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.requirePerson(e.PersonID); err != nil {
		return core.Expense{}, err
	}
	s.expenses[i] = e
	s.rev++
	return e, nil
}

func (s *Store) DeleteExpense(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.expenseIndex(id)
	if i < 0 {
		return notFound("expense", id)
	}
	s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
	s.rev++
	return nil
}

func (s *Store) Expense(id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.expenseIndex(id)
	if i < 0 {
		return core.Expense{}, notFound("expense", id)
	}
	return s.expenses[i], nil
}

func (s *Store) Expenses() []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Expense(nil), s.expenses...)
}

// ImportExpenses appends an already parsed batch. Imported rows bypass
// create validation (zero amounts are allowed) but keep unique ids: a row
// whose id is zero or already taken gets a fresh one. Rows whose person does
// not exist are not stored and come back in rejected with their ids unchanged.
func (s *Store) ImportExpenses(batch []core.Expense) (stored, rejected []core.Expense) {
	s.mu.Lock()
	defer s.mu.Unlock()
	taken := make(map[int64]struct{}, len(s.expenses)+len(batch))
	for _, e := range s.expenses {
		taken[e.ID] = struct{}{}
	}
	stored = make([]core.Expense, 0, len(batch))
	for _, e := range batch {
		if s.personIndex(e.PersonID) < 0 {
			rejected = append(rejected, e)
			continue
		}
		if _, dup := taken[e.ID]; e.ID <= 0 || dup {
			e.ID = s.nextIDLocked()
		}
		s.seeID(e.ID)
		taken[e.ID] = struct{}{}
		stored = append(stored, e)
	}
	s.expenses = append(s.expenses, stored...)
	if len(stored) > 0 {
		s.rev++
	}
	return stored, rejected
}

func (s *Store) expenseIndex(id int64) int {
	for i, e := range s.expenses {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Budgets

// AddBudget stores a budget, or merges it into the person's active budget
// of the same period by adding the amounts. The returned flag reports a merge.
func (s *Store) AddBudget(b core.Budget) (core.Budget, bool, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requirePerson(b.PersonID); err != nil {
		return core.Budget{}, false, err
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}
	for i, existing := range s.budgets {
		if existing.PersonID != b.PersonID || existing.Period != b.Period {
			continue
		}
		if !existing.ActiveIn(b.CreatedAt) {
			continue
		}
		s.budgets[i].Amount += b.Amount
		s.rev++
		return s.budgets[i], true, nil
	}
	b.ID = s.nextIDLocked()
	s.budgets = append(s.budgets, b)
	s.rev++
	return b, false, nil
}

func (s *Store) DeleteBudget(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.budgets {
		if b.ID == id {
			s.budgets = append(s.budgets[:i], s.budgets[i+1:]...)
			s.rev++
			return nil
		}
	}
	return notFound("budget", id)
}

func (s *Store) Budgets() []core.Budget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Budget(nil), s.budgets...)
}

// ExpireEventBudgets drops event budgets created before now's month and
// returns them. When keep is set it receives the expired budgets before they
// are dropped; if it fails nothing is dropped.
func (s *Store) ExpireEventBudgets(now time.Time, keep func([]core.Budget) error) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept, expired := ledger.ExpireEventBudgets(s.budgets, now)
	if len(expired) == 0 {
		return nil, nil
	}
	if keep != nil {
		if err := keep(expired); err != nil {
			return nil, err
		}
	}
	s.budgets = kept
	s.rev++
	return expired, nil
}

// Calendar events

// AddEvent stores a custom calendar event. Birthday events are derived from
// people and cannot be stored.
func (s *Store) AddEvent(ev core.CalendarEvent) (core.CalendarEvent, error) {
	if ev.Type == "" {
		ev.Type = core.EventCustom
	}
	if ev.Type != core.EventCustom {
		return core.CalendarEvent{}, fmt.Errorf("%w: only custom events can be stored", core.ErrValidation)
	}
	if err := ev.Validate(); err != nil {
		return core.CalendarEvent{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.PersonID != 0 {
		if err := s.requirePerson(ev.PersonID); err != nil {
			return core.CalendarEvent{}, err
		}
	}
	ev.ID = s.nextIDLocked()
	s.events = append(s.events, ev)
	s.rev++
	return ev, nil
}

func (s *Store) DeleteEvent(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ev := range s.events {
		if ev.ID == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			s.rev++
			return nil
		}
	}
	return notFound("event", id)
}

func (s *Store) Events() []core.CalendarEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.CalendarEvent(nil), s.events...)
}

// State returns a consistent copy of every collection.
func (s *Store) State() core.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.State{
		People:   append([]core.Person(nil), s.people...),
		Expenses: append([]core.Expense(nil), s.expenses...),
		Budgets:  append([]core.Budget(nil), s.budgets...),
		Events:   append([]core.CalendarEvent(nil), s.events...),
	}
}

// Restore replaces every collection with st. Records that reference an
// unknown person are rejected so the store never holds dangling references.
func (s *Store) Restore(st core.State) error {
	known := make(map[int64]struct{}, len(st.People))
	for _, p := range st.People {
		if _, dup := known[p.ID]; dup || p.ID <= 0 {
			return fmt.Errorf("%w: duplicate or invalid person id %d", core.ErrValidation, p.ID)
		}
		known[p.ID] = struct{}{}
	}
	for _, e := range st.Expenses {
		if _, ok := known[e.PersonID]; !ok {
			return fmt.Errorf("expense %d: %w: unknown person %d", e.ID, core.ErrMissingPerson, e.PersonID)
		}
	}
	for _, b := range st.Budgets {
		if _, ok := known[b.PersonID]; !ok {
			return fmt.Errorf("budget %d: %w: unknown person %d", b.ID, core.ErrMissingPerson, b.PersonID)
		}
	}
	for _, ev := range st.Events {
		if _, ok := known[ev.PersonID]; ev.PersonID != 0 && !ok {
			return fmt.Errorf("event %d: %w: unknown person %d", ev.ID, core.ErrMissingPerson, ev.PersonID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.people = append([]core.Person(nil), st.People...)
	s.expenses = append([]core.Expense(nil), st.Expenses...)
	s.budgets = append([]core.Budget(nil), st.Budgets...)
	s.events = append([]core.CalendarEvent(nil), st.Events...)
	for _, p := range s.people {
		s.seeID(p.ID)
	}
	for _, e := range s.expenses {
		s.seeID(e.ID)
	}
	for _, b := range s.budgets {
		s.seeID(b.ID)
	}
	for _, ev := range s.events {
		s.seeID(ev.ID)
	}
	s.rev++
	return nil
}
