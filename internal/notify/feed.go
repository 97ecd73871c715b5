package notify

import "sync"

// Feed is the merged notification list a client displays. Each recompute
// replaces the budget segment wholesale and the birthday segment keyed by
// person, so calling Replace repeatedly on the same day never accumulates
// duplicates.
type Feed struct {
	mu        sync.Mutex
	birthdays map[int64]Notification
	order     []int64
	budget    []Notification
}

func NewFeed() *Feed {
	return &Feed{birthdays: make(map[int64]Notification)}
}

// Replace installs freshly derived segments and returns the notifications
// that were not in the feed before.
func (f *Feed) Replace(budget, birthdays []Notification) (added []Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev := make(map[string]Kind, len(f.budget)+len(f.birthdays))
	for _, n := range f.budget {
		prev[n.ID] = n.Kind
	}
	for _, n := range f.birthdays {
		prev[n.ID] = n.Kind
	}

	next := make(map[int64]Notification, len(birthdays))
	order := make([]int64, 0, len(birthdays))
	for _, n := range birthdays {
		if _, dup := next[n.PersonID]; !dup {
			order = append(order, n.PersonID)
		}
		next[n.PersonID] = n
	}
	f.birthdays = next
	f.order = order
	f.budget = append([]Notification(nil), budget...)

	for _, n := range f.listLocked() {
		// A warning escalating to exceeded counts as new.
		if kind, ok := prev[n.ID]; !ok || kind != n.Kind {
			added = append(added, n)
		}
	}
	return added
}

// List returns birthdays first, then budget alerts.
func (f *Feed) List() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listLocked()
}

func (f *Feed) listLocked() []Notification {
	out := make([]Notification, 0, len(f.order)+len(f.budget))
	for _, id := range f.order {
		out = append(out, f.birthdays[id])
	}
	return append(out, f.budget...)
}
