package ledger

import (
	"sort"

	"oshikakeibo/internal/core"
)

const (
	birthdayTitleSuffix = "の誕生日"
	birthdayDescription = "🎂 お誕生日おめでとう！"
)

// CalendarEvents lists the events of one month: birthdays derived from
// people plus the stored custom events. A non-zero personID limits the
// result to that person. Events are ordered by day, birthdays first.
func CalendarEvents(people []core.Person, custom []core.CalendarEvent, year, month int, personID int64) []core.CalendarEvent {
	var out []core.CalendarEvent
	for _, p := range people {
		if p.Birthday == nil || (personID != 0 && p.ID != personID) {
			continue
		}
		at := p.Birthday.AnniversaryIn(year)
		if int(at.Time.Month()) != month {
			continue
		}
		out = append(out, core.CalendarEvent{
			Title:       p.Name + birthdayTitleSuffix,
			Description: birthdayDescription,
			Day:         at.Day(),
			Month:       month,
			Year:        year,
			PersonID:    p.ID,
			Type:        core.EventBirthday,
		})
	}
	for _, ev := range custom {
		if ev.Year != year || ev.Month != month {
			continue
		}
		if personID != 0 && ev.PersonID != personID {
			continue
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].Type == core.EventBirthday && out[j].Type != core.EventBirthday
	})
	return out
}
