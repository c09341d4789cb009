// Package selector prunes a candidate pool of sobrecupos into at most two
// options worth presenting.
package selector

import (
	"sort"
	"time"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
)

// MaxOptions is the largest presentation set.
const MaxOptions = 2

// AfternoonHour splits a day into morning (< 14:00) and afternoon.
const AfternoonHour = 14

// Hint carries what the classifier learned that affects ranking.
type Hint struct {
	Urgent bool
	// Today is the reference day for same-day prioritization. Zero means time.Now().
	Today time.Time
}

func (h Hint) today() string {
	if h.Today.IsZero() {
		return time.Now().Format(appointments.DateLayout)
	}
	return h.Today.Format(appointments.DateLayout)
}

// SelectOptions returns at most two representative records from candidates.
// Urgent hints prefer same-day slots, offering the earliest and the latest to
// give a spread. Otherwise the earliest slot is paired with the earliest slot of
// the other day-part on the same date, or else with the earliest slot of the
// next different date.
func SelectOptions(candidates []appointments.Record, hint Hint) []appointments.Record {
	if len(candidates) == 0 {
		return nil
	}
	sorted := Sorted(candidates)

	if hint.Urgent {
		today := hint.today()
		var sameDay []appointments.Record
		for _, r := range sorted {
			if r.Date == today {
				sameDay = append(sameDay, r)
			}
		}
		switch len(sameDay) {
		case 0:
		case 1:
			return sameDay
		default:
			return []appointments.Record{sameDay[0], sameDay[len(sameDay)-1]}
		}
	}

	if len(sorted) == 1 {
		return sorted
	}

	first := sorted[0]
	var morning, afternoon *appointments.Record
	for i := range sorted {
		r := &sorted[i]
		if r.Date != first.Date {
			continue
		}
		if IsMorning(*r) {
			if morning == nil {
				morning = r
			}
		} else if afternoon == nil {
			afternoon = r
		}
	}
	if morning != nil && afternoon != nil {
		return []appointments.Record{*morning, *afternoon}
	}

	for _, r := range sorted[1:] {
		if r.Date != first.Date {
			return []appointments.Record{first, r}
		}
	}
	return []appointments.Record{first}
}

// Sorted returns a copy of records ordered by (date, time).
func Sorted(records []appointments.Record) []appointments.Record {
	out := make([]appointments.Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// IsMorning reports whether r starts before AfternoonHour. Malformed times
// count as afternoon.
func IsMorning(r appointments.Record) bool {
	h := r.Hour()
	return h >= 0 && h < AfternoonHour
}

// IDs returns the record ids in order.
func IDs(records []appointments.Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
