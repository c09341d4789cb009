package selector

import (
	"strings"
	"time"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	"github.com/wolfman30/sobrecupos-ai/internal/textutil"
)

// DayPart is a coarse time-of-day preference.
type DayPart string

const (
	DayPartAny       DayPart = ""
	DayPartMorning   DayPart = "morning"
	DayPartAfternoon DayPart = "afternoon"
)

// Preferences are scheduling constraints inferred from a rejection message.
type Preferences struct {
	DayPart  DayPart        `json:"day_part,omitempty"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
	Tomorrow bool           `json:"tomorrow,omitempty"`
	Weekend  bool           `json:"weekend,omitempty"`
	Later    bool           `json:"later,omitempty"`
	RawText  string         `json:"raw_text,omitempty"`
}

// IsZero reports whether no constraint was inferred.
func (p Preferences) IsZero() bool {
	return p.DayPart == DayPartAny && len(p.Weekdays) == 0 && !p.Tomorrow && !p.Weekend && !p.Later
}

var (
	laterPhrases     = []string{"mas tarde", "mas adelante", "otro dia", "otra fecha", "despues", "la proxima semana", "proxima semana"}
	lunchAfter       = []string{"despues de almuerzo", "despues del almuerzo"}
	morningPhrases   = []string{"en la manana", "por la manana", "de manana", "en las mananas", "por las mananas", "temprano", "antes de almuerzo", "antes del almuerzo", "mananas", "am"}
	afternoonPhrases = []string{"en la tarde", "por la tarde", "de tarde", "en las tardes", "por las tardes", "tardes", "tarde", "pm"}
	weekendPhrases   = []string{"fin de semana", "fines de semana", "finde"}
	weekdayNames     = map[string]time.Weekday{
		"lunes":     time.Monday,
		"martes":    time.Tuesday,
		"miercoles": time.Wednesday,
		"jueves":    time.Thursday,
		"viernes":   time.Friday,
		"sabado":    time.Saturday,
		"domingo":   time.Sunday,
	}
	weekdayOrder = []string{"lunes", "martes", "miercoles", "jueves", "viernes", "sabado", "domingo"}
)

// ExtractPreferences parses Spanish scheduling hints from a rejection.
//   - "prefiero en la mañana" -> morning
//   - "¿tienes mañana en la tarde?" -> tomorrow, afternoon
//   - "algo más tarde" -> later than what was shown
//   - "el viernes" -> Friday
func ExtractPreferences(text string) Preferences {
	norm := textutil.Normalize(text)
	prefs := Preferences{RawText: text}
	if norm == "" {
		return prefs
	}

	afternoonByLunch := textutil.ContainsAny(norm, lunchAfter)
	norm = removePhrases(norm, lunchAfter)

	if textutil.ContainsAny(norm, laterPhrases) {
		prefs.Later = true
		norm = removePhrases(norm, laterPhrases)
	}

	switch {
	case textutil.ContainsAny(norm, morningPhrases):
		prefs.DayPart = DayPartMorning
		norm = removePhrases(norm, morningPhrases)
	case afternoonByLunch || textutil.ContainsAny(norm, afternoonPhrases):
		prefs.DayPart = DayPartAfternoon
		norm = removePhrases(norm, afternoonPhrases)
	}

	if textutil.ContainsPhrase(norm, "pasado manana") {
		norm = removePhrases(norm, []string{"pasado manana"})
		prefs.Later = true
	}
	if textutil.ContainsPhrase(norm, "manana") {
		prefs.Tomorrow = true
	}

	if textutil.ContainsAny(norm, weekendPhrases) {
		prefs.Weekend = true
	}
	for _, name := range weekdayOrder {
		if textutil.ContainsPhrase(norm, name) {
			prefs.Weekdays = append(prefs.Weekdays, weekdayNames[name])
		}
	}
	return prefs
}

// removePhrases blanks out word-bounded occurrences so shorter phrases
// ("manana") are not re-detected inside longer ones ("en la manana").
func removePhrases(norm string, phrases []string) string {
	for _, p := range phrases {
		for textutil.ContainsPhrase(norm, p) {
			norm = replaceBounded(norm, p)
		}
	}
	return norm
}

func replaceBounded(norm, phrase string) string {
	idx := 0
	for {
		i := strings.Index(norm[idx:], phrase)
		if i < 0 {
			return norm
		}
		start := idx + i
		end := start + len(phrase)
		if isSep(norm, start-1) && isSep(norm, end) {
			return norm[:start] + " " + norm[end:]
		}
		idx = start + 1
	}
}

func isSep(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := s[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c >= 0x80)
}

// RejectContext is what ApplyPreferences needs besides the pool.
type RejectContext struct {
	Today time.Time
	// Shown are the options the user just declined.
	Shown []appointments.Record
}

// ApplyPreferences keeps the records that satisfy every inferred constraint.
func ApplyPreferences(records []appointments.Record, prefs Preferences, rc RejectContext) []appointments.Record {
	if prefs.IsZero() {
		return records
	}
	today := rc.Today
	if today.IsZero() {
		today = time.Now()
	}
	tomorrow := today.AddDate(0, 0, 1).Format(appointments.DateLayout)

	var latestShown *appointments.Record
	for i := range rc.Shown {
		if latestShown == nil || latestShown.Before(rc.Shown[i]) {
			latestShown = &rc.Shown[i]
		}
	}

	out := make([]appointments.Record, 0, len(records))
	for _, r := range records {
		switch prefs.DayPart {
		case DayPartMorning:
			if !IsMorning(r) {
				continue
			}
		case DayPartAfternoon:
			if IsMorning(r) {
				continue
			}
		}
		if prefs.Tomorrow && r.Date != tomorrow {
			continue
		}
		if prefs.Later && latestShown != nil && !latestShown.Before(r) {
			continue
		}
		if prefs.Weekend || len(prefs.Weekdays) > 0 {
			day, ok := r.Day(today.Location())
			if !ok || !weekdayAllowed(day.Weekday(), prefs) {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

func weekdayAllowed(wd time.Weekday, prefs Preferences) bool {
	if prefs.Weekend && (wd == time.Saturday || wd == time.Sunday) {
		return true
	}
	for _, w := range prefs.Weekdays {
		if w == wd {
			return true
		}
	}
	return false
}

// Reselect runs the rejection path: drop everything already shown, narrow by
// the inferred preferences and select again. An empty result means the caller
// should offer the contact-data branch.
func Reselect(pool []appointments.Record, rejectedIDs []string, prefs Preferences, rc RejectContext, hint Hint) []appointments.Record {
	remaining := Exclude(pool, rejectedIDs)
	remaining = Exclude(remaining, IDs(rc.Shown))
	remaining = ApplyPreferences(remaining, prefs, rc)
	if hint.Today.IsZero() {
		hint.Today = rc.Today
	}
	return SelectOptions(remaining, hint)
}
