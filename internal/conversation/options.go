package conversation

import (
	"regexp"
	"strconv"
	"time"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	"github.com/wolfman30/sobrecupos-ai/internal/selector"
	"github.com/wolfman30/sobrecupos-ai/internal/textutil"
)

var (
	affirmativeWords = []string{"si", "ok", "okay", "dale", "bueno", "claro", "perfecto", "de acuerdo", "esa", "me sirve", "me parece", "confirmo", "yes"}
	negativeWords    = []string{"no", "nop", "nope", "ninguna", "ninguno", "tampoco"}
	rejectionPhrases = []string{"otra opcion", "otras opciones", "otro horario", "otra hora", "otras horas", "otro dia", "no me sirve", "no me sirven", "no puedo", "ninguna", "ninguna de las dos", "no me acomoda", "no me acomodan"}

	ordinals = map[string]int{
		"1": 1, "uno": 1, "primera": 1, "primero": 1, "la primera": 1, "opcion 1": 1,
		"2": 2, "dos": 2, "segunda": 2, "segundo": 2, "la segunda": 2, "opcion 2": 2,
	}
	ordinalOrder = []string{"opcion 1", "opcion 2", "la primera", "la segunda", "primera", "segunda", "primero", "segundo", "uno", "dos"}

	clockPattern    = regexp.MustCompile(`\b(\d{1,2})(?:[:.h](\d{2}))\b`)
	bareHourPattern = regexp.MustCompile(`\b(?:a las|las)\s+(\d{1,2})\b`)
)

func isAffirmative(norm string) bool {
	if norm == "" {
		return false
	}
	if isNegative(norm) {
		return false
	}
	return textutil.ContainsAny(norm, affirmativeWords)
}

func isNegative(norm string) bool {
	words := textutil.Words(norm)
	if len(words) == 0 {
		return false
	}
	for _, w := range negativeWords {
		if words[0] == w {
			return true
		}
	}
	return false
}

// isRejection reports a message declining every presented option.
func isRejection(text string) bool {
	norm := textutil.Normalize(text)
	return isNegative(norm) || textutil.ContainsAny(norm, rejectionPhrases)
}

// pickOption resolves a choice among the presented options. It tries, in
// order: the option index ("1", "la segunda"), an explicit clock time
// ("10:30", "a las 17"), and finally the scheduling hints in prefs when they
// single out exactly one option ("la de la tarde", "el jueves").
func pickOption(text string, options []appointments.Record, prefs selector.Preferences, today time.Time) (appointments.Record, bool) {
	norm := textutil.Normalize(text)
	if norm == "" || len(options) == 0 {
		return appointments.Record{}, false
	}

	if n, ok := ordinals[norm]; ok && n <= len(options) {
		return options[n-1], true
	}

	if m := clockPattern.FindStringSubmatch(norm); m != nil {
		want := appointments.NormalizeTime(m[1] + ":" + m[2])
		for _, o := range options {
			if appointments.NormalizeTime(o.Time) == want {
				return o, true
			}
		}
		return appointments.Record{}, false
	}
	if m := bareHourPattern.FindStringSubmatch(norm); m != nil {
		h, _ := strconv.Atoi(m[1])
		var hits []appointments.Record
		for _, o := range options {
			if oh := o.Hour(); oh == h || (h < 12 && oh == h+12) {
				hits = append(hits, o)
			}
		}
		if len(hits) == 1 {
			return hits[0], true
		}
	}

	for _, word := range ordinalOrder {
		if textutil.ContainsPhrase(norm, word) {
			if n := ordinals[word]; n <= len(options) {
				return options[n-1], true
			}
		}
	}

	if !prefs.IsZero() && !prefs.Later {
		hits := selector.ApplyPreferences(options, prefs, selector.RejectContext{Today: today})
		if len(hits) == 1 {
			return hits[0], true
		}
	}

	if len(options) == 1 && isAffirmative(norm) {
		return options[0], true
	}
	return appointments.Record{}, false
}
