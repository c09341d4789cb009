package selector

import (
	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	"github.com/wolfman30/sobrecupos-ai/internal/textutil"
)

// FilterByAge drops records whose doctor does not accept the patient's age.
// Records whose doctor is not in doctors are kept.
func FilterByAge(records []appointments.Record, doctors map[string]appointments.DoctorInfo, age int) []appointments.Record {
	out := make([]appointments.Record, 0, len(records))
	for _, r := range records {
		d, ok := doctors[r.DoctorID]
		if !ok || d.AgeGroup.Accepts(age) {
			out = append(out, r)
		}
	}
	return out
}

// FilterByInterest prefers doctors whose declared interest areas match the
// reason for consultation. Doctors without declared interests always stay in.
// When nothing matches, records are returned unchanged.
func FilterByInterest(records []appointments.Record, doctors map[string]appointments.DoctorInfo, motivo, subArea string) []appointments.Record {
	norm := textutil.Normalize(motivo)
	sub := textutil.Normalize(subArea)

	matched := false
	keep := make([]appointments.Record, 0, len(records))
	for _, r := range records {
		d, ok := doctors[r.DoctorID]
		if !ok || len(d.InterestAreas) == 0 {
			keep = append(keep, r)
			continue
		}
		if interestMatches(d.InterestAreas, norm, sub) {
			matched = true
			keep = append(keep, r)
		}
	}
	if !matched {
		return records
	}
	return keep
}

func interestMatches(areas []string, motivo, subArea string) bool {
	for _, a := range areas {
		na := textutil.Normalize(a)
		if na == "" {
			continue
		}
		if na == subArea || textutil.ContainsPhrase(motivo, na) {
			return true
		}
	}
	return false
}

// Exclude removes records whose id is in ids.
func Exclude(records []appointments.Record, ids []string) []appointments.Record {
	if len(ids) == 0 {
		return records
	}
	skip := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		skip[id] = struct{}{}
	}
	out := make([]appointments.Record, 0, len(records))
	for _, r := range records {
		if _, ok := skip[r.ID]; !ok {
			out = append(out, r)
		}
	}
	return out
}
