package appointments

import (
	"context"
	"errors"
	"sort"

	"github.com/wolfman30/sobrecupos-ai/internal/textutil"
)

// ErrNotFound is returned when a doctor or record does not exist.
var ErrNotFound = errors.New("appointments: not found")

// ErrUnavailable is returned when a reservation targets a slot that is no
// longer open.
var ErrUnavailable = errors.New("appointments: slot no longer available")

// Datastore is the narrow contract the conversation engine needs.
type Datastore interface {
	// ListAvailable returns open, upcoming slots. An empty specialty lists all.
	ListAvailable(ctx context.Context, specialty string) ([]Record, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]Record, error)
	GetDoctor(ctx context.Context, doctorID string) (DoctorInfo, error)
	// FindDoctors matches doctors whose name contains name, ignoring case and accents.
	FindDoctors(ctx context.Context, name string) ([]DoctorInfo, error)
	// ListSpecialties returns the distinct specialties that have open slots.
	ListSpecialties(ctx context.Context) ([]string, error)
	CreatePatient(ctx context.Context, p PatientFields) (string, error)
	UpdateRecord(ctx context.Context, recordID string, upd RecordUpdate) error
}

// DoctorsFor looks up the doctors referenced by records. Lookups that fail are
// skipped; callers treat unknown doctors as unrestricted.
func DoctorsFor(ctx context.Context, ds Datastore, records []Record) map[string]DoctorInfo {
	out := make(map[string]DoctorInfo)
	for _, r := range records {
		if r.DoctorID == "" {
			continue
		}
		if _, seen := out[r.DoctorID]; seen {
			continue
		}
		d, err := ds.GetDoctor(ctx, r.DoctorID)
		if err != nil {
			continue
		}
		out[r.DoctorID] = d
	}
	return out
}

// SpecialtiesOf returns the distinct specialties in records, sorted.
func SpecialtiesOf(records []Record) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range records {
		if r.Specialty == "" || seen[r.Specialty] {
			continue
		}
		seen[r.Specialty] = true
		out = append(out, r.Specialty)
	}
	sort.Strings(out)
	return out
}

// SameSpecialty compares specialty names ignoring case and accents.
func SameSpecialty(a, b string) bool {
	return textutil.Normalize(a) == textutil.Normalize(b)
}

// NameMatches reports whether query appears in the doctor's name.
func NameMatches(doctorName, query string) bool {
	q := textutil.Normalize(query)
	if q == "" {
		return false
	}
	return textutil.ContainsPhrase(textutil.Normalize(doctorName), q)
}

func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].Before(records[j]) })
}
