// Package appointments is the boundary to the datastore that owns sobrecupo
// slots, doctors and patients.
package appointments

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/sobrecupos-ai/internal/textutil"
)

// DateLayout is the wire format of Record.Date.
const DateLayout = "2006-01-02"

// AgeGroup is the patient population a doctor accepts.
type AgeGroup string

const (
	AgeGroupAdults   AgeGroup = "adultos"
	AgeGroupChildren AgeGroup = "ninos"
	AgeGroupBoth     AgeGroup = "ambos"
)

// ParseAgeGroup maps the loosely written datastore values onto AgeGroup.
// Unknown or empty values are treated as accepting everyone.
func ParseAgeGroup(s string) AgeGroup {
	switch textutil.Normalize(s) {
	case "adultos", "adulto", "adults", "adult", "mayores":
		return AgeGroupAdults
	case "ninos", "nino", "children", "child", "pediatrico", "pediatrica", "infantil", "menores":
		return AgeGroupChildren
	default:
		return AgeGroupBoth
	}
}

// Accepts reports whether a patient of the given age can see a doctor of group g.
func (g AgeGroup) Accepts(age int) bool {
	switch g {
	case AgeGroupAdults:
		return age >= 18
	case AgeGroupChildren:
		return age < 18
	default:
		return true
	}
}

// Record is one sobrecupo slot. It is copied into sessions and never mutated there.
type Record struct {
	ID         string `json:"id"`
	Specialty  string `json:"specialty"`
	DoctorID   string `json:"doctor_id"`
	DoctorName string `json:"doctor_name,omitempty"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Clinic     string `json:"clinic"`
	Address    string `json:"address,omitempty"`
	Available  bool   `json:"available"`
}

// Minutes returns minutes since midnight, or -1 if Time is malformed.
func (r Record) Minutes() int {
	return clockMinutes(r.Time)
}

// Hour returns the slot hour, or -1 if Time is malformed.
func (r Record) Hour() int {
	m := r.Minutes()
	if m < 0 {
		return -1
	}
	return m / 60
}

// Day parses Date in loc.
func (r Record) Day(loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	d, err := time.ParseInLocation(DateLayout, r.Date, loc)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Start combines Date and Time in loc.
func (r Record) Start(loc *time.Location) (time.Time, bool) {
	d, ok := r.Day(loc)
	m := r.Minutes()
	if !ok || m < 0 {
		return time.Time{}, false
	}
	return d.Add(time.Duration(m) * time.Minute), true
}

// Before orders records by (date, time); malformed times sort last within a day.
func (r Record) Before(o Record) bool {
	if r.Date != o.Date {
		return r.Date < o.Date
	}
	rm, om := r.Minutes(), o.Minutes()
	if rm < 0 {
		rm = 24 * 60
	}
	if om < 0 {
		om = 24 * 60
	}
	if rm != om {
		return rm < om
	}
	return r.ID < o.ID
}

// DoctorInfo is the doctor profile used for age and interest filtering and
// for notifications.
type DoctorInfo struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Specialty     string   `json:"specialty"`
	Email         string   `json:"email,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	AgeGroup      AgeGroup `json:"age_group"`
	InterestAreas []string `json:"interest_areas,omitempty"`
}

// PatientFields is the payload for CreatePatient.
type PatientFields struct {
	Name        string `json:"name"`
	RUT         string `json:"rut,omitempty"`
	Age         int    `json:"age,omitempty"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	Motivo      string `json:"motivo,omitempty"`
	Specialty   string `json:"specialty,omitempty"`
	RecordID    string `json:"record_id,omitempty"`
	ContactOnly bool   `json:"contact_only"`
}

// RecordUpdate lists the fields UpdateRecord may change. Nil/empty fields are left alone.
type RecordUpdate struct {
	Available *bool  `json:"available,omitempty"`
	PatientID string `json:"patient_id,omitempty"`
	// RequireAvailable makes the update fail with ErrUnavailable unless the
	// slot is still open.
	RequireAvailable bool `json:"-"`
}

// Reserve is the update applied when a patient books a slot. It only
// succeeds on an open slot.
func Reserve(patientID string) RecordUpdate {
	no := false
	return RecordUpdate{Available: &no, PatientID: patientID, RequireAvailable: true}
}

// ParseTruthy normalizes the loosely typed availability flag: booleans,
// "si"/"sí"/"true"/"1"/"yes"/"x" and checkbox values.
func ParseTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch textutil.Normalize(t) {
		case "si", "true", "1", "yes", "x", "verdadero", "disponible":
			return true
		}
		return false
	case float64:
		return t != 0
	case int:
		return t != 0
	case []any:
		return len(t) > 0 && ParseTruthy(t[0])
	default:
		return false
	}
}

// NormalizeTime turns "9:30", "09:30:00" or "9.30" into "09:30". Unparseable
// input is returned trimmed.
func NormalizeTime(s string) string {
	m := clockMinutes(s)
	if m < 0 {
		return strings.TrimSpace(s)
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func clockMinutes(s string) int {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", ":")
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return -1
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return -1
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return -1
	}
	return h*60 + m
}
