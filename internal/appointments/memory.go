package appointments

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDatastore keeps slots, doctors and patients in process. It backs local
// development, the CLI and tests.
type MemoryDatastore struct {
	mu       sync.RWMutex
	records  map[string]Record
	doctors  map[string]DoctorInfo
	patients map[string]PatientFields
	now      func() time.Time
}

// NewMemoryDatastore seeds a store with the given doctors and records.
func NewMemoryDatastore(doctors []DoctorInfo, records []Record) *MemoryDatastore {
	m := &MemoryDatastore{
		records:  make(map[string]Record, len(records)),
		doctors:  make(map[string]DoctorInfo, len(doctors)),
		patients: make(map[string]PatientFields),
		now:      time.Now,
	}
	for _, d := range doctors {
		m.doctors[d.ID] = d
	}
	for _, r := range records {
		r.Time = NormalizeTime(r.Time)
		if r.DoctorName == "" {
			r.DoctorName = m.doctors[r.DoctorID].Name
		}
		m.records[r.ID] = r
	}
	return m
}

// WithClock overrides the reference time used to hide past slots.
func (m *MemoryDatastore) WithClock(now func() time.Time) *MemoryDatastore {
	m.now = now
	return m
}

func (m *MemoryDatastore) upcoming(keep func(Record) bool) []Record {
	today := m.now().Format(DateLayout)
	var out []Record
	for _, r := range m.records {
		if !r.Available || r.Date < today {
			continue
		}
		if keep(r) {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out
}

// ListAvailable implements Datastore.
func (m *MemoryDatastore) ListAvailable(_ context.Context, specialty string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upcoming(func(r Record) bool {
		return specialty == "" || SameSpecialty(r.Specialty, specialty)
	}), nil
}

// ListByDoctor implements Datastore.
func (m *MemoryDatastore) ListByDoctor(_ context.Context, doctorID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upcoming(func(r Record) bool { return r.DoctorID == doctorID }), nil
}

// GetDoctor implements Datastore.
func (m *MemoryDatastore) GetDoctor(_ context.Context, doctorID string) (DoctorInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.doctors[doctorID]
	if !ok {
		return DoctorInfo{}, ErrNotFound
	}
	return d, nil
}

// FindDoctors implements Datastore.
func (m *MemoryDatastore) FindDoctors(_ context.Context, name string) ([]DoctorInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []DoctorInfo
	for _, d := range m.doctors {
		if NameMatches(d.Name, name) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListSpecialties implements Datastore.
func (m *MemoryDatastore) ListSpecialties(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return SpecialtiesOf(m.upcoming(func(Record) bool { return true })), nil
}

// CreatePatient implements Datastore.
func (m *MemoryDatastore) CreatePatient(_ context.Context, p PatientFields) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := "pat_" + uuid.NewString()
	m.patients[id] = p
	return id, nil
}

// UpdateRecord implements Datastore.
func (m *MemoryDatastore) UpdateRecord(_ context.Context, recordID string, upd RecordUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordID]
	if !ok {
		return fmt.Errorf("appointments: update %s: %w", recordID, ErrNotFound)
	}
	if upd.RequireAvailable && !r.Available {
		return fmt.Errorf("appointments: update %s: %w", recordID, ErrUnavailable)
	}
	if upd.Available != nil {
		r.Available = *upd.Available
	}
	m.records[recordID] = r
	return nil
}

// Patient returns a stored patient. Intended for tests and the CLI.
func (m *MemoryDatastore) Patient(id string) (PatientFields, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	return p, ok
}

// DemoData returns a small catalog anchored at day, used by the CLI and local runs.
func DemoData(day time.Time) ([]DoctorInfo, []Record) {
	d := func(offset int) string { return day.AddDate(0, 0, offset).Format(DateLayout) }
	doctors := []DoctorInfo{
		{ID: "doc-oft-1", Name: "Carolina Fuentes", Specialty: "Oftalmología", Email: "cfuentes@sobrecupos.test", AgeGroup: AgeGroupBoth, InterestAreas: []string{"Retina"}},
		{ID: "doc-oft-2", Name: "Pablo Riquelme", Specialty: "Oftalmología", Email: "priquelme@sobrecupos.test", AgeGroup: AgeGroupAdults, InterestAreas: []string{"Glaucoma", "Cataratas"}},
		{ID: "doc-neu-1", Name: "Andrés Soto", Specialty: "Neurología", Email: "asoto@sobrecupos.test", AgeGroup: AgeGroupAdults},
		{ID: "doc-mg-1", Name: "Valentina Rojas", Specialty: "Medicina General", Email: "vrojas@sobrecupos.test", AgeGroup: AgeGroupBoth},
		{ID: "doc-ped-1", Name: "Camila Muñoz", Specialty: "Pediatría", Email: "cmunoz@sobrecupos.test", AgeGroup: AgeGroupChildren},
	}
	const clinic, address = "Clínica Las Condes", "Estoril 450, Las Condes"
	records := []Record{
		{ID: "rec-oft-1", Specialty: "Oftalmología", DoctorID: "doc-oft-1", Date: d(0), Time: "17:30", Clinic: clinic, Address: address, Available: true},
		{ID: "rec-oft-2", Specialty: "Oftalmología", DoctorID: "doc-oft-2", Date: d(1), Time: "09:00", Clinic: clinic, Address: address, Available: true},
		{ID: "rec-oft-3", Specialty: "Oftalmología", DoctorID: "doc-oft-1", Date: d(1), Time: "15:30", Clinic: clinic, Address: address, Available: true},
		{ID: "rec-oft-4", Specialty: "Oftalmología", DoctorID: "doc-oft-2", Date: d(3), Time: "11:00", Clinic: clinic, Address: address, Available: true},
		{ID: "rec-neu-1", Specialty: "Neurología", DoctorID: "doc-neu-1", Date: d(2), Time: "10:30", Clinic: clinic, Address: address, Available: true},
		{ID: "rec-neu-2", Specialty: "Neurología", DoctorID: "doc-neu-1", Date: d(2), Time: "16:00", Clinic: clinic, Address: address, Available: true},
		{ID: "rec-mg-1", Specialty: "Medicina General", DoctorID: "doc-mg-1", Date: d(1), Time: "08:30", Clinic: clinic, Address: address, Available: true},
		{ID: "rec-ped-1", Specialty: "Pediatría", DoctorID: "doc-ped-1", Date: d(4), Time: "12:00", Clinic: clinic, Address: address, Available: true},
	}
	return doctors, records
}
