package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of *pgxpool.Pool the Postgres datastore uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDatastore stores slots, doctors and patients in Postgres.
type PostgresDatastore struct {
	pool PgxPool
	now  func() time.Time
}

// NewPostgresDatastore wraps a pgx pool.
func NewPostgresDatastore(pool PgxPool) *PostgresDatastore {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresDatastore{pool: pool, now: time.Now}
}

const selectSlots = `
	SELECT s.id, s.specialty, s.doctor_id, d.name,
	       to_char(s.slot_date, 'YYYY-MM-DD'), to_char(s.slot_time, 'HH24:MI'),
	       s.clinic, s.address, s.available
	FROM sobrecupos s
	JOIN doctors d ON d.id = s.doctor_id
`

// ListAvailable implements Datastore.
func (p *PostgresDatastore) ListAvailable(ctx context.Context, specialty string) ([]Record, error) {
	query := selectSlots + `
	WHERE s.available AND s.slot_date >= $1 AND ($2 = '' OR lower(s.specialty) = lower($2))
	ORDER BY s.slot_date, s.slot_time
	`
	out, err := p.querySlots(ctx, query, p.today(), specialty)
	if err != nil {
		return nil, fmt.Errorf("appointments: list available: %w", err)
	}
	return out, nil
}

// ListByDoctor implements Datastore.
func (p *PostgresDatastore) ListByDoctor(ctx context.Context, doctorID string) ([]Record, error) {
	query := selectSlots + `
	WHERE s.available AND s.slot_date >= $1 AND s.doctor_id = $2
	ORDER BY s.slot_date, s.slot_time
	`
	out, err := p.querySlots(ctx, query, p.today(), doctorID)
	if err != nil {
		return nil, fmt.Errorf("appointments: list by doctor: %w", err)
	}
	return out, nil
}

func (p *PostgresDatastore) querySlots(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Specialty, &r.DoctorID, &r.DoctorName, &r.Date, &r.Time, &r.Clinic, &r.Address, &r.Available); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const selectDoctors = `
	SELECT id, name, specialty, COALESCE(email, ''), COALESCE(phone, ''), age_group, interest_areas
	FROM doctors
`

func scanDoctor(row pgx.Row) (DoctorInfo, error) {
	var (
		d        DoctorInfo
		ageGroup string
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Specialty, &d.Email, &d.Phone, &ageGroup, &d.InterestAreas); err != nil {
		return DoctorInfo{}, err
	}
	d.AgeGroup = ParseAgeGroup(ageGroup)
	return d, nil
}

// GetDoctor implements Datastore.
func (p *PostgresDatastore) GetDoctor(ctx context.Context, doctorID string) (DoctorInfo, error) {
	d, err := scanDoctor(p.pool.QueryRow(ctx, selectDoctors+` WHERE id = $1`, doctorID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DoctorInfo{}, ErrNotFound
		}
		return DoctorInfo{}, fmt.Errorf("appointments: get doctor %s: %w", doctorID, err)
	}
	return d, nil
}

// FindDoctors implements Datastore. Names are compared without accents, which
// plain ILIKE cannot do, so matching happens after the scan.
func (p *PostgresDatastore) FindDoctors(ctx context.Context, name string) ([]DoctorInfo, error) {
	rows, err := p.pool.Query(ctx, selectDoctors+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("appointments: find doctors: %w", err)
	}
	defer rows.Close()

	var out []DoctorInfo
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan doctor: %w", err)
		}
		if NameMatches(d.Name, name) {
			out = append(out, d)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: find doctors: %w", err)
	}
	return out, nil
}

// ListSpecialties implements Datastore.
func (p *PostgresDatastore) ListSpecialties(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT DISTINCT specialty
		FROM sobrecupos
		WHERE available AND slot_date >= $1
		ORDER BY specialty
	`, p.today())
	if err != nil {
		return nil, fmt.Errorf("appointments: list specialties: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("appointments: scan specialty: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreatePatient implements Datastore.
func (p *PostgresDatastore) CreatePatient(ctx context.Context, f PatientFields) (string, error) {
	id := uuid.New()
	_, err := p.pool.Exec(ctx, `
		INSERT INTO patients (id, name, rut, age, phone, email, motivo, specialty, sobrecupo_id, contact_only)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
	`, id, f.Name, f.RUT, f.Age, f.Phone, f.Email, f.Motivo, f.Specialty, f.RecordID, f.ContactOnly)
	if err != nil {
		return "", fmt.Errorf("appointments: create patient: %w", err)
	}
	return id.String(), nil
}

// UpdateRecord implements Datastore.
func (p *PostgresDatastore) UpdateRecord(ctx context.Context, recordID string, upd RecordUpdate) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE sobrecupos
		SET available = COALESCE($2, available),
		    patient_id = COALESCE(NULLIF($3, ''), patient_id),
		    updated_at = now()
		WHERE id = $1 AND (NOT $4 OR available)
	`, recordID, upd.Available, upd.PatientID, upd.RequireAvailable)
	if err != nil {
		return fmt.Errorf("appointments: update %s: %w", recordID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if !upd.RequireAvailable {
		return fmt.Errorf("appointments: update %s: %w", recordID, ErrNotFound)
	}

	var available bool
	err = p.pool.QueryRow(ctx, `SELECT available FROM sobrecupos WHERE id = $1`, recordID).Scan(&available)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("appointments: update %s: %w", recordID, ErrNotFound)
	case err != nil:
		return fmt.Errorf("appointments: update %s: %w", recordID, err)
	default:
		return fmt.Errorf("appointments: update %s: %w", recordID, ErrUnavailable)
	}
}

func (p *PostgresDatastore) today() time.Time {
	now := p.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// Seed upserts doctors and slots. Existing rows keep their availability and
// patient link so reseeding a live database never frees a booked slot.
func (p *PostgresDatastore) Seed(ctx context.Context, doctors []DoctorInfo, records []Record) error {
	for _, d := range doctors {
		interests := d.InterestAreas
		if interests == nil {
			interests = []string{}
		}
		if _, err := p.pool.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, email, phone, age_group, interest_areas)
			VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, specialty = EXCLUDED.specialty, email = EXCLUDED.email,
			    phone = EXCLUDED.phone, age_group = EXCLUDED.age_group, interest_areas = EXCLUDED.interest_areas
		`, d.ID, d.Name, d.Specialty, d.Email, d.Phone, string(d.AgeGroup), interests); err != nil {
			return fmt.Errorf("appointments: seed doctor %s: %w", d.ID, err)
		}
	}
	for _, r := range records {
		if _, err := p.pool.Exec(ctx, `
			INSERT INTO sobrecupos (id, specialty, doctor_id, slot_date, slot_time, clinic, address, available)
			VALUES ($1, $2, $3, $4::date, $5::time, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.Specialty, r.DoctorID, r.Date, r.Time, r.Clinic, r.Address, r.Available); err != nil {
			return fmt.Errorf("appointments: seed slot %s: %w", r.ID, err)
		}
	}
	return nil
}
