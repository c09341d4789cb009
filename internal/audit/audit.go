// Package audit keeps an append-only log of booking events.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a booking event.
type EventType string

const (
	EventSlotReserved     EventType = "booking.slot_reserved"
	EventContactRequested EventType = "booking.contact_requested"
	EventPaymentRequested EventType = "payment.requested"
	EventPaymentCompleted EventType = "payment.completed"
	EventReserveFailed    EventType = "booking.reserve_failed"
)

// Event is one immutable audit record. Patient identity never goes in here,
// only the datastore's patient id.
type Event struct {
	ID               string          `json:"id"`
	Type             EventType       `json:"event_type"`
	SessionID        string          `json:"session_id"`
	RecordID         string          `json:"record_id,omitempty"`
	PatientID        string          `json:"patient_id,omitempty"`
	ConfirmationCode string          `json:"confirmation_code,omitempty"`
	Details          json.RawMessage `json:"details,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Details carries event-specific fields.
type Details struct {
	Specialty  string `json:"specialty,omitempty"`
	DoctorID   string `json:"doctor_id,omitempty"`
	AmountCLP  int64  `json:"amount_clp,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Recorder is what the booking flow writes to.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// Service writes audit events to Postgres.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

// NewService creates a new audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Record inserts event, filling in the id and timestamp when missing.
func (s *Service) Record(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	details := event.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO booking_audit_events (
			id, event_type, session_id, record_id, patient_id,
			confirmation_code, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		event.ID,
		string(event.Type),
		event.SessionID,
		nullString(event.RecordID),
		nullString(event.PatientID),
		nullString(event.ConfirmationCode),
		[]byte(details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record event: %w", err)
	}
	return nil
}

// WithDetails marshals d into the event.
func (e Event) WithDetails(d Details) Event {
	raw, err := json.Marshal(d)
	if err == nil {
		e.Details = raw
	}
	return e
}

// Filter narrows Query.
type Filter struct {
	SessionID string
	Type      EventType
	Since     time.Time
	Limit     int
}

// Query returns events newest first.
func (s *Service) Query(ctx context.Context, f Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, session_id, record_id, patient_id,
		       confirmation_code, details, created_at
		FROM booking_audit_events
		WHERE 1 = 1
	`
	var args []any
	if f.SessionID != "" {
		args = append(args, f.SessionID)
		query += fmt.Sprintf(" AND session_id = $%d", len(args))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		query += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                         Event
			eventType                 string
			recordID, patientID, code sql.NullString
			details                   []byte
		)
		if err := rows.Scan(&e.ID, &eventType, &e.SessionID, &recordID, &patientID, &code, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.Type = EventType(eventType)
		e.RecordID = recordID.String
		e.PatientID = patientID.String
		e.ConfirmationCode = code.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
