package appointments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

const (
	defaultHTTPTimeout = 20 * time.Second
	// DefaultOptimizedTimeout bounds the availability query the conversation waits on.
	DefaultOptimizedTimeout = 8 * time.Second
	pageSize                = 100
)

// Slot table columns.
const (
	fieldSpecialty  = "Especialidad"
	fieldDoctor     = "Médico"
	fieldDoctorName = "Nombre Médico"
	fieldDate       = "Fecha"
	fieldTime       = "Hora"
	fieldClinic     = "Clínica"
	fieldAddress    = "Dirección"
	fieldAvailable  = "Disponible"
	fieldPatient    = "Paciente"
)

// Doctor table columns.
const (
	fieldDoctorFullName = "Name"
	fieldDoctorEmail    = "Email"
	fieldDoctorPhone    = "WhatsApp"
	fieldDoctorAttends  = "Atiende"
	fieldDoctorAreas    = "AreasInteres"
)

var slotFields = []string{fieldSpecialty, fieldDoctor, fieldDoctorName, fieldDate, fieldTime, fieldClinic, fieldAddress, fieldAvailable}

// HTTPConfig configures HTTPDatastore.
type HTTPConfig struct {
	BaseURL          string
	APIKey           string
	BaseID           string
	SlotsTable       string
	DoctorsTable     string
	PatientsTable    string
	OptimizedTimeout time.Duration
	HTTPClient       *http.Client
}

// HTTPDatastore talks to an Airtable-style REST API: tables of records with
// loosely typed fields, queried by formula.
type HTTPDatastore struct {
	cfg        HTTPConfig
	httpClient *http.Client
	logger     *logging.Logger
	tracer     trace.Tracer
	now        func() time.Time
}

// NewHTTPDatastore creates a REST datastore client.
func NewHTTPDatastore(cfg HTTPConfig, logger *logging.Logger) *HTTPDatastore {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.airtable.com/v0"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.OptimizedTimeout <= 0 {
		cfg.OptimizedTimeout = DefaultOptimizedTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPDatastore{
		cfg:        cfg,
		httpClient: client,
		logger:     logger,
		tracer:     otel.Tracer("sobrecupos.internal.appointments.http"),
		now:        time.Now,
	}
}

type apiRecord struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

type apiList struct {
	Records []apiRecord `json:"records"`
	Offset  string      `json:"offset,omitempty"`
}

type apiError struct {
	Error any `json:"error"`
}

// ListAvailable runs the optimized availability query: formula-filtered,
// restricted to the slot columns, and aborted after OptimizedTimeout.
func (c *HTTPDatastore) ListAvailable(ctx context.Context, specialty string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.OptimizedTimeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "appointments.list_available")
	defer span.End()
	span.SetAttributes(attribute.String("specialty", specialty))

	recs, err := c.list(ctx, c.cfg.SlotsTable, availabilityFormula(specialty), slotFields)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: list available: %w", err)
	}
	return c.upcoming(recs, func(r Record) bool {
		return specialty == "" || SameSpecialty(r.Specialty, specialty)
	}), nil
}

// ListByDoctor implements Datastore. Linked-record ids are not reliably
// addressable from formulas, so the doctor filter runs client-side.
func (c *HTTPDatastore) ListByDoctor(ctx context.Context, doctorID string) ([]Record, error) {
	ctx, span := c.tracer.Start(ctx, "appointments.list_by_doctor")
	defer span.End()

	recs, err := c.list(ctx, c.cfg.SlotsTable, availabilityFormula(""), slotFields)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: list by doctor: %w", err)
	}
	return c.upcoming(recs, func(r Record) bool { return r.DoctorID == doctorID }), nil
}

// GetDoctor implements Datastore.
func (c *HTTPDatastore) GetDoctor(ctx context.Context, doctorID string) (DoctorInfo, error) {
	ctx, span := c.tracer.Start(ctx, "appointments.get_doctor")
	defer span.End()

	var rec apiRecord
	if err := c.do(ctx, http.MethodGet, c.tablePath(c.cfg.DoctorsTable)+"/"+url.PathEscape(doctorID), nil, nil, &rec); err != nil {
		span.RecordError(err)
		return DoctorInfo{}, fmt.Errorf("appointments: get doctor %s: %w", doctorID, err)
	}
	return parseDoctor(rec), nil
}

// FindDoctors implements Datastore.
func (c *HTTPDatastore) FindDoctors(ctx context.Context, name string) ([]DoctorInfo, error) {
	ctx, span := c.tracer.Start(ctx, "appointments.find_doctors")
	defer span.End()

	recs, err := c.list(ctx, c.cfg.DoctorsTable, "", nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: find doctors: %w", err)
	}
	var out []DoctorInfo
	for _, rec := range recs {
		d := parseDoctor(rec)
		if NameMatches(d.Name, name) {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListSpecialties implements Datastore.
func (c *HTTPDatastore) ListSpecialties(ctx context.Context) ([]string, error) {
	recs, err := c.ListAvailable(ctx, "")
	if err != nil {
		return nil, err
	}
	return SpecialtiesOf(recs), nil
}

// CreatePatient implements Datastore.
func (c *HTTPDatastore) CreatePatient(ctx context.Context, p PatientFields) (string, error) {
	ctx, span := c.tracer.Start(ctx, "appointments.create_patient")
	defer span.End()

	fields := map[string]any{
		"Nombre":         p.Name,
		"RUT":            p.RUT,
		"Edad":           p.Age,
		"Telefono":       p.Phone,
		"Email":          p.Email,
		"Motivo":         p.Motivo,
		"Especialidad":   p.Specialty,
		"SoloContacto":   p.ContactOnly,
		"Fecha Registro": c.now().Format(DateLayout),
	}
	if p.RecordID != "" {
		fields["Sobrecupo"] = []string{p.RecordID}
	}

	var rec apiRecord
	body := map[string]any{"fields": fields, "typecast": true}
	if err := c.do(ctx, http.MethodPost, c.tablePath(c.cfg.PatientsTable), nil, body, &rec); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("appointments: create patient: %w", err)
	}
	if rec.ID == "" {
		return "", fmt.Errorf("appointments: create patient: empty id in response")
	}
	return rec.ID, nil
}

// UpdateRecord implements Datastore.
func (c *HTTPDatastore) UpdateRecord(ctx context.Context, recordID string, upd RecordUpdate) error {
	ctx, span := c.tracer.Start(ctx, "appointments.update_record")
	defer span.End()

	fields := map[string]any{}
	if upd.Available != nil {
		if *upd.Available {
			fields[fieldAvailable] = "Si"
		} else {
			fields[fieldAvailable] = "No"
		}
	}
	if upd.PatientID != "" {
		fields[fieldPatient] = []string{upd.PatientID}
	}
	if len(fields) == 0 {
		return nil
	}
	path := c.tablePath(c.cfg.SlotsTable) + "/" + url.PathEscape(recordID)
	if upd.RequireAvailable {
		// Airtable has no conditional PATCH; re-read the flag right before writing.
		var current apiRecord
		if err := c.do(ctx, http.MethodGet, path, nil, nil, &current); err != nil {
			span.RecordError(err)
			return fmt.Errorf("appointments: update %s: %w", recordID, err)
		}
		if !parseSlot(current).Available {
			return fmt.Errorf("appointments: update %s: %w", recordID, ErrUnavailable)
		}
	}
	body := map[string]any{"fields": fields, "typecast": true}
	if err := c.do(ctx, http.MethodPatch, path, nil, body, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("appointments: update %s: %w", recordID, err)
	}
	return nil
}

func (c *HTTPDatastore) upcoming(recs []apiRecord, keep func(Record) bool) []Record {
	today := c.now().Format(DateLayout)
	out := make([]Record, 0, len(recs))
	for _, rec := range recs {
		r := parseSlot(rec)
		if !r.Available || r.Date < today || !keep(r) {
			continue
		}
		out = append(out, r)
	}
	sortRecords(out)
	return out
}

func (c *HTTPDatastore) tablePath(table string) string {
	return "/" + url.PathEscape(c.cfg.BaseID) + "/" + url.PathEscape(table)
}

func (c *HTTPDatastore) list(ctx context.Context, table, formula string, fields []string) ([]apiRecord, error) {
	var all []apiRecord
	offset := ""
	for {
		q := url.Values{}
		q.Set("pageSize", strconv.Itoa(pageSize))
		if formula != "" {
			q.Set("filterByFormula", formula)
		}
		for _, f := range fields {
			q.Add("fields[]", f)
		}
		if offset != "" {
			q.Set("offset", offset)
		}

		var page apiList
		if err := c.do(ctx, http.MethodGet, c.tablePath(table), q, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Records...)
		if page.Offset == "" {
			return all, nil
		}
		offset = page.Offset
	}
}

func (c *HTTPDatastore) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(data, &apiErr)
		c.logger.Warn("datastore request failed", "method", method, "status", resp.StatusCode)
		return fmt.Errorf("unexpected status %d: %v", resp.StatusCode, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// availabilityFormula filters by specialty and date server-side. Availability
// itself is normalized client-side because the column holds mixed types.
func availabilityFormula(specialty string) string {
	date := "IS_AFTER({" + fieldDate + "}, DATEADD(TODAY(), -1, 'days'))"
	if specialty == "" {
		return date
	}
	return fmt.Sprintf("AND({%s} = '%s', %s)", fieldSpecialty, escapeFormula(specialty), date)
}

func escapeFormula(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

func parseSlot(rec apiRecord) Record {
	date := fieldString(rec.Fields, fieldDate)
	if len(date) > len(DateLayout) {
		date = date[:len(DateLayout)]
	}
	return Record{
		ID:         rec.ID,
		Specialty:  fieldString(rec.Fields, fieldSpecialty),
		DoctorID:   fieldString(rec.Fields, fieldDoctor),
		DoctorName: fieldString(rec.Fields, fieldDoctorName),
		Date:       date,
		Time:       NormalizeTime(fieldString(rec.Fields, fieldTime)),
		Clinic:     fieldString(rec.Fields, fieldClinic),
		Address:    fieldString(rec.Fields, fieldAddress),
		Available:  ParseTruthy(rec.Fields[fieldAvailable]),
	}
}

func parseDoctor(rec apiRecord) DoctorInfo {
	return DoctorInfo{
		ID:            rec.ID,
		Name:          fieldString(rec.Fields, fieldDoctorFullName),
		Specialty:     fieldString(rec.Fields, fieldSpecialty),
		Email:         fieldString(rec.Fields, fieldDoctorEmail),
		Phone:         fieldString(rec.Fields, fieldDoctorPhone),
		AgeGroup:      ParseAgeGroup(fieldString(rec.Fields, fieldDoctorAttends)),
		InterestAreas: fieldList(rec.Fields, fieldDoctorAreas),
	}
}

// fieldString reads a scalar, taking the first element of linked-record and
// lookup arrays.
func fieldString(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func fieldList(fields map[string]any, key string) []string {
	var out []string
	switch v := fields[key].(type) {
	case string:
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

// IsTimeout reports whether err came from the optimized query's deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
