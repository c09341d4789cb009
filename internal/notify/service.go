package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	"github.com/wolfman30/sobrecupos-ai/internal/textutil"
	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

// ErrNoRecipient is returned when the addressee has no email on file.
var ErrNoRecipient = errors.New("notify: recipient has no email")

// DoctorDirectory resolves a doctor's contact details.
type DoctorDirectory interface {
	GetDoctor(ctx context.Context, doctorID string) (appointments.DoctorInfo, error)
}

// Confirmation carries what both emails need about a finished booking.
type Confirmation struct {
	Code         string
	PatientName  string
	PatientEmail string
	PatientPhone string
	PatientRUT   string
	PatientAge   int
	Motivo       string
	Specialty    string
	DoctorID     string
	DoctorName   string
	Start        time.Time
	Clinic       string
	Address      string
	PaymentURL   string
	ContactOnly  bool
}

// Outcome reports each notification independently.
type Outcome struct {
	PatientErr error
	DoctorErr  error
}

func (o Outcome) PatientNotified() bool { return o.PatientErr == nil }
func (o Outcome) DoctorNotified() bool  { return o.DoctorErr == nil }

// Service sends booking notifications to patients and doctors.
type Service struct {
	email   EmailSender
	doctors DoctorDirectory
	logger  *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, doctors DoctorDirectory, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, doctors: doctors, logger: logger}
}

// SendPatientConfirmation emails the patient their booking details.
func (s *Service) SendPatientConfirmation(ctx context.Context, c Confirmation) error {
	if s.email == nil {
		return errors.New("notify: email sender not configured")
	}
	if strings.TrimSpace(c.PatientEmail) == "" {
		return ErrNoRecipient
	}

	subject := fmt.Sprintf("Tu sobrecupo está reservado (%s)", c.Code)
	if c.ContactOnly {
		subject = "Recibimos tus datos"
	}
	if err := s.email.Send(ctx, EmailMessage{
		To:      c.PatientEmail,
		ToName:  c.PatientName,
		Subject: subject,
		Body:    patientBody(c),
	}); err != nil {
		return fmt.Errorf("notify: patient confirmation: %w", err)
	}
	return nil
}

// SendDoctorNotification emails the doctor that a sobrecupo was taken.
func (s *Service) SendDoctorNotification(ctx context.Context, c Confirmation, doctorID string) error {
	if s.email == nil {
		return errors.New("notify: email sender not configured")
	}
	if s.doctors == nil {
		return errors.New("notify: doctor directory not configured")
	}
	doctor, err := s.doctors.GetDoctor(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("notify: lookup doctor %s: %w", doctorID, err)
	}
	if strings.TrimSpace(doctor.Email) == "" {
		return ErrNoRecipient
	}

	if err := s.email.Send(ctx, EmailMessage{
		To:      doctor.Email,
		ToName:  doctor.Name,
		Subject: fmt.Sprintf("Nuevo paciente en sobrecupo: %s", formatStart(c.Start)),
		Body:    doctorBody(c, doctor),
	}); err != nil {
		return fmt.Errorf("notify: doctor notification: %w", err)
	}
	return nil
}

// Dispatch sends both notifications concurrently. Neither failure affects the
// other, and Dispatch itself never fails.
func (s *Service) Dispatch(ctx context.Context, c Confirmation) Outcome {
	var (
		out Outcome
		g   errgroup.Group
	)
	g.Go(func() error {
		out.PatientErr = s.SendPatientConfirmation(ctx, c)
		return out.PatientErr
	})
	if c.DoctorID != "" {
		g.Go(func() error {
			out.DoctorErr = s.SendDoctorNotification(ctx, c, c.DoctorID)
			return out.DoctorErr
		})
	} else {
		out.DoctorErr = errors.New("notify: booking has no doctor")
	}
	_ = g.Wait()

	if out.PatientErr != nil {
		s.logger.Warn("patient confirmation not sent", "code", c.Code, "error", out.PatientErr)
	}
	if out.DoctorErr != nil && c.DoctorID != "" {
		s.logger.Warn("doctor notification not sent", "code", c.Code, "doctor_id", c.DoctorID, "error", out.DoctorErr)
	}
	return out
}

func formatStart(t time.Time) string {
	if t.IsZero() {
		return "por confirmar"
	}
	return textutil.SpanishDateTime(t)
}

func patientBody(c Confirmation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s,\n\n", c.PatientName)
	if c.ContactOnly {
		fmt.Fprintf(&b, "Recibimos tus datos para %s. Te contactaremos apenas se libere un sobrecupo.\n", c.Specialty)
		return b.String()
	}
	fmt.Fprintf(&b, "Tu sobrecupo quedó reservado.\n\n")
	fmt.Fprintf(&b, "Código: %s\n", c.Code)
	fmt.Fprintf(&b, "Especialidad: %s\n", c.Specialty)
	fmt.Fprintf(&b, "Médico: %s\n", c.DoctorName)
	fmt.Fprintf(&b, "Fecha: %s\n", formatStart(c.Start))
	if c.Clinic != "" {
		fmt.Fprintf(&b, "Lugar: %s", c.Clinic)
		if c.Address != "" {
			fmt.Fprintf(&b, ", %s", c.Address)
		}
		b.WriteString("\n")
	}
	if c.PaymentURL != "" {
		fmt.Fprintf(&b, "\nPara confirmar tu hora completa el pago aquí: %s\n", c.PaymentURL)
	}
	return b.String()
}

func doctorBody(c Confirmation, doctor appointments.DoctorInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Estimado/a %s,\n\n", doctor.Name)
	fmt.Fprintf(&b, "Se reservó uno de sus sobrecupos para el %s.\n\n", formatStart(c.Start))
	fmt.Fprintf(&b, "Paciente: %s\n", c.PatientName)
	if c.PatientRUT != "" {
		fmt.Fprintf(&b, "RUT: %s\n", c.PatientRUT)
	}
	if c.PatientAge > 0 {
		fmt.Fprintf(&b, "Edad: %d\n", c.PatientAge)
	}
	if c.PatientPhone != "" {
		fmt.Fprintf(&b, "Teléfono: %s\n", c.PatientPhone)
	}
	if c.Motivo != "" {
		fmt.Fprintf(&b, "Motivo de consulta: %s\n", c.Motivo)
	}
	fmt.Fprintf(&b, "Código de reserva: %s\n", c.Code)
	return b.String()
}
