package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	"github.com/wolfman30/sobrecupos-ai/internal/audit"
	"github.com/wolfman30/sobrecupos-ai/internal/notify"
	"github.com/wolfman30/sobrecupos-ai/internal/payments"
	"github.com/wolfman30/sobrecupos-ai/internal/session"
	"github.com/wolfman30/sobrecupos-ai/internal/validate"
)

// completeContact stores the patient for later outreach and closes the
// session without a slot or payment.
func (e *Engine) completeContact(ctx context.Context, s *session.Session, search session.Search, patient session.Patient) *Response {
	id, err := e.datastore.CreatePatient(ctx, patientFields(search, patient, "", true))
	if err != nil {
		e.logger.Error("failed to store contact request", "session_id", s.ID, "email", validate.MaskEmail(patient.Email), "error", err)
		e.metrics.ObserveCollaboratorError("datastore", "create_patient")
		return e.reply(s, msgSaveFailed)
	}
	booking := session.Booking{
		Specialty:   search.Specialty,
		Motivo:      search.Motivo,
		Patient:     patient,
		PatientID:   id,
		ContactOnly: true,
	}
	e.record(ctx, audit.Event{Type: audit.EventContactRequested, SessionID: s.ID, PatientID: id}.
		WithDetails(audit.Details{Specialty: search.Specialty, DoctorID: search.DoctorID}))
	e.metrics.ObserveBooking("contact_only")
	if err := e.advance(ctx, s, session.Completed{Booking: booking}); err != nil {
		return e.reply(s, msgApology)
	}
	return e.reply(s, fmt.Sprintf(msgContactSaved, firstName(patient.Name)))
}

// completeBooking reserves slot, requests a checkout link, notifies patient
// and doctor and moves the session to pending-payment. Only the patient
// record and the reservation can fail the booking; every later step degrades.
func (e *Engine) completeBooking(ctx context.Context, s *session.Session, search session.Search, patient session.Patient, slot appointments.Record) *Response {
	patientID, err := e.datastore.CreatePatient(ctx, patientFields(search, patient, slot.ID, false))
	if err != nil {
		e.logger.Error("failed to create patient", "session_id", s.ID, "record_id", slot.ID, "error", err)
		e.metrics.ObserveCollaboratorError("datastore", "create_patient")
		return e.reply(s, msgSaveFailed)
	}

	booking := session.Booking{
		Specialty: firstNonEmpty(slot.Specialty, search.Specialty),
		Motivo:    search.Motivo,
		Patient:   patient,
		PatientID: patientID,
	}

	if err := e.datastore.UpdateRecord(ctx, slot.ID, appointments.Reserve(patientID)); err != nil {
		e.logger.Warn("failed to reserve slot", "session_id", s.ID, "record_id", slot.ID, "error", err)
		e.metrics.ObserveCollaboratorError("datastore", "update_record")
		e.metrics.ObserveBooking("reserve_failed")
		reason := "update failed"
		switch {
		case errors.Is(err, appointments.ErrUnavailable):
			reason = "slot taken"
		case errors.Is(err, appointments.ErrNotFound):
			reason = "slot not found"
		}
		e.record(ctx, audit.Event{Type: audit.EventReserveFailed, SessionID: s.ID, RecordID: slot.ID, PatientID: patientID}.
			WithDetails(audit.Details{Specialty: booking.Specialty, DoctorID: slot.DoctorID, Reason: reason}))
		booking.ContactOnly = true
		if err := e.advance(ctx, s, session.Completed{Booking: booking}); err != nil {
			return e.reply(s, msgApology)
		}
		return e.reply(s, msgSlotTaken)
	}

	reserved := slot
	reserved.Available = false
	booking.Slot = &reserved
	booking.ConfirmationCode = e.confirmationCode()
	e.record(ctx, audit.Event{Type: audit.EventSlotReserved, SessionID: s.ID, RecordID: slot.ID, PatientID: patientID, ConfirmationCode: booking.ConfirmationCode}.
		WithDetails(audit.Details{Specialty: booking.Specialty, DoctorID: slot.DoctorID}))

	var paymentText string
	if e.checkout != nil && e.price > 0 {
		booking.Payment = e.requestPayment(ctx, s.ID, booking)
		if booking.Payment != nil {
			paymentText = fmt.Sprintf(msgPayNow, payments.FormatCLP(int64(booking.Payment.Amount)))
		} else {
			paymentText = msgPayLater
		}
	}

	e.sendNotifications(ctx, s.ID, booking, search)

	var next session.State = session.Completed{Booking: booking}
	outcome := "booked"
	if e.checkout != nil && e.price > 0 {
		next = session.PendingPayment{Booking: booking}
		outcome = "pending_payment"
	}
	e.metrics.ObserveBooking(outcome)
	if err := e.advance(ctx, s, next); err != nil {
		return e.reply(s, msgApology)
	}

	if paymentText == "" {
		paymentText = msgNoPayRequired
	}
	summary := fmt.Sprintf(msgBooked, firstName(patient.Name), describeSlot(reserved, e.loc), booking.ConfirmationCode)
	return e.reply(s, joinParagraphs(summary, paymentText))
}

func (e *Engine) requestPayment(ctx context.Context, sessionID string, b session.Booking) *session.Payment {
	params := payments.CheckoutParams{
		SessionID:        sessionID,
		ConfirmationCode: b.ConfirmationCode,
		AmountCLP:        int64(e.price),
		Description:      "Sobrecupo " + b.Specialty,
	}
	if b.Slot != nil {
		if start, ok := b.Slot.Start(e.loc); ok {
			params.ScheduledFor = &start
			params.Description = fmt.Sprintf("Sobrecupo %s, %s", b.Specialty, slotLabel(*b.Slot, e.loc))
		}
	}
	link, err := e.checkout.CreatePaymentLink(ctx, params)
	if err != nil || link == nil || link.URL == "" {
		e.logger.Error("failed to create payment link", "session_id", sessionID, "error", err)
		e.metrics.ObserveCollaboratorError("payments", "create_link")
		return nil
	}
	e.record(ctx, audit.Event{Type: audit.EventPaymentRequested, SessionID: sessionID, PatientID: b.PatientID, ConfirmationCode: b.ConfirmationCode}.
		WithDetails(audit.Details{Specialty: b.Specialty, AmountCLP: int64(e.price), ProviderID: link.ProviderID}))
	return &session.Payment{Label: msgPayLabel, URL: link.URL, Amount: e.price, ProviderID: link.ProviderID}
}

// resendPayment repeats the checkout link, asking the provider again when the
// first request failed.
func (e *Engine) resendPayment(ctx context.Context, s *session.Session, b session.Booking) *Response {
	if b.Payment == nil && e.checkout != nil {
		b.Payment = e.requestPayment(ctx, s.ID, b)
		if b.Payment != nil {
			s.State = session.PendingPayment{Booking: b}
			e.save(ctx, s)
		}
	}
	if b.Payment == nil {
		return e.reply(s, msgPayLater)
	}
	return e.reply(s, fmt.Sprintf(msgPayPending, b.ConfirmationCode, payments.FormatCLP(int64(b.Payment.Amount))))
}

func (e *Engine) sendNotifications(ctx context.Context, sessionID string, b session.Booking, search session.Search) {
	if e.notifier == nil || b.Slot == nil {
		return
	}
	c := notify.Confirmation{
		Code:         b.ConfirmationCode,
		PatientName:  b.Patient.Name,
		PatientEmail: b.Patient.Email,
		PatientPhone: b.Patient.Phone,
		PatientRUT:   b.Patient.RUT,
		PatientAge:   b.Patient.Age,
		Motivo:       search.Motivo,
		Specialty:    b.Specialty,
		DoctorID:     b.Slot.DoctorID,
		DoctorName:   b.Slot.DoctorName,
		Clinic:       b.Slot.Clinic,
		Address:      b.Slot.Address,
	}
	if start, ok := b.Slot.Start(e.loc); ok {
		c.Start = start
	}
	if b.Payment != nil {
		c.PaymentURL = b.Payment.URL
	}
	out := e.notifier.Dispatch(ctx, c)
	if !out.PatientNotified() {
		e.metrics.ObserveCollaboratorError("notify", "patient_confirmation")
	}
	if !out.DoctorNotified() {
		e.metrics.ObserveCollaboratorError("notify", "doctor_notification")
	}
}

// ConfirmPayment moves a pending-payment session to payment-completed. A
// non-empty providerID must match the one issued with the link.
func (e *Engine) ConfirmPayment(ctx context.Context, sessionID, providerID string) error {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("conversation: confirm payment: %w", err)
	}
	st, ok := s.State.(session.PendingPayment)
	if !ok {
		return fmt.Errorf("%w: stage %s", ErrNotPending, s.Stage())
	}
	b := st.Booking
	if providerID != "" && b.Payment != nil && b.Payment.ProviderID != "" && b.Payment.ProviderID != providerID {
		return fmt.Errorf("%w: provider id mismatch", ErrNotPending)
	}
	if err := e.advance(ctx, s, session.PaymentCompleted{Booking: b}); err != nil {
		return fmt.Errorf("conversation: confirm payment: %w", err)
	}
	e.record(ctx, audit.Event{Type: audit.EventPaymentCompleted, SessionID: s.ID, PatientID: b.PatientID, ConfirmationCode: b.ConfirmationCode}.
		WithDetails(audit.Details{Specialty: b.Specialty, AmountCLP: int64(e.price), ProviderID: providerID}))
	e.metrics.ObserveBooking("paid")
	e.logger.Info("payment confirmed", "session_id", s.ID, "confirmation_code", b.ConfirmationCode)
	return nil
}

func (e *Engine) record(ctx context.Context, ev audit.Event) {
	if err := e.audit.Record(ctx, ev); err != nil {
		e.logger.Warn("failed to record audit event", "session_id", ev.SessionID, "event_type", string(ev.Type), "error", err)
		e.metrics.ObserveCollaboratorError("audit", "record")
	}
}

// confirmationCode is "SC-" plus eight uppercase hex characters.
func (e *Engine) confirmationCode() string {
	id := strings.ReplaceAll(e.newID(), "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return "SC-" + strings.ToUpper(id)
}

func patientFields(search session.Search, p session.Patient, recordID string, contactOnly bool) appointments.PatientFields {
	return appointments.PatientFields{
		Name:        p.Name,
		RUT:         p.RUT,
		Age:         p.Age,
		Phone:       p.Phone,
		Email:       p.Email,
		Motivo:      search.Motivo,
		Specialty:   search.Specialty,
		RecordID:    recordID,
		ContactOnly: contactOnly,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
