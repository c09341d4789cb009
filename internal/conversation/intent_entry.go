package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
	"github.com/wolfman30/sobrecupos-ai/internal/intent"
	"github.com/wolfman30/sobrecupos-ai/internal/selector"
	"github.com/wolfman30/sobrecupos-ai/internal/session"
)

// startFromIntent handles a message that has no active session behind it.
func (e *Engine) startFromIntent(ctx context.Context, msg Inbound) *Response {
	s := session.New(msg.SessionID, e.now())

	specialties, err := e.datastore.ListSpecialties(ctx)
	if err != nil {
		e.logger.Warn("failed to list specialties", "session_id", s.ID, "error", err)
		e.metrics.ObserveCollaboratorError("datastore", "list_specialties")
		specialties = nil
	}

	in, err := e.classifier.Classify(ctx, intent.Request{Text: msg.Text, AvailableSpecialties: specialties})
	if err != nil {
		e.logger.Warn("classifier failed", "session_id", s.ID, "error", err)
		in = intent.Intent{Urgency: intent.UrgencyNormal, Source: intent.SourceRules}
	}
	e.metrics.ObserveIntent(string(in.Source), intentKind(in))

	switch {
	case in.IsGreeting:
		e.save(ctx, s)
		return e.reply(s, msgWelcome)
	case in.NamedDoctor != "":
		return e.searchDoctor(ctx, s, msg.Text, in)
	case in.Specialty != "":
		return e.searchSpecialty(ctx, s, msg.Text, in, specialties)
	case in.IsMedical:
		in.Specialty = e.generalist
		return e.searchSpecialty(ctx, s, msg.Text, in, specialties)
	}
	return e.closed(s.ID, e.completion.Redirect(ctx, msg.Text))
}

func intentKind(in intent.Intent) string {
	switch {
	case in.IsGreeting:
		return "greeting"
	case in.NamedDoctor != "":
		return "doctor"
	case in.Specialty != "":
		return "specialty"
	case in.IsMedical:
		return "medical"
	}
	return "off_topic"
}

func searchFromIntent(text string, in intent.Intent) session.Search {
	return session.Search{
		Specialty: in.Specialty,
		Motivo:    text,
		SubArea:   in.SubArea,
		Urgency:   string(in.Urgency),
	}
}

func (e *Engine) searchDoctor(ctx context.Context, s *session.Session, text string, in intent.Intent) *Response {
	doctors, err := e.datastore.FindDoctors(ctx, in.NamedDoctor)
	if err != nil {
		e.logger.Warn("doctor search failed", "session_id", s.ID, "error", err)
		e.metrics.ObserveCollaboratorError("datastore", "find_doctors")
		return e.closed(s.ID, msgDegraded)
	}
	if len(doctors) == 0 {
		if in.Specialty != "" {
			return e.searchSpecialty(ctx, s, text, in, nil)
		}
		return e.offerContact(ctx, s, searchFromIntent(text, in), fmt.Sprintf(msgNoDoctorSlots, doctorLabel(in.NamedDoctor)))
	}

	search := searchFromIntent(text, in)
	for _, d := range doctors {
		records, err := e.datastore.ListByDoctor(ctx, d.ID)
		if err != nil {
			e.logger.Warn("doctor availability lookup failed", "session_id", s.ID, "error", err)
			e.metrics.ObserveCollaboratorError("datastore", "list_by_doctor")
			return e.closed(s.ID, msgDegraded)
		}
		if len(records) == 0 {
			continue
		}
		search.DoctorID = d.ID
		search.DoctorName = d.Name
		search.Specialty = d.Specialty
		search.Records = withDoctorName(records, d)
		break
	}
	if len(search.Records) == 0 {
		search.DoctorName = doctors[0].Name
		search.Specialty = doctors[0].Specialty
		return e.offerContact(ctx, s, search, fmt.Sprintf(msgNoDoctorSlots, doctorLabel(doctors[0].Name)))
	}
	return e.presentPreview(ctx, s, search, "")
}

func (e *Engine) searchSpecialty(ctx context.Context, s *session.Session, text string, in intent.Intent, available []string) *Response {
	search := searchFromIntent(text, in)
	opener := e.completion.Empathize(ctx, text, in.Urgency.IsUrgent())

	if len(available) > 0 && !containsSpecialty(available, search.Specialty) {
		if search.Specialty != e.generalist && containsSpecialty(available, e.generalist) {
			search.AlternativeSpecialty = e.generalist
		} else {
			return e.offerContact(ctx, s, search, joinParagraphs(opener, fmt.Sprintf(msgNoSlots, search.Specialty)))
		}
	}

	lookup := search.Specialty
	if search.AlternativeSpecialty != "" {
		lookup = search.AlternativeSpecialty
	}
	records, err := e.datastore.ListAvailable(ctx, lookup)
	if err != nil {
		e.logger.Warn("availability lookup failed", "session_id", s.ID, "specialty", lookup, "error", err)
		e.metrics.ObserveCollaboratorError("datastore", "list_available")
		return e.closed(s.ID, joinParagraphs(opener, msgDegraded))
	}
	if len(records) == 0 {
		return e.offerContact(ctx, s, search, joinParagraphs(opener, fmt.Sprintf(msgNoSlots, search.Specialty)))
	}
	search.Records = e.withDoctorNames(ctx, records)
	return e.presentPreview(ctx, s, search, opener)
}

// presentPreview shows what the search found and starts the form.
func (e *Engine) presentPreview(ctx context.Context, s *session.Session, search session.Search, opener string) *Response {
	preview := selector.SelectOptions(search.Records, e.hint(search))
	intro := ""
	if search.AlternativeSpecialty != "" {
		intro = fmt.Sprintf("No tengo sobrecupos de %s en este momento, pero un médico de %s puede evaluarte.", search.Specialty, search.AlternativeSpecialty)
	}
	if err := e.advance(ctx, s, session.AwaitingName{Search: search}); err != nil {
		return e.closed(s.ID, msgApology)
	}
	text := joinParagraphs(opener, intro, describeOptions(preview, e.loc), msgAskName)
	return e.replyWithOptions(s, text, preview)
}

func (e *Engine) offerContact(ctx context.Context, s *session.Session, search session.Search, text string) *Response {
	if err := e.advance(ctx, s, session.AskingContact{Search: search}); err != nil {
		return e.closed(s.ID, msgApology)
	}
	return e.reply(s, text)
}

func (e *Engine) hint(search session.Search) selector.Hint {
	return selector.Hint{Urgent: intent.Urgency(search.Urgency).IsUrgent(), Today: e.today()}
}

// withDoctorNames copies records with DoctorName filled from the datastore.
func (e *Engine) withDoctorNames(ctx context.Context, records []appointments.Record) []appointments.Record {
	doctors := appointments.DoctorsFor(ctx, e.datastore, records)
	out := make([]appointments.Record, len(records))
	for i, r := range records {
		if d, ok := doctors[r.DoctorID]; ok && r.DoctorName == "" {
			r.DoctorName = d.Name
		}
		out[i] = r
	}
	return out
}

func withDoctorName(records []appointments.Record, d appointments.DoctorInfo) []appointments.Record {
	out := make([]appointments.Record, len(records))
	for i, r := range records {
		if r.DoctorName == "" {
			r.DoctorName = d.Name
		}
		out[i] = r
	}
	return out
}

func containsSpecialty(list []string, name string) bool {
	for _, s := range list {
		if appointments.SameSpecialty(s, name) {
			return true
		}
	}
	return false
}
