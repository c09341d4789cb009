package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
)

const (
	msgWelcome = "¡Hola! Soy el asistente de Sobrecupos. Cuéntame qué síntomas tienes o con qué especialista o doctor necesitas atenderte, y te busco una hora disponible."

	msgRateLimited = "Estás enviando mensajes muy rápido. Espera un momento y vuelve a intentarlo."
	msgApology     = "Lo siento, tuve un problema procesando tu mensaje. ¿Puedes intentarlo de nuevo en unos segundos?"
	msgDegraded    = "Lo siento, en este momento no puedo consultar la agenda de sobrecupos. Por favor intenta nuevamente en unos minutos."
	msgEmpty       = "No recibí ningún mensaje. Cuéntame qué necesitas y te ayudo a encontrar una hora."

	msgAskName     = "Para reservar necesito algunos datos. ¿Cuál es tu nombre completo?"
	msgAskRUT      = "Gracias, %s. ¿Cuál es tu RUT?"
	msgAskAge      = "Perfecto. ¿Qué edad tienes?"
	msgAskPhone    = "¿A qué número de teléfono te podemos contactar?"
	msgAskEmail    = "Gracias. ¿Cuál es tu correo electrónico? Ahí te enviaremos la confirmación."
	msgChooseHint  = "Responde 1 o 2 para elegir una de las opciones, o cuéntame si prefieres otro día u horario."
	msgConfirmHint = "¿Te sirve esta hora? Responde sí o no."

	msgNameHint  = "Necesito tu nombre y apellido, solo con letras."
	msgAgeHint   = "Necesito tu edad en años, solo el número."
	msgRUTHint   = "Ese RUT no parece válido."
	msgPhoneHint = "Ese teléfono no parece válido."
	msgEmailHint = "Ese correo no parece válido."

	exampleName  = "María José González"
	exampleRUT   = "12.345.678-5"
	examplePhone = "+56 9 1234 5678"
	exampleEmail = "nombre@correo.cl"
	exampleAge   = "35"

	msgNoSlots        = "En este momento no tengo sobrecupos disponibles para %s. ¿Quieres que guardemos tus datos para contactarte apenas se libere una hora? Responde sí o no."
	msgNoDoctorSlots  = "No encontré horas disponibles con %s. ¿Quieres que guardemos tus datos para contactarte apenas tenga una? Responde sí o no."
	msgNoMatchingSlot = "No tengo otras horas que se ajusten a lo que buscas. ¿Quieres que guardemos tus datos para contactarte cuando se libere una? Responde sí o no."
	msgNoAgeSlots     = "Los sobrecupos disponibles son con médicos que no atienden pacientes de tu edad. ¿Quieres que guardemos tus datos para contactarte? Responde sí o no."
	msgContactHint    = "¿Quieres que te contactemos cuando haya una hora disponible? Responde sí o no."
	msgContactYes     = "¡Perfecto! Para contactarte necesito algunos datos. ¿Cuál es tu nombre completo?"
	msgContactNo      = "Entendido. Si necesitas otra hora más adelante, escríbeme cuando quieras."

	msgContactSaved  = "¡Listo, %s! Guardamos tus datos y te contactaremos apenas tengamos un sobrecupo disponible."
	msgSaveFailed    = "Lo siento, no pude guardar tus datos en este momento. Envíame tu correo nuevamente en unos minutos para reintentar."
	msgSlotTaken     = "Lo siento, esa hora se acaba de ocupar. Guardamos tus datos y te contactaremos para ofrecerte otra hora."
	msgBooked        = "¡Listo, %s! Tu sobrecupo quedó reservado:\n%s\nCódigo de confirmación: %s."
	msgPayNow        = "Para confirmar tu hora, completa el pago de %s en el siguiente enlace."
	msgPayLater      = "No pude generar el enlace de pago en este momento. Escríbeme en unos minutos y te lo envío."
	msgPayPending    = "Tu reserva %s está esperando el pago de %s. Puedes completarlo en el enlace."
	msgNoPayRequired = "Te enviamos la confirmación a tu correo."
	msgPayLabel      = "Pagar sobrecupo"
)

func askRUT(name string) string {
	return fmt.Sprintf(msgAskRUT, firstName(name))
}

// withExample appends a worked example once the patient has failed the same
// field three times.
func withExample(hint, example string, attempts int) string {
	if attempts < 3 {
		return hint
	}
	return fmt.Sprintf("%s Por ejemplo: %s", hint, example)
}

func firstName(name string) string {
	if f := strings.Fields(name); len(f) > 0 {
		return f[0]
	}
	return name
}

func doctorLabel(name string) string {
	if name == "" {
		return "el doctor que indicaste"
	}
	return "Dr(a). " + name
}

// describeOptions renders the presentation list.
func describeOptions(options []appointments.Record, loc *time.Location) string {
	var b strings.Builder
	if len(options) == 1 {
		b.WriteString("Tengo esta hora disponible:\n")
	} else {
		b.WriteString("Tengo estas horas disponibles:\n")
	}
	for i, r := range options {
		if len(options) > 1 {
			fmt.Fprintf(&b, "%d) ", i+1)
		}
		b.WriteString(describeSlot(r, loc))
		if i < len(options)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func describeSlot(r appointments.Record, loc *time.Location) string {
	parts := []string{slotLabel(r, loc)}
	if r.DoctorName != "" {
		parts = append(parts, "con Dr(a). "+r.DoctorName)
	}
	if r.Clinic != "" {
		parts = append(parts, "en "+r.Clinic)
	}
	return strings.Join(parts, " ")
}

func joinParagraphs(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	return strings.Join(kept, "\n\n")
}
