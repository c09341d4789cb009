package validate

import (
	"strings"
)

// Kind identifies which identity field a stage expects.
type Kind string

const (
	KindPhone Kind = "phone"
	KindEmail Kind = "email"
	KindRUT   Kind = "rut"
)

// ExplainLikelyMistake returns a short Spanish hint for input that failed
// validation as kind. It first checks whether the input is a valid value of a
// different kind, then falls back to shape-specific advice. It never panics and
// always returns a non-empty hint.
func ExplainLikelyMistake(input string, kind Kind) string {
	in := strings.TrimSpace(input)
	if in == "" {
		return "No recibí ningún dato."
	}

	switch kind {
	case KindPhone:
		if IsValidEmail(in) {
			return "Parece que escribiste un correo electrónico; necesito tu número de teléfono."
		}
		if looksLikeRUT(in) {
			return "Parece que escribiste un RUT; necesito tu número de teléfono."
		}
		d := PhoneDigits(in)
		if !allDigits(d) {
			return "El teléfono debe contener solo números."
		}
		if len(d) < 7 {
			return "Al número le faltan dígitos."
		}
		if len(d) > 11 {
			return "El número tiene demasiados dígitos."
		}
		return "El formato del número no es válido."

	case KindEmail:
		if IsValidPhone(in) {
			return "Parece que escribiste un número de teléfono; necesito tu correo electrónico."
		}
		if looksLikeRUT(in) {
			return "Parece que escribiste un RUT; necesito tu correo electrónico."
		}
		if strings.ContainsAny(in, " \t") {
			return "El correo no debe tener espacios."
		}
		at := strings.Count(in, "@")
		if at == 0 {
			return "Al correo le falta el símbolo @."
		}
		if at > 1 {
			return "El correo tiene más de un símbolo @."
		}
		domain := in[strings.Index(in, "@")+1:]
		if !strings.Contains(domain, ".") {
			return "Al correo le falta el dominio (por ejemplo .cl o .com)."
		}
		return "El formato del correo no es válido."

	case KindRUT:
		if IsValidEmail(in) {
			return "Parece que escribiste un correo electrónico; necesito tu RUT."
		}
		clean := CleanRUT(in)
		if strings.HasPrefix(strings.TrimSpace(in), "+") || (len(clean) == 9 && clean[0] == '9' && IsValidPhone(in) && !IsValidRUT(in)) {
			return "Parece que escribiste un número de teléfono; necesito tu RUT."
		}
		if len(clean) < 8 || len(clean) > 9 {
			return "El RUT debe tener 8 o 9 caracteres incluyendo el dígito verificador."
		}
		if !allDigits(clean[:len(clean)-1]) {
			return "El RUT solo puede tener números y el dígito verificador (0-9 o K)."
		}
		return "El dígito verificador no coincide con el RUT."
	}
	return "El dato ingresado no es válido."
}

func looksLikeRUT(s string) bool {
	if !IsValidRUT(s) {
		return false
	}
	// A bare 9-digit mobile can also pass the checksum by chance; require a
	// separator or a K so "912345678" is not reported as a RUT.
	return strings.ContainsAny(s, ".-kK")
}
