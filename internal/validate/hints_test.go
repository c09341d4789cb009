package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExplainLikelyMistake(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		kind        Kind
		contains    string
		notContains string
	}{
		{"short phone is not an email", "12345", KindPhone, "faltan dígitos", "correo"},
		{"email typed as phone", "juan@correo.cl", KindPhone, "correo electrónico", ""},
		{"rut typed as phone", "12.345.678-5", KindPhone, "RUT", ""},
		{"letters in phone", "nueve1234", KindPhone, "solo números", ""},
		{"too many digits", "9123456789012", KindPhone, "demasiados", ""},
		{"phone typed as email", "+56 9 1234 5678", KindEmail, "teléfono", ""},
		{"email without at", "juancorreo.cl", KindEmail, "@", ""},
		{"email without domain", "juan@correo", KindEmail, "dominio", ""},
		{"email with spaces", "juan @correo.cl", KindEmail, "espacios", ""},
		{"email typed as rut", "juan@correo.cl", KindRUT, "correo", ""},
		{"phone typed as rut", "+56912345678", KindRUT, "teléfono", ""},
		{"rut wrong length", "1234", KindRUT, "8 o 9", ""},
		{"rut wrong check", "11.111.111-2", KindRUT, "verificador", ""},
		{"empty", "   ", KindEmail, "No recibí", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExplainLikelyMistake(tt.input, tt.kind)
			assert.NotEmpty(t, got)
			assert.Contains(t, got, tt.contains)
			if tt.notContains != "" {
				assert.NotContains(t, got, tt.notContains)
			}
		})
	}
}

func TestExplainLikelyMistake_UnknownKind(t *testing.T) {
	assert.NotEmpty(t, ExplainLikelyMistake("x", Kind("other")))
}
