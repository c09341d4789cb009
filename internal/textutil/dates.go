package textutil

import (
	"fmt"
	"time"
)

var (
	spanishWeekdays = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	spanishMonths   = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

// SpanishWeekday returns the lower-case Spanish weekday name.
func SpanishWeekday(d time.Weekday) string {
	return spanishWeekdays[d]
}

// SpanishDate renders t as "martes 14 de octubre".
func SpanishDate(t time.Time) string {
	return fmt.Sprintf("%s %d de %s", spanishWeekdays[t.Weekday()], t.Day(), spanishMonths[t.Month()-1])
}

// SpanishDateTime renders t as "martes 14 de octubre, 10:30".
func SpanishDateTime(t time.Time) string {
	return SpanishDate(t) + ", " + t.Format("15:04")
}
