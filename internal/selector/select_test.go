package selector

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/sobrecupos-ai/internal/appointments"
)

// 2025-10-14 is a Tuesday.
var today = time.Date(2025, 10, 14, 9, 0, 0, 0, time.UTC)

func rec(id, date, clock string) appointments.Record {
	return appointments.Record{ID: id, Specialty: "Oftalmología", DoctorID: "doc-" + id, Date: date, Time: clock, Available: true}
}

func TestSelectOptions(t *testing.T) {
	tests := []struct {
		name   string
		pool   []appointments.Record
		urgent bool
		want   []string
	}{
		{name: "empty", pool: nil, want: []string{}},
		{name: "single", pool: []appointments.Record{rec("a", "2025-10-15", "10:00")}, want: []string{"a"}},
		{
			name: "morning and afternoon on earliest date",
			pool: []appointments.Record{
				rec("late", "2025-10-15", "17:30"),
				rec("early", "2025-10-15", "08:30"),
				rec("mid", "2025-10-15", "11:00"),
				rec("next", "2025-10-16", "09:00"),
				rec("pm", "2025-10-15", "15:00"),
			},
			want: []string{"early", "pm"},
		},
		{
			name: "afternoon only on two different dates",
			pool: []appointments.Record{
				rec("b", "2025-10-17", "16:00"),
				rec("a", "2025-10-15", "15:00"),
			},
			want: []string{"a", "b"},
		},
		{
			name: "single day-part pairs with next different date",
			pool: []appointments.Record{
				rec("a1", "2025-10-15", "09:00"),
				rec("a2", "2025-10-15", "10:00"),
				rec("c", "2025-10-20", "08:00"),
				rec("b", "2025-10-16", "12:00"),
			},
			want: []string{"a1", "b"},
		},
		{
			name: "only one date and one day-part",
			pool: []appointments.Record{
				rec("a1", "2025-10-15", "09:00"),
				rec("a2", "2025-10-15", "10:00"),
			},
			want: []string{"a1"},
		},
		{
			name:   "urgent with several same-day slots offers earliest and latest",
			urgent: true,
			pool: []appointments.Record{
				rec("t2", "2025-10-14", "12:00"),
				rec("t1", "2025-10-14", "10:00"),
				rec("t3", "2025-10-14", "18:00"),
				rec("n", "2025-10-15", "08:00"),
			},
			want: []string{"t1", "t3"},
		},
		{
			name:   "urgent with one same-day slot",
			urgent: true,
			pool: []appointments.Record{
				rec("n", "2025-10-15", "08:00"),
				rec("t", "2025-10-14", "16:00"),
			},
			want: []string{"t"},
		},
		{
			name:   "urgent without same-day slots uses the standard path",
			urgent: true,
			pool: []appointments.Record{
				rec("m", "2025-10-15", "09:00"),
				rec("a", "2025-10-15", "15:00"),
			},
			want: []string{"m", "a"},
		},
		{
			name: "unpadded times sort correctly",
			pool: []appointments.Record{
				rec("ten", "2025-10-15", "10:00"),
				rec("nine", "2025-10-15", "9:00"),
				rec("pm", "2025-10-15", "14:00"),
			},
			want: []string{"nine", "pm"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectOptions(tt.pool, Hint{Urgent: tt.urgent, Today: today})
			assert.Equal(t, tt.want, IDs(got))
		})
	}
}

func TestSelectOptions_DoesNotReorderInput(t *testing.T) {
	pool := []appointments.Record{rec("b", "2025-10-16", "10:00"), rec("a", "2025-10-15", "10:00")}
	SelectOptions(pool, Hint{Today: today})
	assert.Equal(t, "b", pool[0].ID)
}

func randomPool(rng *rand.Rand, n int) []appointments.Record {
	pool := make([]appointments.Record, 0, n)
	for i := 0; i < n; i++ {
		day := today.AddDate(0, 0, rng.Intn(5)).Format(appointments.DateLayout)
		clock := fmt.Sprintf("%02d:%02d", 8+rng.Intn(12), 15*rng.Intn(4))
		pool = append(pool, rec(fmt.Sprintf("r%d", i), day, clock))
	}
	return pool
}

func TestSelectOptions_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		pool := randomPool(rng, rng.Intn(12))
		urgent := rng.Intn(2) == 0

		got := SelectOptions(pool, Hint{Urgent: urgent, Today: today})
		require.LessOrEqual(t, len(got), MaxOptions)
		if len(pool) > 0 {
			require.NotEmpty(t, got)
		}

		todayStr := today.Format(appointments.DateLayout)
		hasToday := false
		for _, r := range pool {
			if r.Date == todayStr {
				hasToday = true
			}
		}
		if urgent && hasToday {
			for _, r := range got {
				require.Equal(t, todayStr, r.Date, "urgent selection left today")
			}
			continue
		}

		if len(pool) == 0 {
			continue
		}
		first := Sorted(pool)[0]
		var morning, afternoon bool
		for _, r := range pool {
			if r.Date != first.Date {
				continue
			}
			if IsMorning(r) {
				morning = true
			} else {
				afternoon = true
			}
		}
		if morning && afternoon {
			require.Len(t, got, 2)
			assert.True(t, IsMorning(got[0]))
			assert.False(t, IsMorning(got[1]))
			assert.Equal(t, first.Date, got[0].Date)
			assert.Equal(t, first.Date, got[1].Date)
		}
	}
}
