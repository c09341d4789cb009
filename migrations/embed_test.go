package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups[strings.TrimSuffix(n, ".up.sql")] = true
		case strings.HasSuffix(n, ".down.sql"):
			downs[strings.TrimSuffix(n, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %s", n)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestAuditTableMatchesRecorderColumns(t *testing.T) {
	raw, err := fs.ReadFile(FS, "000003_booking_audit_events.up.sql")
	require.NoError(t, err)
	for _, col := range []string{"event_type", "session_id", "record_id", "patient_id", "confirmation_code", "details", "created_at"} {
		assert.Contains(t, string(raw), col)
	}
}
