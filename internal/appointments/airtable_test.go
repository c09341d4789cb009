package appointments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/sobrecupos-ai/pkg/logging"
)

func newTestHTTPDatastore(t *testing.T, handler http.HandlerFunc) *HTTPDatastore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	ds := NewHTTPDatastore(HTTPConfig{
		BaseURL:       srv.URL,
		APIKey:        "key_test",
		BaseID:        "app123",
		SlotsTable:    "Sobrecupos",
		DoctorsTable:  "Doctors",
		PatientsTable: "Patients",
	}, logging.Discard())
	ds.now = func() time.Time { return day0 }
	return ds
}

func TestHTTPDatastore_ListAvailable(t *testing.T) {
	var calls int32
	ds := newTestHTTPDatastore(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "Bearer key_test", r.Header.Get("Authorization"))
		assert.Equal(t, "/app123/Sobrecupos", r.URL.Path)
		formula := r.URL.Query().Get("filterByFormula")
		assert.Contains(t, formula, "{Especialidad} = 'Neurología'")
		assert.Contains(t, formula, "IS_AFTER({Fecha}")
		assert.Contains(t, r.URL.Query()["fields[]"], "Disponible")

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("offset") == "" {
			_, _ = io.WriteString(w, `{"records":[
				{"id":"rec1","fields":{"Especialidad":"Neurología","Médico":["docA"],"Nombre Médico":["Andrés Soto"],"Fecha":"2025-10-16","Hora":"9:30","Clínica":"Clínica Central","Disponible":"Si"}},
				{"id":"rec2","fields":{"Especialidad":"Neurología","Médico":["docA"],"Fecha":"2025-10-15","Hora":"16:00","Disponible":true}},
				{"id":"rec3","fields":{"Especialidad":"Neurología","Médico":["docA"],"Fecha":"2025-10-15","Hora":"11:00","Disponible":"no"}}
			],"offset":"page2"}`)
			return
		}
		assert.Equal(t, "page2", r.URL.Query().Get("offset"))
		_, _ = io.WriteString(w, `{"records":[
			{"id":"rec4","fields":{"Especialidad":"Neurología","Médico":["docB"],"Fecha":"2025-10-01T00:00:00.000Z","Hora":"10:00","Disponible":"Sí"}},
			{"id":"rec5","fields":{"Especialidad":["Neurología"],"Médico":["docB"],"Fecha":"2025-10-20T00:00:00.000Z","Hora":"10:00:00","Disponible":["Si"]}}
		]}`)
	})

	got, err := ds.ListAvailable(context.Background(), "Neurología")
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"rec2", "rec1", "rec5"}, ids)
	assert.Equal(t, "09:30", got[1].Time)
	assert.Equal(t, "Andrés Soto", got[1].DoctorName)
	assert.Equal(t, "docA", got[1].DoctorID)
	assert.Equal(t, "2025-10-20", got[2].Date)
	assert.Equal(t, "10:00", got[2].Time)
}

func TestHTTPDatastore_ListAvailableAbortsAfterOptimizedTimeout(t *testing.T) {
	release := make(chan struct{})
	ds := newTestHTTPDatastore(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	t.Cleanup(func() { close(release) })
	ds.cfg.OptimizedTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := ds.ListAvailable(context.Background(), "Neurología")
	require.Error(t, err)
	assert.True(t, IsTimeout(err), "got %v", err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHTTPDatastore_ServerError(t *testing.T) {
	ds := newTestHTTPDatastore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":{"type":"INVALID_FILTER_BY_FORMULA"}}`)
	})

	_, err := ds.ListAvailable(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestHTTPDatastore_GetDoctor(t *testing.T) {
	ds := newTestHTTPDatastore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/app123/Doctors/docA":
			_, _ = io.WriteString(w, `{"id":"docA","fields":{"Name":"Andrés Soto","Especialidad":"Neurología","Email":"asoto@x.cl","Atiende":"Adultos","AreasInteres":"Cefaleas, Epilepsia"}}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"NOT_FOUND"}`)
		}
	})

	d, err := ds.GetDoctor(context.Background(), "docA")
	require.NoError(t, err)
	assert.Equal(t, "Andrés Soto", d.Name)
	assert.Equal(t, AgeGroupAdults, d.AgeGroup)
	assert.Equal(t, []string{"Cefaleas", "Epilepsia"}, d.InterestAreas)

	_, err = ds.GetDoctor(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPDatastore_FindDoctors(t *testing.T) {
	ds := newTestHTTPDatastore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/app123/Doctors", r.URL.Path)
		_, _ = io.WriteString(w, `{"records":[
			{"id":"docA","fields":{"Name":"Andrés Soto","AreasInteres":["Cefaleas"]}},
			{"id":"docB","fields":{"Name":"Carolina Fuentes"}}
		]}`)
	})

	got, err := ds.FindDoctors(context.Background(), "Andres")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "docA", got[0].ID)
	assert.Equal(t, []string{"Cefaleas"}, got[0].InterestAreas)
}

func TestHTTPDatastore_CreatePatientAndReserve(t *testing.T) {
	var created, patched map[string]any
	ds := newTestHTTPDatastore(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/app123/Patients":
			assert.NoError(t, json.Unmarshal(body, &created))
			_, _ = io.WriteString(w, `{"id":"patX","fields":{}}`)
		case r.Method == http.MethodGet && r.URL.Path == "/app123/Sobrecupos/rec1":
			_, _ = io.WriteString(w, `{"id":"rec1","fields":{"Disponible":"Si"}}`)
		case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/app123/Sobrecupos/"):
			assert.NoError(t, json.Unmarshal(body, &patched))
			_, _ = io.WriteString(w, `{"id":"rec1","fields":{}}`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	id, err := ds.CreatePatient(context.Background(), PatientFields{
		Name: "Ana Pérez", RUT: "12.345.678-5", Age: 35, Phone: "+56912345678",
		Email: "ana@correo.cl", Motivo: "migraña", Specialty: "Neurología", RecordID: "rec1",
	})
	require.NoError(t, err)
	assert.Equal(t, "patX", id)

	fields := created["fields"].(map[string]any)
	assert.Equal(t, "Ana Pérez", fields["Nombre"])
	assert.Equal(t, []any{"rec1"}, fields["Sobrecupo"])
	assert.Equal(t, true, created["typecast"])

	require.NoError(t, ds.UpdateRecord(context.Background(), "rec1", Reserve(id)))
	pf := patched["fields"].(map[string]any)
	assert.Equal(t, "No", pf["Disponible"])
	assert.Equal(t, []any{"patX"}, pf["Paciente"])
}

func TestHTTPDatastore_ReserveTakenSlot(t *testing.T) {
	ds := newTestHTTPDatastore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			return
		}
		_, _ = io.WriteString(w, `{"id":"rec1","fields":{"Disponible":"No"}}`)
	})
	err := ds.UpdateRecord(context.Background(), "rec1", Reserve("patX"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPDatastore_UpdateWithoutFieldsIsNoop(t *testing.T) {
	ds := newTestHTTPDatastore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	})
	require.NoError(t, ds.UpdateRecord(context.Background(), "rec1", RecordUpdate{}))
}

func TestEscapeFormula(t *testing.T) {
	assert.Equal(t, `AND({Especialidad} = 'O\'Higgins', IS_AFTER({Fecha}, DATEADD(TODAY(), -1, 'days')))`, availabilityFormula("O'Higgins"))
}
