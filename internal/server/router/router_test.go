package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/compost/internal/domain/models"
	"github.com/mamadbah2/compost/internal/repository/memory"
	"github.com/mamadbah2/compost/internal/server/handlers"
	"github.com/mamadbah2/compost/internal/service/belt"
	"github.com/mamadbah2/compost/internal/service/intake"
	"github.com/mamadbah2/compost/internal/service/integrity"
	"github.com/mamadbah2/compost/internal/service/restoration"
)

func newTestEngine(t *testing.T) (*gin.Engine, *memory.Registry) {
	t.Helper()
	reg := memory.NewRegistry()
	intakeSvc := intake.NewService(reg, 300, nil)
	beltSvc := belt.NewService(reg, 2, nil)
	engine := New(Handlers{
		Facilities:   handlers.NewFacilityHandler(intakeSvc, beltSvc, nil),
		Batches:      handlers.NewBatchHandler(intakeSvc, beltSvc, integrity.NewEngine(reg, nil, nil), nil),
		Restorations: handlers.NewRestorationHandler(restoration.NewService(reg, nil), nil),
	}, nil)
	return engine, reg
}

func do(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func createBatch(t *testing.T, engine *gin.Engine, code string) models.Batch {
	t.Helper()
	rec := do(t, engine, http.MethodPut, "/facilities/SP-01", gin.H{"name": "Pinheiros", "latitude": -23.56, "longitude": -46.69})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, engine, http.MethodPost, "/batches", gin.H{
		"code": code, "facility_code": "SP-01", "initial_mass": 100, "creator_id": "op-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.Batch](t, rec)
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)

	rec := do(t, engine, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestBatchLifecycleOverHTTP(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)
	b := createBatch(t, engine, "A-001")

	rec := do(t, engine, http.MethodPost, "/batches/"+b.ID+"/contributions", gin.H{
		"mass": 3.5, "contributor_id": "maria", "latitude": -23.56, "longitude": -46.69,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, engine, http.MethodPost, "/batches/"+b.ID+"/advance", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	advanced := decode[models.Batch](t, rec)
	assert.Equal(t, 2, advanced.Station)
	assert.Equal(t, 96.34, advanced.CurrentMass)

	rec = do(t, engine, http.MethodPost, "/batches/"+b.ID+"/certify", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cert := decode[models.Certification](t, rec)

	rec = do(t, engine, http.MethodGet, "/batches/"+b.ID+"/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[models.Verification](t, rec)
	assert.True(t, v.Match)
	assert.Equal(t, cert.Fingerprint, v.Stored)

	rec = do(t, engine, http.MethodPost, "/batches/"+b.ID+"/finalize", gin.H{"final_mass": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, engine, http.MethodPost, "/batches/"+b.ID+"/finalize", gin.H{"final_mass": 80})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, engine, http.MethodPost, "/batches/"+b.ID+"/advance", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, engine, http.MethodGet, "/batches/"+b.ID+"/mass", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[models.MassSummary](t, rec)
	assert.Equal(t, 1, summary.Contributions)

	rec = do(t, engine, http.MethodGet, "/batches/"+b.ID+"/guidance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 78.0, decode[models.Guidance](t, rec).ExpectedFinalMass)

	rec = do(t, engine, http.MethodDelete, "/batches/"+b.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, engine, http.MethodGet, "/batches/"+b.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)

	rec := do(t, engine, http.MethodPost, "/batches", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRestorationEnvelopes(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)
	createBatch(t, engine, "A-001")

	rec := do(t, engine, http.MethodPost, "/restorations", gin.H{
		"facility_code": "SP-01",
		"mapping":       gin.H{"A-001": 7, "A-404": 2},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[models.RestorationResponse](t, rec)
	assert.True(t, resp.Success)
	require.Len(t, resp.Restored, 1)
	assert.Equal(t, 79.95, resp.Restored[0].Mass)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "batch not found", resp.Errors[0].Error)

	rec = do(t, engine, http.MethodPost, "/restorations", gin.H{"facility_code": "SP-01"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	failure := decode[models.FailureEnvelope](t, rec)
	assert.False(t, failure.Success)
	assert.NotEmpty(t, failure.Error)

	rec = do(t, engine, http.MethodPost, "/restorations", `{"mapping": [1,2]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, decode[models.FailureEnvelope](t, rec).Success)
}

func TestFacilityAdvanceOverHTTP(t *testing.T) {
	t.Parallel()
	engine, reg := newTestEngine(t)
	b := createBatch(t, engine, "A-001")

	rec := do(t, engine, http.MethodPost, "/facilities/SP-01/advance", gin.H{"cycle": "2026-W11"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode[models.WeeklyAdvanceReport](t, rec)
	assert.Equal(t, 1, report.Advanced)

	rec = do(t, engine, http.MethodPost, "/facilities/SP-01/advance", gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := reg.GetBatch(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Station)
}

func TestUnknownFacilityIsNotFound(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)

	rec := do(t, engine, http.MethodGet, "/facilities/XX", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"not_found"`)
}
