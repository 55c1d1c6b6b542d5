package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scylladb/argus-sub001/internal/config"
	"github.com/scylladb/argus-sub001/internal/model"
	"github.com/scylladb/argus-sub001/internal/results"
	"github.com/scylladb/argus-sub001/internal/store"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	cfg = &config.Config{
		Server: config.ServerConfig{Port: 8080, SubmitRatePerSec: 1000, SubmitBurst: 1000},
		Charts: config.ChartsConfig{Workers: 2},
	}

	srv := httptest.NewServer(newRouter(results.NewService(st)))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func apiCreateRun(t *testing.T, srv *httptest.Server, subjectID uuid.UUID) uuid.UUID {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/v1/runs", model.Run{
		SubjectID: subjectID,
		BuildID:   "jenkins/100",
		StartedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var run model.Run
	decodeBody(t, resp, &run)
	require.NotEqual(t, uuid.Nil, run.ID)
	return run.ID
}

func apiPayload(value float64) model.ResultsPayload {
	limit := 100.0
	lower := false
	return model.ResultsPayload{
		Meta: model.TableSpec{
			Name: "Latency Results",
			ColumnsMeta: []model.ColumnMeta{
				{Name: "p99", Unit: "ms", Type: model.TypeFloat, HigherIsBetter: &lower},
			},
			ValidationRules: map[string]model.ValidationRule{
				"p99": {FixedLimit: &limit},
			},
		},
		SUTTimestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).Unix(),
		Results: []model.Cell{
			{Column: "p99", Row: "mixed", Value: model.FloatValue(value)},
		},
	}
}

func TestAPIHealth(t *testing.T) {
	srv := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestAPISubmitAndRead(t *testing.T) {
	srv := newTestAPI(t)
	subjectID := uuid.New()
	runID := apiCreateRun(t, srv, subjectID)

	resp := postJSON(t, srv.URL+"/api/v1/runs/"+runID.String()+"/results", apiPayload(42.5))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/v1/subjects/" + subjectID.String() + "/results?run_id=" + runID.String())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Results []results.TableRunResults `json:"results"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "Latency Results", body.Results[0].Meta.Name)
	cell := body.Results[0].Cells["mixed"]["p99"]
	require.NotNil(t, cell.Value)
	assert.Equal(t, 42.5, *cell.Value)
	assert.Equal(t, model.StatusPass, cell.Status)
}

func TestAPISubmitValidationFailure(t *testing.T) {
	srv := newTestAPI(t)
	runID := apiCreateRun(t, srv, uuid.New())

	resp := postJSON(t, srv.URL+"/api/v1/runs/"+runID.String()+"/results", apiPayload(100.01))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Contains(t, body["error"], "validation failure")
}

func TestAPISubmitUnknownRun(t *testing.T) {
	srv := newTestAPI(t)

	resp := postJSON(t, srv.URL+"/api/v1/runs/"+uuid.NewString()+"/results", apiPayload(1))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAPISubmitBadDefinition(t *testing.T) {
	srv := newTestAPI(t)
	runID := apiCreateRun(t, srv, uuid.New())

	payload := apiPayload(1)
	payload.Results[0].Column = "undefined"
	resp := postJSON(t, srv.URL+"/api/v1/runs/"+runID.String()+"/results", payload)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAPICharts(t *testing.T) {
	srv := newTestAPI(t)
	subjectID := uuid.New()
	runID := apiCreateRun(t, srv, subjectID)

	resp := postJSON(t, srv.URL+"/api/v1/runs/"+runID.String()+"/results", apiPayload(42.5))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/v1/subjects/" + subjectID.String() + "/charts")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Graphs []model.Chart    `json:"graphs"`
		Ticks  model.GraphTicks `json:"ticks"`
	}
	decodeBody(t, resp, &body)
	require.Len(t, body.Graphs, 1)
	assert.Equal(t, "2024-03-01", body.Ticks.Min)
	assert.Equal(t, "2024-03-01", body.Ticks.Max)
}

func TestAPIChartsBadDate(t *testing.T) {
	srv := newTestAPI(t)

	resp, err := http.Get(srv.URL + "/api/v1/subjects/" + uuid.NewString() + "/charts?start_date=03-01-2024")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAPIViews(t *testing.T) {
	srv := newTestAPI(t)
	subjectID := uuid.New()
	base := srv.URL + "/api/v1/subjects/" + subjectID.String() + "/views"

	resp := postJSON(t, base, map[string]any{
		"name":   "nightly dashboard",
		"graphs": []byte(`["Latency Results - p99"]`),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created map[string]string
	decodeBody(t, resp, &created)
	viewID := created["view_id"]
	require.NotEmpty(t, viewID)

	resp, err := http.Get(base)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed struct {
		Views []model.GraphView `json:"views"`
	}
	decodeBody(t, resp, &listed)
	require.Len(t, listed.Views, 1)
	assert.Equal(t, "nightly dashboard", listed.Views[0].Name)

	req, err := http.NewRequest(http.MethodDelete, base+"/"+viewID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAPIViewMissingName(t *testing.T) {
	srv := newTestAPI(t)

	resp := postJSON(t, srv.URL+"/api/v1/subjects/"+uuid.NewString()+"/views", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAPISubmitThrottled(t *testing.T) {
	srv := newTestAPI(t)
	cfg.Server.SubmitRatePerSec = 1
	cfg.Server.SubmitBurst = 1

	// The limiter is bound at router build time, so rebuild.
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "throttle.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	srv = httptest.NewServer(newRouter(results.NewService(st)))
	t.Cleanup(srv.Close)

	url := srv.URL + "/api/v1/runs/" + uuid.NewString() + "/results"
	resp := postJSON(t, url, apiPayload(1))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, url, apiPayload(1))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	resp.Body.Close()
}
