package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/your-username/loki-clickhouse-gateway/internal/detect"
	"github.com/your-username/loki-clickhouse-gateway/internal/limits"
	"github.com/your-username/loki-clickhouse-gateway/internal/loki"
	"github.com/your-username/loki-clickhouse-gateway/internal/patterns"
	"github.com/your-username/loki-clickhouse-gateway/internal/translator"
)

type fakeStore struct {
	rows      []map[string]any
	healthErr error
}

func (f *fakeStore) Query(context.Context, string, map[string]any) ([]map[string]any, error) {
	return f.rows, nil
}

func (f *fakeStore) Health(context.Context) error { return f.healthErr }

func testRouter(store *fakeStore) http.Handler {
	svc := loki.NewService(
		store,
		translator.New("otel_logs"),
		limits.NewMiddleware(limits.DefaultConfig()),
		patterns.NewMiner(patterns.NewExtractor(), nil),
		detect.NewDetector(),
	)

	r := chi.NewRouter()
	r.Get("/ready", Ready(svc))
	r.Get("/health", Health(svc))
	r.Route("/loki/api/v1", func(r chi.Router) {
		r.Get("/query", Query(svc))
		r.Get("/query_range", QueryRange(svc))
		r.Get("/labels", Labels(svc))
		r.Get("/label/{name}/values", LabelValues(svc))
		r.Get("/detected_labels", DetectedLabels(svc))
		r.Get("/index/volume", IndexVolume(svc))
		r.Get("/status/buildinfo", BuildInfo())
	})
	return r
}

func TestQueryRequiresQueryParam(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(&fakeStore{}).ServeHTTP(rec, httptest.NewRequest("GET", "/loki/api/v1/query", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "error" || body.Error != "query parameter is required" {
		t.Errorf("body = %+v", body)
	}
}

func TestDetectedLabelsRequiresRange(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(&fakeStore{}).ServeHTTP(rec,
		httptest.NewRequest("GET", "/loki/api/v1/detected_labels?query=%7B%7D&end=2", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var body errorBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "start parameter is required" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestIndexVolumeRequiresAllParams(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(&fakeStore{}).ServeHTTP(rec,
		httptest.NewRequest("GET", "/loki/api/v1/index/volume?query=%7B%7D&start=1", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	var body errorBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error != "end parameter is required" {
		t.Errorf("error = %q", body.Error)
	}
}

func TestLabelValuesRouting(t *testing.T) {
	store := &fakeStore{rows: []map[string]any{{"value": "checkout"}}}
	rec := httptest.NewRecorder()
	testRouter(store).ServeHTTP(rec,
		httptest.NewRequest("GET", "/loki/api/v1/label/service_name/values", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp loki.LabelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "success" || len(resp.Data) != 1 || resp.Data[0] != "checkout" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHealthProbeEndToEnd(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(&fakeStore{}).ServeHTTP(rec,
		httptest.NewRequest("GET", "/loki/api/v1/query?query=vector(1)%2Bvector(1)", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			ResultType string `json:"resultType"`
		} `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != "success" || resp.Data.ResultType != "vector" {
		t.Errorf("response = %+v", resp)
	}
}

func TestReadyAndHealth(t *testing.T) {
	router := testRouter(&fakeStore{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/ready", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ready" {
		t.Errorf("ready: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health: %d", rec.Code)
	}
}

func TestBuildInfoShape(t *testing.T) {
	rec := httptest.NewRecorder()
	testRouter(&fakeStore{}).ServeHTTP(rec,
		httptest.NewRequest("GET", "/loki/api/v1/status/buildinfo", nil))

	var info map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info["version"] != "2.9.0" {
		t.Errorf("version = %q", info["version"])
	}
}
