// Package api exposes the Loki-compatible HTTP surface. Handlers decode query
// parameters, delegate to the service and write its envelopes back as JSON;
// they hold no query logic of their own.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/your-username/loki-clickhouse-gateway/internal/loki"
)

// Version is stamped at build time.
var Version = "dev"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// requireParams writes a 400 error naming the first missing parameter and
// reports whether the request may proceed.
func requireParams(w http.ResponseWriter, r *http.Request, names ...string) bool {
	for _, name := range names {
		if r.URL.Query().Get(name) == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{
				Status: "error",
				Error:  name + " parameter is required",
			})
			return false
		}
	}
	return true
}

func intParam(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Query handles instant queries.
func Query(svc *loki.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireParams(w, r, "query") {
			return
		}
		q := r.URL.Query()
		resp := svc.Query(r.Context(), q.Get("query"), q.Get("time"), intParam(r, "limit", 0), q.Get("direction"))
		writeJSON(w, http.StatusOK, resp)
	}
}

// QueryRange handles range queries, both log selections and metric
// aggregations.
func QueryRange(svc *loki.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireParams(w, r, "query") {
			return
		}
		q := r.URL.Query()
		resp := svc.QueryRange(r.Context(), q.Get("query"), q.Get("start"), q.Get("end"),
			intParam(r, "limit", 0), q.Get("direction"), q.Get("step"))
		writeJSON(w, http.StatusOK, resp)
	}
}

// Labels lists known label names.
func Labels(svc *loki.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Labels(r.Context()))
	}
}

// LabelValues lists the values of the label named in the path.
func LabelValues(svc *loki.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.LabelValues(r.Context(), chi.URLParam(r, "name")))
	}
}

// Series lists distinct label sets matching the given selectors.
func Series(svc *loki.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		match := q["match[]"]
		if len(match) == 0 {
			match = q["match"]
		}
		writeJSON(w, http.StatusOK, svc.Series(r.Context(), match, q.Get("start"), q.Get("end")))
	}
}

// DetectedLabels reports pseudo-labels present in range.
func DetectedLabels(svc *loki.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireParams(w, r, "start", "end") {
			return
		}
		q := r.URL.Query()
		writeJSON(w, http.StatusOK, svc.DetectedLabels(r.Context(), q.Get("query"), q.Get("start"), q.Get("end")))
	}
}

// DetectedFields reports structured fields discovered inside log bodies.
func DetectedFields(svc *loki.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireParams(w, r, "start", "end") {
			return
		}
		q := r.URL.Query()
		writeJSON(w, http.StatusOK, svc.DetectedFields(r.Context(), q.Get("query"), q.Get("start"), q.Get("end")))
	}
}

// DetectedFieldValues lists the observed values of one detected field.
func DetectedFieldValues(svc *loki.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireParams(w, r, "start", "end") {
			return
		}
		q := r.URL.Query()
		writeJSON(w, http.StatusOK, svc.DetectedFieldValues(r.Context(), chi.URLParam(r, "name"),
			q.Get("query"), q.Get("start"), q.Get("end")))
	}
}

// IndexStats reports stream, entry and byte totals.
func IndexStats(svc *loki.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		writeJSON(w, http.StatusOK, svc.IndexStats(r.Context(), q.Get("query"), q.Get("start"), q.Get("end")))
	}
}

// IndexVolume reports per-group log volume as an instant vector.
func IndexVolume(svc *loki.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireParams(w, r, "query", "start", "end") {
			return
		}
		q := r.URL.Query()
		resp := svc.IndexVolume(r.Context(), q.Get("query"), q.Get("start"), q.Get("end"),
			intParam(r, "limit", 100), q.Get("targetLabels"), q.Get("aggregateBy"))
		writeJSON(w, http.StatusOK, resp)
	}
}

// IndexVolumeRange reports time-bucketed per-group log volume as a matrix.
func IndexVolumeRange(svc *loki.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireParams(w, r, "query", "start", "end") {
			return
		}
		q := r.URL.Query()
		resp := svc.IndexVolumeRange(r.Context(), q.Get("query"), q.Get("start"), q.Get("end"),
			q.Get("step"), q.Get("targetLabels"), q.Get("aggregateBy"))
		writeJSON(w, http.StatusOK, resp)
	}
}

// Patterns mines log bodies into templated patterns.
func Patterns(svc *loki.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireParams(w, r, "query", "start", "end") {
			return
		}
		q := r.URL.Query()
		writeJSON(w, http.StatusOK, svc.Patterns(r.Context(), q.Get("query"), q.Get("start"), q.Get("end"), q.Get("step")))
	}
}

// BuildInfo mimics Loki's build metadata so datasource probes succeed.
func BuildInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":   "2.9.0",
			"revision":  Version,
			"branch":    "main",
			"buildDate": time.Now().UTC().Format(time.RFC3339),
			"buildUser": "loki-clickhouse-gateway",
			"goVersion": "go1.21.0",
		})
	}
}

// Ready answers Loki's readiness probe with plain text.
func Ready(svc *loki.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := svc.Ready(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready"))
			return
		}
		w.Write([]byte("ready"))
	}
}

// Health reports service and store health as JSON.
func Health(svc *loki.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := svc.Ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":     "unhealthy",
				"clickhouse": false,
				"error":      err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "healthy",
			"clickhouse": true,
		})
	}
}

// Root describes the service and its endpoints.
func Root() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Loki ClickHouse Gateway",
			"version": Version,
			"endpoints": map[string]string{
				"Loki API": "/loki/api/v1/*",
				"Health":   "/health",
				"Ready":    "/ready",
			},
		})
	}
}
