// Package results reshapes ClickHouse rows into the three Loki result forms:
// streams, instant vectors and range matrices. All three group rows by the
// canonical serialization of their label set.
package results

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/your-username/loki-clickhouse-gateway/internal/limits"
	"github.com/your-username/loki-clickhouse-gateway/internal/models"
	"github.com/your-username/loki-clickhouse-gateway/internal/timefmt"
)

// Stream is one label set with its ordered log entries. Each value is a
// [nanosecond timestamp string, body] pair.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][2]string       `json:"values"`
}

// VectorSample is one instant sample: [unix seconds, count string].
type VectorSample struct {
	Metric map[string]string `json:"metric"`
	Value  [2]any            `json:"value"`
}

// MatrixSeries is one group's time-bucketed samples.
type MatrixSeries struct {
	Metric map[string]string `json:"metric"`
	Values [][2]any          `json:"values"`
}

// severityClasses is the fixed, ordered severity classification. The first
// class whose fragment appears in the lowercased severity text wins.
var severityClasses = []struct {
	level     string
	fragments []string
}{
	{"critical", []string{"fatal", "critical", "emerg", "alert", "crit"}},
	{"error", []string{"error", "err"}},
	{"warning", []string{"warn"}},
	{"info", []string{"info", "information", "informational", "notice"}},
	{"debug", []string{"debug", "dbug"}},
	{"trace", []string{"trace"}},
}

// MapSeverityToLevel classifies a severity text into one of Grafana's level
// values. Total: every input maps to exactly one of critical, error, warning,
// info, debug, trace or unknown.
func MapSeverityToLevel(severity string) string {
	s := strings.ToLower(severity)
	for _, class := range severityClasses {
		for _, fragment := range class.fragments {
			if strings.Contains(s, fragment) {
				return class.level
			}
		}
	}
	return "unknown"
}

// LabelSet builds the label set identifying one record's stream: the fixed
// labels unioned with both attribute maps. The synthetic service.name
// attribute is suppressed since it is already exposed as service_name. When
// the maps share a key the log-level value wins by merge order.
func LabelSet(rec models.LogRecord) map[string]string {
	labels := map[string]string{
		"service_name": rec.ServiceName,
		"severity":     rec.SeverityText,
	}
	if rec.SeverityText != "" {
		labels["level"] = MapSeverityToLevel(rec.SeverityText)
	}
	if rec.TraceID != "" {
		labels["trace_id"] = rec.TraceID
	}
	if rec.SpanID != "" {
		labels["span_id"] = rec.SpanID
	}

	for k, v := range rec.ResourceAttributes {
		if k == "service.name" {
			continue
		}
		labels[k] = v
	}
	for k, v := range rec.LogAttributes {
		if k == "service.name" {
			continue
		}
		labels[k] = v
	}

	if rec.ScopeName != "" {
		labels["scope_name"] = rec.ScopeName
	}
	if rec.ScopeVersion != "" {
		labels["scope_version"] = rec.ScopeVersion
	}

	return labels
}

// CanonicalKey serializes a label set deterministically; two label sets are
// the same series iff their keys are equal.
func CanonicalKey(labels map[string]string) string {
	// json.Marshal emits map keys in sorted order.
	b, err := json.Marshal(labels)
	if err != nil {
		return ""
	}
	return string(b)
}

// Streams groups records into streams in first-seen order. The limiter, when
// non-nil, is consulted while assembling: entries stop being admitted once a
// limit trips, and the truncated flag reports that some input was dropped.
func Streams(records []models.LogRecord, limiter *limits.QueryLimiter) ([]Stream, bool) {
	var streams []Stream
	index := make(map[string]int)
	truncated := false

	for _, rec := range records {
		labels := LabelSet(rec)
		key := CanonicalKey(labels)

		if limiter != nil && limiter.AddChunkBytes(len(rec.Body)) {
			truncated = true
			break
		}

		i, ok := index[key]
		if !ok {
			if limiter != nil {
				if limiter.AddSeries(key) {
					truncated = true
					continue
				}
				if limiter.AddChunk() {
					truncated = true
					break
				}
			}
			index[key] = len(streams)
			streams = append(streams, Stream{Stream: labels})
			i = index[key]
		}

		ts := strconv.FormatInt(timefmt.FromDateTime64(rec.Timestamp), 10)
		streams[i].Values = append(streams[i].Values, [2]string{ts, rec.Body})
	}

	return streams, truncated
}

// Vector maps pre-aggregated rows into instant samples, one per group, all
// stamped with the request time.
func Vector(rows []map[string]any, nowUnix int64) []VectorSample {
	samples := make([]VectorSample, 0, len(rows))
	for _, row := range rows {
		metric := metricLabels(row, "volume")
		count := strconv.FormatInt(models.RowInt64(row, "volume"), 10)
		samples = append(samples, VectorSample{
			Metric: metric,
			Value:  [2]any{nowUnix, count},
		})
	}
	return samples
}

// Matrix groups time-bucketed rows by their label columns, accumulating one
// ordered sample list per group. Group order is first-seen order.
func Matrix(rows []map[string]any) []MatrixSeries {
	var series []MatrixSeries
	index := make(map[string]int)

	for _, row := range rows {
		metric := metricLabels(row, "volume", "timestamp")
		key := CanonicalKey(metric)

		i, ok := index[key]
		if !ok {
			index[key] = len(series)
			series = append(series, MatrixSeries{Metric: metric})
			i = index[key]
		}

		count := strconv.FormatInt(models.RowInt64(row, "volume"), 10)
		series[i].Values = append(series[i].Values, [2]any{models.RowInt64(row, "timestamp"), count})
	}

	return series
}

// metricLabels turns a row's non-reserved columns into label strings,
// normalizing severity and level values through the level classification.
func metricLabels(row map[string]any, reserved ...string) map[string]string {
	metric := make(map[string]string)
	for k, v := range row {
		if v == nil {
			continue
		}
		skip := false
		for _, r := range reserved {
			if k == r {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		value := models.RowString(row, k)
		if k == "severity" || k == "level" {
			value = MapSeverityToLevel(value)
		}
		metric[k] = value
	}
	return metric
}
