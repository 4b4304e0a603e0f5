// Package loki orchestrates the query API: it validates requests, drives the
// translator and the store, and shapes rows into Loki response envelopes.
// Every operation returns a status-tagged response; store failures become
// error envelopes, never panics or naked errors.
package loki

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/your-username/loki-clickhouse-gateway/internal/detect"
	"github.com/your-username/loki-clickhouse-gateway/internal/limits"
	"github.com/your-username/loki-clickhouse-gateway/internal/logql"
	"github.com/your-username/loki-clickhouse-gateway/internal/models"
	"github.com/your-username/loki-clickhouse-gateway/internal/patterns"
	"github.com/your-username/loki-clickhouse-gateway/internal/results"
	"github.com/your-username/loki-clickhouse-gateway/internal/timefmt"
	"github.com/your-username/loki-clickhouse-gateway/internal/translator"
)

// patternSampleLimit caps how many bodies one patterns request mines.
const patternSampleLimit = 10000

// Store is the single consumed collaborator: execute a parameterized query,
// hand back loosely-typed rows.
type Store interface {
	Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)
	Health(ctx context.Context) error
}

type Service struct {
	store      Store
	translator *translator.Translator
	limits     *limits.Middleware
	miner      *patterns.Miner
	detector   *detect.Detector
}

func NewService(store Store, tr *translator.Translator, lm *limits.Middleware, miner *patterns.Miner, detector *detect.Detector) *Service {
	return &Service{
		store:      store,
		translator: tr,
		limits:     lm,
		miner:      miner,
		detector:   detector,
	}
}

// Query serves an instant query. Grafana's datasource health probes
// (vector(1)+vector(1) and friends) are answered synthetically without
// touching the store.
func (s *Service) Query(ctx context.Context, query, timeStr string, limit int, direction string) QueryResponse {
	if logql.IsHealthProbe(query) {
		return QueryResponse{
			Status: "success",
			Data: QueryData{
				ResultType: "vector",
				Result: []results.VectorSample{
					{Metric: map[string]string{}, Value: [2]any{time.Now().Unix(), "2"}},
				},
			},
		}
	}

	if err := s.limits.ValidateQuery(query, nanosOf(timeStr), 0); err != nil {
		return streamsError(err.Error())
	}

	gq := s.translator.LogQuery(logql.Parse(query), translator.Options{
		Start:     timeStr,
		Limit:     limit,
		Direction: direction,
	})
	return s.runStreams(ctx, gq)
}

// QueryRange serves a range query. Metric queries are answered as a
// time-bucketed volume matrix; everything else returns streams.
func (s *Service) QueryRange(ctx context.Context, query, start, end string, limit int, direction, step string) QueryResponse {
	if err := s.limits.ValidateQuery(query, nanosOf(start), nanosOf(end)); err != nil {
		return streamsError(err.Error())
	}

	if logql.IsAggregation(query) {
		bucket := logql.RangeStep(query)
		if bucket == "" {
			bucket = step
		}
		if bucket == "" {
			// Metric queries bucket at 60s unless the selector or the
			// request says otherwise; the 1h default is volume_range's.
			bucket = "60s"
		}
		return s.IndexVolumeRange(ctx, query, start, end, bucket, logql.SumByLabels(query), "series")
	}

	gq := s.translator.LogQuery(logql.Parse(query), translator.Options{
		Start:     start,
		End:       end,
		Limit:     limit,
		Direction: direction,
	})
	return s.runStreams(ctx, gq)
}

func (s *Service) runStreams(ctx context.Context, gq translator.Query) QueryResponse {
	rows, err := s.store.Query(ctx, gq.SQL, gq.Params)
	if err != nil {
		return streamsError(storeError(err))
	}

	records := make([]models.LogRecord, len(rows))
	for i, row := range rows {
		records[i] = models.LogRecordFromRow(row)
	}

	limiter := s.limits.NewQueryLimiter()
	streams, truncated := results.Streams(records, limiter)
	if truncated {
		series, bytes, chunks := limiter.Stats()
		log.Warn().Int("series", series).Int("chunk_bytes", bytes).Int("chunks", chunks).Msg("Query result truncated by limits")
	}
	if streams == nil {
		streams = []results.Stream{}
	}

	return QueryResponse{
		Status: "success",
		Data:   QueryData{ResultType: "streams", Result: streams},
	}
}

// Labels lists all known label names.
func (s *Service) Labels(ctx context.Context) LabelsResponse {
	gq := s.translator.LabelsQuery()
	rows, err := s.store.Query(ctx, gq.SQL, gq.Params)
	if err != nil {
		return LabelsResponse{Status: "error", Data: []string{}, Error: storeError(err)}
	}

	labels := make([]string, 0, len(rows))
	for _, row := range rows {
		if label := models.RowString(row, "label"); label != "" {
			labels = append(labels, label)
		}
	}
	return LabelsResponse{Status: "success", Data: labels}
}

// LabelValues lists the distinct values of one label. Severity and level
// values are reported in Grafana's level vocabulary, deduplicated and sorted.
func (s *Service) LabelValues(ctx context.Context, label string) LabelsResponse {
	gq := s.translator.LabelValuesQuery(label)
	rows, err := s.store.Query(ctx, gq.SQL, gq.Params)
	if err != nil {
		return LabelsResponse{Status: "error", Data: []string{}, Error: storeError(err)}
	}

	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if v := models.RowString(row, "value"); v != "" {
			values = append(values, v)
		}
	}

	if label == "severity" || label == "level" {
		seen := make(map[string]struct{})
		mapped := make([]string, 0, len(values))
		for _, v := range values {
			level := results.MapSeverityToLevel(v)
			if _, ok := seen[level]; ok {
				continue
			}
			seen[level] = struct{}{}
			mapped = append(mapped, level)
		}
		sort.Strings(mapped)
		values = mapped
	}

	return LabelsResponse{Status: "success", Data: values}
}

// Series lists the distinct label sets in range. All match[] selectors are
// combined conjunctively.
func (s *Service) Series(ctx context.Context, match []string, start, end string) SeriesResponse {
	gq := s.translator.SeriesQuery(match, start, end)
	rows, err := s.store.Query(ctx, gq.SQL, gq.Params)
	if err != nil {
		return SeriesResponse{Status: "error", Data: []map[string]string{}, Error: storeError(err)}
	}

	series := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		severity := models.RowString(row, "SeverityText")
		labels := map[string]string{
			"service_name": models.RowString(row, "ServiceName"),
			"severity":     severity,
		}
		if severity != "" {
			labels["level"] = results.MapSeverityToLevel(severity)
		}
		for k, v := range models.RowStringMap(row, "ResourceAttributes") {
			labels[k] = v
		}
		for k, v := range models.RowStringMap(row, "LogAttributes") {
			labels[k] = v
		}
		series = append(series, labels)
	}
	return SeriesResponse{Status: "success", Data: series}
}

// DetectedLabels probes the fixed candidate pseudo-labels for presence in
// range and reports each one's distinct-value cardinality.
func (s *Service) DetectedLabels(ctx context.Context, query, start, end string) DetectedLabelsResponse {
	gq := s.translator.DetectedLabelsQuery(logql.Parse(query), start, end)
	rows, err := s.store.Query(ctx, gq.SQL, gq.Params)
	if err != nil {
		return DetectedLabelsResponse{Status: "error", Data: []DetectedLabel{}, Error: storeError(err)}
	}

	labels := make([]DetectedLabel, 0, len(rows))
	for _, row := range rows {
		labels = append(labels, DetectedLabel{
			Label:       models.RowString(row, "label"),
			Cardinality: models.RowInt64(row, "cardinality"),
		})
	}
	return DetectedLabelsResponse{Status: "success", Data: labels}
}

// DetectedFields samples recent bodies in range and reports the structured
// fields found inside them.
func (s *Service) DetectedFields(ctx context.Context, query, start, end string) DetectedFieldsResponse {
	fields, err := s.detectFields(ctx, query, start, end)
	if err != nil {
		return DetectedFieldsResponse{Status: "error", Data: []DetectedField{}, Error: storeError(err)}
	}

	out := make([]DetectedField, 0, len(fields))
	for _, f := range fields {
		out = append(out, DetectedField{
			Label:       f.Label,
			Type:        string(f.Type),
			Cardinality: f.Cardinality(),
			Parsers:     f.Parsers(),
			JSONPath:    f.JSONPath,
		})
	}
	return DetectedFieldsResponse{Status: "success", Data: out}
}

// DetectedFieldValues lists the distinct values observed for one detected
// field.
func (s *Service) DetectedFieldValues(ctx context.Context, name, query, start, end string) LabelsResponse {
	fields, err := s.detectFields(ctx, query, start, end)
	if err != nil {
		return LabelsResponse{Status: "error", Data: []string{}, Error: storeError(err)}
	}

	values := detect.FieldValues(fields, name)
	if values == nil {
		values = []string{}
	}
	return LabelsResponse{Status: "success", Data: values}
}

func (s *Service) detectFields(ctx context.Context, query, start, end string) ([]*detect.Field, error) {
	gq := s.translator.BodiesQuery(logql.Parse(query), start, end, detect.MaxSampleBodies)
	rows, err := s.store.Query(ctx, gq.SQL, gq.Params)
	if err != nil {
		return nil, err
	}

	bodies := make([]string, 0, len(rows))
	for _, row := range rows {
		bodies = append(bodies, models.RowString(row, "Body"))
	}
	return s.detector.Detect(bodies), nil
}

// IndexStats reports stream, entry and byte totals for a selector and range.
// Chunk counts are an estimate, one chunk per thousand entries.
func (s *Service) IndexStats(ctx context.Context, query, start, end string) StatsResponse {
	gq := s.translator.StatsQuery(logql.Parse(query), start, end)
	rows, err := s.store.Query(ctx, gq.SQL, gq.Params)
	if err != nil {
		return StatsResponse{Status: "error", Error: storeError(err)}
	}

	var stats IndexStats
	if len(rows) > 0 {
		entries := models.RowInt64(rows[0], "entries")
		stats = IndexStats{
			Streams: models.RowInt64(rows[0], "streams"),
			Chunks:  (entries + 999) / 1000,
			Entries: entries,
			Bytes:   models.RowInt64(rows[0], "bytes"),
		}
	}
	return StatsResponse{Status: "success", Data: stats}
}

// IndexVolume reports per-group log volume over a range as an instant vector.
func (s *Service) IndexVolume(ctx context.Context, query, start, end string, limit int, targetLabels, aggregateBy string) QueryResponse {
	groupBy := groupLabels(query, targetLabels, aggregateBy)
	gq := s.translator.VolumeQuery(logql.Parse(query), start, end, groupBy, limit)
	rows, err := s.store.Query(ctx, gq.SQL, gq.Params)
	if err != nil {
		return QueryResponse{
			Status: "error",
			Data:   QueryData{ResultType: "vector", Result: []results.VectorSample{}},
			Error:  storeError(err),
		}
	}

	samples := results.Vector(rows, time.Now().Unix())
	return QueryResponse{
		Status: "success",
		Data:   QueryData{ResultType: "vector", Result: samples},
	}
}

// IndexVolumeRange reports time-bucketed per-group log volume as a matrix.
func (s *Service) IndexVolumeRange(ctx context.Context, query, start, end, step, targetLabels, aggregateBy string) QueryResponse {
	stepSeconds := int64(timefmt.ParseStep(step, time.Hour) / time.Second)
	groupBy := groupLabels(query, targetLabels, aggregateBy)

	gq := s.translator.VolumeRangeQuery(logql.Parse(query), start, end, groupBy, stepSeconds)
	rows, err := s.store.Query(ctx, gq.SQL, gq.Params)
	if err != nil {
		return QueryResponse{
			Status: "error",
			Data:   QueryData{ResultType: "matrix", Result: []results.MatrixSeries{}},
			Error:  storeError(err),
		}
	}

	series := results.Matrix(rows)
	if series == nil {
		series = []results.MatrixSeries{}
	}
	return QueryResponse{
		Status: "success",
		Data:   QueryData{ResultType: "matrix", Result: series},
	}
}

// Patterns mines recent bodies in range into templated patterns with bucketed
// counts.
func (s *Service) Patterns(ctx context.Context, query, start, end, step string) PatternsResponse {
	gq := s.translator.BodiesQuery(logql.Parse(query), start, end, patternSampleLimit)
	rows, err := s.store.Query(ctx, gq.SQL, gq.Params)
	if err != nil {
		return PatternsResponse{Status: "error", Data: []patterns.Pattern{}, Error: storeError(err)}
	}

	entries := make([]patterns.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, patterns.Entry{
			TimestampNs: timefmt.FromDateTime64(models.RowString(row, "Timestamp")),
			Body:        models.RowString(row, "Body"),
		})
	}

	stepDur := timefmt.ParseStep(step, time.Minute)
	mined := s.miner.Mine(ctx, query, entries, stepDur, nanosOf(start)/1e9, nanosOf(end)/1e9)
	if mined == nil {
		mined = []patterns.Pattern{}
	}
	return PatternsResponse{Status: "success", Data: mined}
}

// Ready reports whether the store answers.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Health(ctx)
}

// groupLabels resolves the volume grouping: explicit target labels win,
// otherwise the labels mentioned by the query's matchers are used. Both
// aggregateBy modes ("series" and "labels") share that fallback, so the
// mode does not affect grouping here.
func groupLabels(query, targetLabels, aggregateBy string) []string {
	if targetLabels != "" {
		parts := strings.Split(targetLabels, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return logql.LabelNames(query)
}

func nanosOf(ts string) int64 {
	if ts == "" {
		return 0
	}
	return timefmt.FromDateTime64(timefmt.ToDateTime64(ts))
}

func storeError(err error) string {
	return "clickhouse error: " + err.Error()
}

func streamsError(msg string) QueryResponse {
	return QueryResponse{
		Status: "error",
		Data:   QueryData{ResultType: "streams", Result: []results.Stream{}},
		Error:  msg,
	}
}
