package translator

import (
	"strings"
	"testing"

	"github.com/your-username/loki-clickhouse-gateway/internal/logql"
)

func TestLogQueryMatcherDispatch(t *testing.T) {
	tr := New("otel_logs")

	tests := []struct {
		name       string
		query      string
		wantClause string
		wantParams map[string]any
	}{
		{
			name:       "service equality",
			query:      `{service_name="api"}`,
			wantClause: "ServiceName = {label_0:String}",
			wantParams: map[string]any{"label_0": "api"},
		},
		{
			name:       "service regex",
			query:      `{service=~"api-.*"}`,
			wantClause: "match(ServiceName, {label_0:String})",
			wantParams: map[string]any{"label_0": "api-.*"},
		},
		{
			name:       "severity inequality",
			query:      `{level!="debug"}`,
			wantClause: "SeverityText != {label_0:String}",
			wantParams: map[string]any{"label_0": "debug"},
		},
		{
			name:       "trace id equality",
			query:      `{trace_id="abc123"}`,
			wantClause: "TraceId = {label_0:String}",
			wantParams: map[string]any{"label_0": "abc123"},
		},
		{
			name:       "attribute map equality checks both maps",
			query:      `{pod="web-1"}`,
			wantClause: "(ResourceAttributes[{labelKey_0:String}] = {label_0:String} OR LogAttributes[{labelKey_0:String}] = {label_0:String})",
			wantParams: map[string]any{"labelKey_0": "pod", "label_0": "web-1"},
		},
		{
			name:       "attribute map inequality must hold in both maps",
			query:      `{pod!="web-1"}`,
			wantClause: "(ResourceAttributes[{labelKey_0:String}] != {label_0:String} AND LogAttributes[{labelKey_0:String}] != {label_0:String})",
			wantParams: map[string]any{"labelKey_0": "pod", "label_0": "web-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tr.LogQuery(logql.Parse(tt.query), Options{})
			if !strings.Contains(q.SQL, tt.wantClause) {
				t.Errorf("SQL missing clause %q:\n%s", tt.wantClause, q.SQL)
			}
			for k, v := range tt.wantParams {
				if q.Params[k] != v {
					t.Errorf("param %s = %v, want %v", k, q.Params[k], v)
				}
			}
		})
	}
}

// No raw matcher value may ever be concatenated into the SQL text; every
// matcher contributes exactly one bound condition.
func TestLogQueryValuesAreAlwaysBound(t *testing.T) {
	tr := New("otel_logs")
	parsed := logql.Parse(`{service_name="secret-svc", pod=~"p-.*", env!="prod"} |= "needle"`)
	q := tr.LogQuery(parsed, Options{Start: "1700000000000000000", End: "1700000600000000000"})

	for _, value := range []string{"secret-svc", "p-.*", "prod", "needle"} {
		if strings.Contains(q.SQL, value) {
			t.Errorf("raw value %q leaked into SQL:\n%s", value, q.SQL)
		}
	}

	for i := range parsed.Matchers {
		name := "label_" + string(rune('0'+i))
		if _, ok := q.Params[name]; !ok {
			t.Errorf("missing bound parameter %s", name)
		}
	}
	if strings.Count(q.SQL, "{label_0:String}") == 0 {
		t.Error("matcher 0 has no bound condition")
	}
}

func TestLogQueryRangeAndLimit(t *testing.T) {
	tr := New("otel_logs")

	q := tr.LogQuery(logql.Query{}, Options{Start: "1700000000000000000"})
	if !strings.Contains(q.SQL, "Timestamp >= {start:DateTime64}") {
		t.Errorf("missing start bound:\n%s", q.SQL)
	}
	if q.Params["start"] != "2023-11-14 22:13:20.000000" {
		t.Errorf("start param = %v", q.Params["start"])
	}
	if !strings.Contains(q.SQL, "ORDER BY Timestamp DESC") {
		t.Error("default direction should be backward")
	}
	if q.Params["limit"] != DefaultLimit {
		t.Errorf("limit = %v, want %d", q.Params["limit"], DefaultLimit)
	}

	q = tr.LogQuery(logql.Query{}, Options{Direction: "forward", Limit: 25})
	if !strings.Contains(q.SQL, "ORDER BY Timestamp ASC") {
		t.Error("forward direction should order ascending")
	}
	if q.Params["limit"] != 25 {
		t.Errorf("limit = %v, want 25", q.Params["limit"])
	}
	if strings.Contains(q.SQL, "WHERE") {
		t.Errorf("empty query should have no WHERE clause:\n%s", q.SQL)
	}
}

func TestLogQueryTextFilter(t *testing.T) {
	tr := New("otel_logs")
	q := tr.LogQuery(logql.Parse(`{service_name="api"} |= "timeout"`), Options{})
	if !strings.Contains(q.SQL, "positionCaseInsensitive(Body, {textFilter:String}) > 0") {
		t.Errorf("missing text filter condition:\n%s", q.SQL)
	}
	if q.Params["textFilter"] != "timeout" {
		t.Errorf("textFilter param = %v", q.Params["textFilter"])
	}
}

func TestLabelValuesQuery(t *testing.T) {
	tr := New("otel_logs")

	q := tr.LabelValuesQuery("service_name")
	if !strings.Contains(q.SQL, "SELECT DISTINCT ServiceName AS value") {
		t.Errorf("unexpected service_name query:\n%s", q.SQL)
	}

	q = tr.LabelValuesQuery("trace_id")
	if !strings.Contains(q.SQL, "LIMIT 1000") {
		t.Errorf("trace_id values should be capped:\n%s", q.SQL)
	}

	q = tr.LabelValuesQuery("pod")
	if !strings.Contains(q.SQL, "ResourceAttributes[{labelName:String}]") ||
		!strings.Contains(q.SQL, "LogAttributes[{labelName:String}]") {
		t.Errorf("attribute label values should union both maps:\n%s", q.SQL)
	}
	if q.Params["labelName"] != "pod" {
		t.Errorf("labelName param = %v", q.Params["labelName"])
	}
}

func TestSeriesQueryParamNamesAreDisjoint(t *testing.T) {
	tr := New("otel_logs")
	q := tr.SeriesQuery([]string{`{service_name="api"}`, `{level="error"}`}, "1700000000000000000", "")

	if _, ok := q.Params["match_0_label_0"]; !ok {
		t.Errorf("missing first selector param, have %v", q.Params)
	}
	if _, ok := q.Params["match_1_label_0"]; !ok {
		t.Errorf("missing second selector param, have %v", q.Params)
	}
	// Selectors combine with AND.
	if strings.Count(q.SQL, " AND ") < 2 {
		t.Errorf("selector groups should be conjoined:\n%s", q.SQL)
	}
}

func TestVolumeQueryGrouping(t *testing.T) {
	tr := New("otel_logs")
	q := tr.VolumeQuery(logql.Query{}, "", "", []string{"service_name", "pod"}, 0)

	if !strings.Contains(q.SQL, "ServiceName AS service_name") {
		t.Errorf("service_name should group by its column:\n%s", q.SQL)
	}
	if !strings.Contains(q.SQL, "LogAttributes['pod'] AS pod") {
		t.Errorf("unknown labels should group by attribute lookup:\n%s", q.SQL)
	}
	if !strings.Contains(q.SQL, "GROUP BY ServiceName, LogAttributes['pod']") {
		t.Errorf("unexpected GROUP BY:\n%s", q.SQL)
	}
	if q.Params["limit"] != DefaultLimit {
		t.Errorf("limit = %v", q.Params["limit"])
	}
}

func TestVolumeRangeQueryBuckets(t *testing.T) {
	tr := New("otel_logs")
	q := tr.VolumeRangeQuery(logql.Query{}, "", "", []string{"level"}, 300)

	if !strings.Contains(q.SQL, "toStartOfInterval(Timestamp, INTERVAL 300 SECOND)") {
		t.Errorf("missing bucket expression:\n%s", q.SQL)
	}
	if !strings.Contains(q.SQL, "GROUP BY timestamp, SeverityText") {
		t.Errorf("unexpected GROUP BY:\n%s", q.SQL)
	}
	if !strings.Contains(q.SQL, "ORDER BY timestamp") {
		t.Errorf("range volume should be bucket-ordered:\n%s", q.SQL)
	}
}

func TestDetectedLabelsQueryProbesCandidates(t *testing.T) {
	tr := New("otel_logs")
	q := tr.DetectedLabelsQuery(logql.Query{}, "1700000000000000000", "1700000600000000000")

	for _, label := range []string{"service_name", "severity", "trace_id", "scope_name", "host_name"} {
		if !strings.Contains(q.SQL, "'"+label+"' AS label") {
			t.Errorf("candidate %s not probed:\n%s", label, q.SQL)
		}
	}
	if _, ok := q.Params["start"]; !ok {
		t.Error("range should be bound")
	}
}

func TestStatsQuery(t *testing.T) {
	tr := New("otel_logs")
	q := tr.StatsQuery(logql.Parse(`{service_name="api"}`), "1700000000000000000", "")

	if !strings.Contains(q.SQL, "COUNT(DISTINCT ServiceName) AS streams") {
		t.Errorf("missing streams aggregate:\n%s", q.SQL)
	}
	if !strings.Contains(q.SQL, "SUM(length(Body)) AS bytes") {
		t.Errorf("missing bytes aggregate:\n%s", q.SQL)
	}
	if !strings.Contains(q.SQL, "ServiceName = {label_0:String}") {
		t.Errorf("selector conditions should carry over:\n%s", q.SQL)
	}
}
