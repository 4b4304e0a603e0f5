// Package translator turns parsed LogQL queries into parameterized ClickHouse
// SQL against the wide OTel log table. Literal values are always bound as
// named parameters; only label names used for dynamic grouping and extraction
// are interpolated as identifiers, which is a documented constraint of this
// gateway.
package translator

import (
	"fmt"
	"strings"

	"github.com/your-username/loki-clickhouse-gateway/internal/logql"
	"github.com/your-username/loki-clickhouse-gateway/internal/timefmt"
)

// DefaultLimit is the row cap applied when a query specifies none.
const DefaultLimit = 100

// Query is a generated SQL statement plus its named parameter bindings.
type Query struct {
	SQL    string
	Params map[string]any
}

// Options carries the range, limit and direction of a log query. Zero values
// mean "not supplied": empty bounds are omitted and a zero limit becomes
// DefaultLimit.
type Options struct {
	Start     string
	End       string
	Limit     int
	Direction string // "forward" or "backward" (default)
}

// labelColumn maps a well-known label name onto its dedicated table column.
// Labels without an entry live in the attribute maps instead. One table
// drives the matcher dispatch, the label-values special cases and the volume
// grouping so the mapping is defined exactly once.
type labelColumn struct {
	column     string
	regex      bool // =~ supported via match()
	notEqual   bool // != supported
	valueLimit int  // cap on distinct values, 0 = none
}

var labelColumns = map[string]labelColumn{
	"service_name": {column: "ServiceName", regex: true, notEqual: true},
	"service":      {column: "ServiceName", regex: true, notEqual: true},
	"severity":     {column: "SeverityText", notEqual: true},
	"level":        {column: "SeverityText", notEqual: true},
	"trace_id":     {column: "TraceId", valueLimit: 1000},
	"span_id":      {column: "SpanId", valueLimit: 1000},
}

const logProjection = `Timestamp,
	TraceId,
	SpanId,
	TraceFlags,
	SeverityText,
	SeverityNumber,
	ServiceName,
	Body,
	ResourceSchemaUrl,
	ResourceAttributes,
	ScopeSchemaUrl,
	ScopeName,
	ScopeVersion,
	ScopeAttributes,
	LogAttributes`

// Translator generates SQL for one log table.
type Translator struct {
	table string
}

func New(table string) *Translator {
	return &Translator{table: table}
}

// Table returns the log table name this translator targets.
func (t *Translator) Table() string {
	return t.table
}

// LogQuery translates a parsed query into the main log-selection statement.
func (t *Translator) LogQuery(q logql.Query, opts Options) Query {
	conditions, params := t.Conditions(q, opts.Start, opts.End, "")

	sql := fmt.Sprintf("SELECT\n\t%s\nFROM %s", logProjection, t.table)
	if len(conditions) > 0 {
		sql += "\nWHERE " + strings.Join(conditions, " AND ")
	}

	order := "DESC"
	if opts.Direction == "forward" {
		order = "ASC"
	}
	sql += "\nORDER BY Timestamp " + order

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	sql += "\nLIMIT {limit:UInt32}"
	params["limit"] = limit

	return Query{SQL: sql, Params: params}
}

// Conditions builds the WHERE conditions and parameter bindings for a parsed
// query over an optional time range. Composite operations (stats, volume,
// patterns, detected labels) reuse it to append a selector's conditions onto
// their own statements. An optional prefix keeps parameter names apart when
// several selectors contribute to one statement.
func (t *Translator) Conditions(q logql.Query, start, end, prefix string) ([]string, map[string]any) {
	var conditions []string
	params := make(map[string]any)

	if start != "" {
		conditions = append(conditions, fmt.Sprintf("Timestamp >= {%sstart:DateTime64}", prefix))
		params[prefix+"start"] = timefmt.ToDateTime64(start)
	}
	if end != "" {
		conditions = append(conditions, fmt.Sprintf("Timestamp <= {%send:DateTime64}", prefix))
		params[prefix+"end"] = timefmt.ToDateTime64(end)
	}

	for i, m := range q.Matchers {
		paramKey := fmt.Sprintf("%slabel_%d", prefix, i)
		keyParam := fmt.Sprintf("%slabelKey_%d", prefix, i)
		if cond := t.matcherCondition(m, paramKey, keyParam, params); cond != "" {
			conditions = append(conditions, cond)
		}
	}

	if q.TextFilter != "" {
		conditions = append(conditions, fmt.Sprintf("positionCaseInsensitive(Body, {%stextFilter:String}) > 0", prefix))
		params[prefix+"textFilter"] = q.TextFilter
	}

	return conditions, params
}

// matcherCondition emits the condition for one matcher, binding its value
// under paramKey. Operators a well-known column does not support (regex on
// severity, anything but equality on trace and span ids) yield no condition,
// mirroring the documented gaps of the mirrored API.
func (t *Translator) matcherCondition(m logql.Matcher, paramKey, keyParam string, params map[string]any) string {
	if lc, ok := labelColumns[m.Key]; ok {
		switch m.Op {
		case logql.OpEqual:
			params[paramKey] = m.Value
			return fmt.Sprintf("%s = {%s:String}", lc.column, paramKey)
		case logql.OpNotEqual:
			if !lc.notEqual {
				return ""
			}
			params[paramKey] = m.Value
			return fmt.Sprintf("%s != {%s:String}", lc.column, paramKey)
		case logql.OpRegexMatch:
			if !lc.regex {
				return ""
			}
			params[paramKey] = m.Value
			return fmt.Sprintf("match(%s, {%s:String})", lc.column, paramKey)
		case logql.OpRegexNotMatch:
			if !lc.regex {
				return ""
			}
			params[paramKey] = m.Value
			return fmt.Sprintf("NOT match(%s, {%s:String})", lc.column, paramKey)
		}
		return ""
	}

	// The label may live in either attribute map, so equality and regex
	// accept a hit in one map while inequality must hold in both.
	params[keyParam] = m.Key
	params[paramKey] = m.Value

	switch m.Op {
	case logql.OpEqual:
		return fmt.Sprintf("(ResourceAttributes[{%[1]s:String}] = {%[2]s:String} OR LogAttributes[{%[1]s:String}] = {%[2]s:String})", keyParam, paramKey)
	case logql.OpNotEqual:
		return fmt.Sprintf("(ResourceAttributes[{%[1]s:String}] != {%[2]s:String} AND LogAttributes[{%[1]s:String}] != {%[2]s:String})", keyParam, paramKey)
	case logql.OpRegexMatch:
		return fmt.Sprintf("(match(ResourceAttributes[{%[1]s:String}], {%[2]s:String}) OR match(LogAttributes[{%[1]s:String}], {%[2]s:String}))", keyParam, paramKey)
	case logql.OpRegexNotMatch:
		// Extension: the mirrored gateway drops !~ on attribute keys
		// silently; here it is honored as NOT match over both maps.
		return fmt.Sprintf("(NOT match(ResourceAttributes[{%[1]s:String}], {%[2]s:String}) AND NOT match(LogAttributes[{%[1]s:String}], {%[2]s:String}))", keyParam, paramKey)
	}

	delete(params, keyParam)
	delete(params, paramKey)
	return ""
}

// LabelsQuery enumerates the known label names: the fixed pseudo-labels plus
// every key observed in either attribute map.
func (t *Translator) LabelsQuery() Query {
	sql := fmt.Sprintf(`SELECT DISTINCT label FROM (
	SELECT 'service_name' AS label
	UNION ALL SELECT 'severity' AS label
	UNION ALL SELECT 'trace_id' AS label
	UNION ALL SELECT 'span_id' AS label
	UNION ALL SELECT arrayJoin(mapKeys(ResourceAttributes)) AS label FROM %[1]s
	UNION ALL SELECT arrayJoin(mapKeys(LogAttributes)) AS label FROM %[1]s
)
WHERE label != ''
ORDER BY label`, t.table)
	return Query{SQL: sql, Params: map[string]any{}}
}

// LabelValuesQuery enumerates the distinct values of one label. Pseudo-labels
// pull from their dedicated columns; everything else is union-extracted from
// both attribute maps.
func (t *Translator) LabelValuesQuery(label string) Query {
	if lc, ok := labelColumns[label]; ok {
		sql := fmt.Sprintf(`SELECT DISTINCT %[1]s AS value
FROM %[2]s
WHERE %[1]s != ''
ORDER BY value`, lc.column, t.table)
		if lc.valueLimit > 0 {
			sql += fmt.Sprintf("\nLIMIT %d", lc.valueLimit)
		}
		return Query{SQL: sql, Params: map[string]any{}}
	}

	sql := fmt.Sprintf(`SELECT DISTINCT value FROM (
	SELECT ResourceAttributes[{labelName:String}] AS value
	FROM %[1]s
	WHERE ResourceAttributes[{labelName:String}] != ''
	UNION ALL
	SELECT LogAttributes[{labelName:String}] AS value
	FROM %[1]s
	WHERE LogAttributes[{labelName:String}] != ''
)
WHERE value != ''
ORDER BY value`, t.table)
	return Query{SQL: sql, Params: map[string]any{"labelName": label}}
}

// SeriesQuery builds the series-discovery statement. Each match[] selector
// contributes its own group of conditions; all groups are combined with AND.
// Whether the mirrored API intends AND or OR across selectors is undocumented,
// so this keeps the conservative conjunction.
func (t *Translator) SeriesQuery(match []string, start, end string) Query {
	sql := fmt.Sprintf(`SELECT DISTINCT
	ServiceName,
	SeverityText,
	ResourceAttributes,
	LogAttributes
FROM %s`, t.table)

	conditions, params := t.Conditions(logql.Query{}, start, end, "")
	for i, selector := range match {
		prefix := fmt.Sprintf("match_%d_", i)
		conds, selectorParams := t.Conditions(logql.Parse(selector), "", "", prefix)
		conditions = append(conditions, conds...)
		for k, v := range selectorParams {
			params[k] = v
		}
	}

	if len(conditions) > 0 {
		sql += "\nWHERE " + strings.Join(conditions, " AND ")
	}
	sql += "\nORDER BY ServiceName, SeverityText"

	return Query{SQL: sql, Params: params}
}

// GroupExpr returns the SELECT expression and the bare grouping expression
// for one label, consulting the same column table as the matcher dispatch.
// The label name ends up in the statement as an identifier, not a bound
// value.
func (t *Translator) GroupExpr(label string) (selectExpr, groupExpr string) {
	if lc, ok := labelColumns[strings.ToLower(label)]; ok {
		return fmt.Sprintf("%s AS %s", lc.column, label), lc.column
	}
	expr := fmt.Sprintf("LogAttributes['%s']", label)
	return fmt.Sprintf("%s AS %s", expr, label), expr
}

// StatsQuery builds the index-stats aggregate over an optional selector and
// range.
func (t *Translator) StatsQuery(q logql.Query, start, end string) Query {
	sql := fmt.Sprintf(`SELECT
	COUNT(DISTINCT ServiceName) AS streams,
	COUNT(*) AS entries,
	SUM(length(Body)) AS bytes
FROM %s`, t.table)

	conditions, params := t.Conditions(q, start, end, "")
	if len(conditions) > 0 {
		sql += "\nWHERE " + strings.Join(conditions, " AND ")
	}
	return Query{SQL: sql, Params: params}
}

// VolumeQuery builds the instant volume aggregate grouped by the given
// labels, most voluminous groups first.
func (t *Translator) VolumeQuery(q logql.Query, start, end string, groupBy []string, limit int) Query {
	selects := make([]string, 0, len(groupBy)+1)
	groups := make([]string, 0, len(groupBy))
	for _, label := range groupBy {
		sel, grp := t.GroupExpr(label)
		selects = append(selects, sel)
		groups = append(groups, grp)
	}
	selects = append(selects, "COUNT(*) AS volume")

	sql := fmt.Sprintf("SELECT %s\nFROM %s", strings.Join(selects, ", "), t.table)

	conditions, params := t.Conditions(q, start, end, "")
	if len(conditions) > 0 {
		sql += "\nWHERE " + strings.Join(conditions, " AND ")
	}
	if len(groups) > 0 {
		sql += "\nGROUP BY " + strings.Join(groups, ", ")
	}

	if limit <= 0 {
		limit = DefaultLimit
	}
	sql += "\nORDER BY volume DESC\nLIMIT {limit:UInt32}"
	params["limit"] = limit

	return Query{SQL: sql, Params: params}
}

// VolumeRangeQuery builds the time-bucketed volume aggregate: one row per
// (bucket, group), bucket width stepSeconds.
func (t *Translator) VolumeRangeQuery(q logql.Query, start, end string, groupBy []string, stepSeconds int64) Query {
	bucket := fmt.Sprintf("toUnixTimestamp(toStartOfInterval(Timestamp, INTERVAL %d SECOND)) AS timestamp", stepSeconds)
	selects := []string{bucket}
	groups := []string{"timestamp"}
	for _, label := range groupBy {
		sel, grp := t.GroupExpr(label)
		selects = append(selects, sel)
		groups = append(groups, grp)
	}
	selects = append(selects, "COUNT(*) AS volume")

	sql := fmt.Sprintf("SELECT %s\nFROM %s", strings.Join(selects, ", "), t.table)

	conditions, params := t.Conditions(q, start, end, "")
	if len(conditions) > 0 {
		sql += "\nWHERE " + strings.Join(conditions, " AND ")
	}
	sql += "\nGROUP BY " + strings.Join(groups, ", ")
	sql += "\nORDER BY timestamp"

	return Query{SQL: sql, Params: params}
}

// BodiesQuery selects timestamps and raw bodies in range for the pattern
// miner and the field detector, newest first.
func (t *Translator) BodiesQuery(q logql.Query, start, end string, limit int) Query {
	sql := fmt.Sprintf("SELECT Timestamp, Body\nFROM %s", t.table)
	conditions, params := t.Conditions(q, start, end, "")
	if len(conditions) > 0 {
		sql += "\nWHERE " + strings.Join(conditions, " AND ")
	}
	sql += "\nORDER BY Timestamp DESC\nLIMIT {limit:UInt32}"
	params["limit"] = limit
	return Query{SQL: sql, Params: params}
}

// candidateLabels are the pseudo-labels probed by detected-labels discovery.
// The list is fixed rather than derived from the table schema.
var candidateLabels = []struct {
	label string
	expr  string
}{
	{"service_name", "ServiceName"},
	{"severity", "SeverityText"},
	{"level", "SeverityText"},
	{"trace_id", "TraceId"},
	{"span_id", "SpanId"},
	{"scope_name", "ScopeName"},
	{"scope_version", "ScopeVersion"},
	{"host_name", "ResourceAttributes['host.name']"},
	{"deployment_environment", "ResourceAttributes['deployment.environment']"},
	{"k8s_namespace_name", "ResourceAttributes['k8s.namespace.name']"},
	{"k8s_pod_name", "ResourceAttributes['k8s.pod.name']"},
}

// DetectedLabelsQuery probes each candidate pseudo-label for presence in
// range and reports its distinct-value cardinality.
func (t *Translator) DetectedLabelsQuery(q logql.Query, start, end string) Query {
	conditions, params := t.Conditions(q, start, end, "")
	where := ""
	if len(conditions) > 0 {
		where = " AND " + strings.Join(conditions, " AND ")
	}

	parts := make([]string, 0, len(candidateLabels))
	for _, c := range candidateLabels {
		parts = append(parts, fmt.Sprintf(
			"SELECT '%s' AS label, COUNT(DISTINCT %s) AS cardinality FROM %s WHERE %s != ''%s",
			c.label, c.expr, t.table, c.expr, where))
	}

	sql := "SELECT label, cardinality FROM (\n\t" +
		strings.Join(parts, "\n\tUNION ALL ") +
		"\n)\nWHERE cardinality > 0\nORDER BY label"

	return Query{SQL: sql, Params: params}
}
