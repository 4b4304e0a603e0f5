package models

import "fmt"

// LogRecord is one row of the OTel-style wide log table. Rows are owned by
// ClickHouse and read-only to this service.
type LogRecord struct {
	Timestamp          string            `json:"Timestamp"`
	TraceID            string            `json:"TraceId"`
	SpanID             string            `json:"SpanId"`
	TraceFlags         uint32            `json:"TraceFlags"`
	SeverityText       string            `json:"SeverityText"`
	SeverityNumber     uint8             `json:"SeverityNumber"`
	ServiceName        string            `json:"ServiceName"`
	Body               string            `json:"Body"`
	ResourceSchemaURL  string            `json:"ResourceSchemaUrl"`
	ResourceAttributes map[string]string `json:"ResourceAttributes"`
	ScopeSchemaURL     string            `json:"ScopeSchemaUrl"`
	ScopeName          string            `json:"ScopeName"`
	ScopeVersion       string            `json:"ScopeVersion"`
	ScopeAttributes    map[string]string `json:"ScopeAttributes"`
	LogAttributes      map[string]string `json:"LogAttributes"`
}

// LogRecordFromRow builds a LogRecord from a loosely-typed result row.
func LogRecordFromRow(row map[string]any) LogRecord {
	return LogRecord{
		Timestamp:          RowString(row, "Timestamp"),
		TraceID:            RowString(row, "TraceId"),
		SpanID:             RowString(row, "SpanId"),
		SeverityText:       RowString(row, "SeverityText"),
		ServiceName:        RowString(row, "ServiceName"),
		Body:               RowString(row, "Body"),
		ResourceSchemaURL:  RowString(row, "ResourceSchemaUrl"),
		ResourceAttributes: RowStringMap(row, "ResourceAttributes"),
		ScopeSchemaURL:     RowString(row, "ScopeSchemaUrl"),
		ScopeName:          RowString(row, "ScopeName"),
		ScopeVersion:       RowString(row, "ScopeVersion"),
		ScopeAttributes:    RowStringMap(row, "ScopeAttributes"),
		LogAttributes:      RowStringMap(row, "LogAttributes"),
	}
}

// RowString extracts a column as a string, stringifying non-string values.
func RowString(row map[string]any, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// RowStringMap extracts a map column, stringifying non-string values. A
// malformed column contributes an empty map rather than an error.
func RowStringMap(row map[string]any, key string) map[string]string {
	out := make(map[string]string)
	switch m := row[key].(type) {
	case map[string]string:
		for k, v := range m {
			out[k] = v
		}
	case map[string]any:
		for k, v := range m {
			if v == nil {
				continue
			}
			if s, ok := v.(string); ok {
				out[k] = s
			} else {
				out[k] = fmt.Sprintf("%v", v)
			}
		}
	}
	return out
}

// RowInt64 extracts a numeric column as int64, tolerating the integer widths
// and stringified numbers ClickHouse hands back.
func RowInt64(row map[string]any, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case uint64:
		return int64(v)
	case int32:
		return int64(v)
	case uint32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		var n int64
		if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
			return 0
		}
		return n
	}
	return 0
}
