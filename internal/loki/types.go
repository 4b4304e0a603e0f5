package loki

import "github.com/your-username/loki-clickhouse-gateway/internal/patterns"

// All responses carry a status tag; error responses keep an empty data shape
// so clients always see the field they expect.

type QueryResponse struct {
	Status string    `json:"status"`
	Data   QueryData `json:"data"`
	Error  string    `json:"error,omitempty"`
}

type QueryData struct {
	ResultType string `json:"resultType"`
	Result     any    `json:"result"`
}

type LabelsResponse struct {
	Status string   `json:"status"`
	Data   []string `json:"data"`
	Error  string   `json:"error,omitempty"`
}

type SeriesResponse struct {
	Status string              `json:"status"`
	Data   []map[string]string `json:"data"`
	Error  string              `json:"error,omitempty"`
}

type IndexStats struct {
	Streams int64 `json:"streams"`
	Chunks  int64 `json:"chunks"`
	Entries int64 `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

type StatsResponse struct {
	Status string     `json:"status"`
	Data   IndexStats `json:"data"`
	Error  string     `json:"error,omitempty"`
}

type PatternsResponse struct {
	Status string             `json:"status"`
	Data   []patterns.Pattern `json:"data"`
	Error  string             `json:"error,omitempty"`
}

type DetectedLabel struct {
	Label       string `json:"label"`
	Cardinality int64  `json:"cardinality"`
}

type DetectedLabelsResponse struct {
	Status string          `json:"status"`
	Data   []DetectedLabel `json:"data"`
	Error  string          `json:"error,omitempty"`
}

type DetectedField struct {
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Cardinality int      `json:"cardinality"`
	Parsers     []string `json:"parsers"`
	JSONPath    []string `json:"jsonPath,omitempty"`
}

type DetectedFieldsResponse struct {
	Status string          `json:"status"`
	Data   []DetectedField `json:"data"`
	Error  string          `json:"error,omitempty"`
}
