// Package logql extracts label matchers and line filters from LogQL-style
// query strings. It is deliberately a pattern scanner, not a grammar: matchers
// are conjunctive, there is no operator precedence and at most one line filter
// is honored per query.
package logql

import (
	"regexp"
	"strings"
)

// Matcher operators.
const (
	OpEqual         = "="
	OpNotEqual      = "!="
	OpRegexMatch    = "=~"
	OpRegexNotMatch = "!~"
)

// Matcher is a single label filter extracted from a query.
type Matcher struct {
	Key   string
	Op    string
	Value string
}

// Query is the parsed form of a LogQL query string.
type Query struct {
	Matchers []Matcher
	// TextFilter is the single |= or |~ line filter, empty when absent.
	TextFilter string
}

var (
	matcherRegex    = regexp.MustCompile(`(\w+)(=~|!~|!=|=)"([^"]+)"`)
	containsRegex   = regexp.MustCompile(`\|=\s*"([^"]+)"`)
	regexLineRegex  = regexp.MustCompile(`\|~\s*"([^"]+)"`)
	aggrRegex       = regexp.MustCompile(`count_over_time|sum by|rate|avg_over_time|sum_over_time|histogram_quantile`)
	rangeStepRegex  = regexp.MustCompile(`\[(\d+)([smhd])\]`)
	sumByRegex      = regexp.MustCompile(`(?i)sum\s+by\s*\(([^)]+)\)`)
	labelNameRegex  = regexp.MustCompile(`(\w+)=`)
)

// Parse scans q for label matchers and an optional line filter. Matchers are
// collected in order of appearance. A query with both |= and |~ filters uses
// only the |= one; a query with no matchers and no filter selects everything
// in range.
func Parse(q string) Query {
	var parsed Query

	for _, m := range matcherRegex.FindAllStringSubmatch(q, -1) {
		parsed.Matchers = append(parsed.Matchers, Matcher{
			Key:   m[1],
			Op:    m[2],
			Value: m[3],
		})
	}

	if m := containsRegex.FindStringSubmatch(q); m != nil {
		parsed.TextFilter = m[1]
	} else if m := regexLineRegex.FindStringSubmatch(q); m != nil {
		parsed.TextFilter = m[1]
	}

	return parsed
}

// IsAggregation reports whether q is a metric query (count_over_time, sum by,
// rate and friends) rather than a log selector.
func IsAggregation(q string) bool {
	return aggrRegex.MatchString(q)
}

// IsHealthProbe reports whether q is a Grafana datasource health probe such as
// vector(1)+vector(1).
func IsHealthProbe(q string) bool {
	return strings.HasPrefix(q, "vector(")
}

// RangeStep extracts the range selector duration (e.g. "[5m]" -> "5m") from an
// aggregation query. Returns the empty string when no range selector is
// present.
func RangeStep(q string) string {
	m := rangeStepRegex.FindStringSubmatch(q)
	if m == nil {
		return ""
	}
	return m[1] + m[2]
}

// SumByLabels extracts the grouping labels from a "sum by (a, b)" clause as a
// comma-joined list. Returns the empty string when the query has no such
// clause.
func SumByLabels(q string) string {
	m := sumByRegex.FindStringSubmatch(q)
	if m == nil {
		return ""
	}
	parts := strings.Split(m[1], ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}

// LabelNames returns the label names that appear on the left side of any
// matcher in q, in order of appearance. Used for volume grouping when no
// explicit target labels are supplied.
func LabelNames(q string) []string {
	var names []string
	for _, m := range labelNameRegex.FindAllStringSubmatch(q, -1) {
		names = append(names, m[1])
	}
	return names
}
