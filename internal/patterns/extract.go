// Package patterns mines log bodies into templates: volatile tokens are
// replaced by a placeholder and occurrences are counted per time bucket.
package patterns

import "regexp"

// Placeholder is the token substituted for volatile fragments, matching the
// format Grafana expects from the patterns endpoint.
const Placeholder = "<_>"

// Rule is one replacement step of the extraction pipeline.
type Rule struct {
	Name        string
	Regex       *regexp.Regexp
	Placeholder string
}

// builtinRules is the fixed replacement pipeline, applied in order. The order
// is load-bearing for template stability and is kept as-is even where it
// shadows later rules: unix_timestamp consumes the 12-digit tail of UUIDs
// before the uuid rule sees them, and ipv4 strips the address out of ip:port
// pairs so ip_port never fires. Changing the order changes every stored
// template, so it stays fixed.
var builtinRules = []Rule{
	{Name: "iso_timestamp", Regex: regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z?`), Placeholder: Placeholder},
	{Name: "unix_timestamp", Regex: regexp.MustCompile(`\b\d{10,13}\b`), Placeholder: Placeholder},
	{Name: "uuid", Regex: regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`), Placeholder: Placeholder},
	{Name: "long_number", Regex: regexp.MustCompile(`\b\d{4,}\b`), Placeholder: Placeholder},
	{Name: "ipv4", Regex: regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), Placeholder: Placeholder},
	{Name: "email", Regex: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), Placeholder: Placeholder},
	{Name: "url", Regex: regexp.MustCompile(`https?://[^\s]+`), Placeholder: Placeholder},
	{Name: "file_path", Regex: regexp.MustCompile(`/[^\s]*\.[a-zA-Z]{2,4}`), Placeholder: Placeholder},
	{Name: "long_hex", Regex: regexp.MustCompile(`(?i)\b[0-9a-f]{16,}\b`), Placeholder: Placeholder},
	{Name: "unit_value", Regex: regexp.MustCompile(`\b\d+[a-z]+\b`), Placeholder: Placeholder},
	{Name: "ip_port", Regex: regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d+\b`), Placeholder: Placeholder},
	{Name: "domain", Regex: regexp.MustCompile(`\b[A-Za-z0-9._-]+\.[A-Za-z]{2,}\b`), Placeholder: Placeholder},
}

// Extractor turns log lines into templates by running the replacement
// pipeline. Extraction is idempotent: a template run through the pipeline
// again is unchanged.
type Extractor struct {
	rules []Rule
}

// NewExtractor builds an extractor from the built-in pipeline plus any extra
// rules, which run after the built-ins.
func NewExtractor(extra ...Rule) *Extractor {
	rules := make([]Rule, 0, len(builtinRules)+len(extra))
	rules = append(rules, builtinRules...)
	rules = append(rules, extra...)
	return &Extractor{rules: rules}
}

// Extract produces the template for one log line.
func (e *Extractor) Extract(line string) string {
	template := line
	for _, rule := range e.rules {
		template = rule.Regex.ReplaceAllString(template, rule.Placeholder)
	}
	return template
}
