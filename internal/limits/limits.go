// Package limits enforces per-query cost bounds: validation before a query
// runs and series/chunk accounting while its results are assembled.
package limits

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Config holds the query bounds. Zero means unlimited except where a default
// is stated.
type Config struct {
	MaxQuerySeries          int           // default 500
	MaxEntriesLimitPerQuery int           // default 1000
	MaxChunksPerQuery       int           // 0 = unlimited
	MaxChunkBytesPerQuery   int           // 0 = unlimited
	MaxQueryLength          time.Duration // end-start cap, 0 = unlimited
	MaxQueryLookback        time.Duration // how far back start may reach, 0 = unlimited
	RequiredLabels          []string
	RequiredNumberLabels    int
}

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{
		MaxQuerySeries:          500,
		MaxEntriesLimitPerQuery: 1000,
	}
}

var matcherCountRegex = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*\s*=`)

// Middleware validates queries against the configured bounds before any
// store call is made.
type Middleware struct {
	cfg Config
}

func NewMiddleware(cfg Config) *Middleware {
	return &Middleware{cfg: cfg}
}

// ValidateQuery runs the pre-execution checks in order: required labels,
// required matcher count, maximum query duration, maximum lookback. The
// first failing check aborts the query with a descriptive error and no
// partial results. Start and end are nanosecond epochs; a zero bound skips
// its range checks.
func (m *Middleware) ValidateQuery(query string, startNs, endNs int64) error {
	if len(m.cfg.RequiredLabels) > 0 {
		var missing []string
		for _, label := range m.cfg.RequiredLabels {
			if !strings.Contains(query, label+"=") {
				missing = append(missing, label)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("stream selector is missing required matchers [%s]", strings.Join(missing, ", "))
		}
	}

	if m.cfg.RequiredNumberLabels > 0 {
		present := len(matcherCountRegex.FindAllString(query, -1))
		if present < m.cfg.RequiredNumberLabels {
			return fmt.Errorf("stream selector has less label matchers than required: (present: %d, required_number_label_matchers: %d)",
				present, m.cfg.RequiredNumberLabels)
		}
	}

	if m.cfg.MaxQueryLength > 0 && startNs > 0 && endNs > 0 {
		length := time.Duration(endNs - startNs)
		if length > m.cfg.MaxQueryLength {
			return fmt.Errorf("query length (%s) exceeds limit (%s)", length, m.cfg.MaxQueryLength)
		}
	}

	if m.cfg.MaxQueryLookback > 0 && startNs > 0 {
		minStart := time.Now().Add(-m.cfg.MaxQueryLookback)
		if time.Unix(0, startNs).Before(minStart) {
			return fmt.Errorf("query start time (%s) is before allowed lookback period (%s)",
				time.Unix(0, startNs).UTC().Format(time.RFC3339), minStart.UTC().Format(time.RFC3339))
		}
	}

	return nil
}

// NewQueryLimiter creates the per-execution limiter for one query.
func (m *Middleware) NewQueryLimiter() *QueryLimiter {
	return NewQueryLimiter(m.cfg.MaxQuerySeries, m.cfg.MaxChunkBytesPerQuery, m.cfg.MaxChunksPerQuery)
}

// QueryLimiter tracks unique series, chunk bytes and chunk count for a single
// query execution. It is created at the start of one execution and discarded
// at the end; it is not safe for concurrent use and never shared across
// queries. Each Add method reports whether its limit was just exceeded; the
// caller decides whether to stop.
type QueryLimiter struct {
	uniqueSeries  map[string]struct{}
	chunkBytes    int
	chunkCount    int
	maxSeries     int
	maxChunkBytes int
	maxChunks     int
}

func NewQueryLimiter(maxSeries, maxChunkBytes, maxChunks int) *QueryLimiter {
	return &QueryLimiter{
		uniqueSeries:  make(map[string]struct{}),
		maxSeries:     maxSeries,
		maxChunkBytes: maxChunkBytes,
		maxChunks:     maxChunks,
	}
}

// AddSeries admits a series key. A key already admitted is never counted
// twice. Returns true only when admitting a new key would exceed the cap.
func (l *QueryLimiter) AddSeries(key string) bool {
	if _, ok := l.uniqueSeries[key]; ok {
		return false
	}
	if l.maxSeries > 0 && len(l.uniqueSeries) >= l.maxSeries {
		return true
	}
	l.uniqueSeries[key] = struct{}{}
	return false
}

// AddChunkBytes accumulates a chunk-byte estimate.
func (l *QueryLimiter) AddChunkBytes(n int) bool {
	l.chunkBytes += n
	return l.maxChunkBytes > 0 && l.chunkBytes > l.maxChunkBytes
}

// AddChunk counts one chunk.
func (l *QueryLimiter) AddChunk() bool {
	l.chunkCount++
	return l.maxChunks > 0 && l.chunkCount > l.maxChunks
}

// Stats returns the counters accumulated so far.
func (l *QueryLimiter) Stats() (seriesCount, chunkBytes, chunkCount int) {
	return len(l.uniqueSeries), l.chunkBytes, l.chunkCount
}

// FormatBytes renders a byte count in human-readable form.
func FormatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0B"
	}
	sizes := []string{"B", "KB", "MB", "GB", "TB"}
	value := float64(bytes)
	i := 0
	for value >= 1024 && i < len(sizes)-1 {
		value /= 1024
		i++
	}
	return fmt.Sprintf("%.4g%s", value, sizes[i])
}
