package patterns

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Entry is one log line with its nanosecond timestamp, the miner's input.
type Entry struct {
	TimestampNs int64
	Body        string
}

// Pattern is one mined template with its time-bucketed occurrence counts.
// Samples are [bucket unix seconds, count] pairs ordered by bucket.
type Pattern struct {
	Pattern string     `json:"pattern"`
	Samples [][2]int64 `json:"samples"`
}

// Counts maps template -> bucket unix seconds -> occurrences.
type Counts map[string]map[int64]int64

// Store persists per-template bucket counts keyed by a hash of the raw query
// string. Implementations are external collaborators; the miner treats every
// store failure as "no prior patterns".
type Store interface {
	Load(ctx context.Context, queryHash uint64, startSec, endSec int64) (Counts, error)
	Save(ctx context.Context, queryHash uint64, counts Counts) error
}

// QueryHash computes the rolling polynomial hash identifying a raw query
// string in the pattern store. Not collision-free, and collisions are not
// detected; acceptable at the low cardinality of real-world queries.
func QueryHash(query string) uint64 {
	var h uint64
	for _, b := range []byte(query) {
		h = h*31 + uint64(b)
	}
	return h
}

// Miner extracts templates and accumulates bucketed counts per request. A
// Miner holds no per-request state and is safe for concurrent use.
type Miner struct {
	extractor *Extractor
	store     Store // nil disables persistence
}

func NewMiner(extractor *Extractor, store Store) *Miner {
	return &Miner{extractor: extractor, store: store}
}

// Count buckets the entries' templates by step width.
func (m *Miner) Count(entries []Entry, step time.Duration) Counts {
	stepSec := int64(step / time.Second)
	if stepSec <= 0 {
		stepSec = 60
	}

	counts := make(Counts)
	for _, e := range entries {
		template := m.extractor.Extract(e.Body)
		bucket := e.TimestampNs / int64(time.Second) / stepSec * stepSec

		if counts[template] == nil {
			counts[template] = make(map[int64]int64)
		}
		counts[template][bucket]++
	}
	return counts
}

// Mine extracts patterns for one request. When persistence is enabled,
// previously stored counts for the same raw query and overlapping range are
// merged in bucket-wise, and the merged set is written back so later
// identical queries see the same totals. Store failures never fail the read
// path. Patterns come back sorted by descending total count.
func (m *Miner) Mine(ctx context.Context, rawQuery string, entries []Entry, step time.Duration, startSec, endSec int64) []Pattern {
	counts := m.Count(entries, step)

	if m.store != nil {
		hash := QueryHash(rawQuery)

		stored, err := m.store.Load(ctx, hash, startSec, endSec)
		if err != nil {
			log.Warn().Err(err).Uint64("query_hash", hash).Msg("Loading stored patterns failed, continuing without them")
		} else {
			merge(counts, stored)
		}

		if err := m.store.Save(ctx, hash, counts); err != nil {
			log.Warn().Err(err).Uint64("query_hash", hash).Msg("Persisting patterns failed")
		}
	}

	return toSorted(counts)
}

// merge adds stored counts into fresh ones bucket-wise.
func merge(into, from Counts) {
	for template, buckets := range from {
		if into[template] == nil {
			into[template] = make(map[int64]int64)
		}
		for bucket, count := range buckets {
			into[template][bucket] += count
		}
	}
}

// toSorted flattens counts into response patterns: samples ordered by bucket,
// patterns by descending total.
func toSorted(counts Counts) []Pattern {
	patterns := make([]Pattern, 0, len(counts))
	totals := make(map[string]int64, len(counts))

	for template, buckets := range counts {
		samples := make([][2]int64, 0, len(buckets))
		var total int64
		for bucket, count := range buckets {
			samples = append(samples, [2]int64{bucket, count})
			total += count
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i][0] < samples[j][0] })
		patterns = append(patterns, Pattern{Pattern: template, Samples: samples})
		totals[template] = total
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		if totals[patterns[i].Pattern] != totals[patterns[j].Pattern] {
			return totals[patterns[i].Pattern] > totals[patterns[j].Pattern]
		}
		return patterns[i].Pattern < patterns[j].Pattern
	})
	return patterns
}
