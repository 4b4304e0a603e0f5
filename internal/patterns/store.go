package patterns

import (
	"context"
	"fmt"
)

// DB is the slice of the database adapter the pattern store needs.
type DB interface {
	Query(ctx context.Context, sql string, params map[string]any) ([]map[string]any, error)
	Exec(ctx context.Context, sql string, params map[string]any) error
	Insert(ctx context.Context, table string, columns []string, rows [][]any) error
}

// ClickHouseStore persists pattern counts in an append-only ClickHouse table
// keyed by (query_hash, pattern, bucket). Rewrites of the same key are folded
// by the table engine, so Load reads the latest count per key.
type ClickHouseStore struct {
	db    DB
	table string
}

func NewClickHouseStore(db DB, table string) *ClickHouseStore {
	return &ClickHouseStore{db: db, table: table}
}

// EnsureSchema creates the pattern table when absent.
func (s *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	query_hash UInt64,
	pattern String,
	bucket Int64,
	count Int64,
	updated_at DateTime DEFAULT now()
) ENGINE = ReplacingMergeTree(updated_at)
ORDER BY (query_hash, pattern, bucket)
TTL updated_at + INTERVAL 7 DAY`, s.table)

	if err := s.db.Exec(ctx, ddl, nil); err != nil {
		return fmt.Errorf("creating pattern table: %w", err)
	}
	return nil
}

// Load reads the stored counts for one query hash over a bucket range. An
// absent table or empty result is simply "no prior patterns".
func (s *ClickHouseStore) Load(ctx context.Context, queryHash uint64, startSec, endSec int64) (Counts, error) {
	sql := fmt.Sprintf(`SELECT pattern, bucket, max(count) AS count
FROM %s
WHERE query_hash = {queryHash:UInt64} AND bucket >= {start:Int64} AND bucket <= {end:Int64}
GROUP BY pattern, bucket`, s.table)

	rows, err := s.db.Query(ctx, sql, map[string]any{
		"queryHash": queryHash,
		"start":     startSec,
		"end":       endSec,
	})
	if err != nil {
		return nil, err
	}

	counts := make(Counts)
	for _, row := range rows {
		pattern, _ := row["pattern"].(string)
		if pattern == "" {
			continue
		}
		bucket := toInt64(row["bucket"])
		count := toInt64(row["count"])
		if counts[pattern] == nil {
			counts[pattern] = make(map[int64]int64)
		}
		counts[pattern][bucket] = count
	}
	return counts, nil
}

// Save appends the merged counts for one query hash.
func (s *ClickHouseStore) Save(ctx context.Context, queryHash uint64, counts Counts) error {
	var rows [][]any
	for pattern, buckets := range counts {
		for bucket, count := range buckets {
			rows = append(rows, []any{queryHash, pattern, bucket, count})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return s.db.Insert(ctx, s.table, []string{"query_hash", "pattern", "bucket", "count"}, rows)
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
