package database

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog/log"

	"github.com/your-username/loki-clickhouse-gateway/internal/config"
)

// timestampLayout is how DateTime64 columns are rendered into row maps, so
// downstream code sees the same textual form the database uses.
const timestampLayout = "2006-01-02 15:04:05.000000000"

// DB wraps a native-protocol ClickHouse connection. All queries go through
// server-side bound parameters; no caller value is ever concatenated into
// query text here.
type DB struct {
	conn driver.Conn
}

func New(cfg config.DatabaseConfig) (*DB, error) {
	addr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	log.Info().Str("addr", addr).Str("database", cfg.Database).Str("username", cfg.Username).Msg("Connecting to ClickHouse")

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("opening ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging ClickHouse: %w", err)
	}

	log.Info().Msg("Connected to ClickHouse")
	return &DB{conn: conn}, nil
}

// Query runs a parameterized query and returns rows as loosely-typed maps.
// Params bind to {name:Type} placeholders in the query text.
func (db *DB) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	rows, err := db.conn.Query(ctx, query, namedArgs(params)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns := rows.Columns()
	types := rows.ColumnTypes()

	var out []map[string]any
	for rows.Next() {
		targets := make([]any, len(types))
		for i, t := range types {
			targets[i] = reflect.New(t.ScanType()).Interface()
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalize(reflect.ValueOf(targets[i]).Elem().Interface())
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Exec runs a statement with no result set.
func (db *DB) Exec(ctx context.Context, query string, params map[string]any) error {
	return db.conn.Exec(ctx, query, namedArgs(params)...)
}

// Insert writes rows through a prepared batch. Column names come from our own
// code, never from request input.
func (db *DB) Insert(ctx context.Context, table string, columns []string, rows [][]any) error {
	batch, err := db.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(columns, ", ")))
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := batch.Append(row...); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (db *DB) Health(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func namedArgs(params map[string]any) []any {
	args := make([]any, 0, len(params))
	for name, value := range params {
		args = append(args, clickhouse.Named(name, value))
	}
	return args
}

// normalize unwraps pointer scan targets and renders timestamps as text, so
// row consumers only ever see strings, numbers and string maps.
func normalize(v any) any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		v = rv.Elem().Interface()
	}

	if ts, ok := v.(time.Time); ok {
		return ts.UTC().Format(timestampLayout)
	}
	return v
}
