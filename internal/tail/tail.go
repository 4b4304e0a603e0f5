// Package tail streams new log entries over a websocket by polling: each tick
// re-runs the translated query over an advancing time window. The query path
// itself has no awareness of tick cadence or cancellation.
package tail

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/your-username/loki-clickhouse-gateway/internal/loki"
	"github.com/your-username/loki-clickhouse-gateway/internal/results"
)

// Streamer runs one range query and returns its response envelope.
type Streamer interface {
	QueryRange(ctx context.Context, query, start, end string, limit int, direction, step string) loki.QueryResponse
}

// Message is one websocket push, matching Loki's tail frame shape.
type Message struct {
	Streams []results.Stream `json:"streams"`
}

type Tailer struct {
	svc          Streamer
	pollInterval time.Duration
	batchSize    int
	upgrader     websocket.Upgrader
}

func NewTailer(svc Streamer) *Tailer {
	return &Tailer{
		svc:          svc,
		pollInterval: time.Second,
		batchSize:    100,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler upgrades the request and streams matching entries until the client
// goes away.
func (t *Tailer) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		if query == "" {
			http.Error(w, `{"status":"error","error":"query parameter is required"}`, http.StatusBadRequest)
			return
		}

		conn, err := t.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("Tail websocket upgrade failed")
			return
		}

		t.run(r.Context(), conn, query, r.URL.Query().Get("start"))
	}
}

func (t *Tailer) run(ctx context.Context, conn *websocket.Conn, query, start string) {
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The read pump only exists to notice the client closing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	lastNs := time.Now().Add(-5 * time.Second).UnixNano()
	if start != "" {
		if ns, err := strconv.ParseInt(start, 10, 64); err == nil {
			lastNs = ns
		}
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Tail loop stopping")
			return
		case <-ticker.C:
			streams, advanced := t.poll(ctx, query, lastNs)
			if len(streams) == 0 {
				continue
			}
			lastNs = advanced

			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(Message{Streams: streams}); err != nil {
				log.Debug().Err(err).Msg("Tail write failed, closing")
				return
			}
		}
	}
}

// poll fetches entries newer than lastNs and returns them with the new window
// edge. The window advances by a full millisecond past the newest entry since
// stored timestamps only carry millisecond precision through the gateway.
func (t *Tailer) poll(ctx context.Context, query string, lastNs int64) ([]results.Stream, int64) {
	start := strconv.FormatInt(lastNs+int64(time.Millisecond), 10)
	end := strconv.FormatInt(time.Now().UnixNano(), 10)

	resp := t.svc.QueryRange(ctx, query, start, end, t.batchSize, "forward", "")
	if resp.Status != "success" {
		log.Warn().Str("error", resp.Error).Msg("Tail poll failed")
		return nil, lastNs
	}

	streams, ok := resp.Data.Result.([]results.Stream)
	if !ok || len(streams) == 0 {
		return nil, lastNs
	}

	for _, s := range streams {
		for _, v := range s.Values {
			if ns, err := strconv.ParseInt(v[0], 10, 64); err == nil && ns > lastNs {
				lastNs = ns
			}
		}
	}
	return streams, lastNs
}
