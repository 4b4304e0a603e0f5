package tail

import (
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/your-username/loki-clickhouse-gateway/internal/loki"
	"github.com/your-username/loki-clickhouse-gateway/internal/results"
)

type fakeStreamer struct {
	mu     sync.Mutex
	calls  int32
	starts []string
}

func (f *fakeStreamer) start(i int) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.starts[i], 10, 64)
	return n
}

func (f *fakeStreamer) QueryRange(_ context.Context, _, start, _ string, _ int, _, _ string) loki.QueryResponse {
	n := atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.starts = append(f.starts, start)
	f.mu.Unlock()

	if n == 1 {
		return loki.QueryResponse{
			Status: "success",
			Data: loki.QueryData{
				ResultType: "streams",
				Result: []results.Stream{{
					Stream: map[string]string{"service_name": "api"},
					Values: [][2]string{{"1700000000123000000", "hello"}},
				}},
			},
		}
	}
	return loki.QueryResponse{
		Status: "success",
		Data:   loki.QueryData{ResultType: "streams", Result: []results.Stream{}},
	}
}

func TestTailPushesBatchesAndAdvancesWindow(t *testing.T) {
	streamer := &fakeStreamer{}
	tailer := NewTailer(streamer)
	tailer.pollInterval = 10 * time.Millisecond

	srv := httptest.NewServer(tailer.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?query=%7Bservice_name%3D%22api%22%7D&start=1700000000000000000"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("reading tail frame: %v", err)
	}

	if len(msg.Streams) != 1 || msg.Streams[0].Values[0][1] != "hello" {
		t.Fatalf("frame = %+v", msg)
	}

	// Wait for at least one more poll, then check the window advanced past
	// the entry we already saw.
	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&streamer.calls) < 2 {
		t.Fatal("expected repeated polling")
	}

	first := streamer.start(0)
	second := streamer.start(1)
	if first != 1700000000000000000+int64(time.Millisecond) {
		t.Errorf("first window start = %d", first)
	}
	if second <= 1700000000123000000 {
		t.Errorf("window must advance past the newest entry, got %d", second)
	}
}

func TestTailRejectsMissingQuery(t *testing.T) {
	srv := httptest.NewServer(NewTailer(&fakeStreamer{}).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial should fail without a query")
	}
	if resp == nil || resp.StatusCode != 400 {
		t.Errorf("response = %+v", resp)
	}
}
