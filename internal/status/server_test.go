package status

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"emastream/internal/broadcast"
	"emastream/internal/model"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testSnapshot(price float64) *model.Snapshot {
	return &model.Snapshot{
		Symbol:       "BTCUSDT",
		Interval:     "1m",
		CurrentPrice: price,
		ServerTime:   time.Now().UnixMilli(),
		AssembledAt:  time.Now().UTC(),
	}
}

func newTestServer(t *testing.T, dist *broadcast.Distributor) *httptest.Server {
	t.Helper()
	s := NewServer(":0", func() *model.Snapshot { return testSnapshot(100) }, dist, discard())
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, broadcast.New(8))

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var snap model.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Symbol != "BTCUSDT" || snap.CurrentPrice != 100 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestStatusEndpoint_RejectsPost(t *testing.T) {
	ts := newTestServer(t, broadcast.New(8))

	resp, err := http.Post(ts.URL+"/status", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status code = %d, want 405", resp.StatusCode)
	}
}

func TestWS_InitialFrameThenUpdates(t *testing.T) {
	dist := broadcast.New(8)
	ts := newTestServer(t, dist)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Initial frame carries the provider's current state.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first model.Snapshot
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	if first.CurrentPrice != 100 {
		t.Errorf("initial price = %v, want 100", first.CurrentPrice)
	}

	// Published updates stream through.
	deadline := time.Now().Add(2 * time.Second)
	for dist.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("server never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	dist.Publish(testSnapshot(205))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update model.Snapshot
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if update.CurrentPrice != 205 {
		t.Errorf("update price = %v, want 205", update.CurrentPrice)
	}
}

func TestWS_DisconnectUnsubscribes(t *testing.T) {
	dist := broadcast.New(8)
	ts := newTestServer(t, dist)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for dist.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("server never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for dist.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber leaked after disconnect: %d", dist.SubscriberCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
