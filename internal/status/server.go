package status

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"emastream/internal/broadcast"
	"emastream/internal/model"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Provider returns the current snapshot on demand, for the pull endpoint
// and the initial frame of each push connection.
type Provider func() *model.Snapshot

// Server exposes the snapshot stream over HTTP.
//
//	GET /status  — one point-in-time snapshot as JSON
//	GET /ws      — WebSocket, one JSON snapshot per update
type Server struct {
	provider Provider
	dist     *broadcast.Distributor
	log      *slog.Logger
	srv      *http.Server

	// Optional hooks for the subscriber gauge.
	OnSubscribe   func()
	OnUnsubscribe func()
}

// NewServer creates the status server.
func NewServer(addr string, provider Provider, dist *broadcast.Distributor, log *slog.Logger) *Server {
	s := &Server{
		provider: provider,
		dist:     dist,
		log:      log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("status server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error("status server error", "err", err)
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(s.provider().JSON())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "err", err)
		return
	}

	sub := s.dist.Subscribe()
	if sub == nil {
		conn.Close()
		return
	}
	if s.OnSubscribe != nil {
		s.OnSubscribe()
	}
	s.log.Info("ws subscriber connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		s.dist.Unsubscribe(sub)
		conn.Close()
		if s.OnUnsubscribe != nil {
			s.OnUnsubscribe()
		}
		s.log.Info("ws subscriber disconnected", "remote", r.RemoteAddr)
	}()

	go s.readPump(conn, cancel)

	// First frame: current state, so a new subscriber never waits for the
	// next market update.
	if err := s.writeSnapshot(conn, s.provider()); err != nil {
		return
	}

	send := make(chan *model.Snapshot, 16)
	go func() {
		defer close(send)
		for {
			snap, ok := sub.Next(ctx)
			if !ok {
				return
			}
			select {
			case send <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap, ok := <-send:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.writeSnapshot(conn, snap); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeSnapshot(conn *websocket.Conn, snap *model.Snapshot) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, snap.JSON())
}

// readPump drains client frames to service pings and detect disconnects;
// clients send no application data.
func (s *Server) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
