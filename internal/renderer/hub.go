// Package renderer implements the Event Orchestrator and the
// single-client Renderer Push Channel of spec §4.8/§6.2: a
// process-wide websocket hub where a newcomer evicts the incumbent
// ("last writer wins"), fed by per-session wave-readiness aggregation
// consumed from the wave pool's result channel. Grounded on the
// teacher's websocket upgrade pattern in internal/httpapi/server.go
// and the Subscribe/publishLocked consumer-loop idiom of
// internal/tasks/manager.go, adapted from multi-client fan-out to a
// single evictable connection.
package renderer

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/watershed-arts/basin/internal/observability"
	"github.com/watershed-arts/basin/internal/protocol"
)

// Hub owns the single renderer connection. Publishing never blocks:
// if no client is connected, messages are dropped silently (spec
// §4.8: "Disconnection: ... events are dropped silently").
type Hub struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	upgrader websocket.Upgrader
	metrics  *observability.Metrics
	log      *slog.Logger
}

// NewHub builds a Hub. allowAnyOrigin disables the same-origin check,
// mirroring the teacher's cfg.AllowAnyOrigin escape hatch.
func NewHub(allowAnyOrigin bool, metrics *observability.Metrics, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		metrics: metrics,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameOriginCheck(allowAnyOrigin),
		},
	}
}

// sameOriginCheck mirrors the teacher's CheckOrigin logic: non-browser
// clients (no Origin header) are allowed, browser clients must match
// the request host unless allowAnyOrigin is set.
func sameOriginCheck(allowAnyOrigin bool) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if allowAnyOrigin {
			return true
		}
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}

// Accept upgrades an incoming HTTP request to a websocket connection,
// evicting any existing connection first ("last writer wins").
func (h *Hub) Accept(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	h.mu.Lock()
	old := h.conn
	h.conn = conn
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.PushChannelConnected.Set(1)
	}

	if old != nil {
		_ = old.Close()
	}

	go h.readLoop(conn)
	return nil
}

// readLoop does nothing with inbound frames (the protocol is
// server-push only) but must drain the connection so the client's
// close frame and disconnects are observed.
func (h *Hub) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.mu.Lock()
			if h.conn == conn {
				h.conn = nil
				if h.metrics != nil {
					h.metrics.PushChannelConnected.Set(0)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// Publish sends one envelope to the connected client, if any. Never
// blocks the caller (wave pool / workflow) beyond a single write.
func (h *Hub) Publish(env protocol.PushEnvelope) {
	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()

	if conn == nil {
		if h.metrics != nil {
			h.metrics.ObservePushMessage(string(env.Type), "dropped_no_client")
		}
		return
	}

	payload, err := json.Marshal(env)
	if err != nil {
		h.log.Error("renderer: marshal push envelope failed", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		h.log.Warn("renderer: push write failed", "error", err)
		if h.metrics != nil {
			h.metrics.ObservePushMessage(string(env.Type), "write_error")
		}
		return
	}
	if h.metrics != nil {
		h.metrics.ObservePushMessage(string(env.Type), "sent")
	}
}
