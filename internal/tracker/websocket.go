package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/flowlabs/flowd/internal/clock"
	"github.com/flowlabs/flowd/internal/identity"
	"github.com/flowlabs/flowd/internal/store"
)

// WebSocketHandler serves the live focus channel: the client streams
// activity pings in, the server streams depth gauge frames out on every
// tick. One connection drives one tracker.
type WebSocketHandler struct {
	repo          store.Repository
	registry      *Registry
	clk           clock.Clock
	cfg           Config
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new focus channel handler.
func NewWebSocketHandler(repo store.Repository, registry *Registry, clk clock.Clock, cfg Config, allowedOrigin string, isDev bool) *WebSocketHandler {
	if clk == nil {
		clk = clock.System{}
	}
	return &WebSocketHandler{
		repo:          repo,
		registry:      registry,
		clk:           clk,
		cfg:           cfg.withDefaults(),
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// clientMessage is an inbound frame from the client.
type clientMessage struct {
	Type string `json:"type"`
}

// depthFrame is an outbound gauge update.
type depthFrame struct {
	Type string `json:"type"`
	Snapshot
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("focus channel connection request", "user_id", userID, "session_id", sessionID, "ip", r.RemoteAddr)

	originPatterns := []string{"*"}
	if !h.isDev && h.allowedOrigin != "" {
		originPatterns = []string{h.allowedOrigin}
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns,
	})
	if err != nil {
		slog.Error("failed to accept focus channel", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "focus channel closed"); closeErr != nil {
			slog.Debug("failed to close focus channel", "error", closeErr, "user_id", userID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session, err := h.repo.GetSession(ctx, sessionID)
	if err != nil || session == nil || session.UserID != userID {
		slog.Warn("focus channel for unknown session", "user_id", userID, "session_id", sessionID)
		h.writeJSON(ws, map[string]string{"type": "error", "error": "session_not_found"})
		return
	}
	if !session.Active() {
		h.writeJSON(ws, map[string]string{"type": "error", "error": "session_not_active"})
		return
	}

	t := New(h.clk, h.cfg)
	h.registry.Register(userID, sessionID, t)
	defer h.registry.Unregister(userID, sessionID, t)

	var writeMu sync.Mutex
	wasIdle := false
	t.OnTick(func(snap Snapshot) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if snap.Idle && !wasIdle {
			h.writeJSON(ws, map[string]string{"type": "idle"})
		}
		wasIdle = snap.Idle
		h.writeJSON(ws, depthFrame{Type: "depth", Snapshot: snap})
	})
	go t.Run()

	// Read loop: activity pings reset the idle deadline.
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("focus channel closed by client", "user_id", userID, "session_id", sessionID)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("discarding malformed focus frame", "user_id", userID, "error", err)
			continue
		}

		if msg.Type == "activity" {
			t.Touch()
		}
	}
}

func (h *WebSocketHandler) writeJSON(ws *websocket.Conn, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := ws.Write(context.Background(), websocket.MessageText, data); err != nil {
		slog.Debug("focus channel write failed", "error", err)
	}
}
