package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/ashureev/eduvane/internal/domain"
	"github.com/ashureev/eduvane/internal/gateway"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Frame types on /ws/chat.
const (
	FrameRespond  = "respond"
	FrameIntent   = "intent"
	FrameResponse = "response"
	FrameError    = "error"
)

// wsRequest is one inbound frame.
type wsRequest struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	domain.TurnRequest
}

// wsReply is one outbound frame. Replies follow request order.
type wsReply struct {
	Type   string `json:"type"`
	ID     string `json:"id,omitempty"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// WebSocketHandler serves turns over a WebSocket. Frames on one socket are
// handled one at a time, so responses arrive in request order.
type WebSocketHandler struct {
	svc       *gateway.Service
	origins   []string
	readLimit int64
	logger    *slog.Logger
}

// NewWebSocketHandler creates a WebSocket handler. allowedOrigins uses the CORS
// origin list; readLimit caps a single frame.
func NewWebSocketHandler(svc *gateway.Service, allowedOrigins []string, readLimit int64, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		svc:       svc,
		origins:   originPatterns(allowedOrigins),
		readLimit: readLimit,
		logger:    logger,
	}
}

// originPatterns converts origins to the host patterns websocket.Accept expects.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("Failed to accept WebSocket", "error", err, "user_id", sess.UserID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr, "user_id", sess.UserID)
		}
	}()
	if h.readLimit > 0 {
		ws.SetReadLimit(h.readLimit)
	}

	ctx := gateway.WithChannel(r.Context(), "chat_ws")
	h.logger.Info("WebSocket chat connected", "user_id", sess.UserID)

	for {
		var req wsRequest
		if err := wsjson.Read(ctx, ws, &req); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				h.logger.Debug("WebSocket read ended", "error", err, "user_id", sess.UserID)
			}
			return
		}

		reply := h.handleFrame(ctx, sess, req)
		if err := wsjson.Write(ctx, ws, reply); err != nil {
			h.logger.Debug("WebSocket write failed", "error", err, "user_id", sess.UserID)
			return
		}
	}
}

func (h *WebSocketHandler) handleFrame(ctx context.Context, sess domain.Session, req wsRequest) wsReply {
	switch req.Type {
	case "", FrameRespond:
		resp, err := h.svc.Respond(ctx, sess, req.TurnRequest)
		if err != nil {
			return errorReply(req.ID, err, msgRespondFailed)
		}
		return wsReply{Type: FrameResponse, ID: req.ID, Data: resp}
	case FrameIntent:
		res, sessionID, err := h.svc.Classify(ctx, sess, req.TurnRequest)
		if err != nil {
			return errorReply(req.ID, err, msgIntentFailed)
		}
		return wsReply{Type: FrameResponse, ID: req.ID, Data: intentResponse{SessionID: sessionID, Intent: res.Intent, Role: res.Role}}
	default:
		return wsReply{Type: FrameError, ID: req.ID, Status: http.StatusBadRequest, Error: "Unknown frame type."}
	}
}

func errorReply(id string, err error, upstreamMsg string) wsReply {
	var verr *gateway.ValidationError
	switch {
	case errors.As(err, &verr):
		return wsReply{Type: FrameError, ID: id, Status: http.StatusBadRequest, Error: verr.Message}
	case errors.Is(err, gateway.ErrNoSession):
		return wsReply{Type: FrameError, ID: id, Status: http.StatusUnauthorized, Error: msgNoSession}
	default:
		return wsReply{Type: FrameError, ID: id, Status: http.StatusBadGateway, Error: upstreamMsg}
	}
}

var _ http.Handler = (*WebSocketHandler)(nil)
