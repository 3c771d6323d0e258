package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/gradelens/backend/internal/chat"
	"github.com/gradelens/backend/pkg/logger"
)

// WebSocketHandler streams chat turns over a persistent connection using
// the same event protocol as the SSE endpoint.
type WebSocketHandler struct {
	engine *chat.Engine
}

func NewWebSocketHandler(engine *chat.Engine) *WebSocketHandler {
	return &WebSocketHandler{engine: engine}
}

type wsMessage struct {
	Type    string              `json:"type"`
	Query   string              `json:"query"`
	History []chat.HistoryTurn  `json:"conversationHistory"`
	Session chat.SessionContext `json:"sessionContext"`
	UserID  string              `json:"userId"`
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "chat" {
			continue
		}

		if strings.TrimSpace(msg.Query) == "" {
			h.sendError(c, "query is required")
			continue
		}

		if err := h.streamTurn(c, msg); err != nil {
			// The engine emits its own terminal error event; getting an
			// error back here means the socket itself failed.
			logger.Error("WebSocket stream failed", zap.Error(err))
			break
		}
	}
}

func (h *WebSocketHandler) streamTurn(c *websocket.Conn, msg wsMessage) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := chat.Request{
		Query:   msg.Query,
		History: msg.History,
		Session: msg.Session,
		UserID:  msg.UserID,
	}

	emit := func(event chat.Event) error {
		if err := c.WriteJSON(event); err != nil {
			cancel()
			return err
		}
		return nil
	}

	err := h.engine.Stream(ctx, req, emit)
	if err == context.Canceled {
		return err
	}
	return nil
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(chat.Event{
		Type:    chat.EventError,
		Message: errorMsg,
	})
}
