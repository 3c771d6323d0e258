package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/gradelens/backend/internal/chat"
	"github.com/gradelens/backend/pkg/logger"
)

type ChatHandler struct {
	engine *chat.Engine
}

func NewChatHandler(engine *chat.Engine) *ChatHandler {
	return &ChatHandler{engine: engine}
}

type chatRequestBody struct {
	Query        string              `json:"query"`
	History      []chat.HistoryTurn  `json:"conversationHistory"`
	Session      chat.SessionContext `json:"sessionContext"`
	UserID       string              `json:"userId"`
	UseStreaming bool                `json:"useStreaming"`
}

// HandleChat runs one conversational turn. Non-streaming callers get a
// single JSON body; streaming callers get server-sent events ending with
// exactly one complete or error event.
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var body chatRequestBody
	if err := c.BodyParser(&body); err != nil {
		logger.Error("Failed to parse chat request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if strings.TrimSpace(body.Query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query is required",
		})
	}

	req := chat.Request{
		Query:   body.Query,
		History: body.History,
		Session: body.Session,
		UserID:  body.UserID,
	}

	if !body.UseStreaming {
		resp, err := h.engine.Respond(c.Context(), req)
		if err != nil {
			// Only cancellation escapes the engine; the client is gone.
			return nil
		}
		return c.JSON(resp)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		emit := func(event chat.Event) error {
			payload, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				cancel()
				return err
			}
			// A failed flush is the disconnect signal; cancel so the
			// engine stops consuming the model stream promptly.
			if err := w.Flush(); err != nil {
				cancel()
				return err
			}
			return nil
		}

		if err := h.engine.Stream(ctx, req, emit); err != nil {
			logger.Debug("Chat stream ended early", zap.Error(err))
		}
	}))

	return nil
}
