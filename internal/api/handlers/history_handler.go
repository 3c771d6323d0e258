package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/gradelens/backend/internal/storage/sqlite"
	"github.com/gradelens/backend/pkg/logger"
)

type HistoryHandler struct {
	db *sqlite.Client
}

func NewHistoryHandler(db *sqlite.Client) *HistoryHandler {
	return &HistoryHandler{db: db}
}

// GetChatHistory returns a user's recent chat audit records.
func (h *HistoryHandler) GetChatHistory(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	records, err := h.db.RecentChatRecords(c.Context(), userID, c.QueryInt("limit", 20))
	if err != nil {
		logger.Error("Failed to load chat history", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load chat history",
		})
	}

	return c.JSON(fiber.Map{
		"history": records,
	})
}
