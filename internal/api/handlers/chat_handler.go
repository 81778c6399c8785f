package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/data-analyst/backend/internal/query"
	"github.com/data-analyst/backend/internal/store/models"
	"github.com/data-analyst/backend/pkg/logger"
)

// ChatHandler exposes the raw chat-history surface: direct append plus
// per-dataset reads. The query endpoint appends on its own; this exists for
// clients that record exchanges themselves.
type ChatHandler struct {
	queries *query.Service
}

func NewChatHandler(queries *query.Service) *ChatHandler {
	return &ChatHandler{queries: queries}
}

func (h *ChatHandler) Save(c *fiber.Ctx) error {
	var message models.ChatMessage
	if err := c.BodyParser(&message); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.queries.SaveMessage(c.Context(), &message); err != nil {
		logger.Error("Failed to save chat message", zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(message)
}

func (h *ChatHandler) History(c *fiber.Ctx) error {
	datasetID := c.Params("datasetId")

	messages, err := h.queries.History(c.Context(), datasetID)
	if err != nil {
		logger.Error("Failed to fetch chat history", zap.String("dataset_id", datasetID), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(messages)
}
