package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/data-analyst/backend/internal/query"
	"github.com/data-analyst/backend/pkg/logger"
)

type QueryHandler struct {
	queries *query.Service
}

func NewQueryHandler(queries *query.Service) *QueryHandler {
	return &QueryHandler{queries: queries}
}

// Query handles POST /api/query. The call blocks until the engine answers;
// failures come back with success=false and a 500.
func (h *QueryHandler) Query(c *fiber.Ctx) error {
	var req struct {
		DatasetID string `json:"datasetId"`
		Query     string `json:"query"`
		UserID    string `json:"userId"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse query request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.DatasetID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Dataset ID is required",
		})
	}
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	result := h.queries.Ask(c.Context(), req.DatasetID, req.Query, req.UserID)
	if !result.Success {
		return c.Status(fiber.StatusInternalServerError).JSON(result)
	}

	return c.JSON(result)
}

// History handles GET /api/query/history/:datasetId, ascending by time.
func (h *QueryHandler) History(c *fiber.Ctx) error {
	datasetID := c.Params("datasetId")

	messages, err := h.queries.History(c.Context(), datasetID)
	if err != nil {
		logger.Error("Failed to fetch chat history", zap.String("dataset_id", datasetID), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(messages)
}

// Health handles GET /api/query/health. The pythonService key is kept for
// compatibility with the existing frontend.
func (h *QueryHandler) Health(c *fiber.Ctx) error {
	engineStatus := "DOWN"
	if h.queries.EngineHealthy(c.Context()) {
		engineStatus = "UP"
	}

	return c.JSON(fiber.Map{
		"status":        "UP",
		"pythonService": engineStatus,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}
