package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/data-analyst/backend/internal/store"
	"github.com/data-analyst/backend/internal/store/models"
	"github.com/data-analyst/backend/pkg/logger"
)

// ConnectionHandler is plain CRUD over saved SQL connections. Credentials
// are stored as entered; secret handling belongs to the surrounding
// platform, not this service.
type ConnectionHandler struct {
	store *store.Gateway
}

func NewConnectionHandler(gw *store.Gateway) *ConnectionHandler {
	return &ConnectionHandler{store: gw}
}

func (h *ConnectionHandler) Save(c *fiber.Ctx) error {
	var conn models.SQLConnection
	if err := c.BodyParser(&conn); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if conn.ID == "" {
		conn.ID = "conn_" + uuid.New().String()
	}
	if conn.CreatedAt == "" {
		conn.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	if err := h.store.SaveConnection(c.Context(), &conn); err != nil {
		logger.Error("Failed to save connection", zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(conn)
}

func (h *ConnectionHandler) ListForUser(c *fiber.Ctx) error {
	userID := c.Params("userId")

	connections, err := h.store.ListConnections(c.Context(), userID)
	if err != nil {
		logger.Error("Failed to list connections", zap.String("user_id", userID), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(connections)
}

func (h *ConnectionHandler) Delete(c *fiber.Ctx) error {
	connectionID := c.Params("connectionId")

	if err := h.store.DeleteConnection(c.Context(), connectionID); err != nil {
		logger.Error("Failed to delete connection", zap.String("connection_id", connectionID), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.SendStatus(fiber.StatusOK)
}
