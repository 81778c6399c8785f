package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/data-analyst/backend/internal/store"
	"github.com/data-analyst/backend/internal/store/docstore"
	"github.com/data-analyst/backend/internal/store/models"
	"github.com/data-analyst/backend/pkg/logger"
)

// AuthHandler is a registration stub: it fabricates an identity without
// verifying uniqueness or credentials and hands the uid back as the token.
// Real authentication is explicitly out of scope for this service.
type AuthHandler struct {
	store *store.Gateway
}

func NewAuthHandler(gw *store.Gateway) *AuthHandler {
	return &AuthHandler{store: gw}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	user := &models.User{
		UID:         uuid.New().String(),
		Email:       req.Email,
		DisplayName: req.DisplayName,
		CreatedAt:   time.Now(),
		LastLoginAt: time.Now(),
	}

	if err := h.store.CreateUser(c.Context(), user); err != nil {
		logger.Error("Failed to register user", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Registration failed: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "User registered successfully",
		"user":    user,
		"token":   user.UID,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	logger.Info("Login request", zap.String("email", req.Email))

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Login successful",
		"token":   uuid.New().String(),
	})
}

func (h *AuthHandler) GetUser(c *fiber.Ctx) error {
	uid := c.Params("uid")

	user, err := h.store.GetUser(c.Context(), uid)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		logger.Error("Failed to fetch user", zap.String("uid", uid), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(user)
}

func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	if c.Get("Authorization") == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Invalid token",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Token verified",
	})
}
