package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Config struct {
	MaxQueryLength int
	Logger         *zap.Logger
}

// Middleware screens the natural-language query surface before it reaches
// the orchestrator: payload shape and length only. Content validation for
// uploads lives in the dataset service where the multipart part is read.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxQueryLength == 0 {
		cfg.MaxQueryLength = 5000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost || c.Path() != "/api/query" {
			return c.Next()
		}

		var req struct {
			Query string `json:"query"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		query := strings.TrimSpace(req.Query)
		if query == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Query is required",
			})
		}

		if len(query) > cfg.MaxQueryLength {
			cfg.Logger.Warn("Oversized query rejected",
				zap.String("ip", c.IP()),
				zap.Int("length", len(query)),
			)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Query exceeds maximum length",
			})
		}

		return c.Next()
	}
}
