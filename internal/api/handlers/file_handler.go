package handlers

import (
	"errors"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/data-analyst/backend/internal/blob"
	blobfs "github.com/data-analyst/backend/internal/blob/fs"
	"github.com/data-analyst/backend/pkg/logger"
)

// FileHandler serves the signed download URLs minted by the blob store.
// Possession of a valid, unexpired signature is the only credential.
type FileHandler struct {
	blobs *blobfs.Store
}

func NewFileHandler(blobs *blobfs.Store) *FileHandler {
	return &FileHandler{blobs: blobs}
}

// Download handles GET /api/files/*?exp=&sig=.
func (h *FileHandler) Download(c *fiber.Ctx) error {
	path, err := url.PathUnescape(c.Params("*"))
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	expires, err := strconv.ParseInt(c.Query("exp"), 10, 64)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	sig := c.Query("sig")
	if !h.blobs.Verify(path, expires, sig) {
		logger.Warn("Rejected signed download", zap.String("path", path))
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Invalid or expired signature",
		})
	}

	data, err := h.blobs.Get(c.Context(), path)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		logger.Error("Failed to read blob", zap.String("path", path), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	c.Set(fiber.HeaderContentType, h.blobs.ContentType(path))
	return c.Send(data)
}
