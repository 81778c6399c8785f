package handlers

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/data-analyst/backend/internal/dataset"
	"github.com/data-analyst/backend/internal/store/docstore"
	"github.com/data-analyst/backend/pkg/logger"
)

type DatasetHandler struct {
	datasets *dataset.Service
}

func NewDatasetHandler(datasets *dataset.Service) *DatasetHandler {
	return &DatasetHandler{datasets: datasets}
}

// Upload handles POST /api/datasets/upload (multipart: file, userId).
// The response is sent once the blob and metadata exist; processing runs
// detached and is observed by polling the dataset afterwards.
func (h *DatasetHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "File is required",
		})
	}

	userID := c.FormValue("userId")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "userId is required",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Upload failed: could not read file",
		})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		logger.Error("Failed to read uploaded file", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Upload failed: could not read file",
		})
	}

	ds, err := h.datasets.Upload(c.Context(), dataset.UploadInput{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
		UserID:      userID,
	})

	if err != nil {
		if errors.Is(err, dataset.ErrEmptyFile) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "File is empty",
			})
		}
		if errors.Is(err, dataset.ErrUnsupportedFileType) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid file type. Only CSV and Excel files are supported.",
			})
		}

		logger.Error("Upload failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Upload failed: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"message":       "File uploaded successfully",
		"datasetId":     ds.ID,
		"fileName":      ds.FileName,
		"fileSizeBytes": ds.FileSizeBytes,
		"storagePath":   ds.StoragePath,
	})
}

// List handles GET /api/datasets?userId=, newest upload first.
func (h *DatasetHandler) List(c *fiber.Ctx) error {
	userID := c.Query("userId")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "userId is required",
		})
	}

	datasets, err := h.datasets.List(c.Context(), userID)
	if err != nil {
		logger.Error("Failed to list datasets", zap.String("user_id", userID), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(datasets)
}

// Get handles GET /api/datasets/:id.
func (h *DatasetHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")

	ds, err := h.datasets.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		logger.Error("Failed to get dataset", zap.String("dataset_id", id), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(ds)
}

// RefreshURL handles GET /api/datasets/:id/url, re-minting a signed
// download URL when the one stored at upload time has expired.
func (h *DatasetHandler) RefreshURL(c *fiber.Ctx) error {
	id := c.Params("id")

	url, err := h.datasets.RefreshURL(c.Context(), id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		logger.Error("Failed to refresh signed URL", zap.String("dataset_id", id), zap.Error(err))
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(fiber.Map{
		"datasetId":  id,
		"storageUrl": url,
	})
}

// Delete handles DELETE /api/datasets/:id.
func (h *DatasetHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")

	err := h.datasets.Delete(c.Context(), id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return c.SendStatus(fiber.StatusNotFound)
		}
		logger.Error("Failed to delete dataset", zap.String("dataset_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Delete failed: " + err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Dataset deleted successfully",
	})
}
