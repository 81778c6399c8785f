package dataset

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/data-analyst/backend/internal/analysis"
	"github.com/data-analyst/backend/internal/blob"
	"github.com/data-analyst/backend/internal/cache/redis"
	"github.com/data-analyst/backend/internal/metrics"
	"github.com/data-analyst/backend/internal/store"
	"github.com/data-analyst/backend/internal/store/models"
	"github.com/data-analyst/backend/internal/tasks"
	"github.com/data-analyst/backend/pkg/logger"
	"github.com/data-analyst/backend/pkg/utils"
)

var (
	ErrEmptyFile           = errors.New("file is empty")
	ErrUnsupportedFileType = errors.New("invalid file type, only CSV and Excel files are supported")
)

var allowedContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

// Engine is the slice of the analysis client the lifecycle needs.
type Engine interface {
	Process(ctx context.Context, datasetID, fileURL, fileName string) (*analysis.ProcessResult, error)
}

// Service drives a dataset through upload validation, blob placement,
// metadata registration and the detached processing dispatch.
type Service struct {
	store     *store.Gateway
	blobs     blob.Store
	engine    Engine
	pool      *tasks.Pool
	cache     *redis.Client
	signedTTL time.Duration
}

type UploadInput struct {
	FileName    string
	ContentType string
	Data        []byte
	UserID      string
}

func NewService(gw *store.Gateway, blobs blob.Store, engine Engine, pool *tasks.Pool, cache *redis.Client, signedTTL time.Duration) *Service {
	if signedTTL == 0 {
		signedTTL = 7 * 24 * time.Hour
	}

	return &Service{
		store:     gw,
		blobs:     blobs,
		engine:    engine,
		pool:      pool,
		cache:     cache,
		signedTTL: signedTTL,
	}
}

// Upload validates the payload, places the bytes, registers metadata and
// dispatches processing. It returns as soon as the record exists; the
// processed flag flips later, out of band, or never if the engine fails.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*models.Dataset, error) {
	logger.Info("Upload request",
		zap.String("user_id", in.UserID),
		zap.String("file_name", in.FileName),
		zap.Int("size_bytes", len(in.Data)),
	)

	if len(in.Data) == 0 {
		metrics.UploadsTotal.WithLabelValues("validation_failed").Inc()
		return nil, ErrEmptyFile
	}
	if !allowedContentTypes[normalizeContentType(in.ContentType)] {
		metrics.UploadsTotal.WithLabelValues("validation_failed").Inc()
		return nil, ErrUnsupportedFileType
	}

	storagePath := s.buildStoragePath(in.UserID, in.FileName)

	if err := s.blobs.Put(ctx, storagePath, in.Data, in.ContentType); err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	storageURL, err := s.blobs.SignedURL(storagePath, s.signedTTL)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to sign storage url: %w", err)
	}

	dataset := &models.Dataset{
		ID:            uuid.New().String(),
		UserID:        in.UserID,
		FileName:      in.FileName,
		StoragePath:   storagePath,
		StorageURL:    storageURL,
		FileSizeBytes: int64(len(in.Data)),
		FileType:      fileTypeTag(in.FileName),
		UploadedAt:    time.Now(),
		Processed:     false,
		RowCount:      0,
		ColumnCount:   0,
	}

	if err := s.store.CreateDataset(ctx, dataset); err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	s.dispatchProcessing(dataset.ID, storageURL, in.FileName)

	metrics.UploadsTotal.WithLabelValues("success").Inc()
	metrics.UploadBytes.Observe(float64(len(in.Data)))

	return dataset, nil
}

// dispatchProcessing hands the dataset to the engine on the task pool.
// Best effort by design: no retry, no persisted task state, and nothing
// awaits the outcome. A crash in between leaves the dataset unprocessed
// forever, observable only through polling its processed flag.
func (s *Service) dispatchProcessing(datasetID, fileURL, fileName string) {
	s.pool.Submit("process-dataset", func(ctx context.Context) {
		started := time.Now()

		result, err := s.engine.Process(ctx, datasetID, fileURL, fileName)
		if err != nil {
			metrics.ProcessingTotal.WithLabelValues("transport_error").Inc()
			logger.Error("Dataset processing dispatch failed",
				zap.String("dataset_id", datasetID),
				zap.Error(err),
			)
			return
		}

		if !result.Success {
			metrics.ProcessingTotal.WithLabelValues("engine_failed").Inc()
			logger.Error("Dataset processing failed",
				zap.String("dataset_id", datasetID),
				zap.String("engine_error", result.Error),
			)
			return
		}

		err = s.store.UpdateDatasetProcessing(ctx, datasetID, true, result.RowCount, result.ColumnCount)
		if err != nil {
			metrics.ProcessingTotal.WithLabelValues("update_failed").Inc()
			logger.Error("Failed to record processing result",
				zap.String("dataset_id", datasetID),
				zap.Error(err),
			)
			return
		}

		metrics.ProcessingTotal.WithLabelValues("success").Inc()
		metrics.ProcessingDuration.Observe(time.Since(started).Seconds())
		logger.Info("Dataset processed",
			zap.String("dataset_id", datasetID),
			zap.Int("row_count", result.RowCount),
			zap.Int("column_count", result.ColumnCount),
		)
	})
}

// List returns the user's datasets newest-upload-first. The store gives no
// ordering, so the sort happens here; a full collection scan per call is a
// known scalability limit inherited from the store contract.
func (s *Service) List(ctx context.Context, userID string) ([]models.Dataset, error) {
	datasets, err := s.store.ListDatasets(ctx, userID)
	if err != nil {
		return nil, err
	}

	sort.Slice(datasets, func(i, j int) bool {
		return datasets[i].UploadedAt.After(datasets[j].UploadedAt)
	})

	return datasets, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Dataset, error) {
	return s.store.GetDataset(ctx, id)
}

// RefreshURL re-mints a signed download URL for a dataset whose stored one
// has expired. Fresh URLs are cached well below their own lifetime so
// repeated refreshes stay cheap.
func (s *Service) RefreshURL(ctx context.Context, id string) (string, error) {
	ds, err := s.store.GetDataset(ctx, id)
	if err != nil {
		return "", err
	}

	pathHash := utils.HashString(ds.StoragePath)
	if url, ok := s.cache.GetSignedURL(ctx, pathHash); ok {
		return url, nil
	}

	url, err := s.blobs.SignedURL(ds.StoragePath, s.signedTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign storage url: %w", err)
	}

	s.cache.SetSignedURL(ctx, pathHash, url, time.Hour)
	return url, nil
}

// Delete removes the blob first, then the metadata. The two are not
// transactional: a blob deletion failure is logged and metadata deletion
// proceeds anyway. Chat history for the dataset is deliberately left alone.
func (s *Service) Delete(ctx context.Context, id string) error {
	dataset, err := s.store.GetDataset(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.blobs.Delete(ctx, dataset.StoragePath); err != nil {
		logger.Error("Failed to delete blob, removing metadata anyway",
			zap.String("dataset_id", id),
			zap.String("path", dataset.StoragePath),
			zap.Error(err),
		)
	}

	if err := s.store.DeleteDataset(ctx, id); err != nil {
		return err
	}

	metrics.DatasetsDeleted.Inc()
	logger.Info("Dataset deleted", zap.String("dataset_id", id))
	return nil
}

func (s *Service) buildStoragePath(userID, fileName string) string {
	ext := filepath.Ext(fileName)
	timestamp := time.Now().UnixMilli()
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("datasets/%s/%d_%s%s", userID, timestamp, suffix, ext)
}

func fileTypeTag(fileName string) string {
	ext := strings.TrimPrefix(filepath.Ext(fileName), ".")
	if ext == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(ext)
}

func normalizeContentType(contentType string) string {
	// Multipart parts may carry parameters, e.g. "text/csv; charset=utf-8".
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(strings.ToLower(contentType))
}
