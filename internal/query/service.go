package query

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/data-analyst/backend/internal/analysis"
	"github.com/data-analyst/backend/internal/cache/redis"
	"github.com/data-analyst/backend/internal/metrics"
	"github.com/data-analyst/backend/internal/store"
	"github.com/data-analyst/backend/internal/store/models"
	"github.com/data-analyst/backend/pkg/logger"
)

const historyCacheTTL = 5 * time.Minute

// Engine is the slice of the analysis client the query path needs.
type Engine interface {
	Query(ctx context.Context, datasetID, query, userID string) (*analysis.QueryResult, error)
	HealthCheck(ctx context.Context) bool
}

// Service dispatches natural-language queries to the engine and keeps the
// per-dataset chat history. Unlike dataset processing, everything here is
// synchronous: the caller blocks until the engine answers or fails.
type Service struct {
	store  *store.Gateway
	engine Engine
	cache  *redis.Client
}

// Result mirrors the query response contract. Failures are carried in-band
// with Success=false rather than as errors, with the latency measured up to
// the point of failure.
type Result struct {
	Success        bool   `json:"success"`
	Response       string `json:"response,omitempty"`
	Error          string `json:"error,omitempty"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
	MessageID      string `json:"messageId,omitempty"`
}

func NewService(gw *store.Gateway, engine Engine, cache *redis.Client) *Service {
	return &Service{
		store:  gw,
		engine: engine,
		cache:  cache,
	}
}

// Ask runs one query round trip. A successful exchange is appended to the
// dataset's chat history; a failed one leaves no trace beyond logs.
func (s *Service) Ask(ctx context.Context, datasetID, queryText, userID string) *Result {
	started := time.Now()

	logger.Info("Query request",
		zap.String("dataset_id", datasetID),
		zap.String("user_id", userID),
	)

	engineResult, err := s.engine.Query(ctx, datasetID, queryText, userID)
	elapsed := time.Since(started).Milliseconds()

	if err != nil {
		metrics.QueryTotal.WithLabelValues("transport_error").Inc()
		logger.Error("Query dispatch failed", zap.String("dataset_id", datasetID), zap.Error(err))
		return &Result{Success: false, Error: err.Error(), ResponseTimeMs: elapsed}
	}

	if !engineResult.Success || engineResult.Response == "" {
		metrics.QueryTotal.WithLabelValues("engine_failed").Inc()

		errMsg := engineResult.Error
		if errMsg == "" {
			errMsg = "Query failed"
		}
		logger.Warn("Engine reported query failure",
			zap.String("dataset_id", datasetID),
			zap.String("engine_error", errMsg),
		)
		return &Result{Success: false, Error: errMsg, ResponseTimeMs: elapsed}
	}

	message := &models.ChatMessage{
		ID:             uuid.New().String(),
		DatasetID:      datasetID,
		UserID:         userID,
		UserMessage:    queryText,
		AIResponse:     engineResult.Response,
		Timestamp:      time.Now(),
		ResponseTimeMs: elapsed,
	}

	if err := s.store.SaveChatMessage(ctx, message); err != nil {
		// Persisting the exchange is part of the success contract: the
		// caller gets a generic failure, the cause stays in the logs.
		metrics.QueryTotal.WithLabelValues("persistence_error").Inc()
		logger.Error("Failed to save chat message", zap.String("dataset_id", datasetID), zap.Error(err))
		return &Result{Success: false, Error: "Query failed", ResponseTimeMs: elapsed}
	}
	s.cache.InvalidateChatHistory(ctx, datasetID)

	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.QueryDuration.Observe(time.Since(started).Seconds())

	return &Result{
		Success:        true,
		Response:       engineResult.Response,
		ResponseTimeMs: elapsed,
		MessageID:      message.ID,
	}
}

// History returns a dataset's chat messages in ascending timestamp order,
// whatever order the store yields them in.
func (s *Service) History(ctx context.Context, datasetID string) ([]models.ChatMessage, error) {
	if cached, ok := s.cache.GetChatHistory(ctx, datasetID); ok {
		return cached, nil
	}

	messages, err := s.store.ChatHistory(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})

	s.cache.SetChatHistory(ctx, datasetID, messages, historyCacheTTL)
	return messages, nil
}

// SaveMessage appends a pre-built exchange, used by the raw chat surface.
func (s *Service) SaveMessage(ctx context.Context, message *models.ChatMessage) error {
	if message.ID == "" {
		message.ID = "msg_" + uuid.New().String()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	if err := s.store.SaveChatMessage(ctx, message); err != nil {
		return err
	}

	s.cache.InvalidateChatHistory(ctx, message.DatasetID)
	return nil
}

func (s *Service) EngineHealthy(ctx context.Context) bool {
	return s.engine.HealthCheck(ctx)
}
