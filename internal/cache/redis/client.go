package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/data-analyst/backend/internal/metrics"
	"github.com/data-analyst/backend/internal/store/models"
	"github.com/data-analyst/backend/pkg/logger"
)

// Client caches chat history per dataset and minted signed URLs. It is an
// optional dependency: every consumer tolerates a nil *Client.
type Client struct {
	client *redis.Client
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) GetChatHistory(ctx context.Context, datasetID string) ([]models.ChatMessage, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, chatHistoryKey(datasetID)).Bytes()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues("chat_history").Inc()
		return nil, false
	}
	if err != nil {
		logger.Warn("Failed to read chat history cache", zap.Error(err))
		return nil, false
	}

	var messages []models.ChatMessage
	if err := json.Unmarshal(data, &messages); err != nil {
		logger.Warn("Failed to unmarshal cached chat history", zap.Error(err))
		return nil, false
	}

	metrics.CacheHits.WithLabelValues("chat_history").Inc()
	logger.Debug("Chat history cache hit", zap.String("dataset_id", datasetID))
	return messages, true
}

func (c *Client) SetChatHistory(ctx context.Context, datasetID string, messages []models.ChatMessage, ttl time.Duration) {
	if c == nil {
		return
	}

	data, err := json.Marshal(messages)
	if err != nil {
		logger.Warn("Failed to marshal chat history for cache", zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, chatHistoryKey(datasetID), data, ttl).Err(); err != nil {
		logger.Warn("Failed to cache chat history", zap.Error(err))
	}
}

func (c *Client) InvalidateChatHistory(ctx context.Context, datasetID string) {
	if c == nil {
		return
	}

	if err := c.client.Del(ctx, chatHistoryKey(datasetID)).Err(); err != nil {
		logger.Warn("Failed to invalidate chat history cache", zap.Error(err))
	}
}

func (c *Client) GetSignedURL(ctx context.Context, pathHash string) (string, bool) {
	if c == nil {
		return "", false
	}

	url, err := c.client.Get(ctx, "signedurl:"+pathHash).Result()
	if err == redis.Nil {
		metrics.CacheMisses.WithLabelValues("signed_url").Inc()
		return "", false
	}
	if err != nil {
		logger.Warn("Failed to read signed URL cache", zap.Error(err))
		return "", false
	}

	metrics.CacheHits.WithLabelValues("signed_url").Inc()
	return url, true
}

func (c *Client) SetSignedURL(ctx context.Context, pathHash, url string, ttl time.Duration) {
	if c == nil {
		return
	}

	if err := c.client.Set(ctx, "signedurl:"+pathHash, url, ttl).Err(); err != nil {
		logger.Warn("Failed to cache signed URL", zap.Error(err))
	}
}

func chatHistoryKey(datasetID string) string {
	return "chathistory:" + datasetID
}
