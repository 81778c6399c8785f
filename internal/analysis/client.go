package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/data-analyst/backend/pkg/circuitbreaker"
	"github.com/data-analyst/backend/pkg/logger"
)

// Client talks to the external analysis engine over HTTP. The engine parses
// uploaded datasets and answers natural-language queries against them; this
// side treats it as a black box. Calls are never retried automatically, but
// a circuit breaker fails fast while the engine is down.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *circuitbreaker.CircuitBreaker
}

type ProcessResult struct {
	Success     bool   `json:"success"`
	RowCount    int    `json:"rowCount"`
	ColumnCount int    `json:"columnCount"`
	Error       string `json:"error"`
}

type QueryResult struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Error    string `json:"error"`
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	cb := circuitbreaker.NewCircuitBreaker("analysis-engine", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	logger.Info("Analysis client initialized", zap.String("base_url", baseURL))

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		cb:         cb,
	}
}

// Process asks the engine to parse a dataset reachable at fileURL and report
// its dimensions.
func (c *Client) Process(ctx context.Context, datasetID, fileURL, fileName string) (*ProcessResult, error) {
	logger.Info("Sending dataset to analysis engine for processing", zap.String("dataset_id", datasetID))

	payload := map[string]interface{}{
		"datasetId": datasetID,
		"fileUrl":   fileURL,
		"fileName":  fileName,
	}

	var result ProcessResult
	if err := c.post(ctx, "/api/process", payload, &result); err != nil {
		return nil, err
	}

	logger.Info("Dataset processing response received",
		zap.String("dataset_id", datasetID),
		zap.Bool("success", result.Success),
		zap.Int("row_count", result.RowCount),
		zap.Int("column_count", result.ColumnCount),
	)
	return &result, nil
}

// Query runs one synchronous natural-language query against a dataset.
func (c *Client) Query(ctx context.Context, datasetID, query, userID string) (*QueryResult, error) {
	logger.Info("Sending query to analysis engine", zap.String("dataset_id", datasetID))

	payload := map[string]interface{}{
		"datasetId": datasetID,
		"query":     query,
		"userId":    userID,
	}

	var result QueryResult
	if err := c.post(ctx, "/api/query", payload, &result); err != nil {
		return nil, err
	}

	logger.Info("Query response received",
		zap.String("dataset_id", datasetID),
		zap.Bool("success", result.Success),
	)
	return &result, nil
}

// HealthCheck reports whether the engine's probe endpoint answers. Any
// failure means unhealthy; errors are never propagated.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		logger.Error("Failed to build health check request", zap.Error(err))
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("Analysis engine health check failed", zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		logger.Warn("Analysis engine health check returned non-200",
			zap.Int("status", resp.StatusCode))
		return false
	}

	return true
}

func (c *Client) post(ctx context.Context, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	return c.cb.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("analysis engine unreachable: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		// The engine reports operation failures inside the body with
		// success=false; non-2xx without a parseable body is a transport
		// level failure.
		if err := json.Unmarshal(respBody, out); err != nil {
			if resp.StatusCode >= 300 {
				return fmt.Errorf("analysis engine returned status %d", resp.StatusCode)
			}
			return fmt.Errorf("failed to parse response: %w", err)
		}

		return nil
	})
}
