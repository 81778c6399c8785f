package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/data-analyst/backend/internal/dataset"
	"github.com/data-analyst/backend/internal/store/docstore"
	"github.com/data-analyst/backend/pkg/logger"
)

const (
	statusPollInterval = 2 * time.Second
	statusWatchLimit   = 15 * time.Minute
)

// StatusHandler pushes dataset processing status over a websocket so the
// frontend does not have to poll the REST surface. A client subscribes with
// a dataset id and receives status frames until the dataset is processed,
// deleted, or the watch times out.
type StatusHandler struct {
	datasets *dataset.Service
}

func NewStatusHandler(datasets *dataset.Service) *StatusHandler {
	return &StatusHandler{datasets: datasets}
}

func (h *StatusHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("Status websocket connection established")

	defer func() {
		c.Close()
		logger.Info("Status websocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			DatasetID string `json:"datasetId"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("Status websocket read failed", zap.Error(err))
			return
		}

		if msg.Type != "subscribe" || msg.DatasetID == "" {
			h.send(c, map[string]interface{}{
				"type":  "error",
				"error": "expected {type: subscribe, datasetId}",
			})
			continue
		}

		h.watch(c, msg.DatasetID)
	}
}

// watch serves one subscription at a time and does not read from the
// connection while polling: a disconnect is only noticed when the next
// status write fails, and a further subscribe sent mid-watch waits until
// the current watch ends.
func (h *StatusHandler) watch(c *websocket.Conn, datasetID string) {
	deadline := time.Now().Add(statusWatchLimit)

	for time.Now().Before(deadline) {
		ds, err := h.datasets.Get(context.Background(), datasetID)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				h.send(c, map[string]interface{}{
					"type":      "gone",
					"datasetId": datasetID,
				})
				return
			}
			logger.Error("Status watch failed", zap.String("dataset_id", datasetID), zap.Error(err))
			h.send(c, map[string]interface{}{
				"type":  "error",
				"error": "failed to read dataset status",
			})
			return
		}

		if !h.send(c, map[string]interface{}{
			"type":        "status",
			"datasetId":   ds.ID,
			"processed":   ds.Processed,
			"rowCount":    ds.RowCount,
			"columnCount": ds.ColumnCount,
		}) {
			return
		}

		if ds.Processed {
			return
		}

		time.Sleep(statusPollInterval)
	}

	h.send(c, map[string]interface{}{
		"type":      "timeout",
		"datasetId": datasetID,
	})
}

func (h *StatusHandler) send(c *websocket.Conn, msg map[string]interface{}) bool {
	if err := c.WriteJSON(msg); err != nil {
		logger.Debug("Status websocket write failed", zap.Error(err))
		return false
	}
	return true
}
