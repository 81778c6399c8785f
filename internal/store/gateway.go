package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/data-analyst/backend/internal/store/docstore"
	"github.com/data-analyst/backend/internal/store/models"
	"github.com/data-analyst/backend/pkg/logger"
)

const (
	usersCollection          = "users"
	datasetsCollection       = "datasets"
	chatMessagesCollection   = "chatMessages"
	sqlConnectionsCollection = "sqlConnections"
)

// Gateway maps domain records onto the raw document store. All timestamps
// are serialized as RFC3339 text so that any consumer can sort them
// lexicographically; list operations come back unordered and callers sort.
type Gateway struct {
	docs docstore.Store
}

func NewGateway(docs docstore.Store) *Gateway {
	return &Gateway{docs: docs}
}

// ============ Dataset operations ============

func (g *Gateway) CreateDataset(ctx context.Context, dataset *models.Dataset) error {
	logger.Info("Creating dataset",
		zap.String("dataset_id", dataset.ID),
		zap.String("user_id", dataset.UserID),
		zap.String("file_name", dataset.FileName),
	)

	doc := docstore.Document{
		"id":            dataset.ID,
		"userId":        dataset.UserID,
		"fileName":      dataset.FileName,
		"storagePath":   dataset.StoragePath,
		"storageUrl":    dataset.StorageURL,
		"fileSizeBytes": dataset.FileSizeBytes,
		"fileType":      dataset.FileType,
		"uploadedAt":    dataset.UploadedAt.UTC().Format(time.RFC3339Nano),
		"processed":     dataset.Processed,
		"rowCount":      dataset.RowCount,
		"columnCount":   dataset.ColumnCount,
	}

	if err := g.docs.Create(ctx, datasetsCollection, dataset.ID, doc); err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}
	return nil
}

func (g *Gateway) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	doc, err := g.docs.Get(ctx, datasetsCollection, id)
	if err != nil {
		return nil, err
	}
	return docToDataset(doc)
}

// ListDatasets returns the user's datasets in store order, which is no
// order at all. The dataset service sorts them.
func (g *Gateway) ListDatasets(ctx context.Context, userID string) ([]models.Dataset, error) {
	docs, err := g.docs.List(ctx, datasetsCollection, "userId", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}

	datasets := make([]models.Dataset, 0, len(docs))
	for _, doc := range docs {
		dataset, err := docToDataset(doc)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, *dataset)
	}
	return datasets, nil
}

// UpdateDatasetProcessing performs the one-time unprocessed -> processed
// transition. The three fields always move together.
func (g *Gateway) UpdateDatasetProcessing(ctx context.Context, id string, processed bool, rowCount, columnCount int) error {
	logger.Info("Updating dataset processing status",
		zap.String("dataset_id", id),
		zap.Bool("processed", processed),
		zap.Int("row_count", rowCount),
		zap.Int("column_count", columnCount),
	)

	fields := docstore.Document{
		"processed":   processed,
		"rowCount":    rowCount,
		"columnCount": columnCount,
	}

	if err := g.docs.Update(ctx, datasetsCollection, id, fields); err != nil {
		return fmt.Errorf("failed to update dataset %s: %w", id, err)
	}
	return nil
}

func (g *Gateway) DeleteDataset(ctx context.Context, id string) error {
	if err := g.docs.Delete(ctx, datasetsCollection, id); err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	return nil
}

// ============ Chat message operations ============

func (g *Gateway) SaveChatMessage(ctx context.Context, message *models.ChatMessage) error {
	logger.Info("Saving chat message",
		zap.String("message_id", message.ID),
		zap.String("dataset_id", message.DatasetID),
	)

	doc := docstore.Document{
		"id":             message.ID,
		"datasetId":      message.DatasetID,
		"userId":         message.UserID,
		"userMessage":    message.UserMessage,
		"aiResponse":     message.AIResponse,
		"timestamp":      message.Timestamp.UTC().Format(time.RFC3339Nano),
		"responseTimeMs": message.ResponseTimeMs,
	}

	if err := g.docs.Create(ctx, chatMessagesCollection, message.ID, doc); err != nil {
		return fmt.Errorf("failed to save chat message: %w", err)
	}
	return nil
}

// ChatHistory returns a dataset's messages unordered; the query service
// imposes ascending timestamp order.
func (g *Gateway) ChatHistory(ctx context.Context, datasetID string) ([]models.ChatMessage, error) {
	docs, err := g.docs.List(ctx, chatMessagesCollection, "datasetId", datasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}

	messages := make([]models.ChatMessage, 0, len(docs))
	for _, doc := range docs {
		message, err := docToChatMessage(doc)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *message)
	}
	return messages, nil
}

// ============ SQL connection operations ============

func (g *Gateway) SaveConnection(ctx context.Context, conn *models.SQLConnection) error {
	logger.Info("Saving SQL connection",
		zap.String("connection_id", conn.ID),
		zap.String("name", conn.Name),
	)

	doc := docstore.Document{
		"id":        conn.ID,
		"userId":    conn.UserID,
		"name":      conn.Name,
		"type":      conn.Type,
		"host":      conn.Host,
		"port":      conn.Port,
		"database":  conn.Database,
		"username":  conn.Username,
		"password":  conn.Password,
		"createdAt": conn.CreatedAt,
	}

	if err := g.docs.Create(ctx, sqlConnectionsCollection, conn.ID, doc); err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

func (g *Gateway) ListConnections(ctx context.Context, userID string) ([]models.SQLConnection, error) {
	docs, err := g.docs.List(ctx, sqlConnectionsCollection, "userId", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	connections := make([]models.SQLConnection, 0, len(docs))
	for _, doc := range docs {
		connections = append(connections, docToConnection(doc))
	}
	return connections, nil
}

func (g *Gateway) DeleteConnection(ctx context.Context, id string) error {
	if err := g.docs.Delete(ctx, sqlConnectionsCollection, id); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

// ============ User operations ============

func (g *Gateway) CreateUser(ctx context.Context, user *models.User) error {
	logger.Info("Creating user", zap.String("uid", user.UID), zap.String("email", user.Email))

	doc := docstore.Document{
		"uid":         user.UID,
		"email":       user.Email,
		"displayName": user.DisplayName,
		"createdAt":   user.CreatedAt.UTC().Format(time.RFC3339Nano),
		"lastLoginAt": user.LastLoginAt.UTC().Format(time.RFC3339Nano),
	}

	if err := g.docs.Create(ctx, usersCollection, user.UID, doc); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (g *Gateway) GetUser(ctx context.Context, uid string) (*models.User, error) {
	doc, err := g.docs.Get(ctx, usersCollection, uid)
	if err != nil {
		return nil, err
	}
	return docToUser(doc)
}

func (g *Gateway) UpdateLastLogin(ctx context.Context, uid string) error {
	fields := docstore.Document{
		"lastLoginAt": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := g.docs.Update(ctx, usersCollection, uid, fields); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// ============ Mapping helpers ============

func docToDataset(doc docstore.Document) (*models.Dataset, error) {
	uploadedAt, err := parseTimestamp(doc, "uploadedAt")
	if err != nil {
		return nil, fmt.Errorf("invalid dataset document: %w", err)
	}

	return &models.Dataset{
		ID:            docString(doc, "id"),
		UserID:        docString(doc, "userId"),
		FileName:      docString(doc, "fileName"),
		StoragePath:   docString(doc, "storagePath"),
		StorageURL:    docString(doc, "storageUrl"),
		FileSizeBytes: docInt64(doc, "fileSizeBytes"),
		FileType:      docString(doc, "fileType"),
		UploadedAt:    uploadedAt,
		Processed:     docBool(doc, "processed"),
		RowCount:      int(docInt64(doc, "rowCount")),
		ColumnCount:   int(docInt64(doc, "columnCount")),
	}, nil
}

func docToChatMessage(doc docstore.Document) (*models.ChatMessage, error) {
	timestamp, err := parseTimestamp(doc, "timestamp")
	if err != nil {
		return nil, fmt.Errorf("invalid chat message document: %w", err)
	}

	return &models.ChatMessage{
		ID:             docString(doc, "id"),
		DatasetID:      docString(doc, "datasetId"),
		UserID:         docString(doc, "userId"),
		UserMessage:    docString(doc, "userMessage"),
		AIResponse:     docString(doc, "aiResponse"),
		Timestamp:      timestamp,
		ResponseTimeMs: docInt64(doc, "responseTimeMs"),
	}, nil
}

func docToConnection(doc docstore.Document) models.SQLConnection {
	port := int(docInt64(doc, "port"))
	if port == 0 {
		port = 3306
	}

	return models.SQLConnection{
		ID:        docString(doc, "id"),
		UserID:    docString(doc, "userId"),
		Name:      docString(doc, "name"),
		Type:      docString(doc, "type"),
		Host:      docString(doc, "host"),
		Port:      port,
		Database:  docString(doc, "database"),
		Username:  docString(doc, "username"),
		Password:  docString(doc, "password"),
		CreatedAt: docString(doc, "createdAt"),
	}
}

func docToUser(doc docstore.Document) (*models.User, error) {
	createdAt, err := parseTimestamp(doc, "createdAt")
	if err != nil {
		return nil, fmt.Errorf("invalid user document: %w", err)
	}
	lastLoginAt, err := parseTimestamp(doc, "lastLoginAt")
	if err != nil {
		return nil, fmt.Errorf("invalid user document: %w", err)
	}

	return &models.User{
		UID:         docString(doc, "uid"),
		Email:       docString(doc, "email"),
		DisplayName: docString(doc, "displayName"),
		CreatedAt:   createdAt,
		LastLoginAt: lastLoginAt,
	}, nil
}

func docString(doc docstore.Document, key string) string {
	s, _ := doc[key].(string)
	return s
}

func docBool(doc docstore.Document, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

func docInt64(doc docstore.Document, key string) int64 {
	// JSON round-trips numbers as float64.
	switch v := doc[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}

func parseTimestamp(doc docstore.Document, key string) (time.Time, error) {
	raw := docString(doc, key)
	if raw == "" {
		return time.Time{}, fmt.Errorf("missing %s field", key)
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad %s timestamp %q: %w", key, raw, err)
	}
	return t, nil
}
