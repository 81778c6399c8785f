package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/data-analyst/backend/internal/store/docstore"
	"github.com/data-analyst/backend/pkg/logger"
	"github.com/data-analyst/backend/pkg/retry"
)

// Client implements docstore.Store on a single SQLite table holding one JSON
// document per row. Filtering goes through json_extract, partial updates
// through json_patch, so documents never need a schema of their own.
type Client struct {
	db          *sql.DB
	retryConfig retry.Config
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	retryConfig := retry.Config{
		MaxAttempts:  3,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Retryable:    isBusy,
		Logger:       logger.GetLogger(),
	}

	logger.Info("SQLite document store initialized", zap.String("path", dbPath))

	return &Client{db: db, retryConfig: retryConfig}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) Create(ctx context.Context, collection, id string, doc docstore.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	// Upsert: creating an existing id replaces the document, matching the
	// set() semantics of the document stores this fronts for.
	query := `
		INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data
	`

	err = retry.Do(ctx, c.retryConfig, func() error {
		_, err := c.db.ExecContext(ctx, query, collection, id, string(data))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}

	logger.Debug("Document created", zap.String("collection", collection), zap.String("id", id))
	return nil
}

func (c *Client) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var data string
	err := c.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	var doc docstore.Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return doc, nil
}

func (c *Client) List(ctx context.Context, collection, filterKey string, filterValue interface{}) ([]docstore.Document, error) {
	query := `SELECT data FROM documents WHERE collection = ? AND json_extract(data, ?) = ?`

	rows, err := c.db.QueryContext(ctx, query, collection, "$."+filterKey, filterValue)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		var doc docstore.Document
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document: %w", err)
		}
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return docs, nil
}

func (c *Client) Update(ctx context.Context, collection, id string, fields docstore.Document) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	query := `UPDATE documents SET data = json_patch(data, ?) WHERE collection = ? AND id = ?`

	var affected int64
	err = retry.Do(ctx, c.retryConfig, func() error {
		res, err := c.db.ExecContext(ctx, query, string(patch), collection, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	if affected == 0 {
		return docstore.ErrNotFound
	}

	logger.Debug("Document updated", zap.String("collection", collection), zap.String("id", id))
	return nil
}

func (c *Client) Delete(ctx context.Context, collection, id string) error {
	// Idempotent: deleting an absent document is not an error.
	err := retry.Do(ctx, c.retryConfig, func() error {
		_, err := c.db.ExecContext(ctx,
			`DELETE FROM documents WHERE collection = ? AND id = ?`,
			collection, id,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	logger.Debug("Document deleted", zap.String("collection", collection), zap.String("id", id))
	return nil
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
