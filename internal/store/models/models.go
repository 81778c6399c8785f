package models

import "time"

// Dataset is a user-uploaded tabular file and its derived metadata.
// Processed, RowCount and ColumnCount stay at their zero values until the
// analysis engine reports back; they transition together, exactly once.
type Dataset struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	FileName      string    `json:"fileName"`
	StoragePath   string    `json:"storagePath"`
	StorageURL    string    `json:"storageUrl"`
	FileSizeBytes int64     `json:"fileSizeBytes"`
	FileType      string    `json:"fileType"`
	UploadedAt    time.Time `json:"uploadedAt"`
	Processed     bool      `json:"processed"`
	RowCount      int       `json:"rowCount"`
	ColumnCount   int       `json:"columnCount"`
}

// ChatMessage is one question/answer exchange against a dataset.
// Immutable once created, append-only per dataset.
type ChatMessage struct {
	ID             string    `json:"id"`
	DatasetID      string    `json:"datasetId"`
	UserID         string    `json:"userId"`
	UserMessage    string    `json:"userMessage"`
	AIResponse     string    `json:"aiResponse"`
	Timestamp      time.Time `json:"timestamp"`
	ResponseTimeMs int64     `json:"responseTimeMs"`
}

// SQLConnection holds user-entered database credentials. The password is
// stored as entered; proper secret handling is deferred to the surrounding
// platform.
type SQLConnection struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Database  string `json:"database"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	CreatedAt string `json:"createdAt"`
}

type User struct {
	UID         string    `json:"uid"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLoginAt time.Time `json:"lastLoginAt"`
}
