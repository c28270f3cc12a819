package models

import (
	"time"
)

type DocumentStatus string

const (
	DocumentStatusUploaded   DocumentStatus = "uploaded"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusProcessed  DocumentStatus = "processed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID             int64          `db:"id"`
	UID            string         `db:"uid"`
	KBID           int64          `db:"kb_id"`
	Filename       string         `db:"filename"`
	FileExt        string         `db:"file_ext"`
	MimeType       *string        `db:"mime_type"`
	StorageURI     string         `db:"storage_uri"`
	SizeBytes      int64          `db:"size_bytes"`
	Status         DocumentStatus `db:"status"`
	Error          *string        `db:"error"`
	ProcessedAt    *time.Time     `db:"processed_at"`
	ChunkCount     int            `db:"chunk_count"`
	EmbeddingModel *string        `db:"embedding_model"`
	IngestParams   *string        `db:"ingest_params"` // JSON overrides
	UploadedBy     *int64         `db:"uploaded_by"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	DeletedAt      *time.Time     `db:"deleted_at"`
}
