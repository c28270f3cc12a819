package dto

import (
	"time"

	"kb-rag/internal/models"
)

type CreateKnowledgeBaseRequest struct {
	Name           string  `json:"name" validate:"notblank"`
	Description    *string `json:"description,omitempty"`
	Visibility     string  `json:"visibility,omitempty" example:"private"`
	EmbeddingModel *string `json:"embedding_model,omitempty"`
	RerankerModel  *string `json:"reranker_model,omitempty"`
	UseReranker    bool    `json:"use_reranker"`
}

type KnowledgeBaseResponse struct {
	ID             int64      `json:"id"`
	UID            string     `json:"uid"`
	Name           string     `json:"name"`
	Description    *string    `json:"description,omitempty"`
	Visibility     string     `json:"visibility"`
	Collection     string     `json:"collection"`
	EmbeddingModel *string    `json:"embedding_model,omitempty"`
	RerankerModel  *string    `json:"reranker_model,omitempty"`
	UseReranker    bool       `json:"use_reranker"`
	DocCount       int        `json:"doc_count"`
	TotalSizeBytes int64      `json:"total_size_bytes"`
	LastIndexedAt  *time.Time `json:"last_indexed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func NewKnowledgeBaseResponse(kb *models.KnowledgeBase) KnowledgeBaseResponse {
	return KnowledgeBaseResponse{
		ID:             kb.ID,
		UID:            kb.UID,
		Name:           kb.Name,
		Description:    kb.Description,
		Visibility:     string(kb.Visibility),
		Collection:     kb.Collection,
		EmbeddingModel: kb.EmbeddingModel,
		RerankerModel:  kb.RerankerModel,
		UseReranker:    kb.UseReranker,
		DocCount:       kb.DocCount,
		TotalSizeBytes: kb.TotalSizeBytes,
		LastIndexedAt:  kb.LastIndexedAt,
		CreatedAt:      kb.CreatedAt,
	}
}

type DocumentResponse struct {
	ID          int64      `json:"id"`
	UID         string     `json:"uid"`
	KBID        int64      `json:"kb_id"`
	Filename    string     `json:"filename"`
	FileExt     string     `json:"file_ext"`
	MimeType    *string    `json:"mime_type,omitempty"`
	SizeBytes   int64      `json:"size_bytes"`
	Status      string     `json:"status" example:"uploaded"`
	Error       *string    `json:"error,omitempty"`
	ChunkCount  int        `json:"chunk_count"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func NewDocumentResponse(doc *models.Document) DocumentResponse {
	return DocumentResponse{
		ID:          doc.ID,
		UID:         doc.UID,
		KBID:        doc.KBID,
		Filename:    doc.Filename,
		FileExt:     doc.FileExt,
		MimeType:    doc.MimeType,
		SizeBytes:   doc.SizeBytes,
		Status:      string(doc.Status),
		Error:       doc.Error,
		ChunkCount:  doc.ChunkCount,
		ProcessedAt: doc.ProcessedAt,
		CreatedAt:   doc.CreatedAt,
	}
}

type IngestResponse struct {
	KBID   int64  `json:"kb_id"`
	DocID  int64  `json:"doc_id"`
	Status string `json:"status" example:"scheduled"`
}
