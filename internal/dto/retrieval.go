package dto

type RetrieveRequest struct {
	Query      string  `json:"query" validate:"notblank"`
	KBIDs      []int64 `json:"kb_ids" validate:"required,min=1"`
	TopK       int     `json:"top_k,omitempty" example:"5"`
	PerKBK     int     `json:"per_kb_k,omitempty"`
	UseRerank  *bool   `json:"use_rerank,omitempty"`
	RerankTopN int     `json:"rerank_top_n,omitempty"`
}

type RetrieveItem struct {
	Text       string   `json:"text"`
	KBID       int64    `json:"kb_id"`
	DocID      int64    `json:"doc_id"`
	DocUID     string   `json:"doc_uid"`
	ChunkIndex int      `json:"chunk_index"`
	Filename   string   `json:"filename"`
	Distance   *float64 `json:"distance,omitempty"`
	Score      *float64 `json:"score,omitempty"`
}

type RetrieveResponse struct {
	Items    []RetrieveItem `json:"items"`
	Reranked bool           `json:"reranked"`
}
