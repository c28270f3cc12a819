package api

import (
	"context"
	"sync"

	"kb-rag/internal/llm"
	"kb-rag/internal/models"
	"kb-rag/internal/repository"
)

type memKBs struct {
	mu  sync.Mutex
	kbs map[int64]*models.KnowledgeBase
}

func (m *memKBs) Create(_ context.Context, kb *models.KnowledgeBase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kb.ID = int64(len(m.kbs) + 1)
	m.kbs[kb.ID] = kb
	return nil
}

func (m *memKBs) GetOwned(_ context.Context, id, ownerID int64) (*models.KnowledgeBase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kb, ok := m.kbs[id]
	if !ok || kb.OwnerID != ownerID {
		return nil, repository.ErrNotFound
	}
	return kb, nil
}

func (m *memKBs) ListOwned(ctx context.Context, ownerID int64, ids []int64) ([]*models.KnowledgeBase, error) {
	var out []*models.KnowledgeBase
	for _, id := range ids {
		if kb, err := m.GetOwned(ctx, id, ownerID); err == nil {
			out = append(out, kb)
		}
	}
	return out, nil
}

type memDocs struct {
	mu   sync.Mutex
	kbs  *memKBs
	docs map[int64]*models.Document
}

func (m *memDocs) Create(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc.ID = int64(len(m.docs) + 1)
	m.docs[doc.ID] = doc
	return nil
}

func (m *memDocs) GetOwned(ctx context.Context, kbID, docID, ownerID int64) (*models.Document, error) {
	if _, err := m.kbs.GetOwned(ctx, kbID, ownerID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok || d.KBID != kbID || d.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDocs) MarkProcessed(_ context.Context, doc *models.Document, chunkCount int, embeddingModel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.docs[doc.ID]
	d.Status = models.DocumentStatusProcessed
	d.ChunkCount = chunkCount
	d.EmbeddingModel = &embeddingModel
	return nil
}

func (m *memDocs) MarkFailed(_ context.Context, docID int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[docID]; ok {
		d.Status = models.DocumentStatusFailed
		d.Error = &reason
	}
	return nil
}

func (m *memDocs) SoftDelete(_ context.Context, kbID, docID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[docID]
	if !ok || d.KBID != kbID || d.DeletedAt != nil {
		return repository.ErrNotFound
	}
	now := d.CreatedAt
	d.DeletedAt = &now
	return nil
}

func (m *memDocs) status(id int64) models.DocumentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[id].Status
}

type memChat struct {
	mu    sync.Mutex
	convs map[int64]*models.Conversation
	msgs  []*models.Message
}

func (m *memChat) CreateConversation(_ context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv.ID = int64(len(m.convs) + 1)
	m.convs[conv.ID] = conv
	return nil
}

func (m *memChat) GetConversation(_ context.Context, id, userID int64) (*models.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok || c.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (m *memChat) AddMessage(_ context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = int64(len(m.msgs) + 1)
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *memChat) ListMessages(_ context.Context, conversationID, beforeID int64, limit int) ([]*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Message
	for _, msg := range m.msgs {
		if msg.ConversationID == conversationID && (beforeID == 0 || msg.ID < beforeID) {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memChat) FirstMessage(_ context.Context, conversationID int64, role models.Role) (*models.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range m.msgs {
		if msg.ConversationID == conversationID && msg.Role == role {
			return msg, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memChat) SetTitleIfEmpty(_ context.Context, conversationID int64, title string) (bool, error) {
	return false, nil
}

func (m *memChat) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

// lengthEmbedder maps a text to [len, 1].
type lengthEmbedder struct{}

func (lengthEmbedder) Embed(_ context.Context, texts []string, _ string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

// echoGenerator replies "echo: <last message>".
type echoGenerator struct{}

func (echoGenerator) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	last := req.Messages[len(req.Messages)-1].Content
	return &llm.Completion{Content: "echo: " + last, Model: req.Model}, nil
}

func (echoGenerator) Stream(_ context.Context, req llm.Request) (llm.Stream, error) {
	return llm.NewSliceStream(
		llm.DeltaPayload("echo"),
		llm.DeltaPayload(": "),
		llm.DeltaPayload(req.Messages[len(req.Messages)-1].Content),
		llm.Done,
	), nil
}
