package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"kb-rag/internal/llm"
	"kb-rag/internal/models"
	"kb-rag/internal/repository"
	"kb-rag/internal/vectorindex"
)

func strPtr(s string) *string { return &s }

type fakeKBs struct {
	mu     sync.Mutex
	nextID int64
	kbs    map[int64]*models.KnowledgeBase
}

func newFakeKBs(kbs ...*models.KnowledgeBase) *fakeKBs {
	f := &fakeKBs{kbs: map[int64]*models.KnowledgeBase{}}
	for _, kb := range kbs {
		f.kbs[kb.ID] = kb
		f.nextID = max(f.nextID, kb.ID)
	}
	return f
}

func (f *fakeKBs) Create(_ context.Context, kb *models.KnowledgeBase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	kb.ID = f.nextID
	f.kbs[kb.ID] = kb
	return nil
}

func (f *fakeKBs) GetOwned(_ context.Context, id, ownerID int64) (*models.KnowledgeBase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kb, ok := f.kbs[id]
	if !ok || kb.OwnerID != ownerID || kb.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	return kb, nil
}

func (f *fakeKBs) ListOwned(ctx context.Context, ownerID int64, ids []int64) ([]*models.KnowledgeBase, error) {
	var out []*models.KnowledgeBase
	for _, id := range ids {
		if kb, err := f.GetOwned(ctx, id, ownerID); err == nil {
			out = append(out, kb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeDocs struct {
	mu     sync.Mutex
	nextID int64
	kbs    *fakeKBs
	docs   map[int64]*models.Document
}

func newFakeDocs(kbs *fakeKBs, docs ...*models.Document) *fakeDocs {
	f := &fakeDocs{kbs: kbs, docs: map[int64]*models.Document{}}
	for _, d := range docs {
		f.docs[d.ID] = d
		f.nextID = max(f.nextID, d.ID)
	}
	return f
}

// recompute mirrors the aggregate recalculation of the SQL repository.
func (f *fakeDocs) recompute(kbID int64) {
	var sizes []int64
	for _, d := range f.docs {
		if d.KBID == kbID && d.DeletedAt == nil {
			sizes = append(sizes, d.SizeBytes)
		}
	}
	agg := repository.SumSizes(sizes)
	if kb, ok := f.kbs.kbs[kbID]; ok {
		kb.DocCount = agg.DocCount
		kb.TotalSizeBytes = agg.TotalSizeBytes
	}
}

func (f *fakeDocs) Create(_ context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	doc.ID = f.nextID
	f.docs[doc.ID] = doc
	f.recompute(doc.KBID)
	return nil
}

func (f *fakeDocs) GetOwned(ctx context.Context, kbID, docID, ownerID int64) (*models.Document, error) {
	if _, err := f.kbs.GetOwned(ctx, kbID, ownerID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[docID]
	if !ok || d.KBID != kbID || d.DeletedAt != nil {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDocs) MarkProcessed(_ context.Context, doc *models.Document, chunkCount int, embeddingModel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[doc.ID]
	if !ok {
		return repository.ErrNotFound
	}
	d.Status = models.DocumentStatusProcessed
	d.ChunkCount = chunkCount
	d.EmbeddingModel = &embeddingModel
	d.Error = nil
	return nil
}

func (f *fakeDocs) MarkFailed(_ context.Context, docID int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.docs[docID]; ok {
		d.Status = models.DocumentStatusFailed
		d.Error = &reason
	}
	return nil
}

func (f *fakeDocs) SoftDelete(_ context.Context, kbID, docID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[docID]
	if !ok || d.KBID != kbID || d.DeletedAt != nil {
		return repository.ErrNotFound
	}
	now := d.CreatedAt
	d.DeletedAt = &now
	f.recompute(kbID)
	return nil
}

func (f *fakeDocs) get(id int64) models.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.docs[id]
}

type fakeChat struct {
	mu     sync.Mutex
	nextID int64
	convs  map[int64]*models.Conversation
	msgs   []*models.Message
	titles map[int64]string
}

func newFakeChat(convs ...*models.Conversation) *fakeChat {
	f := &fakeChat{convs: map[int64]*models.Conversation{}, titles: map[int64]string{}}
	for _, c := range convs {
		f.convs[c.ID] = c
	}
	return f
}

func (f *fakeChat) CreateConversation(_ context.Context, conv *models.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv.ID = int64(len(f.convs) + 1)
	f.convs[conv.ID] = conv
	return nil
}

func (f *fakeChat) GetConversation(_ context.Context, id, userID int64) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.convs[id]
	if !ok || c.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeChat) AddMessage(_ context.Context, msg *models.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	msg.ID = f.nextID
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeChat) ListMessages(_ context.Context, conversationID, beforeID int64, limit int) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*models.Message
	for _, m := range f.msgs {
		if m.ConversationID == conversationID && (beforeID == 0 || m.ID < beforeID) {
			all = append(all, m)
		}
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (f *fakeChat) FirstMessage(_ context.Context, conversationID int64, role models.Role) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.msgs {
		if m.ConversationID == conversationID && m.Role == role && m.Content != nil {
			return m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeChat) SetTitleIfEmpty(_ context.Context, conversationID int64, title string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.titles[conversationID]; ok {
		return false, nil
	}
	f.titles[conversationID] = title
	return true, nil
}

func (f *fakeChat) messages() []*models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.Message(nil), f.msgs...)
}

type fakeFiles map[string][]byte

func (f fakeFiles) Open(ref string) ([]byte, error) {
	data, ok := f[ref]
	if !ok {
		return nil, fmt.Errorf("no such file %s", ref)
	}
	return data, nil
}

// fakeEmbedder maps each text to a two dimensional vector.
type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	fn    func(text string) []float32
	err   error
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string, _ string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if e.fn != nil {
			out[i] = e.fn(t)
			continue
		}
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

// flakyIndex fails queries against the listed collections.
type flakyIndex struct {
	*vectorindex.Memory
	failing map[string]bool
}

func (f *flakyIndex) Query(ctx context.Context, collection string, vector []float32, k int) ([]vectorindex.Hit, error) {
	if f.failing[collection] {
		return nil, fmt.Errorf("%w: collection %s unavailable", vectorindex.ErrVectorIndex, collection)
	}
	return f.Memory.Query(ctx, collection, vector, k)
}

type fakeGenerator struct {
	complete func(req llm.Request) (*llm.Completion, error)
	stream   func(req llm.Request) (llm.Stream, error)

	mu       sync.Mutex
	requests []llm.Request
}

func (g *fakeGenerator) record(req llm.Request) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
}

func (g *fakeGenerator) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	g.record(req)
	return g.complete(req)
}

func (g *fakeGenerator) Stream(_ context.Context, req llm.Request) (llm.Stream, error) {
	g.record(req)
	return g.stream(req)
}

// scriptedStream replays payloads and then returns err, or io.EOF when err
// is nil.
type scriptedStream struct {
	payloads []string
	err      error
	closed   bool
}

func (s *scriptedStream) Next() (string, error) {
	if len(s.payloads) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	p := s.payloads[0]
	s.payloads = s.payloads[1:]
	return p, nil
}

func (s *scriptedStream) Close() error {
	s.closed = true
	return nil
}
