// Package chunker splits extracted text into bounded, overlapping windows
// for embedding. Lengths are measured in runes.
package chunker

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	StrategyRecursive = "recursive"
	StrategyMarkdown  = "markdown"
)

// DefaultSeparators are tried in order: paragraph, line, sentence ends
// (latin and CJK), clause punctuation, then plain spaces.
var DefaultSeparators = []string{
	"\n\n", "\n",
	". ", "! ", "? ", "。", "！", "？",
	"; ", ", ", "，", "；",
	" ",
}

type Chunker interface {
	Split(text string) ([]string, error)
}

// New builds the chunker for strategy. An empty strategy or "auto" selects
// the recursive splitter.
func New(strategy string, size, overlap int) (Chunker, error) {
	switch strings.ToLower(strategy) {
	case "", "auto", StrategyRecursive:
		return NewRecursive(size, overlap)
	case StrategyMarkdown:
		return NewMarkdown(size, overlap)
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidParams, strategy)
	}
}

func validate(size, overlap int) error {
	if size <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidParams, size)
	}
	if overlap < 0 || overlap >= size {
		return fmt.Errorf("%w: chunk_overlap must be in [0, %d), got %d", ErrInvalidParams, size, overlap)
	}
	return nil
}

// Markdown splits along the markdown structure using langchaingo.
type Markdown struct {
	splitter *textsplitter.MarkdownTextSplitter
}

func NewMarkdown(size, overlap int) (*Markdown, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &Markdown{
		splitter: textsplitter.NewMarkdownTextSplitter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
		),
	}, nil
}

func (m *Markdown) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := m.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("markdown split: %w", err)
	}
	return dropBlank(parts), nil
}

func dropBlank(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
