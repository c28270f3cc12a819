package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `Retrieval augmented generation combines search with language models. The retriever finds passages! Does it rank them? Yes; it does, usually by distance.

A second paragraph follows here, with several clauses, commas, and a closing sentence. 第二段落使用中文。它也应该被正确切分！对吗？

Short line.
Another short line that keeps going for a little while so that it needs splitting on spaces eventually.`

func reconstruct(runes []rune, spans []Span) string {
	var b strings.Builder
	prevEnd := 0
	for _, s := range spans {
		b.WriteString(string(runes[max(s.Start, prevEnd):s.End]))
		prevEnd = s.End
	}
	return b.String()
}

func TestRecursiveReconstructsAndBoundsOverlap(t *testing.T) {
	runes := []rune(sample)
	for size := 8; size <= 120; size += 7 {
		for _, overlap := range []int{0, 1, size / 4, size / 2, size - 1} {
			c, err := NewRecursive(size, overlap)
			require.NoError(t, err)

			spans := c.SplitSpans(sample)
			require.NotEmpty(t, spans)
			assert.Equal(t, sample, reconstruct(runes, spans), "size=%d overlap=%d", size, overlap)

			assert.Equal(t, 0, spans[0].Start)
			assert.Equal(t, len(runes), spans[len(spans)-1].End)
			for i, s := range spans {
				assert.LessOrEqual(t, s.End-s.Start, size, "size=%d overlap=%d", size, overlap)
				if i == 0 {
					continue
				}
				prev := spans[i-1]
				assert.LessOrEqual(t, s.Start, prev.End, "chunks must not leave gaps")
				assert.Greater(t, s.End, prev.End, "chunks must advance")
				assert.LessOrEqual(t, prev.End-s.Start, overlap, "size=%d overlap=%d", size, overlap)
			}
		}
	}
}

func TestRecursiveIsDeterministic(t *testing.T) {
	c, err := NewRecursive(50, 10)
	require.NoError(t, err)
	a, err := c.Split(sample)
	require.NoError(t, err)
	b, err := c.Split(sample)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRecursivePrefersParagraphs(t *testing.T) {
	c, err := NewRecursive(30, 0)
	require.NoError(t, err)
	chunks, err := c.Split("first paragraph\n\nsecond paragraph")
	require.NoError(t, err)
	assert.Equal(t, []string{"first paragraph\n\n", "second paragraph"}, chunks)
}

func TestRecursiveCarriesOverlap(t *testing.T) {
	c, err := NewRecursive(12, 6)
	require.NoError(t, err)
	chunks, err := c.Split("aaa bbb ccc ddd eee")
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa bbb ccc ", "ccc ddd eee"}, chunks)
}

func TestRecursiveHardSplitsLongWords(t *testing.T) {
	c, err := NewRecursive(4, 0)
	require.NoError(t, err)
	chunks, err := c.Split("abcdefghij")
	require.NoError(t, err)
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, chunks)
}

func TestBlankTextYieldsNoChunks(t *testing.T) {
	c, err := NewRecursive(100, 10)
	require.NoError(t, err)
	for _, text := range []string{"", "   ", "\n\n\t"} {
		chunks, err := c.Split(text)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestInvalidParams(t *testing.T) {
	for _, tc := range []struct{ size, overlap int }{{0, 0}, {-1, 0}, {10, 10}, {10, -1}} {
		_, err := New(StrategyRecursive, tc.size, tc.overlap)
		assert.ErrorIs(t, err, ErrInvalidParams, "size=%d overlap=%d", tc.size, tc.overlap)
	}
	_, err := New("semantic", 100, 10)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestMarkdownStrategy(t *testing.T) {
	c, err := New(StrategyMarkdown, 200, 20)
	require.NoError(t, err)
	chunks, err := c.Split("# Title\n\nSome paragraph text.\n\n## Section\n\nMore text here.")
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	assert.Contains(t, strings.Join(chunks, "\n"), "More text here.")
}
