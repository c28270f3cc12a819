package chunker

import (
	"strings"
)

// Span is a half-open rune range [Start, End) of the source text.
type Span struct {
	Start int
	End   int
}

// Recursive splits on the highest priority separator present, recursing
// into pieces that are still too long, then greedily merges pieces into
// windows of at most Size runes. Consecutive windows share a suffix of at
// most Overlap runes made of whole pieces. Separators stay attached to the
// end of the piece they terminate, so windows are exact slices of the input.
type Recursive struct {
	Size       int
	Overlap    int
	Separators []string
}

func NewRecursive(size, overlap int) (*Recursive, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &Recursive{Size: size, Overlap: overlap, Separators: DefaultSeparators}, nil
}

// Split returns the window texts, skipping whitespace-only windows. Blank
// input yields no chunks.
func (c *Recursive) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	runes := []rune(text)
	var chunks []string
	for _, s := range c.spans(runes) {
		chunk := string(runes[s.Start:s.End])
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// SplitSpans returns every window as a rune range of text.
func (c *Recursive) SplitSpans(text string) []Span {
	return c.spans([]rune(text))
}

func (c *Recursive) spans(runes []rune) []Span {
	if len(runes) == 0 {
		return nil
	}
	pieces := c.split(runes, 0, len(runes), c.Separators)
	return c.merge(pieces)
}

func (c *Recursive) split(runes []rune, start, end int, seps []string) []Span {
	if end-start <= c.Size {
		return []Span{{start, end}}
	}

	for i, sep := range seps {
		sepRunes := []rune(sep)
		cuts := cutPoints(runes, start, end, sepRunes)
		if len(cuts) == 0 {
			continue
		}

		var out []Span
		from := start
		for _, cut := range append(cuts, end) {
			if cut <= from {
				continue
			}
			out = append(out, c.split(runes, from, cut, seps[i+1:])...)
			from = cut
		}
		return out
	}

	var out []Span
	for from := start; from < end; from += c.Size {
		out = append(out, Span{from, min(from+c.Size, end)})
	}
	return out
}

// cutPoints lists the offsets just past each occurrence of sep inside
// [start, end), excluding a cut at end itself.
func cutPoints(runes []rune, start, end int, sep []rune) []int {
	var cuts []int
	n := len(sep)
	for i := start; i+n <= end; i++ {
		if runes[i] != sep[0] || !equalRunes(runes[i:i+n], sep) {
			continue
		}
		if i+n < end {
			cuts = append(cuts, i+n)
		}
		i += n - 1
	}
	return cuts
}

func equalRunes(a, b []rune) bool {
	for i := range b {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *Recursive) merge(pieces []Span) []Span {
	var (
		out    []Span
		window []Span
		curLen int
	)
	for _, p := range pieces {
		plen := p.End - p.Start
		if len(window) > 0 && curLen+plen > c.Size {
			out = append(out, Span{window[0].Start, window[len(window)-1].End})
			for len(window) > 0 && (curLen > c.Overlap || curLen+plen > c.Size) {
				curLen -= window[0].End - window[0].Start
				window = window[1:]
			}
		}
		window = append(window, p)
		curLen += plen
	}
	if len(window) > 0 {
		out = append(out, Span{window[0].Start, window[len(window)-1].End})
	}
	return out
}
