// Package extractor turns stored document bytes into plain text. Formats are
// looked up by lowercased file extension.
package extractor

import (
	"fmt"
	"sort"
	"strings"
)

type Extractor interface {
	Extract(data []byte) (string, error)
}

type Func func(data []byte) (string, error)

func (f Func) Extract(data []byte) (string, error) {
	return f(data)
}

type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry returns a registry with every built-in format.
func NewRegistry() *Registry {
	r := &Registry{byExt: make(map[string]Extractor)}
	r.Register(Func(extractPDF), "pdf")
	r.Register(Func(extractDOCX), "docx")
	r.Register(Func(extractText), "txt", "md", "markdown", "csv")
	r.Register(Func(extractHTML), "html", "htm")
	r.Register(Func(extractXLSX), "xlsx")
	return r
}

func (r *Registry) Register(e Extractor, exts ...string) {
	for _, ext := range exts {
		r.byExt[normalize(ext)] = e
	}
}

func (r *Registry) Supports(ext string) bool {
	_, ok := r.byExt[normalize(ext)]
	return ok
}

func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func (r *Registry) Extract(ext string, data []byte) (string, error) {
	e, ok := r.byExt[normalize(ext)]
	if !ok {
		return "", fmt.Errorf("%w: .%s", ErrUnsupportedFormat, normalize(ext))
	}
	text, err := e.Extract(data)
	if err != nil {
		return "", fmt.Errorf("failed to extract .%s: %w", normalize(ext), err)
	}
	return sanitizeUTF8(text), nil
}

func normalize(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
