package extractor

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// extractHTML keeps headings, paragraphs, list items and table cells of the
// main content, falling back to the whole body text.
func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, template").Remove()

	root := doc.Find("main, article")
	if root.Length() == 0 {
		root = doc.Selection
	}

	var parts []string
	root.Find("h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td, th").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(root.Text()), nil
	}
	return blankLines.ReplaceAllString(strings.Join(parts, "\n"), "\n\n"), nil
}
