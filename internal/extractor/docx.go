package extractor

import (
	"bytes"
	"fmt"
	"strings"

	"code.sajari.com/docconv/v2"
)

// extractDOCX converts the document body, headers and footers to text.
// docconv dereferences missing archive parts, so a malformed upload is
// turned into an error instead of a panic.
func extractDOCX(data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed docx: %v", r)
		}
	}()

	text, _, err = docconv.ConvertDocx(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to convert docx: %w", err)
	}
	return strings.TrimSpace(text), nil
}
