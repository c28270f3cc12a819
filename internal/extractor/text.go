package extractor

import "strings"

func extractText(data []byte) (string, error) {
	s := strings.TrimPrefix(string(data), "\ufeff")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return s, nil
}

// sanitizeUTF8 drops invalid UTF-8 sequences so the text can be stored and
// sent to embedding APIs.
func sanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}
