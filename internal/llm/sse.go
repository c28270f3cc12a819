package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// Done is the terminal stream sentinel.
const Done = "[DONE]"

var errNoChoices = errors.New("payload has no choices")

type chunkPayload struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
		Delta *struct {
			Content *string `json:"content"`
		} `json:"delta"`
		Text *string `json:"text"`
	} `json:"choices"`
}

// Frame wraps payload as one server-sent event.
func Frame(payload string) []byte {
	return []byte("data: " + payload + "\n\n")
}

// DataPayload extracts the payload of a "data:" line. ok is false for
// comments, event names and blank lines.
func DataPayload(line string) (payload string, ok bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
}

// ParseDelta returns the text carried by a stream payload, read from
// choices[0].message.content or choices[0].delta.content. An empty string
// with a nil error means the event carried no text.
func ParseDelta(payload string) (string, error) {
	var p chunkPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return "", err
	}
	if len(p.Choices) == 0 {
		return "", errNoChoices
	}
	c := p.Choices[0]
	switch {
	case c.Message != nil && c.Message.Content != nil && *c.Message.Content != "":
		return *c.Message.Content, nil
	case c.Delta != nil && c.Delta.Content != nil:
		return *c.Delta.Content, nil
	case c.Text != nil:
		return *c.Text, nil
	}
	return "", nil
}

// DeltaPayload builds a payload carrying a single text delta.
func DeltaPayload(content string) string {
	data, _ := json.Marshal(map[string]any{
		"object":  "chat.completion.chunk",
		"choices": []any{map[string]any{"index": 0, "delta": map[string]string{"content": content}}},
	})
	return string(data)
}

// ErrorPayload builds the payload emitted when a stream ends in failure.
func ErrorPayload(message string) string {
	data, _ := json.Marshal(map[string]any{
		"error": map[string]string{"message": message},
	})
	return string(data)
}
