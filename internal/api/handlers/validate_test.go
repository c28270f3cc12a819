package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kb-rag/internal/dto"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBody(t *testing.T) {
	app := fiber.New()
	app.Post("/", func(c *fiber.Ctx) error {
		var req dto.RetrieveRequest
		if err := parseBody(c, &req); err != nil {
			return inputError(c, err)
		}
		return c.SendString(req.Query)
	})

	cases := []struct {
		body string
		code int
		want string
	}{
		{`{"query":"q","kb_ids":[1]}`, fiber.StatusOK, "q"},
		{`{"query":" \t","kb_ids":[1]}`, fiber.StatusBadRequest, "query is required"},
		{`{"query":"q"}`, fiber.StatusBadRequest, "kb_ids is required"},
		{`{"query":"q","kb_ids":[]}`, fiber.StatusBadRequest, "kb_ids is required"},
		{`{"query":`, fiber.StatusBadRequest, "Invalid request body"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, tc.code, resp.StatusCode, tc.body)
		assert.Contains(t, string(data), tc.want, tc.body)
	}
}
