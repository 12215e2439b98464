package anthropic_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/lecturelab/internal/ai/anthropic"
	"github.com/kiranshivaraju/lecturelab/internal/config"
	"github.com/kiranshivaraju/lecturelab/internal/httpx"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_ImageBlocksAndHeaders(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"content":[{"type":"text","text":"score: "},{"type":"text","text":"7"}]}`))
	}))
	defer srv.Close()

	p := anthropic.NewProvider(config.AnthropicConfig{APIKey: "ak-test", BaseURL: srv.URL}, "claude-sonnet-4-5")
	out, err := p.Generate(context.Background(), models.GenerateRequest{
		Instructions: "you grade essays",
		Prompt:       "grade this",
		Images:       []models.Attachment{{MIMEType: "image/png", Data: []byte("png")}},
	})
	require.NoError(t, err)
	assert.Equal(t, "score: 7", out)

	assert.Equal(t, "you grade essays", got["system"])
	assert.Equal(t, float64(4096), got["max_tokens"])
	content := got["messages"].([]any)[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	src := content[0].(map[string]any)["source"].(map[string]any)
	assert.Equal(t, "base64", src["type"])
	assert.Equal(t, "image/png", src["media_type"])
	assert.Equal(t, "cG5n", src["data"])
}

func TestGenerate_NoTextIsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	p := anthropic.NewProvider(config.AnthropicConfig{BaseURL: srv.URL}, "m")
	_, err := p.Generate(context.Background(), models.GenerateRequest{Prompt: "x"})
	assert.ErrorIs(t, err, httpx.ErrDecode)
}

func TestProbe_OneToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(1), body["max_tokens"])
		w.WriteHeader(529)
	}))
	defer srv.Close()

	err := anthropic.NewProvider(config.AnthropicConfig{BaseURL: srv.URL}, "m").Probe(context.Background())
	var se *httpx.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 529, se.StatusCode)
}
