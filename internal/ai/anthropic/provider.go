package anthropic

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/lecturelab/internal/config"
	"github.com/kiranshivaraju/lecturelab/internal/httpx"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

const (
	apiVersion       = "2023-06-01"
	defaultMaxTokens = 4096
)

// Provider implements models.Generator using the Anthropic Messages API.
// Anthropic has no speech-to-text endpoint, so it is never a Transcriber.
type Provider struct {
	model  string
	client *httpx.Client
}

func NewProvider(cfg config.AnthropicConfig, model string) *Provider {
	h := http.Header{}
	h.Set("x-api-key", cfg.APIKey)
	h.Set("anthropic-version", apiVersion)
	return &Provider{model: model, client: httpx.NewClient(cfg.BaseURL, h)}
}

func (p *Provider) Name() string { return "anthropic:" + p.model }

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string  `json:"role"`
	Content []block `json:"content"`
}

type block struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Probe sends a one-token message.
func (p *Provider) Probe(ctx context.Context) error {
	req := messagesRequest{
		Model:     p.model,
		MaxTokens: 1,
		Messages:  []message{{Role: "user", Content: []block{{Type: "text", Text: "ping"}}}},
	}
	return p.client.DoJSON(ctx, http.MethodPost, "/v1/messages", req, nil)
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	content := make([]block, 0, len(req.Images)+1)
	for _, img := range req.Images {
		mt := img.MIMEType
		if mt == "" {
			mt = "image/jpeg"
		}
		content = append(content, block{
			Type:   "image",
			Source: &imageSource{Type: "base64", MediaType: mt, Data: base64.StdEncoding.EncodeToString(img.Data)},
		})
	}
	prompt := req.Prompt
	if req.JSON {
		prompt += "\n\nRespond with a single JSON value and nothing else."
	}
	content = append(content, block{Type: "text", Text: prompt})

	body := messagesRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    req.Instructions,
		Messages:  []message{{Role: "user", Content: content}},
	}

	var resp messagesResponse
	if err := p.client.DoJSON(ctx, http.MethodPost, "/v1/messages", body, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: no text content", httpx.ErrDecode)
	}
	return sb.String(), nil
}

var _ models.Generator = (*Provider)(nil)
