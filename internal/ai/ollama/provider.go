package ollama

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

// Provider implements models.Generator using Ollama's native chat API.
type Provider struct {
	model  string
	client *httpx.Client
}

func NewProvider(cfg config.OllamaConfig, model string) *Provider {
	return &Provider{model: model, client: httpx.NewClient(cfg.BaseURL, nil)}
}

func (p *Provider) Name() string { return "ollama:" + p.model }

// Probe asks the server whether the model is pulled.
func (p *Provider) Probe(ctx context.Context) error {
	return p.client.DoJSON(ctx, http.MethodPost, "/api/show", map[string]string{"model": p.model}, nil)
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	body := chatRequest{Model: p.model, Stream: false}
	if req.Instructions != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.Instructions})
	}
	user := chatMessage{Role: "user", Content: req.Prompt}
	for _, img := range req.Images {
		user.Images = append(user.Images, base64.StdEncoding.EncodeToString(img.Data))
	}
	body.Messages = append(body.Messages, user)
	if req.JSON {
		body.Format = "json"
	}
	if req.MaxTokens > 0 {
		body.Options = map[string]any{"num_predict": req.MaxTokens}
	}

	var resp chatResponse
	if err := p.client.DoJSON(ctx, http.MethodPost, "/api/chat", body, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return "", fmt.Errorf("%w: empty message", httpx.ErrDecode)
	}
	return resp.Message.Content, nil
}

var _ models.Generator = (*Provider)(nil)
