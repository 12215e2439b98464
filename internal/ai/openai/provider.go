package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/kiranshivaraju/lecturelab/internal/config"
	"github.com/kiranshivaraju/lecturelab/internal/httpx"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

// Provider implements models.Generator and models.Transcriber against any
// OpenAI-compatible API (OpenAI itself or a vLLM server).
type Provider struct {
	backend string
	model   string
	client  *httpx.Client
}

// NewProvider returns a Provider for api.openai.com (or OPENAI_BASE_URL).
func NewProvider(cfg config.OpenAIConfig, model string) *Provider {
	return newProvider("openai", cfg.BaseURL, cfg.APIKey, model)
}

// NewVLLMProvider returns a Provider for a vLLM server's OpenAI-compatible routes.
func NewVLLMProvider(cfg config.VLLMConfig, model string) *Provider {
	return newProvider("vllm", cfg.BaseURL, cfg.APIKey, model)
}

func newProvider(backend, baseURL, apiKey, model string) *Provider {
	h := http.Header{}
	if apiKey != "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
	return &Provider{
		backend: backend,
		model:   model,
		client:  httpx.NewClient(baseURL, h),
	}
}

func (p *Provider) Name() string { return p.backend + ":" + p.model }

// Probe checks that the model is served.
func (p *Provider) Probe(ctx context.Context) error {
	return p.client.DoJSON(ctx, http.MethodGet, "/v1/models/"+url.PathEscape(p.model), nil, nil)
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *Provider) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	body := chatRequest{
		Model:     p.model,
		MaxTokens: req.MaxTokens,
	}
	if req.Instructions != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.Instructions})
	}
	if len(req.Images) == 0 {
		body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	} else {
		parts := []contentPart{{Type: "text", Text: req.Prompt}}
		for _, img := range req.Images {
			parts = append(parts, contentPart{
				Type:     "image_url",
				ImageURL: &imageURL{URL: dataURL(img)},
			})
		}
		body.Messages = append(body.Messages, chatMessage{Role: "user", Content: parts})
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var resp chatResponse
	if err := p.client.DoJSON(ctx, http.MethodPost, "/v1/chat/completions", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", httpx.ErrDecode)
	}
	return resp.Choices[0].Message.Content, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (p *Provider) Transcribe(ctx context.Context, req models.TranscribeRequest) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := req.FileName
	if name == "" {
		name = "audio.flac"
	}
	fw, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(req.Audio); err != nil {
		return "", err
	}
	fields := map[string]string{
		"model":           p.model,
		"response_format": "json",
		"language":        req.Language,
		"prompt":          req.Prompt,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := w.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.client.BaseURL+"/v1/audio/transcriptions", &buf)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	var resp transcriptionResponse
	if err := p.client.Do(httpReq, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func dataURL(a models.Attachment) string {
	mime := a.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

var (
	_ models.Generator   = (*Provider)(nil)
	_ models.Transcriber = (*Provider)(nil)
)
