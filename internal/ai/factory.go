package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/lecturelab/internal/ai/anthropic"
	"github.com/kiranshivaraju/lecturelab/internal/ai/gcpspeech"
	"github.com/kiranshivaraju/lecturelab/internal/ai/mock"
	"github.com/kiranshivaraju/lecturelab/internal/ai/ollama"
	"github.com/kiranshivaraju/lecturelab/internal/ai/openai"
	"github.com/kiranshivaraju/lecturelab/internal/config"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

// NewGenerators builds one guarded generator per configured candidate, in order.
// Called once at server startup.
func NewGenerators(cfg config.AIConfig) ([]models.Generator, error) {
	out := make([]models.Generator, 0, len(cfg.GenerationCandidates))
	for _, c := range cfg.GenerationCandidates {
		var g models.Generator
		switch c.Backend {
		case "openai":
			g = openai.NewProvider(cfg.OpenAI, c.Model)
		case "vllm":
			g = openai.NewVLLMProvider(cfg.VLLM, c.Model)
		case "anthropic":
			g = anthropic.NewProvider(cfg.Anthropic, c.Model)
		case "ollama":
			g = ollama.NewProvider(cfg.Ollama, c.Model)
		case "mock":
			m := mock.NewMockProvider()
			m.Name_ = c.String()
			g = m
		case "gcpspeech":
			return nil, fmt.Errorf("generation candidate %s: %w", c, ErrUnsupported)
		default:
			return nil, fmt.Errorf("unknown AI backend %q: must be one of ollama, vllm, openai, anthropic, mock", c.Backend)
		}
		out = append(out, GuardGenerator(g))
	}
	return out, nil
}

// NewTranscribers builds one guarded transcriber per configured candidate, in order.
// Backends holding connections are released with CloseAll.
func NewTranscribers(ctx context.Context, cfg config.AIConfig) ([]models.Transcriber, error) {
	out := make([]models.Transcriber, 0, len(cfg.TranscriptionCandidates))
	for _, c := range cfg.TranscriptionCandidates {
		var t models.Transcriber
		switch c.Backend {
		case "openai":
			t = openai.NewProvider(cfg.OpenAI, c.Model)
		case "vllm":
			t = openai.NewVLLMProvider(cfg.VLLM, c.Model)
		case "gcpspeech":
			p, err := gcpspeech.NewProvider(ctx, cfg.GCPSpeech, c.Model)
			if err != nil {
				return nil, errors.Join(fmt.Errorf("transcription candidate %s: %w", c, err), CloseAll(out))
			}
			t = p
		case "mock":
			m := mock.NewMockProvider()
			m.Name_ = c.String()
			t = m
		case "anthropic", "ollama":
			return nil, errors.Join(fmt.Errorf("transcription candidate %s: %w", c, ErrUnsupported), CloseAll(out))
		default:
			return nil, errors.Join(fmt.Errorf("unknown AI backend %q: must be one of openai, vllm, gcpspeech, mock", c.Backend), CloseAll(out))
		}
		out = append(out, GuardTranscriber(t))
	}
	return out, nil
}
