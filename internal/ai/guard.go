package ai

import (
	"context"
	"errors"
	"io"

	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

// GuardGenerator wraps g so every error it returns is a *ProviderError.
func GuardGenerator(g models.Generator) models.Generator {
	if _, ok := g.(*guardedGenerator); ok {
		return g
	}
	return &guardedGenerator{inner: g}
}

// GuardTranscriber wraps t so every error it returns is a *ProviderError.
func GuardTranscriber(t models.Transcriber) models.Transcriber {
	if _, ok := t.(*guardedTranscriber); ok {
		return t
	}
	return &guardedTranscriber{inner: t}
}

type guardedGenerator struct {
	inner models.Generator
}

func (g *guardedGenerator) Name() string { return g.inner.Name() }

func (g *guardedGenerator) Probe(ctx context.Context) error {
	return Classify(g.inner.Name(), g.inner.Probe(ctx))
}

func (g *guardedGenerator) Generate(ctx context.Context, req models.GenerateRequest) (string, error) {
	out, err := g.inner.Generate(ctx, req)
	if err != nil {
		return "", Classify(g.inner.Name(), err)
	}
	return out, nil
}

func (g *guardedGenerator) Close() error { return closeIfCloser(g.inner) }

type guardedTranscriber struct {
	inner models.Transcriber
}

func (t *guardedTranscriber) Name() string { return t.inner.Name() }

func (t *guardedTranscriber) Probe(ctx context.Context) error {
	return Classify(t.inner.Name(), t.inner.Probe(ctx))
}

func (t *guardedTranscriber) Transcribe(ctx context.Context, req models.TranscribeRequest) (string, error) {
	out, err := t.inner.Transcribe(ctx, req)
	if err != nil {
		return "", Classify(t.inner.Name(), err)
	}
	return out, nil
}

func (t *guardedTranscriber) Close() error { return closeIfCloser(t.inner) }

func closeIfCloser(v any) error {
	if c, ok := v.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CloseAll closes every backend that holds resources.
func CloseAll[B models.Backend](backends []B) error {
	var errs []error
	for _, b := range backends {
		if err := closeIfCloser(b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
