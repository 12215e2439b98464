package pipeline

import (
	"context"
	"time"

	"github.com/kiranshivaraju/lecturelab/internal/ai"
	"github.com/kiranshivaraju/lecturelab/internal/metrics"
	"github.com/kiranshivaraju/lecturelab/internal/splitter"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
	"github.com/kiranshivaraju/lecturelab/pkg/textproc"
)

// Services are the shared dependencies plans draw on.
type Services struct {
	Transcribers  []models.Transcriber
	Generators    []models.Generator
	ProbeTimeout  time.Duration
	AudioSplitter splitter.Splitter
	Markers       *textproc.MarkerRewriter
	Metrics       *metrics.Metrics
}

func (s *Services) selectTranscriber(ctx context.Context) (models.Transcriber, error) {
	t, err := ai.Select(ctx, s.Transcribers, s.ProbeTimeout)
	name := ""
	if err == nil {
		name = t.Name()
	}
	s.Metrics.BackendSelected("transcription", name, err)
	return t, err
}

func (s *Services) selectGenerator(ctx context.Context) (models.Generator, error) {
	g, err := ai.Select(ctx, s.Generators, s.ProbeTimeout)
	name := ""
	if err == nil {
		name = g.Name()
	}
	s.Metrics.BackendSelected("generation", name, err)
	return g, err
}
