package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kiranshivaraju/lecturelab/internal/ai"
	"github.com/kiranshivaraju/lecturelab/internal/splitter"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

// SummaryUnavailable replaces the summary when summarization fails.
const SummaryUnavailable = "[summary unavailable]"

// TranscriptionRequest carries the per-job options of a transcription.
type TranscriptionRequest struct {
	Language string
}

// Chunk is the transcription of one audio unit.
type Chunk struct {
	Index  int
	Text   string
	Failed bool
	Silent bool
}

// TranscriptionPlan transcribes audio chunk by chunk, joins the chunks,
// rewrites question markers and summarizes the transcript.
type TranscriptionPlan struct {
	svc         *Services
	req         TranscriptionRequest
	transcriber models.Transcriber
}

func NewTranscriptionPlan(svc *Services, req TranscriptionRequest) *TranscriptionPlan {
	return &TranscriptionPlan{svc: svc, req: req}
}

func (p *TranscriptionPlan) Kind() models.JobKind { return models.JobKindTranscription }
func (p *TranscriptionPlan) Splitter() splitter.Splitter { return p.svc.AudioSplitter }
func (p *TranscriptionPlan) ProgressCap() int { return 90 }
func (p *TranscriptionPlan) Backend() string { return p.transcriber.Name() }

func (p *TranscriptionPlan) Prepare(ctx context.Context) (err error) {
	p.transcriber, err = p.svc.selectTranscriber(ctx)
	return err
}

func (p *TranscriptionPlan) Process(ctx context.Context, u splitter.Unit) (Chunk, error) {
	audio, err := os.ReadFile(u.Path)
	if err != nil {
		return Chunk{}, fmt.Errorf("reading chunk: %w", err)
	}
	text, err := p.transcriber.Transcribe(ctx, models.TranscribeRequest{
		Audio:    audio,
		FileName: u.Name,
		MIMEType: u.MIMEType,
		Language: p.req.Language,
	})
	if err != nil {
		return Chunk{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Chunk{
			Index:  u.Index,
			Text:   fmt.Sprintf("[chunk %d (%s): no speech]", u.Index+1, clock(u.StartSeconds)),
			Silent: true,
		}, nil
	}
	return Chunk{Index: u.Index, Text: text}, nil
}

func (p *TranscriptionPlan) Placeholder(u splitter.Unit, err error) Chunk {
	return Chunk{
		Index:  u.Index,
		Text:   fmt.Sprintf("[chunk %d (%s) transcription failed: %s]", u.Index+1, clock(u.StartSeconds), err),
		Failed: true,
	}
}

func (p *TranscriptionPlan) Aggregate(_ context.Context, chunks []Chunk) (Outcome, error) {
	parts := make([]string, 0, len(chunks))
	failed, spoken := 0, 0
	for _, c := range chunks {
		switch {
		case c.Failed:
			failed++
		case !c.Silent:
			spoken++
		}
		parts = append(parts, c.Text)
	}
	transcript := strings.Join(parts, "\n\n")
	if p.svc.Markers != nil {
		transcript = p.svc.Markers.Rewrite(transcript)
	}

	result := &models.TranscriptResult{
		Transcript:  transcript,
		Units:       len(chunks),
		FailedUnits: failed,
		Backend:     p.transcriber.Name(),
	}
	if spoken == 0 {
		result.Summary = SummaryUnavailable
		result.SummaryError = "no transcript to summarize"
		return Outcome{Result: result}, nil
	}
	return Outcome{
		Result:    result,
		Secondary: func(ctx context.Context, inv Invoker) (any, error) { return p.summarize(ctx, inv, result) },
	}, nil
}

func (p *TranscriptionPlan) summarize(ctx context.Context, inv Invoker, result *models.TranscriptResult) (any, error) {
	g, err := p.svc.selectGenerator(ctx)
	if err != nil {
		result.Summary = SummaryUnavailable
		result.SummaryError = err.Error()
		return result, err
	}
	result.SummaryBackend = g.Name()

	var summary string
	err = inv.Invoke(ctx, g.Name(), func(actx context.Context) error {
		out, err := g.Generate(actx, models.GenerateRequest{
			Instructions: summaryInstructions(p.req.Language),
			Prompt:       result.Transcript,
			MaxTokens:    1024,
		})
		summary = out
		return err
	})
	if err == nil && strings.TrimSpace(summary) == "" {
		err = fmt.Errorf("%w: empty summary", ai.ErrInvalidResponse)
	}
	if err != nil {
		result.Summary = SummaryUnavailable
		result.SummaryError = err.Error()
		return result, err
	}
	result.Summary = strings.TrimSpace(ai.StripFences(summary))
	return result, nil
}

// clock renders seconds as mm:ss.
func clock(seconds float64) string {
	s := int(seconds)
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}
