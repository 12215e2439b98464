package pipeline

import (
	"context"

	"github.com/kiranshivaraju/lecturelab/internal/artifact"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

// Submitter builds the plan for each job kind and hands it to the engine.
type Submitter struct {
	engine *Engine
	svc    *Services
}

func NewSubmitter(engine *Engine, svc *Services) *Submitter {
	return &Submitter{engine: engine, svc: svc}
}

func (s *Submitter) SubmitTranscription(ctx context.Context, req TranscriptionRequest, audio artifact.Artifact) (*models.Job, error) {
	return Submit(ctx, s.engine, NewTranscriptionPlan(s.svc, req), []artifact.Artifact{audio})
}

func (s *Submitter) SubmitGrading(ctx context.Context, req GradingRequest, sheets []artifact.Artifact) (*models.Job, error) {
	return Submit(ctx, s.engine, NewGradingPlan(s.svc, req), sheets)
}

func (s *Submitter) SubmitEssay(ctx context.Context, req EssayRequest, essays []artifact.Artifact) (*models.Job, error) {
	return Submit(ctx, s.engine, NewEssayPlan(s.svc, req), essays)
}
