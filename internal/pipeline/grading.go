package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/kiranshivaraju/lecturelab/internal/grading"
	"github.com/kiranshivaraju/lecturelab/internal/splitter"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

// GradingRequest carries the per-job options of a multiple-choice grading.
type GradingRequest struct {
	AnswerKey []string
}

// GradingPlan grades one answer-sheet image per unit against a fixed key.
type GradingPlan struct {
	svc       *Services
	req       GradingRequest
	generator models.Generator
}

func NewGradingPlan(svc *Services, req GradingRequest) *GradingPlan {
	return &GradingPlan{svc: svc, req: req}
}

func (p *GradingPlan) Kind() models.JobKind { return models.JobKindGrading }
func (p *GradingPlan) Splitter() splitter.Splitter { return splitter.BatchSplitter{} }
func (p *GradingPlan) ProgressCap() int { return 95 }
func (p *GradingPlan) Backend() string { return p.generator.Name() }

func (p *GradingPlan) Prepare(ctx context.Context) (err error) {
	p.generator, err = p.svc.selectGenerator(ctx)
	return err
}

func (p *GradingPlan) Process(ctx context.Context, u splitter.Unit) (models.GradeRecord, error) {
	image, err := os.ReadFile(u.Path)
	if err != nil {
		return models.GradeRecord{}, fmt.Errorf("reading sheet: %w", err)
	}
	text, err := p.generator.Generate(ctx, models.GenerateRequest{
		Instructions: gradingInstructions(len(p.req.AnswerKey)),
		Prompt:       "Read the answer sheet in the attached image.",
		Images:       []models.Attachment{{MIMEType: u.MIMEType, Data: image}},
		JSON:         true,
	})
	if err != nil {
		return models.GradeRecord{}, err
	}
	sheet, err := grading.ParseSheet(text, len(p.req.AnswerKey))
	if err != nil {
		return models.GradeRecord{}, err
	}
	return grading.Score(u.Name, sheet, p.req.AnswerKey), nil
}

func (p *GradingPlan) Placeholder(u splitter.Unit, err error) models.GradeRecord {
	return grading.Placeholder(u.Name, p.req.AnswerKey, err)
}

func (p *GradingPlan) Aggregate(_ context.Context, records []models.GradeRecord) (Outcome, error) {
	return Outcome{Result: &models.GradingResult{
		AnswerKey: p.req.AnswerKey,
		Records:   records,
		Backend:   p.generator.Name(),
	}}, nil
}
