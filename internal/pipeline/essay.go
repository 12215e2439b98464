package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/kiranshivaraju/lecturelab/internal/grading"
	"github.com/kiranshivaraju/lecturelab/internal/splitter"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

// EssayRequest carries the per-job options of an essay grading.
type EssayRequest struct {
	MaxScore float64
	Rubric   string
	Language string
}

// EssayPlan scores one essay image per unit.
type EssayPlan struct {
	svc       *Services
	req       EssayRequest
	generator models.Generator
}

func NewEssayPlan(svc *Services, req EssayRequest) *EssayPlan {
	return &EssayPlan{svc: svc, req: req}
}

func (p *EssayPlan) Kind() models.JobKind { return models.JobKindEssay }
func (p *EssayPlan) Splitter() splitter.Splitter { return splitter.BatchSplitter{} }
func (p *EssayPlan) ProgressCap() int { return 95 }
func (p *EssayPlan) Backend() string { return p.generator.Name() }

func (p *EssayPlan) Prepare(ctx context.Context) (err error) {
	p.generator, err = p.svc.selectGenerator(ctx)
	return err
}

func (p *EssayPlan) Process(ctx context.Context, u splitter.Unit) (models.EssayRecord, error) {
	image, err := os.ReadFile(u.Path)
	if err != nil {
		return models.EssayRecord{}, fmt.Errorf("reading essay: %w", err)
	}
	text, err := p.generator.Generate(ctx, models.GenerateRequest{
		Instructions: essayInstructions(p.req.MaxScore, p.req.Rubric, p.req.Language),
		Prompt:       "Grade the essay in the attached image.",
		Images:       []models.Attachment{{MIMEType: u.MIMEType, Data: image}},
		JSON:         true,
	})
	if err != nil {
		return models.EssayRecord{}, err
	}
	return grading.ParseEssay(u.Name, text, p.req.MaxScore)
}

func (p *EssayPlan) Placeholder(u splitter.Unit, err error) models.EssayRecord {
	return grading.EssayPlaceholder(u.Name, err)
}

func (p *EssayPlan) Aggregate(_ context.Context, records []models.EssayRecord) (Outcome, error) {
	return Outcome{Result: &models.EssayResult{
		MaxScore: p.req.MaxScore,
		Records:  records,
		Backend:  p.generator.Name(),
	}}, nil
}
