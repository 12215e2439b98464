// Package activity generates practice questions from lecture text. Unlike
// jobs it answers synchronously, so it selects a backend per request.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/lecturelab/internal/ai"
	"github.com/kiranshivaraju/lecturelab/internal/grading"
	"github.com/kiranshivaraju/lecturelab/internal/metrics"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

const (
	maxTextRunes     = 24000
	DefaultQuestions = 5
	MaxQuestions     = 30
)

var ErrEmptyText = errors.New("text is required")

// QuestionType is the kind of question generated.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	OpenEnded      QuestionType = "open_ended"
	TrueFalse      QuestionType = "true_false"
)

// Params holds validated parameters for an activity request.
type Params struct {
	Text          string
	QuestionCount int
	QuestionType  QuestionType
	Difficulty    string
	Language      string
}

// Result is a generated activity. Answers is empty when the backend did not
// return a usable answer-key token.
type Result struct {
	Activity string   `json:"activity"`
	Answers  []string `json:"answers"`
	Backend  string   `json:"backend"`
}

// Service generates activities through the first reachable generator.
type Service struct {
	generators   []models.Generator
	probeTimeout time.Duration
	pacer        *ai.Pacer
	retry        ai.RetryConfig
	metrics      *metrics.Metrics
}

func NewService(generators []models.Generator, probeTimeout time.Duration, pacer *ai.Pacer, retry ai.RetryConfig, m *metrics.Metrics) *Service {
	if pacer == nil {
		pacer = ai.NewPacer(0)
	}
	return &Service{
		generators:   generators,
		probeTimeout: probeTimeout,
		pacer:        pacer,
		retry:        retry,
		metrics:      m,
	}
}

// Normalize fills defaults and clamps the question count.
func (p Params) Normalize(defaultLanguage string) Params {
	p.Text = strings.TrimSpace(p.Text)
	if p.QuestionCount <= 0 {
		p.QuestionCount = DefaultQuestions
	}
	if p.QuestionCount > MaxQuestions {
		p.QuestionCount = MaxQuestions
	}
	switch p.QuestionType {
	case MultipleChoice, OpenEnded, TrueFalse:
	default:
		p.QuestionType = MultipleChoice
	}
	if p.Difficulty == "" {
		p.Difficulty = "medium"
	}
	if p.Language == "" {
		p.Language = defaultLanguage
	}
	return p
}

// Generate selects a backend and asks it for the activity.
func (s *Service) Generate(ctx context.Context, p Params) (*Result, error) {
	if p.Text == "" {
		return nil, ErrEmptyText
	}

	g, err := ai.Select(ctx, s.generators, s.probeTimeout)
	name := ""
	if err == nil {
		name = g.Name()
	}
	s.metrics.BackendSelected("generation", name, err)
	if err != nil {
		return nil, err
	}

	var text string
	err = s.pacer.Retry(ctx, g.Name(), s.retry, func(actx context.Context) error {
		out, err := g.Generate(actx, models.GenerateRequest{
			Instructions: instructions(p),
			Prompt:       truncateRunes(p.Text, maxTextRunes),
			MaxTokens:    2048,
		})
		text = out
		return err
	})
	if err != nil {
		return nil, err
	}

	body, rawKey, ok := ai.ExtractAnswerKey(text)
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: empty activity", ai.ErrInvalidResponse)
	}
	res := &Result{Activity: body, Answers: []string{}, Backend: g.Name()}
	if ok {
		key, err := grading.ParseAnswerKey(rawKey)
		if err != nil {
			slog.Warn("activity answer key unusable", "backend", g.Name(), "error", err)
		} else {
			res.Answers = key
		}
	}
	return res, nil
}

func instructions(p Params) string {
	var kind string
	switch p.QuestionType {
	case OpenEnded:
		kind = "open-ended questions"
	case TrueFalse:
		kind = "true/false statements (answer T or F)"
	default:
		kind = "multiple-choice questions with options A to D"
	}
	return fmt.Sprintf(`You write study activities for students from lecture material.
Write %d %s of %s difficulty in the language with code %q, numbered from 1.
Only use facts stated in the material.
After the last question, on its own line, write the answer key as [ANSWER_KEY: 1-B, 2-D, ...].
Omit the answer key for open-ended questions.`, p.QuestionCount, kind, p.Difficulty, p.Language)
}

// truncateRunes cuts s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
