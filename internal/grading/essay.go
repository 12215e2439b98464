package grading

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/lecturelab/internal/ai"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

// EssayErrorScore marks an essay that could not be scored.
const EssayErrorScore = -1

type essayAnswer struct {
	Score    json.RawMessage `json:"score"`
	Feedback string          `json:"feedback"`
}

// ParseEssay decodes a {"score": n, "feedback": "..."} answer. The score may
// be a number or a numeric string and must fall within [0, max].
func ParseEssay(unit, text string, max float64) (models.EssayRecord, error) {
	var ans essayAnswer
	if err := ai.DecodeJSON(text, &ans); err != nil {
		return models.EssayRecord{}, fmt.Errorf("%w: %w", ErrContract, err)
	}
	raw := strings.Trim(strings.TrimSpace(string(ans.Score)), `"`)
	if raw == "" || raw == "null" {
		return models.EssayRecord{}, fmt.Errorf("%w: missing score", ErrContract)
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(score) {
		return models.EssayRecord{}, fmt.Errorf("%w: score %q is not a number", ErrContract, raw)
	}
	if score < 0 || score > max {
		return models.EssayRecord{}, fmt.Errorf("%w: score %g outside 0..%g", ErrContract, score, max)
	}
	return models.EssayRecord{
		Unit:     unit,
		Score:    score,
		Feedback: strings.TrimSpace(ans.Feedback),
	}, nil
}

// EssayPlaceholder is the record for an essay that could not be scored.
func EssayPlaceholder(unit string, err error) models.EssayRecord {
	rec := models.EssayRecord{
		Unit:     unit,
		Score:    EssayErrorScore,
		Feedback: "essay could not be scored",
	}
	if err != nil {
		rec.Error = err.Error()
		rec.Feedback = "essay could not be scored: " + err.Error()
	}
	return rec
}
