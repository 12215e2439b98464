// Package grading turns provider answers about answer sheets into scores.
// Scores are always computed here from per-question details; any score a
// provider volunteers is ignored.
package grading

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kiranshivaraju/lecturelab/internal/ai"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

var (
	ErrInvalidAnswerKey = errors.New("invalid answer key")
	ErrContract         = errors.New("provider response does not match the answer key")
)

var (
	keySeparators = regexp.MustCompile(`\s*[,;|]\s*|\s+`)
	// Numbered entries such as "1-B", "2:C" or "3)D".
	numberedEntry = regexp.MustCompile(`^\d+\s*[-:.)]\s*(.+)$`)
	validEntry    = regexp.MustCompile(`^[A-Z0-9]+$`)
	spacedNumber  = regexp.MustCompile(`(\d)\s*([-:.)])\s+`)
)

// ParseAnswerKey splits a delimited key into upper-cased expected answers.
// The length of the returned slice is the number of graded questions.
func ParseAnswerKey(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAnswerKey)
	}
	// Join "1- B" style entries before splitting on whitespace.
	s = spacedNumber.ReplaceAllString(s, "$1$2")

	parts := keySeparators.Split(s, -1)
	key := make([]string, 0, len(parts))
	for i, p := range parts {
		if p == "" {
			if i == 0 || i == len(parts)-1 {
				continue
			}
			return nil, fmt.Errorf("%w: empty entry at position %d", ErrInvalidAnswerKey, i+1)
		}
		if m := numberedEntry.FindStringSubmatch(p); m != nil {
			p = m[1]
		}
		p = strings.ToUpper(strings.TrimSpace(p))
		if !validEntry.MatchString(p) {
			return nil, fmt.Errorf("%w: entry %q", ErrInvalidAnswerKey, p)
		}
		key = append(key, p)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrInvalidAnswerKey)
	}
	return key, nil
}

// Sheet is what a vision backend reports about one answer sheet.
type Sheet struct {
	Invalidated bool          `json:"invalidated"`
	Answers     []SheetAnswer `json:"answers"`
}

// SheetAnswer lists the options detected as marked for one question.
type SheetAnswer struct {
	Question int      `json:"question"`
	Marked   []string `json:"marked"`
}

// ParseSheet decodes a provider answer and checks it reports each of the
// keyLen questions exactly once. Answers are returned in question order.
func ParseSheet(text string, keyLen int) (Sheet, error) {
	var sheet Sheet
	if err := ai.DecodeJSON(text, &sheet); err != nil {
		return Sheet{}, fmt.Errorf("%w: %w", ErrContract, err)
	}
	if len(sheet.Answers) != keyLen {
		return Sheet{}, fmt.Errorf("%w: got %d answers, want %d", ErrContract, len(sheet.Answers), keyLen)
	}
	sort.SliceStable(sheet.Answers, func(i, j int) bool {
		return sheet.Answers[i].Question < sheet.Answers[j].Question
	})
	// Score pairs answers with the key by position, so numbering must be 1..keyLen.
	for i, a := range sheet.Answers {
		if a.Question != i+1 {
			return Sheet{}, fmt.Errorf("%w: question numbers must be 1 to %d without gaps or repeats, got %d at position %d",
				ErrContract, keyLen, a.Question, i+1)
		}
	}
	return sheet, nil
}

// Score grades a decoded sheet against the key.
func Score(unit string, sheet Sheet, key []string) models.GradeRecord {
	details := make([]models.QuestionDetail, len(key))
	for i, expected := range key {
		d := models.QuestionDetail{Question: i + 1, Expected: expected}
		if i < len(sheet.Answers) {
			d.Detected = normalizeMarks(sheet.Answers[i].Marked)
		}
		d.IsCorrect = !sheet.Invalidated && isCorrect(d.Detected, expected)
		details[i] = d
	}
	correct, total, score := Tabulate(details)
	return models.GradeRecord{
		Unit:        unit,
		Score:       score,
		Correct:     correct,
		Total:       total,
		Invalidated: sheet.Invalidated,
		Details:     details,
	}
}

func normalizeMarks(marked []string) []string {
	out := make([]string, 0, len(marked))
	for _, m := range marked {
		out = append(out, strings.ToUpper(strings.TrimSpace(m)))
	}
	return out
}

// isCorrect requires exactly one readable mark equal to the expected answer.
// Blank, ambiguous ("?") or crossed-out ("X") marks never count.
func isCorrect(marked []string, expected string) bool {
	if len(marked) != 1 {
		return false
	}
	switch m := marked[0]; m {
	case "", "?", "X":
		return false
	default:
		return strings.EqualFold(m, expected)
	}
}

// Tabulate counts correct details and renders the "correct/total" score.
func Tabulate(details []models.QuestionDetail) (correct, total int, score string) {
	for _, d := range details {
		if d.IsCorrect {
			correct++
		}
	}
	total = len(details)
	return correct, total, fmt.Sprintf("%d/%d", correct, total)
}

// Placeholder is the record for a sheet that could not be graded: every
// question is marked incorrect and Error explains why.
func Placeholder(unit string, key []string, err error) models.GradeRecord {
	details := make([]models.QuestionDetail, len(key))
	for i, expected := range key {
		details[i] = models.QuestionDetail{Question: i + 1, Expected: expected}
	}
	correct, total, score := Tabulate(details)
	rec := models.GradeRecord{
		Unit:    unit,
		Score:   score,
		Correct: correct,
		Total:   total,
		Details: details,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	return rec
}
