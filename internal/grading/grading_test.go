package grading_test

import (
	"errors"
	"testing"

	"github.com/kiranshivaraju/lecturelab/internal/ai"
	"github.com/kiranshivaraju/lecturelab/internal/grading"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnswerKey(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"commas", "B, A, D", []string{"B", "A", "D"}},
		{"semicolons", "b;a;d", []string{"B", "A", "D"}},
		{"pipes", "B|A|D", []string{"B", "A", "D"}},
		{"whitespace", "B A  D", []string{"B", "A", "D"}},
		{"numbered dash", "1-B 2-A 3-D", []string{"B", "A", "D"}},
		{"numbered colon", "1:B,2:A,3:D", []string{"B", "A", "D"}},
		{"numbered paren", "1)B 2)A 3)D", []string{"B", "A", "D"}},
		{"numbered spaced", "1 - B, 2 - A", []string{"B", "A"}},
		{"trailing separator", "B,A,", []string{"B", "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := grading.ParseAnswerKey(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAnswerKey_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "B,,A", "B, ?, A", ",,"} {
		t.Run(in, func(t *testing.T) {
			_, err := grading.ParseAnswerKey(in)
			assert.ErrorIs(t, err, grading.ErrInvalidAnswerKey)
		})
	}
}

func TestParseSheet(t *testing.T) {
	text := "```json\n" + `{"invalidated": false, "answers": [
		{"question": 2, "marked": ["a"]},
		{"question": 1, "marked": ["B"]}
	]}` + "\n```"

	sheet, err := grading.ParseSheet(text, 2)
	require.NoError(t, err)
	require.Len(t, sheet.Answers, 2)
	assert.Equal(t, 1, sheet.Answers[0].Question)
	assert.Equal(t, []string{"B"}, sheet.Answers[0].Marked)
}

func TestParseSheet_LengthMismatch(t *testing.T) {
	_, err := grading.ParseSheet(`{"answers":[{"question":1,"marked":["B"]}]}`, 3)
	assert.ErrorIs(t, err, grading.ErrContract)
}

func TestParseSheet_QuestionNumbering(t *testing.T) {
	tests := []struct {
		name    string
		answers string
		keyLen  int
	}{
		{"repeated question", `[{"question":1,"marked":["B"]},{"question":2,"marked":["A"]},{"question":2,"marked":["D"]}]`, 3},
		{"out of range", `[{"question":7,"marked":["B"]},{"question":8,"marked":["A"]}]`, 2},
		{"gap", `[{"question":1,"marked":["B"]},{"question":3,"marked":["A"]}]`, 2},
		{"zero based", `[{"question":0,"marked":["B"]},{"question":1,"marked":["A"]}]`, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := grading.ParseSheet(`{"answers":`+tt.answers+`}`, tt.keyLen)
			assert.ErrorIs(t, err, grading.ErrContract)
		})
	}
}

func TestParseSheet_BadJSON(t *testing.T) {
	_, err := grading.ParseSheet("I could not read the sheet.", 3)
	assert.ErrorIs(t, err, grading.ErrContract)
	assert.ErrorIs(t, err, ai.ErrInvalidResponse)
}

func sheetOf(marks ...[]string) grading.Sheet {
	s := grading.Sheet{}
	for i, m := range marks {
		s.Answers = append(s.Answers, grading.SheetAnswer{Question: i + 1, Marked: m})
	}
	return s
}

func TestScore(t *testing.T) {
	key := []string{"B", "A", "D", "C", "E"}
	sheet := sheetOf(
		[]string{"b"},      // correct, case-insensitive
		[]string{"A", "C"}, // ambiguous
		[]string{},         // blank
		[]string{"?"},      // unreadable
		[]string{"E"},      // correct
	)

	rec := grading.Score("sheet1.jpg", sheet, key)
	assert.Equal(t, "sheet1.jpg", rec.Unit)
	assert.Equal(t, "2/5", rec.Score)
	assert.Equal(t, 2, rec.Correct)
	assert.Equal(t, 5, rec.Total)
	require.Len(t, rec.Details, 5)

	var correct []bool
	for _, d := range rec.Details {
		correct = append(correct, d.IsCorrect)
	}
	assert.Equal(t, []bool{true, false, false, false, true}, correct)
	assert.Equal(t, "D", rec.Details[2].Expected)
}

func TestScore_CrossedOutNeverCorrect(t *testing.T) {
	rec := grading.Score("u", sheetOf([]string{"X"}), []string{"X"})
	assert.Equal(t, "0/1", rec.Score)
}

func TestScore_InvalidatedSheet(t *testing.T) {
	sheet := sheetOf([]string{"B"}, []string{"A"})
	sheet.Invalidated = true

	rec := grading.Score("u", sheet, []string{"B", "A"})
	assert.True(t, rec.Invalidated)
	assert.Equal(t, "0/2", rec.Score)
	for _, d := range rec.Details {
		assert.False(t, d.IsCorrect)
	}
}

func TestTabulate(t *testing.T) {
	correct, total, score := grading.Tabulate([]models.QuestionDetail{
		{IsCorrect: true}, {IsCorrect: false}, {IsCorrect: true},
	})
	assert.Equal(t, 2, correct)
	assert.Equal(t, 3, total)
	assert.Equal(t, "2/3", score)
}

func TestPlaceholder(t *testing.T) {
	rec := grading.Placeholder("bad.jpg", []string{"A", "B", "C"}, errors.New("provider timed out"))
	assert.Equal(t, "0/3", rec.Score)
	assert.Len(t, rec.Details, 3)
	assert.Equal(t, "provider timed out", rec.Error)
	for _, d := range rec.Details {
		assert.False(t, d.IsCorrect)
	}
}

func TestParseEssay(t *testing.T) {
	rec, err := grading.ParseEssay("e1.png", `Here you go: {"score": 7.5, "feedback": " Clear argument. "}`, 10)
	require.NoError(t, err)
	assert.Equal(t, "e1.png", rec.Unit)
	assert.InDelta(t, 7.5, rec.Score, 1e-9)
	assert.Equal(t, "Clear argument.", rec.Feedback)
}

func TestParseEssay_StringScore(t *testing.T) {
	rec, err := grading.ParseEssay("e1.png", `{"score": "8", "feedback": "ok"}`, 10)
	require.NoError(t, err)
	assert.InDelta(t, 8, rec.Score, 1e-9)
}

func TestParseEssay_Rejects(t *testing.T) {
	for name, text := range map[string]string{
		"out of range": `{"score": 12, "feedback": "too generous"}`,
		"negative":     `{"score": -2, "feedback": ""}`,
		"missing":      `{"feedback": "no score"}`,
		"not numeric":  `{"score": "great", "feedback": ""}`,
		"no json":      "The essay is good.",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := grading.ParseEssay("e", text, 10)
			assert.ErrorIs(t, err, grading.ErrContract)
		})
	}
}

func TestEssayPlaceholder(t *testing.T) {
	rec := grading.EssayPlaceholder("e.png", errors.New("unreadable"))
	assert.Equal(t, float64(grading.EssayErrorScore), rec.Score)
	assert.Equal(t, "unreadable", rec.Error)
	assert.Contains(t, rec.Feedback, "unreadable")
}
