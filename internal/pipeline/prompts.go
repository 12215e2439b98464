package pipeline

import (
	"fmt"
	"strings"
)

func languageOrDefault(lang string) string {
	if strings.TrimSpace(lang) == "" {
		return "en"
	}
	return lang
}

func summaryInstructions(lang string) string {
	return fmt.Sprintf(`You summarize lecture transcripts for students.
Write the summary in the language with code %q.
Cover the main topics in the order they were taught, keep definitions and worked examples,
and list any questions the lecturer posed. Use short paragraphs or bullet points.
Do not invent content that is not in the transcript.`, languageOrDefault(lang))
}

func gradingInstructions(questions int) string {
	return fmt.Sprintf(`You read photographed multiple-choice answer sheets.
The sheet has %d questions. For every question, report the option letters that are clearly marked.
Report "?" when a mark is unreadable and "X" when an answer is crossed out.
Set "invalidated" to true when the sheet is torn, blank or marked as void.
Answer with JSON only, no prose:
{"invalidated": false, "answers": [{"question": 1, "marked": ["B"]}]}
The answers array must contain exactly %d entries, one per question, in order.
Do not grade the sheet and do not report a score.`, questions, questions)
}

func essayInstructions(maxScore float64, rubric, lang string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You grade a photographed handwritten essay.
Score it from 0 to %g and explain the score in two to four sentences written in the language with code %q.
`, maxScore, languageOrDefault(lang))
	if r := strings.TrimSpace(rubric); r != "" {
		fmt.Fprintf(&b, "Apply this rubric:\n%s\n", r)
	}
	b.WriteString(`Answer with JSON only, no prose:
{"score": 7.5, "feedback": "..."}`)
	return b.String()
}
