package models

// TranscriptResult is the completed payload of a transcription job.
type TranscriptResult struct {
	Transcript     string `json:"transcript"`
	Summary        string `json:"summary"`
	SummaryError   string `json:"summary_error,omitempty"`
	Units          int    `json:"units"`
	FailedUnits    int    `json:"failed_units"`
	Backend        string `json:"backend"`
	SummaryBackend string `json:"summary_backend,omitempty"`
}

// QuestionDetail is the graded outcome of one question on one sheet.
type QuestionDetail struct {
	Question  int      `json:"question"`
	IsCorrect bool     `json:"is_correct"`
	Detected  []string `json:"detected,omitempty"`
	Expected  string   `json:"expected"`
}

// GradeRecord is the graded outcome of one answer sheet. Score is derived from
// Details and never taken from the provider.
type GradeRecord struct {
	Unit        string           `json:"unit"`
	Score       string           `json:"score"`
	Correct     int              `json:"correct"`
	Total       int              `json:"total"`
	Invalidated bool             `json:"invalidated"`
	Error       string           `json:"error,omitempty"`
	Details     []QuestionDetail `json:"details"`
}

// GradingResult is the completed payload of a multiple-choice grading job.
type GradingResult struct {
	AnswerKey []string      `json:"answer_key"`
	Records   []GradeRecord `json:"records"`
	Backend   string        `json:"backend"`
}

// EssayRecord is the graded outcome of one essay sheet.
type EssayRecord struct {
	Unit     string  `json:"unit"`
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
	Error    string  `json:"error,omitempty"`
}

// EssayResult is the completed payload of an essay grading job.
type EssayResult struct {
	MaxScore float64       `json:"max_score"`
	Records  []EssayRecord `json:"records"`
	Backend  string        `json:"backend"`
}
