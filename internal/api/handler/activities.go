package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/lecturelab/internal/activity"
	"github.com/kiranshivaraju/lecturelab/internal/ai"
	"github.com/kiranshivaraju/lecturelab/internal/api/response"
)

// ActivityGenerator defines the interface the activities handler depends on.
type ActivityGenerator interface {
	Generate(ctx context.Context, p activity.Params) (*activity.Result, error)
}

// NewActivitiesHandler returns an http.HandlerFunc for POST /api/v1/activities.
func NewActivitiesHandler(svc ActivityGenerator, defaultLanguage string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text          string `json:"text"`
			QuestionCount int    `json:"question_count"`
			QuestionType  string `json:"question_type"`
			Difficulty    string `json:"difficulty"`
			Language      string `json:"language"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if strings.TrimSpace(req.Text) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "text is required", nil)
			return
		}
		if req.QuestionCount < 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "question_count must not be negative", nil)
			return
		}

		params := activity.Params{
			Text:          req.Text,
			QuestionCount: req.QuestionCount,
			QuestionType:  activity.QuestionType(req.QuestionType),
			Difficulty:    req.Difficulty,
			Language:      req.Language,
		}.Normalize(defaultLanguage)

		result, err := svc.Generate(r.Context(), params)
		if err != nil {
			switch {
			case errors.Is(err, activity.ErrEmptyText):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "text is required", nil)
			case errors.Is(err, ai.ErrNoBackendAvailable), errors.Is(err, ai.ErrProviderUnavailable):
				response.Error(w, http.StatusBadGateway, "AI_PROVIDER_UNAVAILABLE",
					"The AI provider is not available", nil)
			case errors.Is(err, ai.ErrInferenceTimeout):
				response.Error(w, http.StatusGatewayTimeout, "AI_INFERENCE_TIMEOUT",
					"AI generation took too long and was cancelled", nil)
			case errors.Is(err, ai.ErrInvalidResponse):
				response.Error(w, http.StatusBadGateway, "AI_INVALID_RESPONSE",
					"The AI provider returned an unusable answer", nil)
			default:
				slog.Error("generating activity failed", "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}

		response.JSON(w, result)
	}
}
