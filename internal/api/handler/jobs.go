package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/lecturelab/internal/api/response"
	"github.com/kiranshivaraju/lecturelab/internal/artifact"
	"github.com/kiranshivaraju/lecturelab/internal/grading"
	"github.com/kiranshivaraju/lecturelab/internal/pipeline"
	"github.com/kiranshivaraju/lecturelab/internal/registry"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
	"golang.org/x/sync/errgroup"
)

const (
	multipartMemory = 32 << 20
	persistWorkers  = 4
)

// JobSubmitter starts jobs. Implemented by pipeline.Submitter.
type JobSubmitter interface {
	SubmitTranscription(ctx context.Context, req pipeline.TranscriptionRequest, audio artifact.Artifact) (*models.Job, error)
	SubmitGrading(ctx context.Context, req pipeline.GradingRequest, sheets []artifact.Artifact) (*models.Job, error)
	SubmitEssay(ctx context.Context, req pipeline.EssayRequest, essays []artifact.Artifact) (*models.Job, error)
}

// JobReader is the read side of the job registry.
type JobReader interface {
	Get(ctx context.Context, id string) (*models.Job, error)
}

// JobsConfig holds the submission limits and defaults.
type JobsConfig struct {
	MaxUploadBytes      int64
	DefaultLanguage     string
	DefaultEssayMaximum float64
}

type submitResponse struct {
	JobID  string           `json:"job_id"`
	Status models.JobStatus `json:"status"`
}

// NewSubmitJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewSubmitJobHandler(sub JobSubmitter, store *artifact.Store, cfg JobsConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
					fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit), nil)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Body must be multipart/form-data", nil)
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		kind := models.JobKind(strings.TrimSpace(r.FormValue("type")))
		if kind == "" {
			kind = models.JobKindTranscription
		}
		language := strings.TrimSpace(r.FormValue("language"))
		if language == "" {
			language = cfg.DefaultLanguage
		}

		var (
			job *models.Job
			err error
		)
		switch kind {
		case models.JobKindTranscription:
			files := r.MultipartForm.File["file"]
			if len(files) != 1 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "exactly one audio file is required in field 'file'", nil)
				return
			}
			sources, ok := persistAll(w, store, files)
			if !ok {
				return
			}
			job, err = sub.SubmitTranscription(r.Context(), pipeline.TranscriptionRequest{Language: language}, sources[0])

		case models.JobKindGrading:
			raw := r.FormValue("answer_key")
			if strings.TrimSpace(raw) == "" {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "answer_key is required", nil)
				return
			}
			key, kerr := grading.ParseAnswerKey(raw)
			if kerr != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_ANSWER_KEY", kerr.Error(), nil)
				return
			}
			files := imageFiles(r.MultipartForm)
			if len(files) == 0 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "at least one image is required in field 'files'", nil)
				return
			}
			sources, ok := persistAll(w, store, files)
			if !ok {
				return
			}
			job, err = sub.SubmitGrading(r.Context(), pipeline.GradingRequest{AnswerKey: key}, sources)

		case models.JobKindEssay:
			maxScore := cfg.DefaultEssayMaximum
			if raw := strings.TrimSpace(r.FormValue("max_score")); raw != "" {
				v, perr := strconv.ParseFloat(raw, 64)
				if perr != nil || v <= 0 {
					response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "max_score must be a positive number", nil)
					return
				}
				maxScore = v
			}
			files := imageFiles(r.MultipartForm)
			if len(files) == 0 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "at least one image is required in field 'files'", nil)
				return
			}
			sources, ok := persistAll(w, store, files)
			if !ok {
				return
			}
			job, err = sub.SubmitEssay(r.Context(), pipeline.EssayRequest{
				MaxScore: maxScore,
				Rubric:   strings.TrimSpace(r.FormValue("rubric")),
				Language: language,
			}, sources)

		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"type must be one of transcription, grading, essay", nil)
			return
		}

		if err != nil {
			slog.Error("submitting job failed", "kind", kind, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not queue the job", nil)
			return
		}
		response.Accepted(w, submitResponse{JobID: job.ID, Status: job.Status})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(jobs JobReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")
		job, err := jobs.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
				return
			}
			slog.Error("reading job failed", "job_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		response.JSON(w, job)
	}
}

func imageFiles(form *multipart.Form) []*multipart.FileHeader {
	if files := form.File["files"]; len(files) > 0 {
		return files
	}
	return form.File["file"]
}

// persistAll stores every upload in parallel, keeping upload order. On failure
// the already stored files are removed and a 500 is written.
func persistAll(w http.ResponseWriter, store *artifact.Store, files []*multipart.FileHeader) ([]artifact.Artifact, bool) {
	out := make([]artifact.Artifact, len(files))
	var g errgroup.Group
	g.SetLimit(persistWorkers)
	for i, fh := range files {
		g.Go(func() error {
			f, err := fh.Open()
			if err != nil {
				return fmt.Errorf("opening %s: %w", fh.Filename, err)
			}
			defer f.Close()
			a, err := store.Persist(f, fh.Filename)
			if err != nil {
				return err
			}
			out[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, a := range out {
			if derr := store.Delete(a); derr != nil {
				slog.Warn("removing upload failed", "path", a.Path, "error", derr)
			}
		}
		slog.Error("persisting uploads failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Could not store the upload", nil)
		return nil, false
	}
	return out, true
}
