// Package splitter turns uploaded source artifacts into ordered, independently processable units.
package splitter

import (
	"context"
	"errors"
	"fmt"

	"github.com/kiranshivaraju/lecturelab/internal/artifact"
)

var (
	ErrNoSources     = errors.New("no source artifacts")
	ErrTooManySource = errors.New("splitter accepts exactly one source")
	ErrNoUnits       = errors.New("splitting produced no units")
)

// Unit is one independently processable slice of the job input. Units are
// returned ordered by Index and Name sorts in the same order.
type Unit struct {
	Index        int
	Name         string
	Path         string
	MIMEType     string
	StartSeconds float64
}

// Splitter produces units for a job inside its workspace.
type Splitter interface {
	Split(ctx context.Context, ws *artifact.Workspace, sources []artifact.Artifact) ([]Unit, error)
}

// SplitError is a stage-aware splitting failure with optional command context.
type SplitError struct {
	Stage    string
	Message  string
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *SplitError) Error() string {
	if e == nil {
		return ""
	}
	if e.Command == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s (cmd=%s exit=%d)", e.Stage, e.Message, e.Command, e.ExitCode)
}

func (e *SplitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// BatchSplitter maps each uploaded image to one unit, preserving upload order.
type BatchSplitter struct{}

func (BatchSplitter) Split(_ context.Context, _ *artifact.Workspace, sources []artifact.Artifact) ([]Unit, error) {
	if len(sources) == 0 {
		return nil, &SplitError{Stage: "batch", Message: "no images uploaded", Err: ErrNoSources}
	}
	units := make([]Unit, len(sources))
	for i, src := range sources {
		mime := src.MIMEType
		if mime == "" {
			mime = artifact.MIMETypeFor(src.Name)
		}
		units[i] = Unit{
			Index:    i,
			Name:     src.Name,
			Path:     src.Path,
			MIMEType: mime,
		}
	}
	return units, nil
}
