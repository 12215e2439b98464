package splitter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kiranshivaraju/lecturelab/internal/artifact"
)

const (
	DefaultChunkLength = 60 * time.Second

	chunkPattern = "chunk_%04d.flac"
	chunkPrefix  = "chunk_"
	chunkExt     = ".flac"
	maxStderr    = 2000
)

// CommandResult is the captured outcome of one external process.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner abstracts process execution so tests can fake ffmpeg.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, err
	}
	return res, nil
}

// AudioSplitter segments one audio upload into fixed-length mono 16 kHz FLAC chunks.
type AudioSplitter struct {
	ffmpegPath  string
	chunkLength time.Duration
	runner      CommandRunner
}

// NewAudioSplitter returns a splitter using ffmpegPath. A nil runner uses ExecRunner.
func NewAudioSplitter(ffmpegPath string, chunkLength time.Duration, runner CommandRunner) *AudioSplitter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if chunkLength <= 0 {
		chunkLength = DefaultChunkLength
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &AudioSplitter{ffmpegPath: ffmpegPath, chunkLength: chunkLength, runner: runner}
}

func (s *AudioSplitter) Split(ctx context.Context, ws *artifact.Workspace, sources []artifact.Artifact) ([]Unit, error) {
	switch {
	case len(sources) == 0:
		return nil, &SplitError{Stage: "segmenting", Message: "no audio uploaded", Err: ErrNoSources}
	case len(sources) > 1:
		return nil, &SplitError{Stage: "segmenting", Message: fmt.Sprintf("got %d audio files", len(sources)), Err: ErrTooManySource}
	}
	src := sources[0]
	if _, err := os.Stat(src.Path); err != nil {
		return nil, &SplitError{Stage: "segmenting", Message: "cannot access uploaded audio", Err: err}
	}

	args := buildSegmentArgs(src.Path, ws.Path(chunkPattern), s.chunkLength)
	start := time.Now()
	res, err := s.runner.Run(ctx, s.ffmpegPath, args...)
	if err != nil {
		return nil, &SplitError{
			Stage:    "segmenting",
			Message:  "ffmpeg segmentation failed",
			Command:  s.ffmpegPath,
			ExitCode: res.ExitCode,
			Stderr:   tail(res.Stderr, maxStderr),
			Err:      err,
		}
	}

	units, err := s.collect(ws)
	if err != nil {
		return nil, err
	}
	slog.Debug("audio segmented",
		"source", src.Name,
		"chunks", len(units),
		"chunk_seconds", s.chunkLength.Seconds(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return units, nil
}

func (s *AudioSplitter) collect(ws *artifact.Workspace) ([]Unit, error) {
	entries, err := os.ReadDir(ws.Dir())
	if err != nil {
		return nil, &SplitError{Stage: "segmenting", Message: "cannot list chunks", Err: err}
	}
	type chunk struct {
		name string
		seq  int
	}
	var chunks []chunk
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		seq, ok := chunkSeq(e.Name())
		if ok {
			chunks = append(chunks, chunk{name: e.Name(), seq: seq})
		}
	}
	if len(chunks) == 0 {
		return nil, &SplitError{Stage: "segmenting", Message: "ffmpeg produced no chunks", Err: ErrNoUnits}
	}
	// %04d stops padding past 9999, so names do not sort lexically.
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].seq < chunks[j].seq })

	units := make([]Unit, len(chunks))
	for i, c := range chunks {
		units[i] = Unit{
			Index:        i,
			Name:         c.name,
			Path:         filepath.Join(ws.Dir(), c.name),
			MIMEType:     "audio/flac",
			StartSeconds: float64(c.seq) * s.chunkLength.Seconds(),
		}
	}
	return units, nil
}

// chunkSeq returns the segment number ffmpeg wrote into a chunk file name.
func chunkSeq(name string) (int, bool) {
	if !strings.HasPrefix(name, chunkPrefix) || !strings.HasSuffix(name, chunkExt) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, chunkPrefix), chunkExt))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func buildSegmentArgs(input, outPattern string, chunk time.Duration) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", input,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "flac",
		"-f", "segment",
		"-segment_time", strconv.Itoa(int(chunk.Seconds())),
		"-reset_timestamps", "1",
		outPattern,
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
