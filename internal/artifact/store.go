// Package artifact manages uploaded source files and per-job scratch workspaces on local disk.
package artifact

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	uploadsDir = "uploads"
	jobsDir    = "jobs"

	maxNameLen = 80
)

var ErrInvalidJobID = errors.New("invalid job id for workspace")

// Artifact is a persisted upload.
type Artifact struct {
	Path     string
	Name     string // original client filename, sanitized
	MIMEType string
	Size     int64
}

// Workspace is the scratch directory a job writes unit artifacts into.
type Workspace struct {
	dir string
}

// Dir returns the workspace root.
func (w *Workspace) Dir() string { return w.dir }

// Path returns the absolute path of name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// Store owns the on-disk layout under a single root directory.
type Store struct {
	root string
}

// New creates the uploads and jobs directories under root.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("artifact root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving artifact root: %w", err)
	}
	for _, d := range []string{uploadsDir, jobsDir} {
		if err := os.MkdirAll(filepath.Join(abs, d), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", d, err)
		}
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string { return s.root }

// Persist copies r into a uniquely named file under uploads. A partial file is
// removed when the copy fails.
func (s *Store) Persist(r io.Reader, name string) (Artifact, error) {
	clean := SanitizeName(name)
	path := filepath.Join(s.root, uploadsDir, uuid.NewString()+"-"+clean)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Artifact{}, fmt.Errorf("creating artifact: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return Artifact{}, fmt.Errorf("writing artifact %s: %w", clean, err)
	}

	return Artifact{
		Path:     path,
		Name:     clean,
		MIMEType: MIMETypeFor(clean),
		Size:     n,
	}, nil
}

// CreateWorkspace creates jobs/<jobID>.
func (s *Store) CreateWorkspace(jobID string) (*Workspace, error) {
	if jobID == "" || jobID != filepath.Base(jobID) || strings.HasPrefix(jobID, ".") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	dir := filepath.Join(s.root, jobsDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Delete removes a persisted upload. A missing file is not an error.
func (s *Store) Delete(a Artifact) error {
	if a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting artifact %s: %w", a.Name, err)
	}
	return nil
}

// DeleteWorkspace removes a workspace and everything in it. Idempotent.
func (s *Store) DeleteWorkspace(w *Workspace) error {
	if w == nil || w.dir == "" {
		return nil
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("deleting workspace: %w", err)
	}
	return nil
}

// Purge empties uploads and jobs. Called once at startup: nothing on disk
// survives a restart.
func (s *Store) Purge() error {
	var errs []error
	for _, d := range []string{uploadsDir, jobsDir} {
		dir := filepath.Join(s.root, d)
		entries, err := os.ReadDir(dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range entries {
			if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
				errs = append(errs, err)
			}
		}
		if len(entries) > 0 {
			slog.Info("purged stale artifacts", "dir", d, "count", len(entries))
		}
	}
	return errors.Join(errs...)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName reduces a client filename to a safe base name.
func SanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, ".")
	if base == "" || base == "_" {
		base = "upload"
	}
	if len(base) > maxNameLen {
		ext := filepath.Ext(base)
		if len(ext) > 10 {
			ext = ""
		}
		base = base[:maxNameLen-len(ext)] + ext
	}
	return base
}

var mimeByExt = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/ogg",
	".m4a":  "audio/mp4",
	".mp4":  "video/mp4",
	".webm": "audio/webm",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// MIMETypeFor infers a content type from the file extension.
func MIMETypeFor(name string) string {
	if m, ok := mimeByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return m
	}
	return "application/octet-stream"
}
