package artifact_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kiranshivaraju/lecturelab/internal/artifact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *artifact.Store {
	t.Helper()
	s, err := artifact.New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestNew_CreatesLayout(t *testing.T) {
	root := t.TempDir()
	_, err := artifact.New(root)
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(root, "uploads"))
	assert.DirExists(t, filepath.Join(root, "jobs"))
}

func TestNew_EmptyRoot(t *testing.T) {
	_, err := artifact.New("  ")
	assert.Error(t, err)
}

func TestPersist_WritesUniqueFiles(t *testing.T) {
	s := newStore(t)

	a1, err := s.Persist(strings.NewReader("one"), "lecture.mp3")
	require.NoError(t, err)
	a2, err := s.Persist(strings.NewReader("two"), "lecture.mp3")
	require.NoError(t, err)

	assert.NotEqual(t, a1.Path, a2.Path)
	assert.Equal(t, "lecture.mp3", a1.Name)
	assert.Equal(t, "audio/mpeg", a1.MIMEType)
	assert.Equal(t, int64(3), a1.Size)

	data, err := os.ReadFile(a2.Path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("client went away") }

func TestPersist_RemovesPartialFileOnError(t *testing.T) {
	s := newStore(t)

	_, err := s.Persist(failingReader{}, "sheet.png")
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(s.Root(), "uploads"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDelete_Idempotent(t *testing.T) {
	s := newStore(t)
	a, err := s.Persist(strings.NewReader("x"), "a.png")
	require.NoError(t, err)

	require.NoError(t, s.Delete(a))
	assert.NoFileExists(t, a.Path)
	assert.NoError(t, s.Delete(a))
	assert.NoError(t, s.Delete(artifact.Artifact{}))
}

func TestWorkspace_Lifecycle(t *testing.T) {
	s := newStore(t)

	ws, err := s.CreateWorkspace("job-123")
	require.NoError(t, err)
	assert.DirExists(t, ws.Dir())
	assert.Equal(t, filepath.Join(ws.Dir(), "chunk_0000.flac"), ws.Path("chunk_0000.flac"))
	assert.Equal(t, filepath.Join(ws.Dir(), "passwd"), ws.Path("../../passwd"))

	require.NoError(t, os.WriteFile(ws.Path("chunk_0000.flac"), []byte("a"), 0o644))

	require.NoError(t, s.DeleteWorkspace(ws))
	assert.NoDirExists(t, ws.Dir())
	assert.NoError(t, s.DeleteWorkspace(ws))
	assert.NoError(t, s.DeleteWorkspace(nil))
}

func TestCreateWorkspace_RejectsTraversal(t *testing.T) {
	s := newStore(t)
	for _, id := range []string{"", "..", "../x", "a/b", ".hidden"} {
		_, err := s.CreateWorkspace(id)
		assert.ErrorIs(t, err, artifact.ErrInvalidJobID, id)
	}
}

func TestPurge_RemovesLeftovers(t *testing.T) {
	s := newStore(t)
	_, err := s.Persist(strings.NewReader("x"), "old.mp3")
	require.NoError(t, err)
	_, err = s.CreateWorkspace("stale-job")
	require.NoError(t, err)

	require.NoError(t, s.Purge())

	for _, d := range []string{"uploads", "jobs"} {
		entries, err := os.ReadDir(filepath.Join(s.Root(), d))
		require.NoError(t, err)
		assert.Empty(t, entries, d)
	}
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"lecture.mp3":         "lecture.mp3",
		"../../etc/passwd":    "passwd",
		`C:\Users\a\b.png`:    "b.png",
		"my lecture (1).mp3":  "my_lecture_1_.mp3",
		"":                    "upload",
		".env":                "env",
		strings.Repeat("a", 200) + ".wav": strings.Repeat("a", 76) + ".wav",
	}
	for in, want := range cases {
		assert.Equal(t, want, artifact.SanitizeName(in), in)
	}
}

func TestMIMETypeFor(t *testing.T) {
	assert.Equal(t, "image/jpeg", artifact.MIMETypeFor("SHEET.JPG"))
	assert.Equal(t, "audio/flac", artifact.MIMETypeFor("chunk_0001.flac"))
	assert.Equal(t, "application/octet-stream", artifact.MIMETypeFor("notes.xyz"))
}
