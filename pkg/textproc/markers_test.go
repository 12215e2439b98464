package textproc_test

import (
	"testing"

	"github.com/kiranshivaraju/lecturelab/pkg/textproc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewrite_DefaultPattern(t *testing.T) {
	m, err := textproc.NewMarkerRewriter("", "")
	require.NoError(t, err)

	in := "ok everyone question 1 what is entropy. question number 2, define enthalpy"
	got := m.Rewrite(in)

	assert.Equal(t, "ok everyone\n\nQuestion 1: what is entropy.\n\nQuestion 2: define enthalpy", got)
}

func TestRewrite_PortugueseMarkers(t *testing.T) {
	m, err := textproc.NewMarkerRewriter("", "")
	require.NoError(t, err)

	got := m.Rewrite("Pergunta 3: o que é energia?")
	assert.Equal(t, "Question 3: o que é energia?", got)
}

func TestRewrite_CustomPattern(t *testing.T) {
	m, err := textproc.NewMarkerRewriter(`item (\d)\s*`, "\n\n[$1] ")
	require.NoError(t, err)
	assert.Equal(t, "[4] first\n\n[5] second", m.Rewrite("item 4 first item 5 second"))
}

func TestRewrite_NoMatchLeavesTextAlone(t *testing.T) {
	m, err := textproc.NewMarkerRewriter("", "")
	require.NoError(t, err)
	assert.Equal(t, "plain lecture text", m.Rewrite("plain lecture text"))
	assert.Equal(t, "", m.Rewrite(""))
}

func TestRewrite_CollapsesBlankRuns(t *testing.T) {
	m, err := textproc.NewMarkerRewriter(`x`, "y")
	require.NoError(t, err)
	assert.Equal(t, "a\n\nb", m.Rewrite("a\n\n\n\nb"))
}

func TestNewMarkerRewriter_InvalidPattern(t *testing.T) {
	_, err := textproc.NewMarkerRewriter("(unclosed", "")
	assert.Error(t, err)
}
