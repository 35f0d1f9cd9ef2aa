package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusWithIcon(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Status("🔍", "searching")
	assert.Equal(t, "🔍 searching\n", buf.String())
}

func TestStatusWithoutIcon(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Status("", "indented line")
	assert.Equal(t, "   indented line\n", buf.String())
}

func TestStatusf(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Statusf("", "found %d results", 3)
	assert.Contains(t, buf.String(), "found 3 results")
}

func TestSuccessWarningError(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Success("done")
	w.Warning("careful")
	w.Error("broken")

	out := buf.String()
	assert.Contains(t, out, "✅ done")
	assert.Contains(t, out, "careful")
	assert.Contains(t, out, "❌ broken")
}

func TestNewline(t *testing.T) {
	var buf bytes.Buffer
	w := New(&buf)

	w.Newline()
	assert.Equal(t, "\n", buf.String())
}
