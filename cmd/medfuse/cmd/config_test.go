package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medfuse/medfuse/internal/config"
)

func TestConfigExampleCmd_PrintsTemplate(t *testing.T) {
	cmd := newConfigExampleCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "paths:")
	assert.Contains(t, output, "weighted_rrf")
	assert.Contains(t, output, "breaker_threshold")
}

func TestConfigExampleCmd_WritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medfuse.yaml")

	cmd := newConfigExampleCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--output", path})
	require.NoError(t, cmd.Execute())

	// The shipped template must be accepted by the loader.
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, config.FusionWeightedRRF, cfg.Fusion.Method)
}

func TestConfigExampleCmd_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medfuse.yaml")
	require.NoError(t, os.WriteFile(path, []byte("existing"), 0o644))

	cmd := newConfigExampleCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--output", path})

	err := cmd.Execute()
	assert.ErrorContains(t, err, "refusing to overwrite")
}

func TestConfigShowCmd_EmitsJSON(t *testing.T) {
	resetFlags(t)

	cmd := newConfigShowCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "weighted_rrf")
}
