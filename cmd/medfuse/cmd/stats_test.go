package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsCmd_TextOutput(t *testing.T) {
	resetFlags(t)
	path := writeCorpus(t, "docs.json", corpusJSON)

	cmd := newStatsCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--corpus", path})

	err := cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "Index Statistics")
	assert.Contains(t, output, "Documents: 2")
	assert.Contains(t, output, "keywords")
	assert.Contains(t, output, "content")
}

func TestStatsCmd_JSONOutput(t *testing.T) {
	resetFlags(t)
	path := writeCorpus(t, "docs.json", corpusJSON)

	cmd := newStatsCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--corpus", path, "--json"})

	err := cmd.Execute()

	require.NoError(t, err)
	var stats struct {
		FieldStats []struct {
			Field         string `json:"field"`
			DocumentCount int    `json:"document_count"`
		} `json:"field_stats"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &stats))
	require.Len(t, stats.FieldStats, 3)
	for _, fs := range stats.FieldStats {
		assert.Positive(t, fs.DocumentCount)
	}
}

func TestHealthCmd_HealthyEngine(t *testing.T) {
	resetFlags(t)
	path := writeCorpus(t, "docs.json", corpusJSON)

	cmd := newHealthCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--corpus", path})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Overall: healthy")
}
