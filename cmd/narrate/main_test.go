package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/narrate-go/narrate/internal/core"
	"github.com/narrate-go/narrate/internal/models"
	"github.com/narrate-go/narrate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, fb *testutil.FakeBackend, args ...string) (string, error) {
	t.Helper()
	ctx := &commandContext{newApp: func() (*core.App, error) {
		return core.NewWithDeps(testutil.TestConfig(fb.URL()), testutil.SetupTestDB(t)), nil
	}}
	t.Cleanup(ctx.close)
	cmd := newRootCommand(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAnalyzeCommand(t *testing.T) {
	fb := testutil.NewFakeBackend(t)

	out, err := runCLI(t, fb, "analyze", "ch1", "--force")
	require.NoError(t, err)

	var result models.CachedAnalysis
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "ch1", result.ChapterID)
	assert.Equal(t, int64(1), result.Version)
	assert.Contains(t, fb.Requests(), "POST /api/analyze/ch1?force=true")
}

func TestAnalyzeAllCommand(t *testing.T) {
	fb := testutil.NewFakeBackend(t)

	out, err := runCLI(t, fb, "analyze-all")
	require.NoError(t, err)
	assert.Contains(t, out, "Batch analysis started.")
	assert.Contains(t, fb.Requests(), "POST /api/analyze-all?force=false")

	fb.FailNext("analyze-all", 1)
	_, err = runCLI(t, fb, "analyze-all", "--force")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unavailable")
}

func TestGenerateAllCommand(t *testing.T) {
	fb := testutil.NewFakeBackend(t)

	out, err := runCLI(t, fb, "generate-all")
	require.NoError(t, err)
	assert.Contains(t, out, "Batch audio generation started for 2 chapter(s).")
	assert.Contains(t, fb.Requests(), "POST /api/generate-all")

	fb.FailNext("generate-all", 1)
	_, err = runCLI(t, fb, "generate-all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unavailable")
}

func TestAudioStatusCommand(t *testing.T) {
	fb := testutil.NewFakeBackend(t)
	fb.SetAudio("ch2", "/output/book/ch2.wav")

	out, err := runCLI(t, fb, "audio-status", "ch2")
	require.NoError(t, err)

	var status models.AudioStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Exists)
	assert.Equal(t, "/output/book/ch2.wav", status.URL)
}

func TestMergeCommand(t *testing.T) {
	fb := testutil.NewFakeBackend(t)

	out, err := runCLI(t, fb, "merge", "Alice", "alice", "A.")
	require.NoError(t, err)
	assert.Contains(t, out, `"count": 2`)

	_, err = runCLI(t, fb, "merge", "Alice")
	assert.Error(t, err, "at least one source is required")
}

func TestGenerateCommand(t *testing.T) {
	fb := testutil.NewFakeBackend(t)

	out, err := runCLI(t, fb, "generate", "ch3")
	require.NoError(t, err)
	assert.Contains(t, out, "Audio generation for ch3 started.")
	assert.Contains(t, fb.Requests(), "POST /api/generate/ch3")
}
