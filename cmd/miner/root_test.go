package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_PrintsTreeThenSummary(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), &out, runOptions{ticks: 1500}))

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "miner ["), "tree should be printed first: %q", text)
	assert.Contains(t, text, "go to mine")
	assert.Contains(t, text, "1,500 ticks in")
	assert.Contains(t, text, "nuggets: ")
	assert.Less(t, strings.Index(text, "dig"), strings.Index(text, "ticks in"))
}

func TestRun_ScenarioFileOnTicker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("miner:\n  pocket_size: 2\ntick_interval_ms: 10\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), &out, runOptions{ticks: 3, scenario: path}))
	assert.Contains(t, out.String(), "3 ticks in")
}

func TestRun_RejectsBadOptions(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(context.Background(), &out, runOptions{ticks: 0}))
	assert.Error(t, run(context.Background(), &out, runOptions{ticks: 1, interval: -time.Second}))
	assert.Error(t, run(context.Background(), &out, runOptions{ticks: 1, scenario: filepath.Join(t.TempDir(), "missing.yaml")}))
}

func TestRun_CancelledContextStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	require.NoError(t, run(ctx, &out, runOptions{ticks: 1000, interval: time.Millisecond}))
	assert.NotContains(t, out.String(), "1,000 ticks")
}

func TestRootCmd_Help(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"--help"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "--scenario")
	assert.Contains(t, buf.String(), "--ticks")
}
