package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"subarchive/internal/ledger"
	"subarchive/pkg/ingest"
	"subarchive/pkg/snapshot"
)

func TestManifestCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.db")
	led, err := ledger.Open(path)
	require.NoError(t, err)

	ctx := context.Background()
	started := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, led.StartRun(ctx, ingest.RunInfo{ID: "run-1", Source: "golang", StartedAt: started}))
	require.NoError(t, led.RecordWindow(ctx, "run-1", ingest.WindowResult{
		Source:   "golang",
		Date:     "2025-01-01",
		Posts:    4,
		Snapshot: snapshot.Result{Path: "/data/golang_posts_with_comments_2025-01-01.json", Bytes: 2048, SHA256: "0123456789abcdef"},
	}))
	require.NoError(t, led.FinishRun(ctx, &ingest.Summary{RunID: "run-1", Posts: 4, FinishedAt: started.Add(time.Minute)}))
	require.NoError(t, led.Close())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"manifest", "--manifest", path})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "2025-01-01")
	assert.Contains(t, out.String(), "0123456789ab")
	assert.NotContains(t, out.String(), "0123456789abcdef")
	assert.Contains(t, out.String(), "2.0 KiB")

	out.Reset()
	rootCmd.SetArgs([]string{"manifest", "--manifest", path, "--runs", "5"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "run-1")
	assert.Contains(t, out.String(), ledger.StatusSucceeded)
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["collect"])
	assert.True(t, names["auth"])
	assert.True(t, names["manifest"])

	sub := map[string]bool{}
	for _, c := range authCmd.Commands() {
		sub[c.Name()] = true
	}
	assert.True(t, sub["login"])
	assert.True(t, sub["list"])
	assert.True(t, sub["delete"])
}

func TestPromptAccountReadsPipedInput(t *testing.T) {
	in := bytes.NewBufferString("secret-token\nmy-agent/1.0\n")
	var out bytes.Buffer

	account, err := promptAccount(in, &out, "bot")
	require.NoError(t, err)
	assert.Equal(t, "bot", account.Name)
	assert.Equal(t, "secret-token", account.AccessToken)
	assert.Equal(t, "my-agent/1.0", account.UserAgent)

	_, err = promptAccount(bytes.NewBufferString("\n"), &out, "bot")
	assert.Error(t, err)
}
