package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"subarchive/internal/ledger"
	"subarchive/pkg/config"
	errs "subarchive/pkg/errors"
	"subarchive/pkg/snapshot"
)

// fakeUpstream serves one listing page and a comment tree per post
type fakeUpstream struct {
	mu       sync.Mutex
	listings int
	trees    []string
	auth     []string
}

func (f *fakeUpstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/r/golang/new", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.listings++
		f.auth = append(f.auth, r.Header.Get("Authorization"))
		f.mu.Unlock()
		writeJSON(w, listing(
			link("in1", "2025-01-01T18:00:00Z"),
			link("in2", "2025-01-01T06:00:00Z"),
			link("old", "2024-12-31T12:00:00Z"),
		))
	})
	mux.HandleFunc("/r/golang/comments/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/r/golang/comments/")
		f.mu.Lock()
		f.trees = append(f.trees, id)
		f.mu.Unlock()
		writeJSON(w, []interface{}{
			listing(link(id, "2025-01-01T06:00:00Z")),
			listing(comment("c_"+id, "t3_"+id)),
		})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func listing(children ...map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"kind": "Listing",
		"data": map[string]interface{}{"after": nil, "children": children},
	}
}

func link(id, created string) map[string]interface{} {
	t, _ := time.Parse(time.RFC3339, created)
	return map[string]interface{}{
		"kind": "t3",
		"data": map[string]interface{}{
			"id":           id,
			"title":        "title " + id,
			"selftext":     "",
			"author":       "someone",
			"created_utc":  float64(t.Unix()),
			"score":        3,
			"num_comments": 1,
		},
	}
}

func comment(id, parent string) map[string]interface{} {
	return map[string]interface{}{
		"kind": "t1",
		"data": map[string]interface{}{
			"id":          id,
			"parent_id":   parent,
			"body":        "reply",
			"author":      "[deleted]",
			"created_utc": 1735740000.0,
			"score":       1,
			"replies":     "",
		},
	}
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Source = config.SourceConfig{Subreddit: "r/golang", Start: "2025-01-01", End: "2025-01-02"}
	cfg.Reddit.BaseURL = baseURL
	cfg.Reddit.AccessToken = "test-token"
	cfg.RateLimit.MinInterval = time.Millisecond
	cfg.RateLimit.MaxBackoff = 10 * time.Millisecond
	cfg.Output.Directory = t.TempDir()
	cfg.Output.MetricsFile = filepath.Join(cfg.Output.Directory, "subarchive.prom")
	return cfg
}

func TestCollectEndToEnd(t *testing.T) {
	up := &fakeUpstream{}
	srv := httptest.NewServer(up.handler())
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	var out bytes.Buffer

	summary, err := collect(context.Background(), cfg, collectRequest{}, &out)
	require.NoError(t, err)

	assert.Equal(t, "golang", summary.Source)
	assert.Equal(t, 1, summary.Days())
	assert.Equal(t, 2, summary.Posts)
	assert.Equal(t, 2, summary.Comments)
	assert.Zero(t, summary.TruncatedWindows)
	assert.Equal(t, []string{"in1", "in2"}, up.trees)
	assert.Equal(t, []string{"bearer test-token"}, up.auth)

	posts, err := snapshot.Read(filepath.Join(cfg.Output.Directory, "golang_posts_with_comments_2025-01-01.json"))
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "in1", posts[0].ID)
	require.Len(t, posts[0].Comments, 1)
	assert.Nil(t, posts[0].Comments[0].Author)

	led, err := ledger.Open(cfg.ManifestPath())
	require.NoError(t, err)
	defer led.Close()
	entries, err := led.List(context.Background(), ledger.Filter{Source: "golang"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Posts)
	runs, err := led.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.StatusSucceeded, runs[0].Status)

	_, err = os.Stat(filepath.Join(cfg.CheckpointDir(), "golang.checkpoint.json"))
	assert.True(t, os.IsNotExist(err), "checkpoint should be removed after success")

	prom, err := os.ReadFile(cfg.Output.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "subarchive_")

	assert.Contains(t, out.String(), "Finished fetching data for 1 day(s)")
}

func TestCollectWithoutManifestOrCheckpoint(t *testing.T) {
	up := &fakeUpstream{}
	srv := httptest.NewServer(up.handler())
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Checkpoint.Enabled = false
	cfg.Output.MetricsFile = ""
	cfg.Output.WriteWorkers = 2

	_, err := collect(context.Background(), cfg, collectRequest{NoManifest: true}, &bytes.Buffer{})
	require.NoError(t, err)

	_, err = os.Stat(cfg.ManifestPath())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(cfg.Output.Directory, "golang_posts_with_comments_2025-01-01.json"))
	assert.NoError(t, err)
}

func TestCollectRejectsBadInput(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")

	cfg.Source.Subreddit = "not a name"
	_, err := collect(context.Background(), cfg, collectRequest{}, &bytes.Buffer{})
	assert.True(t, errs.Is(err, errs.ErrorTypeConfiguration))

	cfg.Source.Subreddit = "golang"
	cfg.RateLimit.Policy = "bursty"
	_, err = collect(context.Background(), cfg, collectRequest{}, &bytes.Buffer{})
	assert.True(t, errs.Is(err, errs.ErrorTypeConfiguration))

	cfg.RateLimit.Policy = "fixed"
	cfg.Comments.Policy = "some"
	_, err = collect(context.Background(), cfg, collectRequest{}, &bytes.Buffer{})
	assert.True(t, errs.Is(err, errs.ErrorTypeConfiguration))
}

func TestCollectAbortsOnAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	summary, err := collect(context.Background(), cfg, collectRequest{}, &bytes.Buffer{})
	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, err, summary.Err)

	runs, lerr := func() ([]ledger.Run, error) {
		led, err := ledger.Open(cfg.ManifestPath())
		if err != nil {
			return nil, err
		}
		defer led.Close()
		return led.Runs(context.Background(), 0)
	}()
	require.NoError(t, lerr)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.StatusFailed, runs[0].Status)

	// The interrupted run left a checkpoint, so a plain rerun is refused
	_, err = collect(context.Background(), cfg, collectRequest{}, &bytes.Buffer{})
	assert.True(t, errs.Is(err, errs.ErrorTypeConfiguration), fmt.Sprint(err))

	_, err = collect(context.Background(), cfg, collectRequest{ForceRestart: true}, &bytes.Buffer{})
	assert.False(t, errs.Is(err, errs.ErrorTypeConfiguration))
}

func TestConfigFlags(t *testing.T) {
	f := collectFlags{start: "2025-01-01", end: "2025-01-03", writeWorkers: 2, minInterval: time.Second}
	flags := f.configFlags("golang")

	cfg := config.DefaultConfig()
	cfg.MergeCommandLineFlags(flags)

	assert.Equal(t, "golang", cfg.Source.Subreddit)
	assert.Equal(t, "2025-01-01", cfg.Source.Start)
	assert.Equal(t, "2025-01-03", cfg.Source.End)
	assert.Equal(t, 2, cfg.Output.WriteWorkers)
	assert.Equal(t, time.Second, cfg.RateLimit.MinInterval)
	assert.Equal(t, "drop", cfg.Comments.Policy)
	assert.True(t, cfg.Checkpoint.Enabled)
}

func TestResolveCredentialsPrefersConfiguredToken(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Reddit.AccessToken = "from-config"
	require.NoError(t, resolveCredentials(cfg, ""))
	assert.Equal(t, "from-config", cfg.Reddit.AccessToken)
}
