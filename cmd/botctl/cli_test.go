package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/wa-autoresponder/internal/config"
	"github.com/wolfman30/wa-autoresponder/internal/llm"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

func testEnv(cfg *appconfig.Config) *env {
	return &env{
		loadConfig: func() *appconfig.Config { return cfg },
		logger:     func(*appconfig.Config) *logging.Logger { return logging.New("error") },
	}
}

func executeCLI(t *testing.T, e *env, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmdWithEnv(e)
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestExtractText(t *testing.T) {
	out, err := executeCLI(t, testEnv(&appconfig.Config{}), "", "extract", "motel", "8pm,", "pix")
	require.NoError(t, err)
	assert.Contains(t, out, "time     20:00 (clock)")
	assert.Contains(t, out, "payment  pix (lexicon)")
	assert.Contains(t, out, "day      -")
}

func TestExtractJSON(t *testing.T) {
	out, err := executeCLI(t, testEnv(&appconfig.Config{}), "", "extract", "--json", "hello there")
	require.NoError(t, err)

	var got extractOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Nil(t, got.Place)
	assert.Nil(t, got.Time)
	assert.Nil(t, got.Payment)
}

func TestExtractRequiresText(t *testing.T) {
	_, err := executeCLI(t, testEnv(&appconfig.Config{}), "", "extract")
	require.Error(t, err)
}

func TestSimulateOfflineClosesBooking(t *testing.T) {
	stdin := "hello\nmotel, 8pm, pix\n/state\n/quit\n"
	out, err := executeCLI(t, testEnv(&appconfig.Config{}), stdin, "simulate", "--offline")
	require.NoError(t, err)

	assert.Contains(t, out, "bot> [offline] Still missing:")
	assert.Contains(t, out, "-- needs_slot")
	assert.Contains(t, out, "bot> Perfect, it's booked:")
	assert.Contains(t, out, "-- ready_to_close")
	assert.Contains(t, out, "-- payment  pix")
	assert.Contains(t, out, "-- closed=true")
}

func TestSimulateResetAndEmptyState(t *testing.T) {
	stdin := "/state\nmotel\n/reset\n/state\n"
	out, err := executeCLI(t, testEnv(&appconfig.Config{}), stdin, "simulate", "--offline", "--conversation", "c-1")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "-- no conversation yet"))
	assert.Contains(t, out, "-- conversation reset")
}

func TestSimulateWithoutBackendsFails(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	_, err := executeCLI(t, testEnv(&appconfig.Config{AWSRegion: "us-east-1"}), "", "simulate")
	assert.ErrorIs(t, err, appconfig.ErrInvalidBackends)
}

func TestProbeReportsEachBackend(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "1", "object": "chat.completion", "model": "llama3.1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}]}`))
	}))
	defer srv.Close()

	cfg := &appconfig.Config{AIProvider: "ollama", OllamaBase: srv.URL, AWSRegion: "us-east-1", LLMMaxTokens: 50}
	out, err := executeCLI(t, testEnv(cfg), "", "probe")
	require.NoError(t, err)
	assert.Contains(t, out, "ollama")
	assert.Contains(t, out, "llama3.1")
	assert.Contains(t, out, " ok ")
}

func TestProbeFailsOnBrokenBackend(t *testing.T) {
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
	defer srv.Close()

	cfg := &appconfig.Config{AIProvider: "ollama", OllamaBase: srv.URL, AWSRegion: "us-east-1"}
	out, err := executeCLI(t, testEnv(cfg), "", "probe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 backends failed")
	assert.Contains(t, out, "FAIL (transient)")
}

func TestProbeBackendsRecordsErrors(t *testing.T) {
	backends := []llm.Backend{
		{ID: "a", Model: "m", Client: llm.ClientFunc(func(context.Context, llm.Request) (llm.Response, error) {
			return llm.Response{Text: "ok"}, nil
		})},
		{ID: "b", Model: "m", Client: llm.ClientFunc(func(ctx context.Context, _ llm.Request) (llm.Response, error) {
			<-ctx.Done()
			return llm.Response{}, ctx.Err()
		})},
	}
	results := probeBackends(context.Background(), backends, 10*time.Millisecond)
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "ok", results[0].Reply)
	assert.Error(t, results[1].Err)
}
