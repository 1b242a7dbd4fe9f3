package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/wa-autoresponder/internal/config"
	"github.com/wolfman30/wa-autoresponder/internal/notify"
	"github.com/wolfman30/wa-autoresponder/internal/worker"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

type gatewayRecorder struct {
	mu    sync.Mutex
	sends []map[string]string
}

func (g *gatewayRecorder) handler(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	g.mu.Lock()
	g.sends = append(g.sends, map[string]string{"to": r.PostForm.Get("to"), "body": r.PostForm.Get("body")})
	g.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"sent": "true", "message": "ok", "id": 1}`))
}

func (g *gatewayRecorder) snapshot() []map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]map[string]string(nil), g.sends...)
}

func modelServer(t *testing.T, reply string) (*httptest.Server, *int) {
	t.Helper()
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "llama3.1",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func testConfig(ollamaURL, gatewayURL string) *appconfig.Config {
	return &appconfig.Config{
		LogLevel:           "error",
		UseMemoryQueue:     true,
		WorkerCount:        2,
		StateBackend:       "memory",
		AIProvider:         "ollama",
		OllamaBase:         ollamaURL,
		LLMTemperature:     0.7,
		LLMMaxTokens:       100,
		LLMMaxAttempts:     1,
		UltraMsgBaseURL:    gatewayURL,
		UltraMsgInstanceID: "instance1",
		UltraMsgToken:      "tok",
		AWSRegion:          "us-east-1",
		AWSAccessKeyID:     "test",
		AWSSecretAccessKey: "test",
		AdminJWTSecret:     "secret",
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBuild_WebhookToReply(t *testing.T) {
	gateway := &gatewayRecorder{}
	gw := httptest.NewServer(http.HandlerFunc(gateway.handler))
	defer gw.Close()
	model, calls := modelServer(t, "Where would you like to meet?")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := Build(ctx, testConfig(model.URL, gw.URL), logging.New("error"))
	require.NoError(t, err)
	defer rt.Close()

	w := rt.NewWorker(worker.WithReceiveWaitSeconds(0))
	w.Start(ctx)
	handler := rt.Router(ctx)

	post := func(body string) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/ultramsg", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status": "queued"}`, rec.Body.String())
	}

	post(`{"type": "chat", "from": "5511988887777@c.us", "body": "hello"}`)
	waitFor(t, func() bool { return len(gateway.snapshot()) == 1 })
	assert.Equal(t, 1, *calls)
	assert.Equal(t, "Where would you like to meet?", gateway.snapshot()[0]["body"])

	post(`{"type": "chat", "from": "5511988887777@c.us", "body": "motel, 8pm, pix"}`)
	waitFor(t, func() bool { return len(gateway.snapshot()) == 2 })
	closing := gateway.snapshot()[1]
	assert.Equal(t, "5511988887777", closing["to"])
	assert.Contains(t, closing["body"], "20:00")
	assert.Equal(t, 1, *calls, "closing turn does not call the model")

	st, ok, err := rt.Orchestrator.Conversation(ctx, "5511988887777")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, st.Closed)

	cancel()
	w.Wait()
}

func TestBuild_RequiresBackends(t *testing.T) {
	cfg := testConfig("", "")
	cfg.AIProvider = ""
	_, err := Build(context.Background(), cfg, logging.New("error"))
	require.ErrorIs(t, err, appconfig.ErrInvalidBackends)
}

func TestBuild_RequiresConfig(t *testing.T) {
	_, err := Build(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestBuildQueue(t *testing.T) {
	q, err := BuildQueue(&appconfig.Config{UseMemoryQueue: true}, aws.Config{})
	require.NoError(t, err)
	assert.IsType(t, &worker.MemoryQueue{}, q)

	_, err = BuildQueue(&appconfig.Config{}, aws.Config{})
	assert.ErrorIs(t, err, ErrQueueNotConfigured)

	q, err = BuildQueue(&appconfig.Config{ConversationQueueURL: "https://sqs.us-east-1.amazonaws.com/1/conv.fifo"}, aws.Config{Region: "us-east-1"})
	require.NoError(t, err)
	assert.IsType(t, &worker.SQSQueue{}, q)
}

func TestBuildSender_UnconfiguredGatewayFails(t *testing.T) {
	sender := BuildSender(&appconfig.Config{}, nil, logging.New("error"))
	assert.Error(t, sender.Send(context.Background(), "5511", "hi"))
}

func TestBuildEmailSender(t *testing.T) {
	logger := logging.New("error")
	awsCfg := aws.Config{Region: "us-east-1"}

	assert.IsType(t, &notify.SendGridSender{}, BuildEmailSender(&appconfig.Config{SendGridAPIKey: "SG.x"}, awsCfg, logger))
	assert.IsType(t, &notify.SESSender{}, BuildEmailSender(&appconfig.Config{SESFromEmail: "ops@example.com"}, awsCfg, logger))
	assert.IsType(t, &notify.StubEmailSender{}, BuildEmailSender(&appconfig.Config{}, awsCfg, logger))
}

func TestBuildArchive(t *testing.T) {
	logger := logging.New("error")
	assert.Nil(t, BuildArchive(&appconfig.Config{}, aws.Config{}, logger))
	store := BuildArchive(&appconfig.Config{ArchiveBucket: "transcripts"}, aws.Config{Region: "us-east-1"}, logger)
	require.NotNil(t, store)
	assert.True(t, store.Enabled())
}

func TestNegotiationPolicy(t *testing.T) {
	p := NegotiationPolicy(&appconfig.Config{StaleAfter: time.Hour, ReaskLock: time.Minute, MuteFor: 2 * time.Hour, HistoryLimit: 8})
	assert.Equal(t, time.Hour, p.StaleAfter)
	assert.Equal(t, time.Minute, p.ReaskLock)
	assert.Equal(t, 2*time.Hour, p.MuteFor)
	assert.Equal(t, 8, p.HistoryLimit)
}

func TestJobTimeout(t *testing.T) {
	tests := []struct {
		name string
		cfg  appconfig.Config
		want time.Duration
	}{
		{"no delay keeps the floor", appconfig.Config{LLMDispatchTimeout: 25 * time.Second}, 2 * time.Minute},
		{"human delay extends the deadline", appconfig.Config{ReplyDelayMax: 150 * time.Second, LLMDispatchTimeout: 25 * time.Second}, 205 * time.Second},
		{"unset dispatch uses default", appconfig.Config{ReplyDelayMax: 100 * time.Second}, 155 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JobTimeout(&tt.cfg))
		})
	}
}

func TestNewWorker_DeadlineCoversReplyDelay(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1", "http://127.0.0.1:1")
	cfg.ReplyDelayMin = 40 * time.Second
	cfg.ReplyDelayMax = 150 * time.Second
	cfg.LLMDispatchTimeout = 25 * time.Second

	rt, err := Build(context.Background(), cfg, logging.New("error"))
	require.NoError(t, err)
	defer rt.Close()

	w := rt.NewWorker()
	if got := w.JobTimeout(); got < cfg.ReplyDelayMax+cfg.LLMDispatchTimeout {
		t.Fatalf("job timeout %s shorter than delay plus dispatch", got)
	}

	w = rt.NewWorker(worker.WithJobTimeout(time.Hour))
	assert.Equal(t, time.Hour, w.JobTimeout())
}
