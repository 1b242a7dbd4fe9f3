package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

var ultraMsgTracer = otel.Tracer("wa.internal.messaging.ultramsg")

const defaultUltraMsgBaseURL = "https://api.ultramsg.com"

// UltraMsgConfig configures the WhatsApp gateway client.
type UltraMsgConfig struct {
	BaseURL    string
	InstanceID string
	Token      string
	Timeout    time.Duration
	// MaxAttempts bounds delivery attempts on network errors and 5xx responses.
	MaxAttempts int
	// RetryDelay is the base pause between attempts; jitter of up to the same
	// amount is added.
	RetryDelay time.Duration
	HTTPClient *http.Client
}

// UltraMsgClient sends WhatsApp text messages through the UltraMsg chat API.
type UltraMsgClient struct {
	cfg        UltraMsgConfig
	httpClient *http.Client
	logger     *logging.Logger
}

var _ Sender = (*UltraMsgClient)(nil)

// NewUltraMsgClient builds a client for one UltraMsg instance.
func NewUltraMsgClient(cfg UltraMsgConfig, logger *logging.Logger) *UltraMsgClient {
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultUltraMsgBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 200 * time.Millisecond
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &UltraMsgClient{cfg: cfg, httpClient: client, logger: logger}
}

// Configured reports whether instance id and token are present.
func (c *UltraMsgClient) Configured() bool {
	return c != nil && c.cfg.InstanceID != "" && c.cfg.Token != ""
}

type ultraMsgResponse struct {
	Sent    any    `json:"sent"`
	Status  any    `json:"status"`
	Message string `json:"message"`
	ID      any    `json:"id"`
	Error   any    `json:"error"`
}

// accepted mirrors the gateway's loose response: sent may be a bool or the
// string "true", and some versions only report status.
func (r ultraMsgResponse) accepted() bool {
	switch v := r.Sent.(type) {
	case bool:
		if v {
			return true
		}
	case string:
		if strings.EqualFold(v, "true") {
			return true
		}
	}
	switch v := r.Status.(type) {
	case bool:
		return v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "sent" || s == "ok"
	}
	return false
}

// Send delivers text to the WhatsApp number identified by conversationID.
func (c *UltraMsgClient) Send(ctx context.Context, conversationID, text string) error {
	if !c.Configured() {
		return errors.New("messaging: ultramsg instance id and token required")
	}
	to := NormalizeWhatsApp(conversationID)
	if to == "" {
		return errors.New("messaging: recipient number required")
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	body := Truncate(text)

	ctx, span := ultraMsgTracer.Start(ctx, "messaging.ultramsg.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("wa.to", to),
		attribute.Int("wa.body_length", len(body)),
	)

	endpoint := fmt.Sprintf("%s/%s/messages/chat", c.cfg.BaseURL, url.PathEscape(c.cfg.InstanceID))
	form := url.Values{}
	form.Set("token", c.cfg.Token)
	form.Set("to", to)
	form.Set("body", body)

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		retry, err := c.post(ctx, endpoint, form)
		if err == nil {
			c.logger.Info("whatsapp message sent", "to", to, "attempt", attempt, "length", len(body))
			return nil
		}
		lastErr = err
		if !retry || attempt == c.cfg.MaxAttempts {
			break
		}
		pause := c.cfg.RetryDelay + time.Duration(rand.Int63n(int64(c.cfg.RetryDelay)+1))
		if err := sleepContext(ctx, pause); err != nil {
			lastErr = err
			break
		}
	}

	span.RecordError(lastErr)
	c.logger.Error("failed to send whatsapp message", "error", lastErr, "to", to)
	return lastErr
}

// post performs one attempt and reports whether a failure is worth retrying.
func (c *UltraMsgClient) post(ctx context.Context, endpoint string, form url.Values) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("messaging: build ultramsg request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("messaging: ultramsg request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
	if resp.StatusCode >= 500 {
		return true, fmt.Errorf("messaging: ultramsg send failed: status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("messaging: ultramsg send failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed ultraMsgResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return false, fmt.Errorf("messaging: decode ultramsg response: %w", err)
	}
	if !parsed.accepted() {
		return false, fmt.Errorf("messaging: ultramsg rejected message: %v", firstNonNil(parsed.Error, parsed.Message))
	}
	return false, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil && v != "" {
			return v
		}
	}
	return "unknown error"
}
