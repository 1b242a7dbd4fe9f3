package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/wolfman30/wa-autoresponder/cmd/mainconfig"
	appconfig "github.com/wolfman30/wa-autoresponder/internal/config"
	"github.com/wolfman30/wa-autoresponder/internal/messaging"
	"github.com/wolfman30/wa-autoresponder/internal/orchestrator"
	"github.com/wolfman30/wa-autoresponder/internal/worker"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

const webhookPath = "/webhooks/ultramsg"

type publisher interface {
	EnqueueInbound(ctx context.Context, in orchestrator.Inbound) (string, error)
}

type handler struct {
	publisher publisher
	now       func() time.Time
	logger    *logging.Logger
}

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)

	if strings.TrimSpace(cfg.ConversationQueueURL) == "" {
		logger.Error("CONVERSATION_QUEUE_URL is required")
		os.Exit(1)
	}
	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	queue := worker.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ConversationQueueURL)
	h := &handler{
		publisher: worker.NewPublisher(queue, logger),
		now:       time.Now,
		logger:    logger,
	}
	lambda.Start(h.handle)
}

func (h *handler) handle(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := strings.ToUpper(strings.TrimSpace(evt.RequestContext.HTTP.Method))
	path := strings.TrimSpace(evt.RawPath)
	if path == "" {
		path = strings.TrimSpace(evt.RequestContext.HTTP.Path)
	}

	if path == "/health" || path == "/_health" {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusOK, Body: "ok"}, nil
	}
	if path != webhookPath {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusNotFound}, nil
	}
	if method != http.MethodPost {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusMethodNotAllowed}, nil
	}

	body, err := decodeBody(evt)
	if err != nil {
		return jsonResponse(http.StatusBadRequest, "invalid body"), nil
	}

	msg, err := messaging.ParseUltraMsgWebhook(body)
	if err != nil || !msg.Actionable() {
		return jsonResponse(http.StatusOK, "ignored"), nil
	}

	received := msg.Time
	if received.IsZero() {
		received = h.now().UTC()
	}
	jobID, err := h.publisher.EnqueueInbound(ctx, orchestrator.Inbound{
		MessageID:      msg.ID,
		ConversationID: msg.From,
		Channel:        messaging.ChannelWhatsApp,
		Text:           msg.Body,
		ReceivedAt:     received,
	})
	if err != nil {
		h.logger.Error("webhook lambda: enqueue failed", "error", err, "conversation_id", msg.From)
		return jsonResponse(http.StatusServiceUnavailable, "error"), nil
	}
	h.logger.Info("webhook lambda: queued", "job_id", jobID, "conversation_id", msg.From)
	return jsonResponse(http.StatusOK, "queued"), nil
}

func jsonResponse(status int, value string) events.APIGatewayV2HTTPResponse {
	body, _ := json.Marshal(map[string]string{"status": value})
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Body:       string(body),
		Headers:    map[string]string{"content-type": "application/json"},
	}
}

func decodeBody(evt events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if !evt.IsBase64Encoded {
		return []byte(evt.Body), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(evt.Body)
	if err != nil {
		return nil, err
	}
	if len(decoded) == 0 {
		return nil, errors.New("empty body")
	}
	return decoded, nil
}
