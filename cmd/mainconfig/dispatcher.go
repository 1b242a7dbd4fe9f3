package mainconfig

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	appconfig "github.com/wolfman30/wa-autoresponder/internal/config"
	"github.com/wolfman30/wa-autoresponder/internal/llm"
	"github.com/wolfman30/wa-autoresponder/internal/observability/metrics"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

// DispatchPolicy maps LLM_* settings onto the dispatcher policy.
func DispatchPolicy(cfg *appconfig.Config) llm.Policy {
	return llm.Policy{
		MaxAttempts: cfg.LLMMaxAttempts,
		BaseDelay:   cfg.LLMBaseDelay,
		MaxDelay:    cfg.LLMMaxDelay,
		Breaker: llm.BreakerPolicy{
			FailureThreshold: cfg.LLMFailureThreshold,
			TransientStreak:  cfg.LLMTransientStreak,
			Cooldown:         cfg.LLMCooldown,
		},
		MaxCooldownWait: cfg.LLMMaxCooldownWait,
		DispatchTimeout: cfg.LLMDispatchTimeout,
		FallbackText:    cfg.LLMFallbackText,
	}
}

// BuildBackends turns backend specs into dispatcher backends. The returned
// cleanup closes any clients that hold connections.
func BuildBackends(ctx context.Context, specs []appconfig.BackendSpec, awsCfg aws.Config) ([]llm.Backend, func(), error) {
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	var bedrock *bedrockruntime.Client
	backends := make([]llm.Backend, 0, len(specs))
	for _, spec := range specs {
		var client llm.Client
		switch spec.Kind {
		case appconfig.BackendOpenAI:
			client = llm.NewOpenAIClient(llm.OpenAIConfig{
				APIKey:  spec.APIKey,
				BaseURL: spec.BaseURL,
				Headers: spec.Headers,
			})
		case appconfig.BackendBedrock:
			if bedrock == nil {
				bedrock = bedrockruntime.NewFromConfig(awsCfg)
			}
			client = llm.NewBedrockClient(bedrock)
		case appconfig.BackendGemini:
			gemini, err := llm.NewGeminiClient(ctx, spec.APIKey, spec.Model)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("mainconfig: backend %s: %w", spec.ID, err)
			}
			closers = append(closers, gemini.Close)
			client = gemini
		default:
			cleanup()
			return nil, nil, fmt.Errorf("mainconfig: backend %s: unknown kind %q", spec.ID, spec.Kind)
		}

		b := llm.Backend{
			ID:        spec.ID,
			Priority:  spec.Priority,
			Model:     spec.Model,
			MaxTokens: int32(spec.MaxTokens),
			Client:    client,
		}
		if spec.Temperature != nil {
			b.Temperature = float32(*spec.Temperature)
		}
		backends = append(backends, b)
	}
	return backends, cleanup, nil
}

// BuildDispatcher loads the backend pool from cfg and returns a ready dispatcher.
func BuildDispatcher(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger, m *metrics.DispatcherMetrics) (*llm.Dispatcher, func(), error) {
	specs, err := cfg.LoadBackends()
	if err != nil {
		return nil, nil, err
	}
	backends, cleanup, err := BuildBackends(ctx, specs, awsCfg)
	if err != nil {
		return nil, nil, err
	}
	dispatcher, err := llm.NewDispatcher(backends, DispatchPolicy(cfg),
		llm.WithLogger(logger),
		llm.WithMetrics(m),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	for _, b := range dispatcher.Backends() {
		logger.Info("model backend registered", "backend", b.ID, "priority", b.Priority, "model", b.Model)
	}
	return dispatcher, cleanup, nil
}
