package mainconfig

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	appconfig "github.com/wolfman30/wa-autoresponder/internal/config"
	"github.com/wolfman30/wa-autoresponder/internal/negotiation"
	"github.com/wolfman30/wa-autoresponder/pkg/logging"
)

// StateTTL keeps persisted conversations a little past the mute window so a
// muted thread is never forgotten early.
func StateTTL(cfg *appconfig.Config) time.Duration {
	ttl := cfg.StaleAfter
	if cfg.MuteFor > ttl {
		ttl = cfg.MuteFor
	}
	if ttl <= 0 {
		ttl = negotiation.DefaultPolicy().MuteFor
	}
	return 2 * ttl
}

// NewStateStore returns the negotiation store selected by STATE_BACKEND.
func NewStateStore(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (negotiation.Store, error) {
	switch cfg.StateBackend {
	case "", "memory":
		store := negotiation.NewMemoryStore(logger)
		go store.RunJanitor(ctx, cfg.StaleAfter/4, StateTTL(cfg))
		return store, nil
	case "redis":
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("mainconfig: redis ping: %w", err)
		}
		return negotiation.NewRedisStore(client, StateTTL(cfg), nil), nil
	case "dynamodb":
		return negotiation.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.StateTable, StateTTL(cfg), logger), nil
	default:
		return nil, fmt.Errorf("mainconfig: unknown STATE_BACKEND %q", cfg.StateBackend)
	}
}
