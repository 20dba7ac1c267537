package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/personaflow/whatsapp-relay/internal/config"
	"github.com/personaflow/whatsapp-relay/internal/conversation"
	"github.com/personaflow/whatsapp-relay/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, using in-process rate limit window", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildMessageStore opens the Postgres message store, or the memory store
// when USE_MEMORY_STORE is set. The returned func releases the pool.
func BuildMessageStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.MessageStore, func(), error) {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryStore {
		logger.Warn("using in-memory message store; history is lost on restart")
		return conversation.NewMemoryStore(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("connected to postgres message store")
	return conversation.NewPostgresStore(pool), pool.Close, nil
}
