package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/globle-leaderboard/internal/config"
	"github.com/globle-leaderboard/internal/domain"
)

const lockRetryInterval = 50 * time.Millisecond

// releaseScript deletes the lock only if this holder still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store keeps documents as plain string values so several bot
// processes can share one ledger.
type Store struct {
	client  *redis.Client
	prefix  string
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewStore connects to Redis
func NewStore(cfg *config.RedisConfig, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Store{
		client:  client,
		prefix:  cfg.KeyPrefix,
		lockTTL: cfg.LockTTL,
		logger:  logger,
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) documentKey(key string) string {
	return fmt.Sprintf("%sdoc:%s", s.prefix, key)
}

func (s *Store) lockKey() string {
	return s.prefix + "lock"
}

// Load fetches a document
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.documentKey(key)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", key, err)
	}
	return data, nil
}

// Save overwrites a document
func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.documentKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

// Lock takes the shared ledger lock, retrying until ctx is done.
// The lock expires after the configured TTL if the holder dies.
func (s *Store) Lock(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	key := s.lockKey()

	for {
		ok, err := s.client.SetNX(ctx, key, token, s.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquiring lock: %w", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(domain.ErrLockNotAcquired, ctx.Err())
		case <-time.After(lockRetryInterval):
		}
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, s.client, []string{key}, token).Err(); err != nil {
			s.logger.Warn("failed to release redis lock", "error", err)
		}
	}, nil
}
