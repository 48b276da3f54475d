package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"trade-settlement/internal/workflow"
)

const (
	defaultKeyPrefix    = "tradesettle:session:"
	defaultLockTTL      = 30 * time.Second
	defaultPollInterval = 25 * time.Millisecond
)

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOptions configure the Redis store.
type RedisOptions struct {
	URL          string
	KeyPrefix    string
	TTL          time.Duration
	LockTTL      time.Duration
	PollInterval time.Duration
}

func (o *RedisOptions) applyDefaults() {
	if o.KeyPrefix == "" {
		o.KeyPrefix = defaultKeyPrefix
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.LockTTL <= 0 {
		o.LockTTL = defaultLockTTL
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
}

// Redis keeps snapshots as JSON blobs with a TTL and locks with SET NX.
type Redis struct {
	client redis.UniversalClient
	opts   RedisOptions
	logger zerolog.Logger
}

// NewRedis connects to opts.URL and verifies the connection.
func NewRedis(ctx context.Context, opts RedisOptions, logger zerolog.Logger) (*Redis, error) {
	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisWithClient(client, opts, logger), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, opts RedisOptions, logger zerolog.Logger) *Redis {
	opts.applyDefaults()
	return &Redis{
		client: client,
		opts:   opts,
		logger: logger.With().Str("component", "session_redis").Logger(),
	}
}

func (r *Redis) sessionKey(id string) string {
	return r.opts.KeyPrefix + id
}

func (r *Redis) lockKey(id string) string {
	return r.opts.KeyPrefix + id + ":lock"
}

func (r *Redis) Save(ctx context.Context, id string, snap workflow.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.sessionKey(id), data, r.opts.TTL).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *Redis) Load(ctx context.Context, id string) (workflow.Snapshot, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return workflow.Snapshot{}, ErrNotFound
		}
		return workflow.Snapshot{}, fmt.Errorf("load session: %w", err)
	}

	var snap workflow.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return workflow.Snapshot{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return snap, nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *Redis) Lock(ctx context.Context, id string) (func(), error) {
	key := r.lockKey(id)
	token := uuid.NewString()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := r.client.SetNX(ctx, key, token, r.opts.LockTTL).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire session lock: %w", err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(r.opts.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	unlock := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{key}, token).Err(); err != nil {
			r.logger.Error().Err(err).Str("session_id", id).Msg("failed to release session lock")
		}
	}
	return unlock, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Store = (*Redis)(nil)
