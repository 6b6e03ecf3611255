package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultTTL    = 30 * time.Minute
	defaultPrefix = "job-seeker:lock:"
	redisTimeout  = 5 * time.Second
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another run is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript extends the key only while it still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
	TTL      time.Duration
}

// Redis is a lock shared by every process that points at the same Redis key.
// The key is extended every third of its TTL while the lock is held.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger

	refreshEvery time.Duration
}

func NewRedis(opts RedisOptions, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisWithClient(client, opts.Key, opts.TTL, logger)
}

func NewRedisWithClient(client *redis.Client, key string, ttl time.Duration, logger *zap.Logger) *Redis {
	if key == "" {
		key = "default"
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Redis{
		client:       client,
		key:          defaultPrefix + key,
		ttl:          ttl,
		logger:       logger,
		refreshEvery: max(ttl/3, time.Millisecond),
	}
}

func (r *Redis) Acquire(ctx context.Context) (context.Context, func(), error) {
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, r.key, token, r.ttl).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("acquiring redis lock %s: %w", r.key, err)
	}
	if !ok {
		return nil, nil, ErrLocked
	}

	r.logger.Debug("redis lock acquired", zap.String("key", r.key), zap.Duration("ttl", r.ttl))

	locked, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})
	go r.keepAlive(locked, cancel, token, done)

	return locked, sync.OnceFunc(func() {
		cancel(nil)
		<-done

		// the run context may already be cancelled here
		ctx, stop := context.WithTimeout(context.Background(), redisTimeout)
		defer stop()

		if err := releaseScript.Run(ctx, r.client, []string{r.key}, token).Err(); err != nil {
			r.logger.Warn("releasing redis lock", zap.String("key", r.key), zap.Error(err))
			return
		}
		r.logger.Debug("redis lock released", zap.String("key", r.key))
	}), nil
}

// keepAlive extends the key until ctx ends. The lock counts as lost when the
// key no longer holds the token or no extension succeeded for a whole TTL;
// ctx is then cancelled with ErrLost.
func (r *Redis) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, token string, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.refreshEvery)
	defer ticker.Stop()

	extended := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ok, err := r.refresh(ctx, token)
		switch {
		case ctx.Err() != nil:
			return
		case err != nil:
			r.logger.Warn("extending redis lock", zap.String("key", r.key), zap.Error(err))
			if time.Since(extended) < r.ttl {
				continue
			}
		case ok:
			extended = time.Now()
			continue
		}

		r.logger.Error("redis lock lost", zap.String("key", r.key))
		cancel(ErrLost)
		return
	}
}

func (r *Redis) refresh(ctx context.Context, token string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	n, err := refreshScript.Run(ctx, r.client, []string{r.key}, token, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
