package savings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/warp/savings-engine/generic"
	"github.com/warp/savings-engine/pkg/logger"
)

// releaseScript deletes the lock key only if it still holds our token, so a
// holder whose TTL expired cannot release someone else's lock.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLockerOptions struct {
	KeyPrefix    string
	TTL          time.Duration // lease; must exceed the longest mutation
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

// RedisLocker is a Locker shared by every instance pointing at the same
// redis. It uses SET NX PX with a random token per holder.
type RedisLocker struct {
	client goredis.UniversalClient
	opts   RedisLockerOptions
}

func NewRedisLocker(client goredis.UniversalClient, opts RedisLockerOptions) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	return &RedisLocker{client: client, opts: opts}
}

// DialRedis opens a client and pings it.
func DialRedis(ctx context.Context, opts *goredis.UniversalOptions) (goredis.UniversalClient, error) {
	c := goredis.NewUniversalClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

func (l *RedisLocker) key(id generic.GoalID) string {
	return l.opts.KeyPrefix + "goal-lock:" + string(id)
}

func (l *RedisLocker) Lock(ctx context.Context, id generic.GoalID) (func(), error) {
	if l.opts.WaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.WaitTimeout)
		defer cancel()
	}

	key := l.key(id)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: goal %s: %w", generic.ErrLockTimeout, id, ctx.Err())
			}
			return nil, fmt.Errorf("acquire goal lock: %w", err)
		}
		if ok {
			return l.unlockFunc(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: goal %s: %w", generic.ErrLockTimeout, id, ctx.Err())
		case <-time.After(l.opts.PollInterval):
		}
	}
}

func (l *RedisLocker) unlockFunc(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's ctx may already be cancelled
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			err := releaseScript.Run(ctx, l.client, []string{key}, token).Err()
			if err != nil && !errors.Is(err, goredis.Nil) {
				logger.Warn("failed to release goal lock", "key", key, "error", err)
			}
		})
	}
}
