package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired lock taken over by another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// Redis is a Locker shared by every replica pointed at the same Redis.
type Redis struct {
	rdb    *redis.Client
	Prefix string
	TTL    time.Duration
	Poll   time.Duration
}

// NewRedis parses a redis:// URL.
func NewRedis(url string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisClient(redis.NewClient(opt)), nil
}

func NewRedisClient(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, Prefix: "calltrack:lock:", TTL: 10 * time.Second, Poll: 50 * time.Millisecond}
}

func (l *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := l.Prefix + key
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		t := time.NewTimer(l.Poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The request context may already be done; release on our own clock.
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(rctx, l.rdb, []string{k}, token).Err()
		})
	}, nil
}

func (l *Redis) Ping(ctx context.Context) error {
	if l.rdb == nil {
		return errors.New("redis client not initialised")
	}
	return l.rdb.Ping(ctx).Err()
}

func (l *Redis) Close() error { return l.rdb.Close() }
