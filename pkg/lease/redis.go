package lease

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces lease keys in Redis.
const KeyPrefix = "deprank:lease:"

var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis is a Locker backed by SET NX PX on a Redis server.
type Redis struct {
	client *redis.Client
	owned  bool
}

// NewRedis connects to url and verifies the connection.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Redis{client: client, owned: true}, nil
}

// NewRedisFromClient wraps an existing client. Close does not close it.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	tok := newToken()
	ok, err := r.client.SetNX(ctx, KeyPrefix+key, tok, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return &redisLease{client: r.client, key: key, token: tok, ttl: ttl}, nil
}

// Close closes the client if the locker created it.
func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func (x *redisLease) Key() string { return x.key }

func (x *redisLease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, x.client, []string{KeyPrefix + x.key}, x.token, x.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLost
	}
	return nil
}

func (x *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, x.client, []string{KeyPrefix + x.key}, x.token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLost
	}
	return nil
}

var _ Locker = (*Redis)(nil)
