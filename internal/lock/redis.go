package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRedisTTL = 15 * time.Minute

// releaseScript deletes the key only while it still carries this holder's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrLeaseLost indicates the lease expired or was taken over before release.
var ErrLeaseLost = errors.New("lock: lease lost before release")

// RedisOptions configures the redis-backed Locker.
type RedisOptions struct {
	Prefix string
	TTL    time.Duration
}

// NewRedisLocker returns a Locker that stores leases as expiring redis keys, which
// lets runs on different hosts exclude each other.
func NewRedisLocker(client redis.UniversalClient, opts RedisOptions) Locker {
	if opts.TTL <= 0 {
		opts.TTL = defaultRedisTTL
	}
	if opts.Prefix == "" {
		opts.Prefix = "feature-qa:lock:"
	}
	return &redisLocker{client: client, opts: opts}
}

type redisLocker struct {
	client redis.UniversalClient
	opts   RedisOptions
}

func (l *redisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.NewString()
	redisKey := l.opts.Prefix + key

	ok, err := l.client.SetNX(ctx, redisKey, token, l.opts.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("set lock key %s: %w", redisKey, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &redisLease{client: l.client, key: key, redisKey: redisKey, token: token}, nil
}

type redisLease struct {
	client   redis.UniversalClient
	key      string
	redisKey string
	token    string
}

func (l *redisLease) Key() string { return l.key }

func (l *redisLease) Release(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, l.client, []string{l.redisKey}, l.token).Int()
	if err != nil {
		return fmt.Errorf("delete lock key %s: %w", l.redisKey, err)
	}
	if deleted == 0 {
		return ErrLeaseLost
	}
	return nil
}
