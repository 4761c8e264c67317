package proxypool

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	redisRegistryKeyPrefix = "viewcounter:run:"
	redisRegistryTTL       = 24 * time.Hour
	redisOpTimeout         = 3 * time.Second
)

// RedisRegistry keeps the identity set in a run-scoped Redis set so several
// processes working the same run never share a proxy. Backend errors are
// answered conservatively: Register reports false and Contains reports true.
type RedisRegistry struct {
	client *redis.Client
	key    string
}

func NewRedisRegistry(client *redis.Client, runID string) *RedisRegistry {
	return &RedisRegistry{client: client, key: RedisRegistryKey(runID)}
}

func RedisRegistryKey(runID string) string {
	return fmt.Sprintf("%s%s:proxies", redisRegistryKeyPrefix, runID)
}

func (r *RedisRegistry) Register(identity string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	added, err := r.client.SAdd(ctx, r.key, identity).Result()
	if err != nil {
		log.Warn("redis registry register failed; treating proxy as used", "identity", identity, "error", err)
		return false
	}
	if added == 1 {
		if err := r.client.Expire(ctx, r.key, redisRegistryTTL).Err(); err != nil {
			log.Debug("redis registry expire failed", "key", r.key, "error", err)
		}
	}
	return added == 1
}

func (r *RedisRegistry) Contains(identity string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	member, err := r.client.SIsMember(ctx, r.key, identity).Result()
	if err != nil {
		log.Warn("redis registry lookup failed; treating proxy as used", "identity", identity, "error", err)
		return true
	}
	return member
}

func (r *RedisRegistry) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	n, err := r.client.SCard(ctx, r.key).Result()
	if err != nil {
		log.Warn("redis registry size failed", "error", err)
		return 0
	}
	return int(n)
}

// Close drops the run's set; identities are never carried into another run.
func (r *RedisRegistry) Close(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
