package jobstore

import (
	"context"

	"github.com/r2clabs/bulkstudy/internal/cache"
)

// RedisSlot keeps the slot under cache.JobSlotKey(key) with no expiry.
type RedisSlot struct {
	cache cache.Cache
	key   string
}

func NewRedisSlot(c cache.Cache, key string) *RedisSlot {
	return &RedisSlot{cache: c, key: cache.JobSlotKey(key)}
}

func (r *RedisSlot) Load(ctx context.Context) ([]byte, bool, error) {
	return r.cache.Get(ctx, r.key)
}

func (r *RedisSlot) Save(ctx context.Context, data []byte) error {
	return r.cache.Set(ctx, r.key, data, 0)
}

func (r *RedisSlot) Clear(ctx context.Context) error {
	return r.cache.Delete(ctx, r.key)
}

var _ Slot = (*RedisSlot)(nil)
