package lock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Locker 请求级串行化点。
// Lock 按 key 排序后依次加锁，返回的 unlock 逆序释放。
type Locker interface {
	Lock(ctx context.Context, keys ...string) (unlock func(), err error)
}

func ListingKey(listingID string) string {
	return fmt.Sprintf("market:lock:listing:%s", listingID)
}

func UserKey(userID int64) string {
	return fmt.Sprintf("market:lock:user:%d", userID)
}

func sortedUnique(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, k := range out {
		if i > 0 && k == out[i-1] {
			continue
		}
		out[n] = k
		n++
	}
	return out[:n]
}

// RedisLocker 基于 DistributedLock，多实例部署使用
type RedisLocker struct {
	client        *redis.Client
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewRedisLocker(client *redis.Client, expiration, retryInterval time.Duration, maxRetries int) *RedisLocker {
	return &RedisLocker{
		client:        client,
		expiration:    expiration,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	owner := uuid.NewString()
	held := make([]*DistributedLock, 0, len(keys))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			// 请求 ctx 可能已取消，释放锁用独立的 ctx
			unlockCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := held[i].Unlock(unlockCtx); err != nil {
				logrus.WithError(err).WithField("key", held[i].key).Warn("释放分布式锁失败")
			}
			cancel()
		}
	}

	for _, key := range sortedUnique(keys) {
		dl := NewDistributedLock(l.client, key, owner, l.expiration)
		if err := dl.Lock(ctx, l.retryInterval, l.maxRetries); err != nil {
			release()
			return nil, fmt.Errorf("%w: %s", err, key)
		}
		held = append(held, dl)
	}
	return release, nil
}
