package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const unreadKeyPrefix = "notifications:unread:"

// UnreadCounter caches per-user unread notification counts in Redis. A nil counter or a
// counter without a client is a valid, always-missing cache.
type UnreadCounter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewUnreadCounter(client *redis.Client, ttl time.Duration) *UnreadCounter {
	return &UnreadCounter{client: client, ttl: ttl}
}

func (c *UnreadCounter) enabled() bool {
	return c != nil && c.client != nil
}

func unreadKey(userID uint) string {
	return fmt.Sprintf("%s%d", unreadKeyPrefix, userID)
}

// Get returns the cached count and whether there was one.
func (c *UnreadCounter) Get(ctx context.Context, userID uint) (int64, bool) {
	if !c.enabled() {
		return 0, false
	}
	n, err := c.client.Get(ctx, unreadKey(userID)).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logrus.WithError(err).WithField("user_id", userID).Warn("unread counter read failed")
		}
		return 0, false
	}
	return n, true
}

func (c *UnreadCounter) Set(ctx context.Context, userID uint, count int64) {
	if !c.enabled() {
		return
	}
	if err := c.client.Set(ctx, unreadKey(userID), count, c.ttl).Err(); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("unread counter write failed")
	}
}

// Invalidate drops the cached counts of the given users.
func (c *UnreadCounter) Invalidate(ctx context.Context, userIDs ...uint) {
	if !c.enabled() || len(userIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, unreadKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logrus.WithError(err).WithField("users", len(userIDs)).Warn("unread counter invalidation failed")
	}
}
