package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ms-registration/internal/logger"
)

const lockKeyPrefix = "registration_lock:event:"

// releaseScript deletes the lock only while it is still held by the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// EventLock is a per-event mutex shared by all replicas of the service.
type EventLock struct {
	Client  *redis.Client
	TTL     time.Duration // lock expiry if the holder dies
	Wait    time.Duration // how long AcquireEventLock keeps trying
	Backoff time.Duration // pause between attempts
	Logger  *logger.Logger
}

func NewEventLock(client *redis.Client, ttl, wait, backoff time.Duration, log *logger.Logger) *EventLock {
	return &EventLock{Client: client, TTL: ttl, Wait: wait, Backoff: backoff, Logger: log}
}

func lockKey(eventID string) string {
	return lockKeyPrefix + eventID
}

// TryLock makes a single attempt at the event lock.
func (l *EventLock) TryLock(ctx context.Context, eventID, owner string) (bool, error) {
	return l.Client.SetNX(ctx, lockKey(eventID), owner, l.TTL).Result()
}

// AcquireEventLock retries TryLock until it succeeds, the wait limit passes or ctx ends.
func (l *EventLock) AcquireEventLock(ctx context.Context, eventID, owner string) (bool, error) {
	deadline := time.Now().Add(l.Wait)
	for {
		ok, err := l.TryLock(ctx, eventID, owner)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if !time.Now().Add(l.Backoff).Before(deadline) {
			l.Logger.Warn("REDIS", fmt.Sprintf("Gave up waiting for capacity lock of event %s", eventID))
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(l.Backoff):
		}
	}
}

// ReleaseEventLock frees the lock if owner still holds it; an expired or foreign lock is left alone.
func (l *EventLock) ReleaseEventLock(ctx context.Context, eventID, owner string) error {
	err := releaseScript.Run(ctx, l.Client, []string{lockKey(eventID)}, owner).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

// Holder returns the current owner of the event lock, or "" when it is free.
func (l *EventLock) Holder(ctx context.Context, eventID string) (string, error) {
	val, err := l.Client.Get(ctx, lockKey(eventID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}
