package events

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBackend publishes migration progress to a Redis Pub/Sub channel,
// the same channel the caller's progress callback can subscribe to
// independently of polling Wait, and
// reads throttle rate-control messages stored under a control key.
type RedisBackend struct {
	client *redis.Client
	progressChan string
	rateControlKey string
}

func NewRedisBackend(addr, progressChan, rateControlKey string) *RedisBackend {
	return &RedisBackend{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		progressChan: progressChan,
		rateControlKey: rateControlKey,
	}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Publish(ctx context.Context, evt Event) error {
	payload, err := marshal(evt)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.progressChan, payload).Err()
}

// PollRateControl reads the last rate-control message written to
// rateControlKey, if any, for the throttle's dynamic set_rate.
func (r *RedisBackend) PollRateControl(ctx context.Context) (*RateControl, error) {
	raw, err := r.client.Get(ctx, r.rateControlKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rc RateControl
	if err := jsonUnmarshal(raw, &rc); err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *RedisBackend) Close() error { return r.client.Close() }

var _ Backend = (*RedisBackend)(nil)
