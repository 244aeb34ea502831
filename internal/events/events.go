// Package events publishes migration job lifecycle events and consumes
// dynamic throttle-rate control messages. Each backend is adapted from
// the notification-webhook backends of the same name, repurposed from
// S3 bucket event delivery to migration observability.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// EventType classifies a migration lifecycle event.
type EventType string

const (
	EventStarted EventType = "migration.started"
	EventPaused EventType = "migration.paused"
	EventResumed EventType = "migration.resumed"
	EventCompleted EventType = "migration.completed"
	EventFailed EventType = "migration.failed"
	EventProgress EventType = "migration.progress"
)

// Event is the payload published to the lifecycle backend.
type Event struct {
	Type EventType `json:"type"`
	Time time.Time `json:"time"`
	TasksTotal int `json:"tasks_total"`
	TasksCompleted int64 `json:"tasks_completed"`
	TasksFailed int64 `json:"tasks_failed"`
	BytesMigrated int64 `json:"bytes_migrated"`
	Throughput float64 `json:"throughput_bytes_per_sec"`
}

// Backend is the interface every transport (Kafka, Redis, NATS)
// implements for publishing lifecycle events.
type Backend interface {
	Name() string
	Publish(ctx context.Context, evt Event) error
	Close() error
}

func marshal(evt Event) ([]byte, error) { return json.Marshal(evt) }
func jsonUnmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// RateControl is a message telling a running migration to adjust its
// throttle rate, consumed from the progress-callback/rate-control
// backend.
type RateControl struct {
	RateBytesPerSec int64 `json:"rate_bytes_per_sec"`
}
