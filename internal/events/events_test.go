package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type mockBackend struct {
	name   string
	events []Event
	closed bool
	pubErr error
}

func (m *mockBackend) Name() string { return m.name }
func (m *mockBackend) Publish(_ context.Context, evt Event) error {
	if m.pubErr != nil {
		return m.pubErr
	}
	m.events = append(m.events, evt)
	return nil
}
func (m *mockBackend) Close() error { m.closed = true; return nil }

var _ Backend = (*mockBackend)(nil)

func TestMockBackend_PublishRecordsEvent(t *testing.T) {
	b := &mockBackend{name: "mock"}
	evt := Event{Type: EventProgress, Time: time.Now(), TasksTotal: 10, TasksCompleted: 3}
	if err := b.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(b.events) != 1 || b.events[0].Type != EventProgress {
		t.Errorf("expected the published event recorded, got %+v", b.events)
	}
}

func TestEvent_JSONRoundTrip(t *testing.T) {
	evt := Event{
		Type: EventCompleted, Time: time.Now().UTC().Truncate(time.Second),
		TasksTotal: 100, TasksCompleted: 100, TasksFailed: 0,
		BytesMigrated: 1 << 20, Throughput: 512.5,
	}
	buf, err := marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Event
	if err := json.Unmarshal(buf, &got); err != nil {
		t.Fatalf("json.Unmarshal: %v", err)
	}
	if got != evt {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, evt)
	}
}

func TestRateControl_JSONRoundTrip(t *testing.T) {
	rc := RateControl{RateBytesPerSec: 4096}
	buf, err := json.Marshal(rc)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	var got RateControl
	if err := jsonUnmarshal(buf, &got); err != nil {
		t.Fatalf("jsonUnmarshal: %v", err)
	}
	if got != rc {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, rc)
	}
}

func TestBackend_CloseReportsClosed(t *testing.T) {
	b := &mockBackend{name: "mock"}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !b.closed {
		t.Error("expected Close to mark the backend closed")
	}
}
