package events

import (
	"context"

	"github.com/nats-io/nats.go"
)

// NATSBackend publishes migration lifecycle events to a NATS subject and
// subscribes to a rate-control subject for dynamic throttle adjustments
//, adapted from the webhook notifier's NATS
// backend.
type NATSBackend struct {
	conn *nats.Conn
	subject string
	rateControlSub *nats.Subscription
	rateControlCh chan RateControl
}

func NewNATSBackend(url, subject, rateControlSubject string) (*NATSBackend, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	b := &NATSBackend{conn: conn, subject: subject, rateControlCh: make(chan RateControl, 8)}
	if rateControlSubject != "" {
		sub, err := conn.Subscribe(rateControlSubject, func(msg *nats.Msg) {
			var rc RateControl
			if err := jsonUnmarshal(msg.Data, &rc); err == nil {
				select {
				case b.rateControlCh <- rc:
				default:
				}
			}
		})
		if err != nil {
			conn.Close()
			return nil, err
		}
		b.rateControlSub = sub
	}
	return b, nil
}

func (n *NATSBackend) Name() string { return "nats" }

func (n *NATSBackend) Publish(_ context.Context, evt Event) error {
	payload, err := marshal(evt)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, payload)
}

// RateControlUpdates exposes the channel of throttle-rate changes
// received from the rate-control subject.
func (n *NATSBackend) RateControlUpdates() <-chan RateControl { return n.rateControlCh }

func (n *NATSBackend) Close() error {
	if n.rateControlSub != nil {
		n.rateControlSub.Unsubscribe()
	}
	n.conn.Close()
	return nil
}

var _ Backend = (*NATSBackend)(nil)
