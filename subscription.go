package natsio

import (
	"context"
)

// Subscription is a registered interest in a subject. Messages matching the
// subject arrive on Messages in server delivery order.
type Subscription struct {
	sid     int64
	subject string
	queue   string

	// mch is the delivery sink. It is closed by Unsubscribe and by client
	// close; senders guard against that under the client mutex.
	mch chan *Msg

	// installed is true once SUB has been sent on the current connection.
	// Guarded by the client mutex; cleared on transport loss.
	installed bool

	// delivered counts sink deliveries; max, when set by AutoUnsubscribe,
	// tears the subscription down at the limit. Guarded by the client mutex.
	delivered int64
	max       int64

	client *Client
}

// Sid returns the client-assigned subscription id.
func (s *Subscription) Sid() int64 { return s.sid }

// Subject returns the subject filter.
func (s *Subscription) Subject() string { return s.subject }

// Queue returns the queue group, or "".
func (s *Subscription) Queue() string { return s.queue }

// Messages returns the delivery channel. It is closed when the subscription
// is removed or the client closes.
func (s *Subscription) Messages() <-chan *Msg { return s.mch }

// NextMsg waits for the next message or ctx expiry.
func (s *Subscription) NextMsg(ctx context.Context) (*Msg, error) {
	select {
	case m, ok := <-s.mch:
		if !ok {
			return nil, ErrBadSubscription
		}
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Unsubscribe removes the subscription. A second call reports
// ErrBadSubscription, matching the soft-failure contract of the client-level
// Unsubscribe.
func (s *Subscription) Unsubscribe() error {
	if s.client == nil {
		return ErrBadSubscription
	}
	if !s.client.Unsubscribe(s.sid) {
		return ErrBadSubscription
	}
	return nil
}

// AutoUnsubscribe asks the server to stop after max more messages and drops
// the local registration once the limit is reached server-side. The local
// sink stays open until then.
func (s *Subscription) AutoUnsubscribe(max int) error {
	if s.client == nil {
		return ErrBadSubscription
	}
	return s.client.autoUnsubscribe(s, max)
}

// SubOpt adjusts a single Subscribe call.
type SubOpt func(*subOpts)

type subOpts struct {
	queue   string
	chanLen int
}

// WithQueue joins the subscription to a queue group: the server delivers
// each matching message to one member of the group.
func WithQueue(name string) SubOpt {
	return func(o *subOpts) {
		o.queue = name
	}
}

// WithChanLen overrides the client-wide delivery buffer for this
// subscription.
func WithChanLen(n int) SubOpt {
	return func(o *subOpts) {
		if n > 0 {
			o.chanLen = n
		}
	}
}
