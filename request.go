package natsio

import (
	"context"
	"fmt"
)

// SetInboxPrefix replaces the reply subject tree root. It must be called
// before the first Request; afterwards the shared inbox subscription is
// already pinned to the old prefix.
func (c *Client) SetInboxPrefix(prefix string) error {
	if prefix == "" {
		return ErrBadSubject
	}
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	if c.inboxUsed {
		return ErrInboxPrefixInUse
	}
	c.mu.Lock()
	c.opts.InboxPrefix = prefix
	c.mu.Unlock()
	return nil
}

// Request publishes data on subject with a unique reply leaf under the
// shared inbox tree and waits for the answer. Concurrent requests are
// serialized; the deadline comes from ctx. A transport loss mid-request
// aborts it with ErrDisconnected.
func (c *Client) Request(ctx context.Context, subject string, data []byte, opts ...PubOpt) (*Msg, error) {
	if subject == "" {
		return nil, ErrBadSubject
	}

	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if c.isClosed() {
		return nil, ErrClientClosed
	}
	if err := c.ensureInbox(); err != nil {
		return nil, err
	}

	leaf := c.respRoot + "." + c.nuid.Next()

	c.mu.Lock()
	disc := c.discCh // nil while disconnected; the publish below buffers
	c.mu.Unlock()

	po := append(opts, WithReply(leaf))
	if err := c.Publish(subject, data, po...); err != nil {
		return nil, err
	}

	for {
		select {
		case m, ok := <-c.respSub.mch:
			if !ok {
				return nil, ErrClientClosed
			}
			if m.Subject != leaf {
				// Reply for an older request under the shared root.
				c.log.Debug("discarding stale inbox message", "subject", m.Subject)
				continue
			}
			if m.Header != nil && m.Header.hasNoResponders() && len(m.Data) == 0 {
				return nil, ErrNoResponders
			}
			m.Sub = nil
			return m, nil

		case <-disc:
			// Close also closes discCh; report the close, not a drop.
			if c.isClosed() {
				return nil, ErrClientClosed
			}
			return nil, ErrDisconnected

		case <-c.closeCh:
			return nil, ErrClientClosed

		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
	}
}

// RequestString is a convenience wrapper over Request.
func (c *Client) RequestString(ctx context.Context, subject, payload string) (*Msg, error) {
	return c.Request(ctx, subject, []byte(payload))
}

// ensureInbox lazily creates the shared inbox subscription. With the default
// prefix a per-client identifier is appended for isolation; a custom prefix
// is trusted verbatim. Callers hold reqMu.
func (c *Client) ensureInbox() error {
	if c.respSub != nil {
		return nil
	}

	c.mu.Lock()
	prefix := c.opts.InboxPrefix
	c.mu.Unlock()

	root := prefix
	if prefix == DefaultInboxPrefix {
		root = prefix + "." + c.nuid.Next()
	}

	sub, err := c.Subscribe(root + ".>")
	if err != nil {
		return err
	}
	c.respRoot = root
	c.respSub = sub
	c.inboxUsed = true
	return nil
}
