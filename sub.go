package natsio

import (
	"strconv"

	"github.com/syntrixbase/natsio/internal/parser"
)

// Subscribe registers interest in subject, optionally inside a queue group.
// A subscription created while disconnected is installed server-side after
// the next successful handshake, before any buffered publishes are flushed.
func (c *Client) Subscribe(subject string, opts ...SubOpt) (*Subscription, error) {
	if subject == "" {
		return nil, ErrBadSubject
	}
	so := subOpts{chanLen: c.opts.SubChanLen}
	for _, opt := range opts {
		opt(&so)
	}
	if so.chanLen <= 0 {
		so.chanLen = DefaultSubChanLen
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.sidNext++
	sub := &Subscription{
		sid:     c.sidNext,
		subject: subject,
		queue:   so.queue,
		mch:     make(chan *Msg, so.chanLen),
		client:  c,
	}
	c.subs[sub.sid] = sub

	var frame []byte
	verbose := c.opts.Verbose
	if c.stream != nil {
		frame = appendSubCmd(nil, subject, so.queue, sub.sid)
		sub.installed = true
	}
	c.mu.Unlock()

	if frame != nil {
		// A write failure here means the transport is dying; the read loop
		// notices and the subscription is reinstalled on reconnect.
		if err := c.sendSubCmd(frame, verbose); err != nil {
			c.log.Debug("deferred subscription install", "subject", subject, "err", err)
		}
	}
	return sub, nil
}

// Unsubscribe removes the subscription with the given sid and closes its
// sink. Unknown sids fail softly: the second of two identical calls returns
// false.
func (c *Client) Unsubscribe(sid int64) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	sub, ok := c.subs[sid]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.subs, sid)
	close(sub.mch)
	installed := sub.installed && c.stream != nil
	verbose := c.opts.Verbose
	c.mu.Unlock()

	if installed {
		frame := appendUnsubCmd(nil, sid, 0)
		if err := c.sendSubCmd(frame, verbose); err != nil {
			c.log.Debug("unsubscribe not sent", "sid", sid, "err", err)
		}
	}
	return true
}

// autoUnsubscribe asks the server to stop after max more deliveries; the
// client mirrors the limit and tears the subscription down once reached.
func (c *Client) autoUnsubscribe(sub *Subscription, max int) error {
	if max <= 0 {
		if c.Unsubscribe(sub.sid) {
			return nil
		}
		return ErrBadSubscription
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if _, ok := c.subs[sub.sid]; !ok {
		c.mu.Unlock()
		return ErrBadSubscription
	}
	sub.max = sub.delivered + int64(max)
	installed := sub.installed && c.stream != nil
	verbose := c.opts.Verbose
	c.mu.Unlock()

	if installed {
		frame := appendUnsubCmd(nil, sub.sid, max)
		return c.sendSubCmd(frame, verbose)
	}
	return nil
}

// sendSubCmd routes SUB/UNSUB through the ack FIFO in verbose mode so the
// server's +OK for it cannot be paired with a later command.
func (c *Client) sendSubCmd(frame []byte, verbose bool) error {
	if verbose {
		return c.sendAcked(frame, false)
	}
	return c.sendProto(frame)
}

// deliver hands a decoded MSG/HMSG to its subscription sink. Messages for
// unknown sids are dropped silently; a full sink drops the message with a
// warning rather than stalling the read loop.
func (c *Client) deliver(op parser.Op, hdr *Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	sub, ok := c.subs[op.Sid]
	if !ok {
		c.log.Debug("dropping message for unknown sid", "sid", op.Sid, "subject", op.Subject)
		return
	}

	m := &Msg{
		Subject: op.Subject,
		Reply:   op.Reply,
		Header:  hdr,
		Data:    op.Payload,
		Sub:     sub,
		client:  c,
	}

	select {
	case sub.mch <- m:
	default:
		c.log.Warn("slow consumer, dropping message",
			"sid", sub.sid, "subject", sub.subject)
		return
	}

	sub.delivered++
	if sub.max > 0 && sub.delivered >= sub.max {
		delete(c.subs, sub.sid)
		close(sub.mch)
	}
}

func appendSubCmd(buf []byte, subject, queue string, sid int64) []byte {
	buf = append(buf, "SUB "...)
	buf = append(buf, subject...)
	if queue != "" {
		buf = append(buf, ' ')
		buf = append(buf, queue...)
	}
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, sid, 10)
	return append(buf, crlf...)
}

func appendUnsubCmd(buf []byte, sid int64, max int) []byte {
	buf = append(buf, "UNSUB "...)
	buf = strconv.AppendInt(buf, sid, 10)
	if max > 0 {
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(max), 10)
	}
	return append(buf, crlf...)
}
