package natsio

import (
	"strconv"
)

// pendingPub is a publish issued before the connection was up, held until
// the post-handshake flush. The buffer survives transport loss and is only
// dropped when the client closes.
type pendingPub struct {
	subject string
	reply   string
	header  *Header
	data    []byte
}

// PubOpt adjusts a single Publish call.
type PubOpt func(*pubOpts)

type pubOpts struct {
	reply    string
	header   *Header
	noBuffer bool
}

// WithReply sets the reply-to subject carried by the message.
func WithReply(subject string) PubOpt {
	return func(o *pubOpts) {
		o.reply = subject
	}
}

// WithHeader attaches a header blob; the message goes out as HPUB.
func WithHeader(h *Header) PubOpt {
	return func(o *pubOpts) {
		o.header = h
	}
}

// WithoutBuffering fails the publish with ErrNotConnected instead of
// queueing it when the connection is down.
func WithoutBuffering() PubOpt {
	return func(o *pubOpts) {
		o.noBuffer = true
	}
}

// Publish sends data to subject. While disconnected the message is queued
// for the post-handshake flush unless WithoutBuffering is given. In verbose
// mode Publish blocks until the server acks the command.
func (c *Client) Publish(subject string, data []byte, opts ...PubOpt) error {
	if subject == "" {
		return ErrBadSubject
	}
	var po pubOpts
	for _, opt := range opts {
		opt(&po)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.stream == nil {
		if po.noBuffer {
			c.mu.Unlock()
			return ErrNotConnected
		}
		if max := c.opts.MaxPendingPublishes; max > 0 && len(c.pending) >= max {
			c.mu.Unlock()
			return ErrPendingBufferFull
		}
		buf := make([]byte, len(data))
		copy(buf, data)
		c.pending = append(c.pending, pendingPub{
			subject: subject,
			reply:   po.reply,
			header:  po.header,
			data:    buf,
		})
		c.mu.Unlock()
		return nil
	}
	if po.header != nil && !c.info.Headers {
		c.mu.Unlock()
		return ErrHeadersNotSupported
	}
	verbose := c.opts.Verbose
	c.mu.Unlock()

	frame := appendPubCmd(nil, subject, po.reply, po.header, data)
	if !verbose {
		return c.sendProto(frame)
	}
	return c.sendAcked(frame, true)
}

// PublishString is a convenience wrapper over Publish.
func (c *Client) PublishString(subject, payload string, opts ...PubOpt) error {
	return c.Publish(subject, []byte(payload), opts...)
}

// sendAcked sends a frame that the server will answer with +OK/-ERR in
// verbose mode. The ack mutex keeps at most one ack-expecting command in
// flight so FIFO pairing cannot skew; wait=false registers a completer for
// FIFO alignment without blocking on it.
func (c *Client) sendAcked(frame []byte, wait bool) error {
	c.ackMu.Lock()
	defer c.ackMu.Unlock()

	ch := make(chan bool, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.stream == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.acks = append(c.acks, ch)
	disc := c.discCh
	c.mu.Unlock()

	if err := c.sendProto(frame); err != nil {
		c.removeAckWaiter(ch)
		return err
	}
	if !wait {
		return nil
	}

	select {
	case ok := <-ch:
		if !ok {
			return ErrServerRejected
		}
		return nil
	case <-disc:
		if c.isClosed() {
			return ErrClientClosed
		}
		return ErrDisconnected
	case <-c.closeCh:
		return ErrClientClosed
	}
}

func (c *Client) removeAckWaiter(ch chan bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.acks {
		if w == ch {
			c.acks = append(c.acks[:i], c.acks[i+1:]...)
			return
		}
	}
}

// appendPubCmd appends a complete PUB or HPUB frame, payload and terminator
// included.
func appendPubCmd(buf []byte, subject, reply string, hdr *Header, data []byte) []byte {
	if hdr == nil {
		buf = append(buf, "PUB "...)
		buf = append(buf, subject...)
		if reply != "" {
			buf = append(buf, ' ')
			buf = append(buf, reply...)
		}
		buf = append(buf, ' ')
		buf = strconv.AppendInt(buf, int64(len(data)), 10)
		buf = append(buf, crlf...)
		buf = append(buf, data...)
		return append(buf, crlf...)
	}

	hb := hdr.Encode()
	buf = append(buf, "HPUB "...)
	buf = append(buf, subject...)
	if reply != "" {
		buf = append(buf, ' ')
		buf = append(buf, reply...)
	}
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(len(hb)), 10)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(len(hb)+len(data)), 10)
	buf = append(buf, crlf...)
	buf = append(buf, hb...)
	buf = append(buf, data...)
	return append(buf, crlf...)
}
