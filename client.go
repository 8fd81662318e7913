// Package natsio is a client for a line-oriented publish/subscribe wire
// protocol. It maintains a durable subscription set across reconnects,
// buffers publishes issued before the connection is up, and implements the
// request/reply pattern over a shared inbox subject tree.
package natsio

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/syntrixbase/natsio/creds"
	"github.com/syntrixbase/natsio/internal/parser"
	"github.com/syntrixbase/natsio/internal/transport"
	"github.com/syntrixbase/natsio/nkeys"
	"github.com/syntrixbase/natsio/nuid"
)

// Info is the server-advertised configuration received during the handshake.
type Info = parser.Info

// Client is a single connection to a server. Create one with Connect; a
// closed client cannot be reused.
type Client struct {
	opts    Options
	id      string
	log     *slog.Logger
	nuid    *nuid.NUID
	kp      nkeys.KeyPair
	userJWT string

	statusHub *statusHub

	// closeCh is closed exactly once when the client enters the terminal
	// closed state.
	closeCh chan struct{}

	mu       sync.Mutex
	url      *url.URL
	stream   transport.Stream
	parser   *parser.Parser
	info     Info
	connGen  int
	discCh   chan struct{} // closed when the current connection drops
	closed   bool
	retryOff bool

	sidNext int64
	subs    map[int64]*Subscription

	pending []pendingPub

	// acks pairs +OK/-ERR responses with ack-expecting commands in FIFO
	// order. ackMu serializes each "send + await ack" so only one such
	// command is in flight.
	ackMu sync.Mutex
	acks  []chan bool

	pongs []chan struct{}

	wmu sync.Mutex
	bw  *bufio.Writer

	reqMu     sync.Mutex
	respSub   *Subscription
	respRoot  string
	inboxUsed bool

	decoders map[reflect.Type]DecoderFunc
}

// Connect establishes a session to the given URL. The scheme selects the
// transport: nats (plain TCP, port 4222), tls (TCP with TLS upgrade, port
// 4443), ws or wss (WebSocket). Connect blocks until the handshake completes
// or the retry budget is exhausted.
func Connect(rawURL string, opts ...Option) (*Client, error) {
	o := GetDefaultOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("natsio: invalid URL %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "nats", "tls", "ws", "wss":
	default:
		return nil, fmt.Errorf("%w %q", transport.ErrUnsupportedScheme, u.Scheme)
	}

	id := uuid.NewString()
	if o.Name == "" {
		o.Name = "natsio-" + id[:8]
	}

	c := &Client{
		opts:      o,
		id:        id,
		log:       o.Logger.With("component", "natsio", "client_id", id[:8]),
		nuid:      nuid.New(),
		statusHub: newStatusHub(StatusDisconnected),
		closeCh:   make(chan struct{}),
		url:       u,
		parser:    parser.New(),
		subs:      make(map[int64]*Subscription),
	}

	if err := c.resolveCredentials(); err != nil {
		return nil, err
	}

	if err := c.runConnect(true); err != nil {
		c.shutdown(true)
		return nil, err
	}
	return c, nil
}

// resolveCredentials loads signing material from the configured credentials
// file or seed.
func (c *Client) resolveCredentials() error {
	if c.opts.CredsFile != "" {
		uc, err := creds.ParseFile(c.opts.CredsFile)
		if err != nil {
			return err
		}
		c.userJWT = uc.JWT
		c.kp = uc.KeyPair()
		return nil
	}
	if c.opts.NKeySeed != "" {
		kp, err := nkeys.FromSeed([]byte(c.opts.NKeySeed))
		if err != nil {
			return err
		}
		c.kp = kp
		c.userJWT = c.opts.UserJWT
	}
	return nil
}

// runConnect drives the connect/retry loop. The first attempt of an initial
// connect reports StatusConnecting; every later attempt reports
// StatusReconnecting.
func (c *Client) runConnect(initial bool) error {
	attempt := 0

	var bo backoff.BackOff = backoff.NewConstantBackOff(c.opts.RetryInterval)
	if c.opts.RetryCount >= 0 {
		bo = backoff.WithMaxRetries(bo, uint64(c.opts.RetryCount))
	}

	err := backoff.Retry(func() error {
		if c.isClosed() {
			return backoff.Permanent(ErrClientClosed)
		}
		if initial && attempt == 0 {
			c.statusHub.set(StatusConnecting)
		} else {
			c.statusHub.set(StatusReconnecting)
		}
		attempt++

		err := c.connectAttempt()
		if err == nil {
			return nil
		}
		if isFatalConnectErr(err) {
			return backoff.Permanent(err)
		}
		c.log.Warn("connection attempt failed", "attempt", attempt, "err", err)
		return err
	}, bo)
	if err == nil {
		return nil
	}

	if isFatalConnectErr(err) {
		// A TLS mismatch cannot be fixed by retrying: retry off, closed.
		c.mu.Lock()
		c.retryOff = true
		c.mu.Unlock()
		c.shutdown(true)
	} else {
		c.statusHub.set(StatusDisconnected)
	}
	return err
}

// errTLSFailure marks an unrecoverable TLS upgrade failure.
var errTLSFailure = errors.New("natsio: tls upgrade failed")

func isFatalConnectErr(err error) bool {
	return errors.Is(err, ErrTLSMismatch) ||
		errors.Is(err, errTLSFailure) ||
		errors.Is(err, ErrClientClosed) ||
		errors.Is(err, transport.ErrUnsupportedScheme)
}

// connectAttempt performs one full connection sequence: dial, INFO, optional
// TLS upgrade, CONNECT, optional verbose ack, subscription reinstall and
// pending-publish flush.
func (c *Client) connectAttempt() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	defer cancel()

	stream, err := transport.Dial(ctx, c.url, c.opts.ConnectTimeout, c.opts.TLSConfig)
	if err != nil {
		return err
	}
	installed := false
	defer func() {
		if !installed {
			stream.Close()
		}
	}()

	c.statusHub.set(StatusInfoHandshake)
	c.parser.Reset()
	stream.SetDeadline(time.Now().Add(c.opts.ConnectTimeout))

	info, stash, err := awaitInfo(stream, c.parser)
	if err != nil {
		return fmt.Errorf("natsio: handshake: %w", err)
	}

	upgrader, isTCP := stream.(transport.TLSUpgrader)
	clientTLS := c.url.Scheme == "tls" || (isTCP && c.opts.TLSConfig != nil)

	if clientTLS && !info.TLSRequired && !info.TLSAvailable {
		return ErrTLSMismatch
	}
	if isTCP && (clientTLS || info.TLSRequired) {
		c.statusHub.set(StatusTLSHandshake)
		if err := upgrader.UpgradeTLS(c.opts.TLSConfig, c.url.Hostname()); err != nil {
			return fmt.Errorf("%w: %v", errTLSFailure, err)
		}
	}

	ccmd, err := c.connectCommand(info)
	if err != nil {
		return backoff.Permanent(err)
	}
	if _, err := stream.Write(ccmd); err != nil {
		return fmt.Errorf("natsio: sending CONNECT: %w", err)
	}

	if c.opts.Verbose {
		ok, errMsg, rest, err := awaitAck(stream, c.parser, stash)
		if err != nil {
			return fmt.Errorf("natsio: handshake: %w", err)
		}
		stash = rest
		if !ok {
			return fmt.Errorf("%w: %s", ErrAuthorization, errMsg)
		}
	}

	stream.SetDeadline(time.Time{})

	// Install the connection: reinstall every registered subscription first,
	// then flush the pending publishes, in that order.
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return backoff.Permanent(ErrClientClosed)
	}
	c.stream = stream
	c.info = info
	c.connGen++
	gen := c.connGen
	c.discCh = make(chan struct{})

	var replay []byte
	replayed := 0
	for _, sub := range c.orderedSubs() {
		replay = appendSubCmd(replay, sub.subject, sub.queue, sub.sid)
		sub.installed = true
		replayed++
	}
	for _, pp := range c.pending {
		replay = appendPubCmd(replay, pp.subject, pp.reply, pp.header, pp.data)
		replayed++
	}
	flushed := len(c.pending)
	c.pending = nil
	if c.opts.Verbose {
		// Each replayed command gets a +OK; register placeholder completers
		// so later ack-expecting commands keep their FIFO positions.
		for i := 0; i < replayed; i++ {
			c.acks = append(c.acks, make(chan bool, 1))
		}
	}
	c.mu.Unlock()

	c.wmu.Lock()
	c.bw = bufio.NewWriterSize(stream, 32*1024)
	if len(replay) > 0 {
		if _, err = c.bw.Write(replay); err == nil {
			err = c.bw.Flush()
		}
	}
	c.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("natsio: replaying state: %w", err)
	}

	c.statusHub.set(StatusConnected)
	c.log.Info("connected",
		"url", c.url.Redacted(),
		"server", info.ServerID,
		"flushed_publishes", flushed,
	)

	installed = true
	go c.readLoop(gen, stream, stash)
	return nil
}

// orderedSubs returns the registry sorted by sid. Callers hold c.mu.
func (c *Client) orderedSubs() []*Subscription {
	out := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].sid < out[j].sid })
	return out
}

// connectCommand builds the CONNECT line, signing the server nonce when a
// key pair is configured.
func (c *Client) connectCommand(info Info) ([]byte, error) {
	copts := connectOptions{
		Verbose:      c.opts.Verbose,
		Pedantic:     c.opts.Pedantic,
		TLSRequired:  c.url.Scheme == "tls" || c.opts.TLSConfig != nil,
		Name:         c.opts.Name,
		Lang:         clientLang,
		Version:      Version,
		Protocol:     1,
		Echo:         !c.opts.NoEcho,
		Headers:      info.Headers,
		NoResponders: c.opts.NoResponders && info.Headers,
		User:         c.opts.User,
		Pass:         c.opts.Password,
		AuthToken:    c.opts.Token,
		JWT:          c.userJWT,
	}

	if c.kp != nil && info.Nonce != "" {
		sig, err := c.kp.Sign([]byte(info.Nonce))
		if err != nil {
			return nil, fmt.Errorf("natsio: signing nonce: %w", err)
		}
		copts.Sig = base64.StdEncoding.EncodeToString(sig)
		pub, err := c.kp.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("natsio: deriving public key: %w", err)
		}
		copts.NKey = pub
	}

	j, err := json.Marshal(copts)
	if err != nil {
		return nil, fmt.Errorf("natsio: encoding CONNECT: %w", err)
	}

	out := make([]byte, 0, len(j)+10)
	out = append(out, "CONNECT "...)
	out = append(out, j...)
	out = append(out, crlf...)
	return out, nil
}

// connectOptions is the JSON document after the CONNECT keyword. Unset
// options are omitted, never emitted as null.
type connectOptions struct {
	Verbose      bool   `json:"verbose"`
	Pedantic     bool   `json:"pedantic"`
	TLSRequired  bool   `json:"tls_required"`
	Name         string `json:"name,omitempty"`
	Lang         string `json:"lang"`
	Version      string `json:"version"`
	Protocol     int    `json:"protocol"`
	Echo         bool   `json:"echo"`
	Headers      bool   `json:"headers"`
	NoResponders bool   `json:"no_responders,omitempty"`
	User         string `json:"user,omitempty"`
	Pass         string `json:"pass,omitempty"`
	AuthToken    string `json:"auth_token,omitempty"`
	JWT          string `json:"jwt,omitempty"`
	NKey         string `json:"nkey,omitempty"`
	Sig          string `json:"sig,omitempty"`
}

// awaitInfo reads from the stream until the server's INFO arrives. Any other
// operations decoded along the way are stashed for the read loop.
func awaitInfo(stream transport.Stream, p *parser.Parser) (Info, []parser.Op, error) {
	var stash []parser.Op
	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if err != nil {
			return Info{}, nil, err
		}
		ops, perr := p.Feed(buf[:n])
		for i, op := range ops {
			if op.Kind != parser.OpInfo {
				stash = append(stash, op)
				continue
			}
			info, err := parser.ParseInfo(op.InfoJSON)
			if err != nil {
				return Info{}, nil, err
			}
			stash = append(stash, ops[i+1:]...)
			return info, stash, nil
		}
		if perr != nil {
			return Info{}, nil, perr
		}
	}
}

// awaitAck scans for the +OK/-ERR answering a verbose CONNECT.
func awaitAck(stream transport.Stream, p *parser.Parser, stash []parser.Op) (bool, string, []parser.Op, error) {
	scan := func(ops []parser.Op) (int, bool, string) {
		for i, op := range ops {
			switch op.Kind {
			case parser.OpOK:
				return i, true, ""
			case parser.OpErr:
				return i, false, op.ErrorMsg
			}
		}
		return -1, false, ""
	}

	pending := stash
	var kept []parser.Op
	buf := make([]byte, 4096)
	for {
		if i, ok, msg := scan(pending); i >= 0 {
			kept = append(kept, pending[:i]...)
			kept = append(kept, pending[i+1:]...)
			return ok, msg, kept, nil
		}
		kept = append(kept, pending...)

		n, err := stream.Read(buf)
		if err != nil {
			return false, "", nil, err
		}
		ops, perr := p.Feed(buf[:n])
		if perr != nil {
			return false, "", nil, perr
		}
		pending = ops
	}
}

// readLoop pumps the transport into the decoder and dispatches operations
// until the stream fails or the client closes.
func (c *Client) readLoop(gen int, stream transport.Stream, stash []parser.Op) {
	for _, op := range stash {
		c.processOp(op)
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			ops, perr := c.feed(gen, buf[:n])
			for _, op := range ops {
				c.processOp(op)
			}
			if perr != nil {
				c.log.Warn("protocol error", "err", perr)
				c.handleDisconnect(gen, perr)
				return
			}
		}
		if err != nil {
			c.handleDisconnect(gen, err)
			return
		}
	}
}

// feed guards the shared parser against a concurrent teardown.
func (c *Client) feed(gen int, data []byte) ([]parser.Op, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.connGen {
		return nil, nil
	}
	return c.parser.Feed(data)
}

// processOp routes one decoded server operation.
func (c *Client) processOp(op parser.Op) {
	switch op.Kind {
	case parser.OpMsg:
		c.deliver(op, nil)

	case parser.OpHMsg:
		hdr, err := ParseHeader(op.Header)
		if err != nil {
			c.log.Warn("dropping unparseable message header", "subject", op.Subject, "err", err)
		}
		c.deliver(op, hdr)

	case parser.OpPing:
		if err := c.sendProto([]byte(pingResponse)); err != nil {
			c.log.Debug("failed to answer server ping", "err", err)
		}

	case parser.OpPong:
		c.mu.Lock()
		if len(c.pongs) > 0 {
			ch := c.pongs[0]
			c.pongs = c.pongs[1:]
			close(ch)
		}
		c.mu.Unlock()

	case parser.OpOK:
		c.finishAck(true)

	case parser.OpErr:
		c.log.Warn("server error", "err", op.ErrorMsg)
		if c.opts.Verbose {
			c.finishAck(false)
		}

	case parser.OpInfo:
		info, err := parser.ParseInfo(op.InfoJSON)
		if err != nil {
			c.log.Warn("ignoring malformed INFO update", "err", err)
			return
		}
		c.mu.Lock()
		c.info = info
		c.mu.Unlock()
		c.log.Debug("server info updated", "server", info.ServerID)
	}
}

// finishAck completes the oldest pending ack waiter.
func (c *Client) finishAck(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.acks) == 0 {
		return
	}
	ch := c.acks[0]
	c.acks = c.acks[1:]
	ch <- ok
}

// handleDisconnect tears down the current connection and kicks off the
// reconnect loop when retry is enabled. Stale read loops (gen mismatch) and
// closed clients are ignored.
func (c *Client) handleDisconnect(gen int, cause error) {
	c.mu.Lock()
	if c.closed || gen != c.connGen {
		c.mu.Unlock()
		return
	}
	stream := c.stream
	c.stream = nil
	for _, s := range c.subs {
		s.installed = false
	}
	c.parser.Reset()
	if c.discCh != nil {
		close(c.discCh)
		c.discCh = nil
	}
	c.acks = nil
	c.pongs = nil
	retry := !c.retryOff && c.opts.RetryCount != 0
	c.mu.Unlock()

	c.wmu.Lock()
	c.bw = nil
	c.wmu.Unlock()

	if stream != nil {
		stream.Close()
	}
	c.statusHub.set(StatusDisconnected)
	c.log.Warn("connection lost", "err", cause, "retry", retry)

	if retry {
		go func() {
			if err := c.runConnect(false); err != nil {
				c.log.Error("reconnect failed", "err", err)
			}
		}()
	}
}

// sendProto writes one complete protocol frame.
func (c *Client) sendProto(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.bw == nil {
		return ErrNotConnected
	}
	if _, err := c.bw.Write(frame); err != nil {
		return err
	}
	return c.bw.Flush()
}

const (
	crlf         = "\r\n"
	pingRequest  = "PING\r\n"
	pingResponse = "PONG\r\n"
)

// Ping sends a latency probe and waits for the matching PONG.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, ErrClientClosed
	}
	if c.stream == nil {
		c.mu.Unlock()
		return 0, ErrNotConnected
	}
	ch := make(chan struct{})
	c.pongs = append(c.pongs, ch)
	disc := c.discCh
	c.mu.Unlock()

	start := time.Now()
	if err := c.sendProto([]byte(pingRequest)); err != nil {
		c.removePongWaiter(ch)
		return 0, err
	}

	select {
	case <-ch:
		return time.Since(start), nil
	case <-disc:
		if c.isClosed() {
			return 0, ErrClientClosed
		}
		return 0, ErrDisconnected
	case <-c.closeCh:
		return 0, ErrClientClosed
	case <-ctx.Done():
		c.removePongWaiter(ch)
		return 0, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}

func (c *Client) removePongWaiter(ch chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.pongs {
		if w == ch {
			c.pongs = append(c.pongs[:i], c.pongs[i+1:]...)
			return
		}
	}
}

// MaxPayload returns the maximum payload size advertised by the server, or
// zero before the first handshake.
func (c *Client) MaxPayload() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info.MaxPayload
}

// ServerInfo returns the most recent server INFO document.
func (c *Client) ServerInfo() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close moves the client to the terminal closed state: the transport is shut
// and subscription sinks are closed, but the registry itself is preserved.
// Pending publishes are dropped.
func (c *Client) Close() {
	c.shutdown(false)
}

// ForceClose is Close with the retry loop explicitly disabled first, for
// callers that may race a reconnect in flight.
func (c *Client) ForceClose() {
	c.shutdown(true)
}

func (c *Client) shutdown(disableRetry bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if disableRetry {
		c.retryOff = true
	}
	stream := c.stream
	c.stream = nil
	c.connGen++ // orphan any live read loop
	if c.discCh != nil {
		close(c.discCh)
		c.discCh = nil
	}
	c.acks = nil
	c.pongs = nil
	c.pending = nil
	for _, s := range c.subs {
		close(s.mch)
	}
	close(c.closeCh)
	c.mu.Unlock()

	c.wmu.Lock()
	c.bw = nil
	c.wmu.Unlock()

	if stream != nil {
		stream.Close()
	}
	c.statusHub.set(StatusClosed)
	c.log.Info("client closed")
}
