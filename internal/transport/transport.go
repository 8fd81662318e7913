// Package transport abstracts the byte streams a client session can run
// over: plain TCP, TCP with an in-place TLS upgrade, and WebSocket framing.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

var (
	ErrUnsupportedScheme = errors.New("transport: unsupported URL scheme")
	ErrTLSNotSupported   = errors.New("transport: stream does not support TLS upgrade")
)

// Default ports applied when the URL omits one.
const (
	DefaultPort    = 4222
	DefaultTLSPort = 4443
)

// Stream is the full-duplex byte stream the connection core consumes.
// There is exactly one reader and one writer goroutine per stream.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error

	// SetDeadline bounds both pending and future I/O.
	SetDeadline(t time.Time) error
}

// TLSUpgrader is implemented by streams that can switch to TLS in place.
// Only the TCP stream supports it; WebSocket security is negotiated by the
// wss dial itself.
type TLSUpgrader interface {
	UpgradeTLS(cfg *tls.Config, serverName string) error
}

// Dial opens a stream to u. The scheme selects the transport:
// nats and tls dial plain TCP (the TLS upgrade happens after the server's
// INFO), ws and wss dial a WebSocket.
func Dial(ctx context.Context, u *url.URL, timeout time.Duration, tlsCfg *tls.Config) (Stream, error) {
	switch u.Scheme {
	case "nats":
		return dialTCP(ctx, hostPort(u, DefaultPort), timeout)
	case "tls":
		return dialTCP(ctx, hostPort(u, DefaultTLSPort), timeout)
	case "ws", "wss":
		return dialWS(ctx, u, timeout, tlsCfg)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func hostPort(u *url.URL, defaultPort int) string {
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = fmt.Sprintf("%d", defaultPort)
	}
	return net.JoinHostPort(host, port)
}
