package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"
)

// tcpStream wraps a TCP connection. The underlying conn is swapped for a TLS
// session on upgrade, so access goes through the mutex.
type tcpStream struct {
	mu   sync.RWMutex
	conn net.Conn
}

func dialTCP(ctx context.Context, addr string, timeout time.Duration) (Stream, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return &tcpStream{conn: conn}, nil
}

func (s *tcpStream) current() net.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

func (s *tcpStream) Read(p []byte) (int, error)  { return s.current().Read(p) }
func (s *tcpStream) Write(p []byte) (int, error) { return s.current().Write(p) }
func (s *tcpStream) Close() error                { return s.current().Close() }

func (s *tcpStream) SetDeadline(t time.Time) error {
	return s.current().SetDeadline(t)
}

// UpgradeTLS replaces the plain connection with a TLS session over the same
// socket and runs the handshake.
func (s *tcpStream) UpgradeTLS(cfg *tls.Config, serverName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg == nil {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		cfg = cfg.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}

	tlsConn := tls.Client(s.conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("transport: tls handshake: %w", err)
	}
	s.conn = tlsConn
	return nil
}

var (
	_ Stream      = (*tcpStream)(nil)
	_ TLSUpgrader = (*tcpStream)(nil)
)
