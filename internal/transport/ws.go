package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// wsStream adapts a WebSocket session to the byte-stream contract. Each
// Write becomes one binary frame; Read drains frames into a carry-over
// buffer so command boundaries never depend on framing.
type wsStream struct {
	conn *websocket.Conn
	rbuf []byte
}

func dialWS(ctx context.Context, u *url.URL, timeout time.Duration, tlsCfg *tls.Config) (Stream, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		TLSClientConfig:  tlsCfg,
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: websocket dial %s (status %d): %w", u.Host, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("transport: websocket dial %s: %w", u.Host, err)
	}
	return &wsStream{conn: conn}, nil
}

func (s *wsStream) Read(p []byte) (int, error) {
	if len(s.rbuf) == 0 {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		s.rbuf = data
	}
	n := copy(p, s.rbuf)
	s.rbuf = s.rbuf[n:]
	return n, nil
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	// Best effort close frame; the peer may already be gone.
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return s.conn.Close()
}

func (s *wsStream) SetDeadline(t time.Time) error {
	if err := s.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return s.conn.SetWriteDeadline(t)
}

var _ Stream = (*wsStream)(nil)
