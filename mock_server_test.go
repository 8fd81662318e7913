package natsio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockServer is a minimal in-process server speaking the wire protocol:
// enough INFO/CONNECT/SUB/PUB/HPUB/PING handling to route published messages
// back to matching subscriptions across all of its connections.
type mockServer struct {
	t  testing.TB
	ln net.Listener

	// rejectSubject, when set, answers verbose publishes to it with -ERR.
	rejectSubject string

	// noResponders synthesizes a 503 reply for request publishes that match
	// no subscription.
	noResponders bool

	mu    sync.Mutex
	conns []*mockConn
	subs  []*mockSub
	cmds  []string // command log: "SUB subject", "PUB subject", ...
}

type mockConn struct {
	c       net.Conn
	wmu     sync.Mutex
	verbose bool
}

type mockSub struct {
	conn    *mockConn
	subject string
	sid     string
}

func newMockServer(t testing.TB) *mockServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("mock server listen: %v", err)
	}
	s := &mockServer{t: t, ln: ln}
	go s.acceptLoop(ln)
	t.Cleanup(s.Close)
	return s
}

func (s *mockServer) URL() string {
	return "nats://" + s.ln.Addr().String()
}

// Commands returns a copy of the command log.
func (s *mockServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.cmds))
	copy(out, s.cmds)
	return out
}

// DropConnections closes every live connection but keeps listening, so
// clients observe a transport loss and reconnect.
func (s *mockServer) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.subs = nil
	s.mu.Unlock()
	for _, mc := range conns {
		mc.c.Close()
	}
}

func (s *mockServer) Close() {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	ln.Close()
	s.DropConnections()
}

// Restart re-listens on the same address after Close, so reconnect paths can
// be exercised deterministically.
func (s *mockServer) Restart() {
	s.mu.Lock()
	addr := s.ln.Addr().String()
	s.mu.Unlock()

	for i := 0; i < 100; i++ {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			s.mu.Lock()
			s.ln = ln
			s.mu.Unlock()
			go s.acceptLoop(ln)
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	s.t.Fatalf("mock server could not rebind %s", addr)
}

func (s *mockServer) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		mc := &mockConn{c: conn}
		s.mu.Lock()
		s.conns = append(s.conns, mc)
		s.mu.Unlock()
		go s.serve(mc)
	}
}

func (mc *mockConn) send(format string, args ...any) {
	mc.wmu.Lock()
	defer mc.wmu.Unlock()
	fmt.Fprintf(mc.c, format, args...)
}

func (mc *mockConn) sendRaw(b []byte) {
	mc.wmu.Lock()
	defer mc.wmu.Unlock()
	mc.c.Write(b)
}

func (mc *mockConn) ack() {
	if mc.verbose {
		mc.send("+OK\r\n")
	}
}

func (s *mockServer) record(cmd string) {
	s.mu.Lock()
	s.cmds = append(s.cmds, cmd)
	s.mu.Unlock()
}

func (s *mockServer) serve(mc *mockConn) {
	defer mc.c.Close()

	mc.send("INFO {\"server_id\":\"mock\",\"version\":\"0.0.0\",\"proto\":1,\"headers\":true,\"max_payload\":1048576}\r\n")

	br := bufio.NewReader(mc.c)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(strings.TrimRight(line, "\r\n"))
		if len(fields) == 0 {
			continue
		}

		switch strings.ToUpper(fields[0]) {
		case "CONNECT":
			var copts struct {
				Verbose bool `json:"verbose"`
			}
			raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimRight(line, "\r\n"), fields[0]))
			json.Unmarshal([]byte(raw), &copts)
			mc.verbose = copts.Verbose
			s.record("CONNECT")
			mc.ack()

		case "PING":
			mc.send("PONG\r\n")

		case "PONG":

		case "SUB":
			// SUB <subject> [queue] <sid>
			subject := fields[1]
			sid := fields[len(fields)-1]
			s.mu.Lock()
			s.subs = append(s.subs, &mockSub{conn: mc, subject: subject, sid: sid})
			s.mu.Unlock()
			s.record("SUB " + subject)
			mc.ack()

		case "UNSUB":
			// UNSUB <sid> [max]
			sid := fields[1]
			if len(fields) > 2 {
				// With a max the subscription stays routed; the mock does
				// not count deliveries, the client enforces the limit.
				s.record("UNSUB " + sid)
				mc.ack()
				continue
			}
			s.mu.Lock()
			kept := s.subs[:0]
			for _, sub := range s.subs {
				if sub.conn != mc || sub.sid != sid {
					kept = append(kept, sub)
				}
			}
			s.subs = kept
			s.mu.Unlock()
			s.record("UNSUB " + sid)
			mc.ack()

		case "PUB":
			// PUB <subject> [reply] <size>
			subject := fields[1]
			reply := ""
			if len(fields) == 4 {
				reply = fields[2]
			}
			size, _ := strconv.Atoi(fields[len(fields)-1])
			payload := make([]byte, size+2)
			if _, err := io.ReadFull(br, payload); err != nil {
				return
			}
			payload = payload[:size]
			s.record("PUB " + subject)
			if s.rejectSubject != "" && subject == s.rejectSubject {
				if mc.verbose {
					mc.send("-ERR 'Publish Rejected'\r\n")
				}
				continue
			}
			mc.ack()
			s.route(subject, reply, nil, payload)

		case "HPUB":
			// HPUB <subject> [reply] <hlen> <total>
			subject := fields[1]
			reply := ""
			if len(fields) == 5 {
				reply = fields[2]
			}
			hlen, _ := strconv.Atoi(fields[len(fields)-2])
			total, _ := strconv.Atoi(fields[len(fields)-1])
			blob := make([]byte, total+2)
			if _, err := io.ReadFull(br, blob); err != nil {
				return
			}
			s.record("HPUB " + subject)
			mc.ack()
			s.route(subject, reply, blob[:hlen], blob[hlen:total])
		}
	}
}

// route delivers to every matching subscription on every connection. When
// nothing matched a request publish and noResponders is on, a 503 header
// reply is synthesized.
func (s *mockServer) route(subject, reply string, hdr, payload []byte) {
	s.mu.Lock()
	subs := make([]*mockSub, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	delivered := false
	for _, sub := range subs {
		if !subjectMatches(sub.subject, subject) {
			continue
		}
		delivered = true
		var frame []byte
		if hdr != nil {
			head := fmt.Sprintf("HMSG %s %s", subject, sub.sid)
			if reply != "" {
				head += " " + reply
			}
			frame = append(frame, fmt.Sprintf("%s %d %d\r\n", head, len(hdr), len(hdr)+len(payload))...)
			frame = append(frame, hdr...)
		} else {
			head := fmt.Sprintf("MSG %s %s", subject, sub.sid)
			if reply != "" {
				head += " " + reply
			}
			frame = append(frame, fmt.Sprintf("%s %d\r\n", head, len(payload))...)
		}
		frame = append(frame, payload...)
		frame = append(frame, '\r', '\n')
		sub.conn.sendRaw(frame)
	}

	if !delivered && reply != "" && s.noResponders {
		s.route(reply, "", []byte("NATS/1.0 503\r\n\r\n"), nil)
	}
}

// subjectMatches implements token matching with * and > wildcards.
func subjectMatches(filter, subject string) bool {
	ft := strings.Split(filter, ".")
	st := strings.Split(subject, ".")
	for i, f := range ft {
		if f == ">" {
			return i < len(st)
		}
		if i >= len(st) {
			return false
		}
		if f != "*" && f != st[i] {
			return false
		}
	}
	return len(ft) == len(st)
}
