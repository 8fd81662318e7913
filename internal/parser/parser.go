// Package parser decodes the inbound side of the line-oriented wire protocol.
//
// The server interleaves textual command lines with binary payload regions.
// Feed accumulates raw transport bytes and emits complete operations; a
// MSG/HMSG whose payload has not fully arrived stays buffered until the next
// Feed call completes it.
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// OpKind identifies a decoded server operation.
type OpKind int

const (
	OpInfo OpKind = iota
	OpMsg
	OpHMsg
	OpPing
	OpPong
	OpOK
	OpErr
)

func (k OpKind) String() string {
	switch k {
	case OpInfo:
		return "INFO"
	case OpMsg:
		return "MSG"
	case OpHMsg:
		return "HMSG"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	case OpOK:
		return "+OK"
	case OpErr:
		return "-ERR"
	}
	return "UNKNOWN"
}

// Op is one decoded server operation.
type Op struct {
	Kind OpKind

	// MSG / HMSG fields.
	Subject string
	Sid     int64
	Reply   string
	Header  []byte // raw header blob, HMSG only
	Payload []byte

	// INFO carries the raw JSON document; -ERR carries the reason text.
	InfoJSON []byte
	ErrorMsg string
}

// Info is the server-advertised configuration received after transport
// establishment.
type Info struct {
	ServerID     string   `json:"server_id"`
	ServerName   string   `json:"server_name"`
	Version      string   `json:"version"`
	Proto        int      `json:"proto"`
	GitCommit    string   `json:"git_commit"`
	GoVersion    string   `json:"go"`
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	Headers      bool     `json:"headers"`
	MaxPayload   int64    `json:"max_payload"`
	AuthRequired bool     `json:"auth_required"`
	TLSRequired  bool     `json:"tls_required"`
	TLSAvailable bool     `json:"tls_available"`
	Nonce        string   `json:"nonce"`
	ClientID     uint64   `json:"client_id"`
	ClientIP     string   `json:"client_ip"`
	Cluster      string   `json:"cluster"`
	ConnectURLs  []string `json:"connect_urls"`
	LameDuckMode bool     `json:"ldm"`
}

// ParseInfo decodes an INFO JSON document.
func ParseInfo(data []byte) (Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("parser: malformed INFO: %w", err)
	}
	return info, nil
}

const crlf = "\r\n"

// Parser accumulates transport bytes and splits out complete operations.
// It is not safe for concurrent use; the connection's read loop owns it.
type Parser struct {
	buf []byte
}

// New returns an empty parser.
func New() *Parser {
	return &Parser{}
}

// Buffered returns the number of bytes held back awaiting completion.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Reset drops any partially accumulated input. Called when the transport is
// torn down so a reconnect starts from a clean frame boundary.
func (p *Parser) Reset() {
	p.buf = nil
}

// Feed appends data and returns every operation that is now complete.
// Unknown opcodes are dropped. A nil error with no ops means more bytes are
// needed.
func (p *Parser) Feed(data []byte) ([]Op, error) {
	p.buf = append(p.buf, data...)

	var ops []Op
	for {
		op, ok, err := p.next()
		if err != nil {
			return ops, err
		}
		if !ok {
			return ops, nil
		}
		if op != nil {
			ops = append(ops, *op)
		}
	}
}

// next tries to cut one operation off the front of the buffer. It returns
// (nil, true, nil) for a dropped line with an unknown opcode, and ok=false when the
// buffer does not yet hold a complete operation.
func (p *Parser) next() (*Op, bool, error) {
	nl := bytes.Index(p.buf, []byte(crlf))
	if nl < 0 {
		return nil, false, nil
	}
	line := p.buf[:nl]

	op, arg := splitOpLine(line)
	switch strings.ToUpper(op) {
	case "MSG":
		return p.payloadOp(nl, arg, false)
	case "HMSG":
		return p.payloadOp(nl, arg, true)
	case "INFO":
		p.advance(nl + len(crlf))
		return &Op{Kind: OpInfo, InfoJSON: []byte(arg)}, true, nil
	case "PING":
		p.advance(nl + len(crlf))
		return &Op{Kind: OpPing}, true, nil
	case "PONG":
		p.advance(nl + len(crlf))
		return &Op{Kind: OpPong}, true, nil
	case "+OK":
		p.advance(nl + len(crlf))
		return &Op{Kind: OpOK}, true, nil
	case "-ERR":
		p.advance(nl + len(crlf))
		return &Op{Kind: OpErr, ErrorMsg: strings.Trim(arg, `'`)}, true, nil
	default:
		// Unknown opcode: drop the line and keep going.
		p.advance(nl + len(crlf))
		return nil, true, nil
	}
}

// payloadOp handles the MSG/HMSG family: the argument line is followed by a
// binary payload region and a trailing CRLF. The whole region must be present
// before anything is consumed.
func (p *Parser) payloadOp(nl int, arg string, hasHeader bool) (*Op, bool, error) {
	args := strings.Fields(arg)

	var op Op
	var size int
	switch {
	case !hasHeader && len(args) == 3:
		op = Op{Kind: OpMsg, Subject: args[0]}
		sid, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("parser: bad MSG sid %q", args[1])
		}
		op.Sid = sid
		size, err = strconv.Atoi(args[2])
		if err != nil || size < 0 {
			return nil, false, fmt.Errorf("parser: bad MSG size %q", args[2])
		}
	case !hasHeader && len(args) == 4:
		op = Op{Kind: OpMsg, Subject: args[0], Reply: args[2]}
		sid, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("parser: bad MSG sid %q", args[1])
		}
		op.Sid = sid
		size, err = strconv.Atoi(args[3])
		if err != nil || size < 0 {
			return nil, false, fmt.Errorf("parser: bad MSG size %q", args[3])
		}
	case hasHeader && (len(args) == 4 || len(args) == 5):
		op = Op{Kind: OpHMsg, Subject: args[0]}
		sid, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return nil, false, fmt.Errorf("parser: bad HMSG sid %q", args[1])
		}
		op.Sid = sid
		rest := args[2:]
		if len(args) == 5 {
			op.Reply = args[2]
			rest = args[3:]
		}
		hlen, err := strconv.Atoi(rest[0])
		if err != nil || hlen < 0 {
			return nil, false, fmt.Errorf("parser: bad HMSG header size %q", rest[0])
		}
		// The final integer is the total of header plus payload.
		size, err = strconv.Atoi(rest[1])
		if err != nil || size < hlen {
			return nil, false, fmt.Errorf("parser: bad HMSG total size %q", rest[1])
		}
		if !p.complete(nl, size) {
			return nil, false, nil
		}
		region := p.region(nl, size)
		op.Header = region[:hlen]
		op.Payload = region[hlen:]
		p.advance(nl + len(crlf) + size + len(crlf))
		return &op, true, nil
	default:
		return nil, false, fmt.Errorf("parser: malformed %s arguments %q", kindName(hasHeader), arg)
	}

	if !p.complete(nl, size) {
		return nil, false, nil
	}
	op.Payload = p.region(nl, size)
	p.advance(nl + len(crlf) + size + len(crlf))
	return &op, true, nil
}

func kindName(hasHeader bool) string {
	if hasHeader {
		return "HMSG"
	}
	return "MSG"
}

// complete reports whether the buffer holds the header line, size payload
// bytes and the trailing CRLF.
func (p *Parser) complete(nl, size int) bool {
	return len(p.buf) >= nl+len(crlf)+size+len(crlf)
}

// region copies the payload bytes out of the accumulator. The copy decouples
// the delivered message from subsequent buffer reuse.
func (p *Parser) region(nl, size int) []byte {
	start := nl + len(crlf)
	out := make([]byte, size)
	copy(out, p.buf[start:start+size])
	return out
}

// advance discards n consumed bytes from the front of the buffer.
func (p *Parser) advance(n int) {
	if n >= len(p.buf) {
		p.buf = p.buf[:0]
		return
	}
	p.buf = append(p.buf[:0], p.buf[n:]...)
}

// splitOpLine separates the opcode token from the remainder of the line.
func splitOpLine(line []byte) (op, arg string) {
	s := strings.TrimLeft(string(line), " \t")
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimLeft(s[i+1:], " \t")
	}
	return s, ""
}
