package natsio

import (
	"bytes"
	"strings"
)

// hdrLine is the version prefix emitted on every serialized header blob.
const hdrLine = "NATS/1.0"

// statusNoResponders is the inline status the server attaches to the reply
// it synthesizes when a request matched no subscription.
const statusNoResponders = "503"

// Header is the ordered key/value mapping carried by HPUB/HMSG messages.
// Keys repeat; insertion order is preserved through a serialize/parse round
// trip. Keys must not contain ':'. The zero value is ready to use.
type Header struct {
	// version holds the first line of a parsed blob verbatim, which may
	// carry an inline status such as "NATS/1.0 503".
	version string
	fields  []headerField
}

type headerField struct {
	key   string
	value string
}

// NewHeader returns an empty header.
func NewHeader() *Header {
	return &Header{}
}

// Add appends a value for key, keeping existing values.
func (h *Header) Add(key, value string) {
	h.fields = append(h.fields, headerField{key: key, value: value})
}

// Set replaces all values for key with the single given value.
func (h *Header) Set(key, value string) {
	h.Del(key)
	h.Add(key, value)
}

// Get returns the first value for key, or "".
func (h *Header) Get(key string) string {
	for _, f := range h.fields {
		if f.key == key {
			return f.value
		}
	}
	return ""
}

// Values returns all values for key in insertion order.
func (h *Header) Values(key string) []string {
	var out []string
	for _, f := range h.fields {
		if f.key == key {
			out = append(out, f.value)
		}
	}
	return out
}

// Del removes all values for key.
func (h *Header) Del(key string) {
	kept := h.fields[:0]
	for _, f := range h.fields {
		if f.key != key {
			kept = append(kept, f)
		}
	}
	h.fields = kept
}

// Len returns the number of key/value entries.
func (h *Header) Len() int {
	return len(h.fields)
}

// Keys returns the distinct keys in first-appearance order.
func (h *Header) Keys() []string {
	seen := make(map[string]struct{}, len(h.fields))
	var out []string
	for _, f := range h.fields {
		if _, ok := seen[f.key]; ok {
			continue
		}
		seen[f.key] = struct{}{}
		out = append(out, f.key)
	}
	return out
}

// Status returns the inline status token from the version line, if any.
// A no-responders reply carries "503" here.
func (h *Header) Status() string {
	rest := strings.TrimPrefix(h.version, hdrLine)
	return strings.TrimSpace(rest)
}

// hasNoResponders reports whether this header marks a no-responders reply.
func (h *Header) hasNoResponders() bool {
	return h.Status() == statusNoResponders
}

// Encode serializes the header blob: version line, one line per entry, and a
// blank terminator, all CRLF separated.
func (h *Header) Encode() []byte {
	var b bytes.Buffer
	b.WriteString(hdrLine)
	b.WriteString("\r\n")
	for _, f := range h.fields {
		b.WriteString(f.key)
		b.WriteByte(':')
		b.WriteString(f.value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return b.Bytes()
}

// ParseHeader decodes a header blob. The first line is kept verbatim as the
// version; each following line splits at its first ':'. Lines without a ':'
// or whose ':' comes first are skipped.
func ParseHeader(data []byte) (*Header, error) {
	if !bytes.HasPrefix(data, []byte(hdrLine)) {
		return nil, ErrInvalidHeader
	}

	h := &Header{}
	lines := strings.Split(string(data), "\r\n")
	h.version = lines[0]

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}
		h.Add(line[:idx], line[idx+1:])
	}
	return h, nil
}
