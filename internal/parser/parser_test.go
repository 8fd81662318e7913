package parser

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(t *testing.T, p *Parser, data []byte) []Op {
	t.Helper()
	ops, err := p.Feed(data)
	require.NoError(t, err)
	return ops
}

func TestSimpleMsg(t *testing.T) {
	p := New()
	ops := feedAll(t, p, []byte("MSG subject1 1 8\r\nmessage1\r\n"))
	require.Len(t, ops, 1)

	op := ops[0]
	assert.Equal(t, OpMsg, op.Kind)
	assert.Equal(t, "subject1", op.Subject)
	assert.Equal(t, int64(1), op.Sid)
	assert.Empty(t, op.Reply)
	assert.Equal(t, []byte("message1"), op.Payload)
	assert.Zero(t, p.Buffered())
}

func TestMsgWithReply(t *testing.T) {
	p := New()
	ops := feedAll(t, p, []byte("MSG sub 7 _INBOX.abc 2\r\nhi\r\n"))
	require.Len(t, ops, 1)
	assert.Equal(t, "_INBOX.abc", ops[0].Reply)
	assert.Equal(t, int64(7), ops[0].Sid)
}

func TestMsgZeroLengthPayload(t *testing.T) {
	p := New()
	ops := feedAll(t, p, []byte("MSG sub 1 0\r\n\r\n"))
	require.Len(t, ops, 1)
	assert.Empty(t, ops[0].Payload)
}

func TestPayloadContainingDelimiters(t *testing.T) {
	payload := []byte{0x01, 0x0A, 0x03, 0x0D, 0x0A, 0x0D, 0x82, 0x01, 0x0A, 0x03, 0x0D, 0x0A, 0x0D, 0x82}
	wire := append([]byte(fmt.Sprintf("MSG s 1 %d\r\n", len(payload))), payload...)
	wire = append(wire, '\r', '\n')

	p := New()
	ops := feedAll(t, p, wire)
	require.Len(t, ops, 1)
	assert.Equal(t, payload, ops[0].Payload)
}

func TestFullByteRangePayload(t *testing.T) {
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = byte(i)
	}
	wire := append([]byte(fmt.Sprintf("MSG s 1 %d\r\n", len(payload))), payload...)
	wire = append(wire, '\r', '\n')

	p := New()
	ops := feedAll(t, p, wire)
	require.Len(t, ops, 1)
	assert.Equal(t, payload, ops[0].Payload)
}

func TestLargePayloadAcrossFeeds(t *testing.T) {
	payload := make([]byte, 1048576)
	for i := range payload {
		payload[i] = byte(i % 256)
	}
	wire := append([]byte(fmt.Sprintf("MSG big 3 %d\r\n", len(payload))), payload...)
	wire = append(wire, '\r', '\n')

	p := New()
	var ops []Op
	for len(wire) > 0 {
		n := 4096
		if n > len(wire) {
			n = len(wire)
		}
		got, err := p.Feed(wire[:n])
		require.NoError(t, err)
		ops = append(ops, got...)
		wire = wire[n:]
	}
	require.Len(t, ops, 1)
	assert.Equal(t, int64(3), ops[0].Sid)
	assert.True(t, bytes.Equal(payload, ops[0].Payload))
	assert.Zero(t, p.Buffered())
}

func TestByteAtATimeFeeding(t *testing.T) {
	wire := []byte("PING\r\nMSG a 1 5\r\nhello\r\n+OK\r\n")
	p := New()
	var ops []Op
	for _, b := range wire {
		got, err := p.Feed([]byte{b})
		require.NoError(t, err)
		ops = append(ops, got...)
	}
	require.Len(t, ops, 3)
	assert.Equal(t, OpPing, ops[0].Kind)
	assert.Equal(t, OpMsg, ops[1].Kind)
	assert.Equal(t, []byte("hello"), ops[1].Payload)
	assert.Equal(t, OpOK, ops[2].Kind)
}

func TestHMsg(t *testing.T) {
	header := []byte("NATS/1.0\r\nFoo:Bar\r\n\r\n")
	payload := []byte("body")
	total := len(header) + len(payload)

	wire := []byte(fmt.Sprintf("HMSG sub 4 reply.to %d %d\r\n", len(header), total))
	wire = append(wire, header...)
	wire = append(wire, payload...)
	wire = append(wire, '\r', '\n')

	p := New()
	ops := feedAll(t, p, wire)
	require.Len(t, ops, 1)

	op := ops[0]
	assert.Equal(t, OpHMsg, op.Kind)
	assert.Equal(t, "sub", op.Subject)
	assert.Equal(t, int64(4), op.Sid)
	assert.Equal(t, "reply.to", op.Reply)
	assert.Equal(t, header, op.Header)
	assert.Equal(t, payload, op.Payload)
}

func TestHMsgWithoutReply(t *testing.T) {
	header := []byte("NATS/1.0\r\n\r\n")
	wire := []byte(fmt.Sprintf("HMSG sub 9 %d %d\r\n", len(header), len(header)))
	wire = append(wire, header...)
	wire = append(wire, '\r', '\n')

	p := New()
	ops := feedAll(t, p, wire)
	require.Len(t, ops, 1)
	assert.Empty(t, ops[0].Reply)
	assert.Empty(t, ops[0].Payload)
	assert.Equal(t, header, ops[0].Header)
}

func TestCaseInsensitiveOpcodes(t *testing.T) {
	p := New()
	ops := feedAll(t, p, []byte("ping\r\nPong\r\nmsg x 2 1\r\nz\r\n"))
	require.Len(t, ops, 3)
	assert.Equal(t, OpPing, ops[0].Kind)
	assert.Equal(t, OpPong, ops[1].Kind)
	assert.Equal(t, OpMsg, ops[2].Kind)
}

func TestUnknownOpcodeDropped(t *testing.T) {
	p := New()
	ops := feedAll(t, p, []byte("WHATEVER junk here\r\nPONG\r\n"))
	require.Len(t, ops, 1)
	assert.Equal(t, OpPong, ops[0].Kind)
}

func TestInfoAndErr(t *testing.T) {
	p := New()
	ops := feedAll(t, p, []byte(`INFO {"server_id":"x","max_payload":1048576,"tls_required":true,"nonce":"abc"}`+"\r\n-ERR 'Authorization Violation'\r\n"))
	require.Len(t, ops, 2)

	info, err := ParseInfo(ops[0].InfoJSON)
	require.NoError(t, err)
	assert.Equal(t, "x", info.ServerID)
	assert.Equal(t, int64(1048576), info.MaxPayload)
	assert.True(t, info.TLSRequired)
	assert.Equal(t, "abc", info.Nonce)

	assert.Equal(t, OpErr, ops[1].Kind)
	assert.Equal(t, "Authorization Violation", ops[1].ErrorMsg)
}

func TestMalformedInfoRejected(t *testing.T) {
	_, err := ParseInfo([]byte("{not json"))
	assert.Error(t, err)
}

func TestPartialCommandHeldBack(t *testing.T) {
	p := New()
	ops, err := p.Feed([]byte("MSG sub 1 10\r\nonly5"))
	require.NoError(t, err)
	assert.Empty(t, ops)
	assert.Positive(t, p.Buffered())

	ops, err = p.Feed([]byte("more!\r\n"))
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, []byte("only5more!"), ops[0].Payload)
}

func TestMalformedMsgArgs(t *testing.T) {
	p := New()
	_, err := p.Feed([]byte("MSG onlysubject\r\n"))
	assert.Error(t, err)

	p = New()
	_, err = p.Feed([]byte("MSG sub notanumber 5\r\n"))
	assert.Error(t, err)
}

func TestReset(t *testing.T) {
	p := New()
	_, err := p.Feed([]byte("MSG sub 1 100\r\npartial"))
	require.NoError(t, err)
	require.Positive(t, p.Buffered())

	p.Reset()
	assert.Zero(t, p.Buffered())

	ops := feedAll(t, p, []byte("PONG\r\n"))
	require.Len(t, ops, 1)
}
