package natsio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusString(t *testing.T) {
	tests := map[Status]string{
		StatusDisconnected:  "disconnected",
		StatusConnecting:    "connecting",
		StatusTLSHandshake:  "tls_handshake",
		StatusInfoHandshake: "info_handshake",
		StatusConnected:     "connected",
		StatusReconnecting:  "reconnecting",
		StatusClosed:        "closed",
		Status(99):          "unknown",
	}
	for st, want := range tests {
		assert.Equal(t, want, st.String())
	}
}

func TestStatusHubReplaysCurrentThenTransitions(t *testing.T) {
	h := newStatusHub(StatusDisconnected)

	w := h.watch()
	require.Equal(t, StatusDisconnected, <-w)

	h.set(StatusConnecting)
	h.set(StatusInfoHandshake)
	h.set(StatusConnected)
	h.set(StatusClosed)

	assert.Equal(t, StatusConnecting, <-w)
	assert.Equal(t, StatusInfoHandshake, <-w)
	assert.Equal(t, StatusConnected, <-w)
	assert.Equal(t, StatusClosed, <-w)
	assert.Equal(t, StatusClosed, h.get())
}

func TestStatusHubDedupsRepeatedStates(t *testing.T) {
	h := newStatusHub(StatusDisconnected)
	w := h.watch()
	<-w

	h.set(StatusReconnecting)
	h.set(StatusReconnecting)
	h.set(StatusConnected)

	assert.Equal(t, StatusReconnecting, <-w)
	assert.Equal(t, StatusConnected, <-w)
	select {
	case st := <-w:
		t.Fatalf("unexpected extra transition %v", st)
	default:
	}
}

func TestStatusHubSlowWatcherDoesNotBlock(t *testing.T) {
	h := newStatusHub(StatusDisconnected)
	_ = h.watch() // never drained

	// Far more transitions than the watcher buffer holds.
	for i := 0; i < 10*statusWatcherBuf; i++ {
		if i%2 == 0 {
			h.set(StatusReconnecting)
		} else {
			h.set(StatusDisconnected)
		}
	}
	assert.Equal(t, StatusDisconnected, h.get())
}
