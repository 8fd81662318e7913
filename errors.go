package natsio

import "errors"

var (
	// ErrClientClosed is returned for any operation on a client that has
	// entered the terminal closed state.
	ErrClientClosed = errors.New("natsio: client closed")

	// ErrNotConnected is returned when an operation requires an established
	// connection and buffering was declined.
	ErrNotConnected = errors.New("natsio: not connected")

	// ErrDisconnected aborts in-flight waiters when the transport drops.
	ErrDisconnected = errors.New("natsio: connection lost")

	// ErrTimeout is returned when a request or ping deadline expires.
	ErrTimeout = errors.New("natsio: timeout")

	// ErrTLSMismatch is fatal: the client demanded TLS the server does not
	// offer. Retrying cannot help, so the client closes.
	ErrTLSMismatch = errors.New("natsio: client requires TLS but server does not offer it")

	// ErrAuthorization reflects a server -ERR during the verbose handshake.
	ErrAuthorization = errors.New("natsio: authorization failed")

	// ErrServerRejected reflects a -ERR ack for a verbose-mode command.
	ErrServerRejected = errors.New("natsio: server rejected command")

	// ErrBadSubject is returned for an empty publish or subscribe subject.
	ErrBadSubject = errors.New("natsio: invalid subject")

	// ErrBadSubscription is returned when a subscription handle no longer
	// refers to a registered subscription.
	ErrBadSubscription = errors.New("natsio: invalid subscription")

	// ErrPendingBufferFull is returned when the bounded pre-connect publish
	// buffer is at capacity.
	ErrPendingBufferFull = errors.New("natsio: pending publish buffer full")

	// ErrHeadersNotSupported is returned when publishing headers to a server
	// that did not advertise header support.
	ErrHeadersNotSupported = errors.New("natsio: server does not support headers")

	// ErrInboxPrefixInUse guards the inbox prefix against reconfiguration
	// after the first request created the shared inbox subscription.
	ErrInboxPrefixInUse = errors.New("natsio: inbox prefix cannot change after first use")

	// ErrNoResponders is returned by Request when the server reports that no
	// subscription matched the subject.
	ErrNoResponders = errors.New("natsio: no responders available for request")

	// ErrNoDecoder is returned by DecodePayload when no decoder is
	// registered for the requested type.
	ErrNoDecoder = errors.New("natsio: no decoder registered for type")

	// ErrInvalidHeader is returned for a header blob without the expected
	// version line.
	ErrInvalidHeader = errors.New("natsio: invalid header")
)
