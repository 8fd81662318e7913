package natsio

// Msg is a message delivered to a subscription or returned by Request. It is
// immutable once produced by the decoder and carries a back-reference to its
// client so replies can be published in line.
type Msg struct {
	// Subject the message was delivered on.
	Subject string

	// Reply is the subject the publisher wants a response on, if any.
	Reply string

	// Header holds the parsed header blob for HMSG deliveries, nil otherwise.
	Header *Header

	// Data is the raw application payload.
	Data []byte

	// Sub is the subscription that matched, nil for request replies.
	Sub *Subscription

	client *Client
}

// Respond publishes data to the message's reply subject.
func (m *Msg) Respond(data []byte) error {
	if m.Reply == "" {
		return ErrBadSubject
	}
	if m.client == nil {
		return ErrClientClosed
	}
	return m.client.Publish(m.Reply, data)
}

// RespondMsg publishes a reply with headers.
func (m *Msg) RespondMsg(data []byte, header *Header) error {
	if m.Reply == "" {
		return ErrBadSubject
	}
	if m.client == nil {
		return ErrClientClosed
	}
	return m.client.Publish(m.Reply, data, WithHeader(header))
}
