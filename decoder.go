package natsio

import (
	"reflect"
)

// DecoderFunc turns a raw payload into a decoded value. The registry is
// owned per client; there is no package-level decoder table.
type DecoderFunc func(data []byte) (any, error)

// RegisterDecoder installs a payload decoder for type T on the client.
// A later registration for the same type replaces the earlier one.
func RegisterDecoder[T any](c *Client, fn func(data []byte) (T, error)) {
	rt := reflect.TypeOf((*T)(nil)).Elem()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decoders == nil {
		c.decoders = make(map[reflect.Type]DecoderFunc)
	}
	c.decoders[rt] = func(data []byte) (any, error) {
		return fn(data)
	}
}

// DecodePayload decodes a message payload as type T using the client's
// registry. Requesting []byte always succeeds and returns the raw payload.
func DecodePayload[T any](m *Msg) (T, error) {
	var zero T

	rt := reflect.TypeOf((*T)(nil)).Elem()
	if rt == reflect.TypeOf([]byte(nil)) {
		return any(m.Data).(T), nil
	}

	if m.client == nil {
		return zero, ErrNoDecoder
	}

	m.client.mu.Lock()
	fn, ok := m.client.decoders[rt]
	m.client.mu.Unlock()
	if !ok {
		return zero, ErrNoDecoder
	}

	v, err := fn(m.Data)
	if err != nil {
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		return zero, ErrNoDecoder
	}
	return out, nil
}
