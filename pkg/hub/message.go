// Package hub fans tracking payloads out to websocket clients using a
// channel-based broadcast loop.
package hub

// Message is one JSON text frame queued for clients
type Message struct {
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}
