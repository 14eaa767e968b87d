package message

import "sync"

// Sink consumes the message stream. Returning false requests cooperative
// cancellation: the message was still delivered, but no new work should be
// started.
type Sink interface {
	OnMessage(msg Message) bool
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(msg Message) bool

// OnMessage implements Sink.
func (f SinkFunc) OnMessage(msg Message) bool { return f(msg) }

// Discard accepts and drops every message.
var Discard Sink = SinkFunc(func(Message) bool { return true })

// Collector is a Sink that records every message it receives. Reject, when
// set, decides the return value for each message.
type Collector struct {
	Reject func(msg Message) bool

	mu       sync.Mutex
	messages []Message
}

// OnMessage implements Sink.
func (c *Collector) OnMessage(msg Message) bool {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()

	if c.Reject != nil && c.Reject(msg) {
		return false
	}

	return true
}

// Messages returns a snapshot of the recorded messages.
func (c *Collector) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]Message(nil), c.messages...)
}

// Kinds returns the kinds of the recorded messages in order.
func (c *Collector) Kinds() []Kind {
	msgs := c.Messages()
	kinds := make([]Kind, 0, len(msgs))

	for _, m := range msgs {
		kinds = append(kinds, m.Kind())
	}

	return kinds
}

// Filter returns the messages of type T in msgs.
func Filter[T Message](msgs []Message) []T {
	var out []T

	for _, m := range msgs {
		if t, ok := m.(T); ok {
			out = append(out, t)
		}
	}

	return out
}
