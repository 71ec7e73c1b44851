package protocol

import "context"

// Transport is a duplex, message-oriented connection to a remote,
// abstracting over the concrete carrier (WebSocket, Redis Streams) so
// the Sync Service's connector fiber never depends on either directly.
type Transport interface {
	// Send encodes and writes one message.
	Send(ctx context.Context, message any) error

	// Receive reads and decodes the next message, blocking until one
	// arrives or ctx is done.
	Receive(ctx context.Context) (any, error)

	// Close releases the transport's resources. Must return within a
	// bounded time even if the underlying carrier is slow to close, per
	// spec.md 5's cancellation requirements.
	Close() error
}

// Dialer constructs a Transport for a remote URL or address. Concrete
// sync transports (WebSocket, Redis) implement this so the Sync Service
// can inject a fake one in tests.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Transport, error)
}

// DialerFunc adapts a function to a Dialer.
type DialerFunc func(ctx context.Context, addr string) (Transport, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, addr string) (Transport, error) {
	return f(ctx, addr)
}
