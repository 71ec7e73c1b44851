package sync

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pithecene-io/agentcore/protocol"
)

// WebSocketDialer constructs protocol.Transport instances backed by a
// gorilla/websocket client connection, one frame per Remote Protocol
// message. Protocols lists the subprotocols offered during the
// handshake. The connector fiber never initiates a Ping; it answers any
// Ping it receives, and WebSocketOptions.DisablePing does not change that.
type WebSocketDialer struct {
	// HandshakeTimeout bounds the initial upgrade request. Defaults to
	// 10s when zero.
	HandshakeTimeout time.Duration
	Protocols        []string
	Header           http.Header
}

// Dial implements protocol.Dialer.
func (d *WebSocketDialer) Dial(ctx context.Context, addr string) (protocol.Transport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		Subprotocols:     d.Protocols,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}

	conn, _, err := dialer.DialContext(ctx, addr, d.Header)
	if err != nil {
		return nil, err
	}
	return &websocketTransport{conn: conn}, nil
}

var _ protocol.Dialer = (*WebSocketDialer)(nil)

// websocketTransport adapts a *websocket.Conn to protocol.Transport,
// framing each Remote Protocol message as one binary WebSocket message.
type websocketTransport struct {
	conn *websocket.Conn
}

// Send implements protocol.Transport.
func (t *websocketTransport) Send(ctx context.Context, message any) error {
	payload, err := protocol.Encode(message)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, payload)
}

// Receive implements protocol.Transport.
func (t *websocketTransport) Receive(ctx context.Context) (any, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	}

	type result struct {
		payload []byte
		err     error
	}
	done := make(chan result, 1)
	go func() {
		_, payload, err := t.conn.ReadMessage()
		done <- result{payload: payload, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return protocol.Decode(r.payload)
	case <-ctx.Done():
		_ = t.conn.Close()
		return nil, ctx.Err()
	}
}

// Close implements protocol.Transport.
func (t *websocketTransport) Close() error {
	return t.conn.Close()
}

var _ protocol.Transport = (*websocketTransport)(nil)
