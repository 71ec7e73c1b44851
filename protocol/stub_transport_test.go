package protocol

import (
	"context"
	"testing"
)

func TestStubTransportPair_SendReceive(t *testing.T) {
	ctx := context.Background()
	a, b := NewStubTransportPair()

	if err := a.Send(ctx, &Ping{Type: TypePing, Nonce: 1}); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	ping, ok := got.(*Ping)
	if !ok || ping.Nonce != 1 {
		t.Fatalf("expected Ping{Nonce:1}, got %+v", got)
	}
}

func TestStubTransport_SendAfterClose(t *testing.T) {
	ctx := context.Background()
	a, _ := NewStubTransportPair()

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := a.Send(ctx, &Ping{Type: TypePing, Nonce: 1}); err != ErrTransportClosed {
		t.Fatalf("expected ErrTransportClosed, got %v", err)
	}
}
