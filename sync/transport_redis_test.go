package sync

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/agentcore/protocol"
)

func TestRedisDialer_SendWritesToOutStream(t *testing.T) {
	mr := miniredis.RunT(t)

	dialer, err := NewRedisDialer(RedisDialerConfig{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}
	defer func() { _ = dialer.Close() }()

	transport, err := dialer.Dial(t.Context(), "peer1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = transport.Close() }()

	if err := transport.Send(t.Context(), &protocol.Ping{Type: protocol.TypePing, Nonce: 7}); err != nil {
		t.Fatalf("send: %v", err)
	}

	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = raw.Close() }()

	res, err := raw.XRange(t.Context(), "agentcore:sync:peer1:out", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("expected 1 stream entry, got %d", len(res))
	}

	payload, ok := res[0].Values[redisPayloadField].(string)
	if !ok {
		t.Fatal("expected a string payload field")
	}
	decoded, err := protocol.Decode([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ping, ok := decoded.(*protocol.Ping)
	if !ok || ping.Nonce != 7 {
		t.Fatalf("unexpected decoded message: %#v", decoded)
	}
}

func TestRedisDialer_ReceiveReadsFromInStream(t *testing.T) {
	mr := miniredis.RunT(t)

	dialer, err := NewRedisDialer(RedisDialerConfig{URL: "redis://" + mr.Addr()})
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}
	defer func() { _ = dialer.Close() }()

	transport, err := dialer.Dial(t.Context(), "peer1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = transport.Close() }()

	type result struct {
		msg any
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := transport.Receive(t.Context())
		done <- result{msg: msg, err: err}
	}()

	// Give Receive time to start blocking on XREAD BLOCK 0 from "$" before
	// the entry lands, mirroring the teacher's asyncReceive-before-publish
	// ordering requirement for miniredis's synchronous delivery.
	time.Sleep(50 * time.Millisecond)

	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer func() { _ = raw.Close() }()

	payload, err := protocol.Encode(&protocol.Pong{Type: protocol.TypePong, Nonce: 9})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := raw.XAdd(t.Context(), &goredis.XAddArgs{
		Stream: "agentcore:sync:peer1:in",
		Values: map[string]any{redisPayloadField: payload},
	}).Err(); err != nil {
		t.Fatalf("xadd: %v", err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("receive: %v", r.err)
		}
		pong, ok := r.msg.(*protocol.Pong)
		if !ok || pong.Nonce != 9 {
			t.Fatalf("unexpected received message: %#v", r.msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for Receive")
	}
}

func TestNewRedisDialer_RequiresURL(t *testing.T) {
	if _, err := NewRedisDialer(RedisDialerConfig{}); err == nil {
		t.Fatal("expected an error for a missing URL")
	}
}

func TestNewRedisDialer_InvalidURL(t *testing.T) {
	if _, err := NewRedisDialer(RedisDialerConfig{URL: "not-a-redis-url"}); err == nil {
		t.Fatal("expected an error for an invalid URL")
	}
}

func TestRedisDialer_DialExhaustsRetries(t *testing.T) {
	dialer, err := NewRedisDialer(RedisDialerConfig{URL: "redis://127.0.0.1:1", Retries: 1, Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("new dialer: %v", err)
	}
	defer func() { _ = dialer.Close() }()

	if _, err := dialer.Dial(t.Context(), "peer1"); err == nil {
		t.Fatal("expected an error after exhausting retries against an unreachable address")
	}
}
