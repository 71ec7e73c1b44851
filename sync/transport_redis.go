package sync

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/agentcore/protocol"
)

// RedisDialerConfig configures a RedisDialer, generalizing the teacher's
// adapter/redis Config (URL, timeout, retry count) from a fire-and-forget
// PUBLISH notifier into a duplex protocol.Transport backed by two Redis
// Streams per remote: one this side writes to, one it reads from.
type RedisDialerConfig struct {
	// URL is the Redis connection URL (required).
	URL string
	// StreamPrefix namespaces the two streams derived per remote address;
	// defaults to "agentcore:sync" when empty.
	StreamPrefix string
	// Timeout bounds each PING (during Dial) and XADD call; the XREAD in
	// Receive blocks until an entry arrives or ctx is done. Defaults to 5s
	// when zero.
	Timeout time.Duration
	// Retries is the number of retry attempts on a connection error
	// before Dial gives up. A negative value selects the default of 3;
	// zero is a valid "no retries" value.
	Retries int
}

// DefaultRedisStreamPrefix mirrors the teacher's DefaultChannel constant:
// a sensible default so callers need not name every stream explicitly.
const DefaultRedisStreamPrefix = "agentcore:sync"

// DefaultRedisTimeout is the default per-call timeout.
const DefaultRedisTimeout = 5 * time.Second

// RedisDialer constructs protocol.Transport instances backed by Redis
// Streams (XADD/XREAD), offered as a second concrete remote transport
// alongside WebSocketDialer.
type RedisDialer struct {
	cfg    RedisDialerConfig
	client *goredis.Client
}

// NewRedisDialer parses cfg.URL and constructs the underlying client.
// Connection errors surface lazily on the first Dial, matching
// goredis.NewClient's own lazy-connect behaviour.
func NewRedisDialer(cfg RedisDialerConfig) (*RedisDialer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("sync: redis dialer requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("sync: invalid redis URL: %w", err)
	}
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = DefaultRedisStreamPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRedisTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 3
	}

	return &RedisDialer{cfg: cfg, client: goredis.NewClient(opts)}, nil
}

// Dial implements protocol.Dialer. addr names the remote whose two
// streams ("<prefix>:<addr>:out" written by us, "<prefix>:<addr>:in" read
// by us) this transport exchanges frames over. Retries with the same
// exponential backoff shape as the teacher's adapter/redis Publish.
func (d *RedisDialer) Dial(ctx context.Context, addr string) (protocol.Transport, error) {
	var lastErr error
	attempts := 1 + d.cfg.Retries
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		pingCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		lastErr = d.client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			return &redisTransport{
				client:     d.client,
				timeout:    d.cfg.Timeout,
				outStream:  d.cfg.StreamPrefix + ":" + addr + ":out",
				inStream:   d.cfg.StreamPrefix + ":" + addr + ":in",
				lastReadID: "$",
			}, nil
		}
	}
	return nil, fmt.Errorf("sync: redis dial failed after %d attempts: %w", attempts, lastErr)
}

// Close releases the dialer's shared client. Call once, after every
// transport it produced has been closed.
func (d *RedisDialer) Close() error {
	return d.client.Close()
}

var _ protocol.Dialer = (*RedisDialer)(nil)

const redisPayloadField = "payload"

// redisTransport adapts a pair of Redis Streams to protocol.Transport:
// Send XADDs to outStream, Receive XREADs (blocking) from inStream.
type redisTransport struct {
	client     *goredis.Client
	timeout    time.Duration
	outStream  string
	inStream   string
	lastReadID string
}

// Send implements protocol.Transport.
func (t *redisTransport) Send(ctx context.Context, message any) error {
	payload, err := protocol.Encode(message)
	if err != nil {
		return err
	}
	addCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.client.XAdd(addCtx, &goredis.XAddArgs{
		Stream: t.outStream,
		Values: map[string]any{redisPayloadField: payload},
	}).Err()
}

// Receive implements protocol.Transport. It blocks until a new entry
// arrives on inStream or ctx is done.
func (t *redisTransport) Receive(ctx context.Context) (any, error) {
	res, err := t.client.XRead(ctx, &goredis.XReadArgs{
		Streams: []string{t.inStream, t.lastReadID},
		Count:   1,
		Block:   0,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return nil, fmt.Errorf("sync: empty redis stream read result")
	}

	entry := res[0].Messages[0]
	t.lastReadID = entry.ID

	raw, ok := entry.Values[redisPayloadField]
	if !ok {
		return nil, fmt.Errorf("sync: redis stream entry %s missing %q field", entry.ID, redisPayloadField)
	}
	payload, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("sync: redis stream entry %s has non-string payload", entry.ID)
	}
	return protocol.Decode([]byte(payload))
}

// Close implements protocol.Transport. The shared client is owned by the
// RedisDialer that produced this transport and is not closed here.
func (t *redisTransport) Close() error {
	return nil
}

var _ protocol.Transport = (*redisTransport)(nil)
