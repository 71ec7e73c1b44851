// Package protocol implements the Remote Protocol framing of spec.md 4.7:
// length-prefixed, msgpack-encoded messages exchanged between a Sync
// Service connector and a remote.
package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size constants, mirroring the teacher's CONTRACT_IPC.md bounds.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including the
	// length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
	// MaxPayloadSize is the maximum payload size (MaxFrameSize minus the
	// length prefix).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
)

// MessageType discriminates the wire messages of spec.md 4.7's framing
// table.
type MessageType string

// MessageType values per spec.md 4.7.
const (
	TypeHello          MessageType = "hello"
	TypeRequestChanges MessageType = "request_changes"
	TypeWriteEntries   MessageType = "write_entries"
	TypeChanges        MessageType = "changes"
	TypeAck            MessageType = "ack"
	TypePing           MessageType = "ping"
	TypePong           MessageType = "pong"
)

// FrameErrorKind classifies a frame decoding failure.
type FrameErrorKind int

// FrameErrorKind values.
const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error { return e.Err }

// IsFatal reports whether the connector should give up on this connection
// entirely rather than resync. Per invariant (b) of spec.md 4.7, a
// schema-mismatched batch is rejected atomically but is not necessarily
// fatal to the connection; truncated and oversized frames are.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError reports whether err is a fatal *FrameError.
func IsFatalFrameError(err error) bool {
	var fe *FrameError
	if errors.As(err, &fe) {
		return fe.IsFatal()
	}
	return false
}

// EntryWire is the wire shape of one journal entry inside WriteEntries or
// Changes, per spec.md 4.7's `{id, event, primaryKey, payload}`.
type EntryWire struct {
	ID         uint64 `msgpack:"id"`
	Event      string `msgpack:"event"`
	PrimaryKey string `msgpack:"primaryKey"`
	Payload    []byte `msgpack:"payload"`
}

// Hello opens a session. Sent client-to-server.
type Hello struct {
	Type         MessageType `msgpack:"type"`
	Identity     string      `msgpack:"identity"`
	Capabilities []string    `msgpack:"capabilities"`
}

// RequestChanges asks the client for its uncommitted entries since a
// sequence. Sent server-to-client.
type RequestChanges struct {
	Type          MessageType `msgpack:"type"`
	SinceSequence uint64      `msgpack:"sinceSequence"`
}

// WriteEntries pushes a batch of entries. Sent client-to-server.
type WriteEntries struct {
	Type    MessageType `msgpack:"type"`
	Entries []EntryWire `msgpack:"entries"`
}

// Changes pulls a batch of entries, optionally terminating the exchange.
// Sent server-to-client.
type Changes struct {
	Type     MessageType `msgpack:"type"`
	Entries  []EntryWire `msgpack:"entries"`
	Terminal bool        `msgpack:"terminal"`
}

// Ack reports that entries up to and including upToId have been
// committed locally, per invariant (c): the sender may compact entries
// with id <= upToId for that client.
type Ack struct {
	Type   MessageType `msgpack:"type"`
	UpToID uint64      `msgpack:"upToId"`
}

// Ping/Pong carry a liveness nonce; Pong must echo the last Ping's nonce
// within a bounded interval.
type Ping struct {
	Type  MessageType `msgpack:"type"`
	Nonce uint64      `msgpack:"nonce"`
}

// Pong is the reply to a Ping, echoing its nonce.
type Pong struct {
	Type  MessageType `msgpack:"type"`
	Nonce uint64      `msgpack:"nonce"`
}

// Encode serializes any of the message types above to a msgpack payload.
// The caller sets the message's Type field; Encode does not fill it in.
func Encode(message any) ([]byte, error) {
	payload, err := msgpack.Marshal(message)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to encode message", Err: err}
	}
	return payload, nil
}

// probeMessageType extracts the "type" field from a msgpack map without
// fully unmarshaling the payload.
func probeMessageType(payload []byte) (string, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	n, err := dec.DecodeMapLen()
	if err != nil {
		return "", err
	}
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return "", err
		}
		if key == "type" {
			return dec.DecodeString()
		}
		if err := dec.Skip(); err != nil {
			return "", err
		}
	}
	return "", errors.New("missing type field")
}

// Decode decodes a payload and returns a typed message, discriminated on
// its "type" field.
func Decode(payload []byte) (any, error) {
	t, err := probeMessageType(payload)
	if err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode message type", Err: err}
	}

	switch MessageType(t) {
	case TypeHello:
		var m Hello
		return &m, decodeInto(payload, &m)
	case TypeRequestChanges:
		var m RequestChanges
		return &m, decodeInto(payload, &m)
	case TypeWriteEntries:
		var m WriteEntries
		return &m, decodeInto(payload, &m)
	case TypeChanges:
		var m Changes
		return &m, decodeInto(payload, &m)
	case TypeAck:
		var m Ack
		return &m, decodeInto(payload, &m)
	case TypePing:
		var m Ping
		return &m, decodeInto(payload, &m)
	case TypePong:
		var m Pong
		return &m, decodeInto(payload, &m)
	default:
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("unknown message type %q", t)}
	}
}

func decodeInto(payload []byte, target any) error {
	if err := msgpack.Unmarshal(payload, target); err != nil {
		return &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode message body", Err: err}
	}
	return nil
}

// FrameDecoder decodes length-prefixed msgpack frames from a stream.
type FrameDecoder struct {
	reader io.Reader
}

// NewFrameDecoder wraps r with bufio.Reader if it isn't buffered already.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &FrameDecoder{reader: br}
}

// ReadFrame reads a single length-prefixed frame, returning its raw
// msgpack payload.
func (d *FrameDecoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(d.reader, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{Kind: FrameErrorTooLarge, Msg: fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize)}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read payload", Err: err}
	}
	return payload, nil
}

// WriteFrame writes payload to w with its length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return &FrameError{Kind: FrameErrorTooLarge, Msg: fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize)}
	}
	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return &FrameError{Kind: FrameErrorPartial, Msg: "failed to write length prefix", Err: err}
	}
	if _, err := w.Write(payload); err != nil {
		return &FrameError{Kind: FrameErrorPartial, Msg: "failed to write payload", Err: err}
	}
	return nil
}
