package sync

import (
	"context"
	"fmt"

	"github.com/pithecene-io/agentcore/core"
	"github.com/pithecene-io/agentcore/protocol"
)

// runConnector is one remote's connector fiber, per spec.md 4.8:
//  1. open the transport;
//  2. exchange Hello;
//  3. loop driving the server-initiated RequestChanges/Changes exchange,
//     pushing uncommitted entries and applying pulled ones through the
//     journal;
//  4. on any failure, record it on the status entry and return, leaving
//     restart policy to the caller (syncNow or the periodic scheduler).
func (s *Service) runConnector(ctx context.Context, rs *remoteState) {
	defer close(rs.done)

	addr := rs.addr
	if rs.endpointKey != "" && s.endpoints != nil {
		if picked, err := s.endpoints.Select(rs.endpointKey); err == nil {
			addr = picked
		}
	}

	transport, err := rs.dialer.Dial(ctx, addr)
	if err != nil {
		s.recordFailure(rs, err)
		return
	}
	defer transport.Close()

	hello := &protocol.Hello{Type: protocol.TypeHello, Identity: s.identity, Capabilities: s.capabilities}
	if err := transport.Send(ctx, hello); err != nil {
		s.recordFailure(rs, &core.TransportError{RemoteKey: rs.status.Key, Cause: err})
		return
	}

	for {
		msg, err := transport.Receive(ctx)
		if err != nil {
			s.recordFailure(rs, &core.TransportError{RemoteKey: rs.status.Key, Cause: err})
			return
		}

		switch m := msg.(type) {
		case *protocol.RequestChanges:
			if err := s.pushUncommitted(ctx, rs, transport); err != nil {
				s.recordFailure(rs, err)
				return
			}

		case *protocol.Changes:
			if err := s.pullChanges(ctx, rs, transport, m); err != nil {
				s.recordFailure(rs, err)
				return
			}
			s.markSynced(rs)

		case *protocol.Ping:
			if err := transport.Send(ctx, &protocol.Pong{Type: protocol.TypePong, Nonce: m.Nonce}); err != nil {
				s.recordFailure(rs, &core.TransportError{RemoteKey: rs.status.Key, Cause: err})
				return
			}

		case *protocol.Ack:
			if err := s.journal.Acknowledge(ctx, rs.remoteKey(), core.EntryID(m.UpToID)); err != nil {
				s.recordFailure(rs, err)
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// remoteKey returns the journal-facing remote identifier: the remoteId
// for remotes attached via Connect, otherwise the URL key.
func (rs *remoteState) remoteKey() string {
	if rs.status.RemoteID != "" {
		return rs.status.RemoteID
	}
	return rs.status.Key
}

// pushUncommitted sends every locally uncommitted entry for this remote
// as a single WriteEntries batch, per spec.md 4.7's push direction. The
// server's RequestChanges.SinceSequence is advisory only; the journal's
// own per-remote Acknowledged cursor is authoritative for what counts as
// uncommitted.
func (s *Service) pushUncommitted(ctx context.Context, rs *remoteState, transport protocol.Transport) error {
	entries := s.journal.UncommittedFor(rs.remoteKey())
	if len(entries) == 0 {
		return nil
	}

	wire := make([]protocol.EntryWire, len(entries))
	for i, e := range entries {
		wire[i] = protocol.EntryWire{ID: uint64(e.ID), Event: string(e.Tag), PrimaryKey: e.PrimaryKey, Payload: e.Payload}
	}

	if err := transport.Send(ctx, &protocol.WriteEntries{Type: protocol.TypeWriteEntries, Entries: wire}); err != nil {
		return &core.TransportError{RemoteKey: rs.status.Key, Cause: err}
	}
	if s.metrics != nil {
		s.metrics.IncSyncAttempt()
	}
	return nil
}

// pullChanges applies a Changes batch through the journal's conflict
// policy and acknowledges it, per spec.md 4.7's pull direction and
// invariant (c).
func (s *Service) pullChanges(ctx context.Context, rs *remoteState, transport protocol.Transport, changes *protocol.Changes) error {
	if len(changes.Entries) == 0 {
		return nil
	}

	remoteEntries := make([]core.RemoteEntry, len(changes.Entries))
	var upToID uint64
	for i, w := range changes.Entries {
		remoteEntries[i] = core.RemoteEntry{
			Sequence:   int64(w.ID),
			Tag:        core.EventTag(w.Event),
			PrimaryKey: w.PrimaryKey,
			Payload:    w.Payload,
		}
		if w.ID > upToID {
			upToID = w.ID
		}
	}

	if err := s.journal.WriteFromRemote(ctx, rs.remoteKey(), remoteEntries); err != nil {
		return fmt.Errorf("applying changes from %q: %w", rs.status.Key, err)
	}
	if s.metrics != nil {
		s.metrics.IncSyncAttempt()
	}

	if err := transport.Send(ctx, &protocol.Ack{Type: protocol.TypeAck, UpToID: upToID}); err != nil {
		return &core.TransportError{RemoteKey: rs.status.Key, Cause: err}
	}
	return nil
}

// markSynced records a successful push/pull exchange.
func (s *Service) markSynced(rs *remoteState) {
	s.publishStatus(rs, func(status *core.RemoteStatus) {
		status.Connected = true
		status.LastSyncAtMs = s.clock()
		status.LastError = ""
	})
}

// recordFailure records a connector failure on rs's status entry and
// increments the sync failure counter, per spec.md 4.8 step 4.
func (s *Service) recordFailure(rs *remoteState, cause error) {
	if s.logger != nil {
		s.logger.Warn("sync connector failed", map[string]any{
			"remote_key": rs.status.Key,
			"error":      cause.Error(),
		})
	}
	if s.metrics != nil {
		s.metrics.IncSyncFailure()
	}
	s.publishStatus(rs, func(status *core.RemoteStatus) {
		status.Connected = false
		status.LastError = cause.Error()
	})
}
