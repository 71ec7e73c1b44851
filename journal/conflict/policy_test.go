package conflict

import (
	"errors"
	"testing"

	"github.com/pithecene-io/agentcore/core"
)

func entry(id core.EntryID, payload string) core.Entry {
	return core.Entry{ID: id, Tag: "chat_event", PrimaryKey: "s1:1", Payload: []byte(payload)}
}

func TestLastWriteWins(t *testing.T) {
	p := LastWriteWins()

	out, err := p.Resolve(entry(10, "new"), entry(5, "old"))
	if err != nil || out.Decision != KeepIncoming {
		t.Fatalf("expected KeepIncoming for larger id, got %+v, err=%v", out, err)
	}

	out, err = p.Resolve(entry(3, "new"), entry(5, "old"))
	if err != nil || out.Decision != KeepExisting {
		t.Fatalf("expected KeepExisting for smaller id, got %+v, err=%v", out, err)
	}
}

func TestFirstWriteWins(t *testing.T) {
	p := FirstWriteWins()

	out, err := p.Resolve(entry(3, "new"), entry(5, "old"))
	if err != nil || out.Decision != KeepIncoming {
		t.Fatalf("expected KeepIncoming for smaller id, got %+v, err=%v", out, err)
	}

	out, err = p.Resolve(entry(10, "new"), entry(5, "old"))
	if err != nil || out.Decision != KeepExisting {
		t.Fatalf("expected KeepExisting for larger id, got %+v, err=%v", out, err)
	}
}

func TestMerge(t *testing.T) {
	p := Merge(func(incoming, existing core.Entry) []byte {
		return []byte(string(existing.Payload) + "+" + string(incoming.Payload))
	})

	out, err := p.Resolve(entry(10, "new"), entry(5, "old"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if out.Decision != KeepMerged {
		t.Fatalf("expected KeepMerged, got %v", out.Decision)
	}
	if string(out.Entry.Payload) != "old+new" {
		t.Fatalf("expected merged payload 'old+new', got %q", out.Entry.Payload)
	}
	if out.Entry.ID != 10 {
		t.Fatalf("expected merged entry to carry the incoming id, got %d", out.Entry.ID)
	}
}

func TestReject(t *testing.T) {
	p := Reject()

	out, err := p.Resolve(entry(10, "new"), entry(5, "old"))
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if out.Decision != Rejected {
		t.Fatalf("expected Decision=Rejected, got %v", out.Decision)
	}
}
