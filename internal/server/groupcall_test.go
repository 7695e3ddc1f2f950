package server

import (
	"errors"
	"testing"
)

func TestGroupCalls_JoinFixesMode(t *testing.T) {
	g := NewGroupCalls()

	mode, participants, err := g.Join("dev", "voice", "alice", 0)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if mode != "voice" || len(participants) != 1 {
		t.Fatalf("unexpected state: mode=%q participants=%v", mode, participants)
	}

	// The second join asks for video but inherits the established mode.
	mode, participants, err = g.Join("dev", "video", "bob", 0)
	if err != nil {
		t.Fatalf("second Join failed: %v", err)
	}
	if mode != "voice" {
		t.Errorf("expected mode voice to persist, got %q", mode)
	}
	if len(participants) != 2 {
		t.Errorf("expected 2 participants, got %v", participants)
	}
}

func TestGroupCalls_JoinIdempotent(t *testing.T) {
	g := NewGroupCalls()
	g.Join("dev", "voice", "alice", 0)
	_, participants, err := g.Join("dev", "voice", "alice", 0)
	if err != nil {
		t.Fatalf("re-join failed: %v", err)
	}
	if len(participants) != 1 {
		t.Errorf("re-join duplicated the participant: %v", participants)
	}
}

// TestGroupCalls_ParticipantLimit verifies the cap and that a re-join of an
// existing participant is never rejected by it.
func TestGroupCalls_ParticipantLimit(t *testing.T) {
	g := NewGroupCalls()
	g.Join("dev", "voice", "alice", 2)
	g.Join("dev", "voice", "bob", 2)

	_, _, err := g.Join("dev", "voice", "carol", 2)
	if !errors.Is(err, ErrCallFull) {
		t.Fatalf("expected ErrCallFull, got: %v", err)
	}
	// Existing participants are unaffected by the limit.
	if _, _, err := g.Join("dev", "voice", "bob", 2); err != nil {
		t.Errorf("re-join of an existing participant failed: %v", err)
	}
}

// TestGroupCalls_LeaveDeletesEmptyCall verifies the last leave removes the
// call entirely so the next join starts fresh.
func TestGroupCalls_LeaveDeletesEmptyCall(t *testing.T) {
	g := NewGroupCalls()
	g.Join("dev", "voice", "alice", 0)

	mode, remaining, ok := g.Leave("dev", "alice")
	if !ok || mode != "voice" || len(remaining) != 0 {
		t.Fatalf("unexpected leave result: mode=%q remaining=%v ok=%v", mode, remaining, ok)
	}

	// The group is gone; a fresh join may pick a new mode.
	mode, _, err := g.Join("dev", "video", "bob", 0)
	if err != nil {
		t.Fatalf("Join after empty failed: %v", err)
	}
	if mode != "video" {
		t.Errorf("expected a fresh call with mode video, got %q", mode)
	}
}

func TestGroupCalls_LeaveNotParticipant(t *testing.T) {
	g := NewGroupCalls()
	g.Join("dev", "voice", "alice", 0)

	if _, _, ok := g.Leave("dev", "bob"); ok {
		t.Error("leave by a non-participant reported ok")
	}
	if _, _, ok := g.Leave("nosuch", "alice"); ok {
		t.Error("leave of an unknown group reported ok")
	}
}

// TestGroupCalls_LeaveAll covers disconnect cleanup across several calls.
func TestGroupCalls_LeaveAll(t *testing.T) {
	g := NewGroupCalls()
	g.Join("dev", "voice", "alice", 0)
	g.Join("dev", "voice", "bob", 0)
	g.Join("music", "video", "alice", 0)

	affected := g.LeaveAll("alice")
	if len(affected) != 2 {
		t.Fatalf("expected 2 affected groups, got %v", affected)
	}
	if info := affected["dev"]; info.Mode != "voice" || len(info.Remaining) != 1 {
		t.Errorf("unexpected dev state: %+v", info)
	}
	if info := affected["music"]; len(info.Remaining) != 0 {
		t.Errorf("expected music call drained: %+v", info)
	}

	if g.IsParticipant("dev", "alice") {
		t.Error("alice still a participant after LeaveAll")
	}
	if !g.IsParticipant("dev", "bob") {
		t.Error("bob dropped by someone else's LeaveAll")
	}

	calls := g.List()
	if len(calls) != 1 || calls[0].Group != "dev" || calls[0].Count != 1 {
		t.Errorf("unexpected call list: %+v", calls)
	}
}
