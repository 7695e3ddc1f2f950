package server

import (
	"net"
	"testing"
)

// newTestSession builds a session over an in-memory pipe. The remote end is
// drained so writes never block the writer goroutine.
func newTestSession(t *testing.T, user, folded string) *Session {
	t.Helper()
	client, server := net.Pipe()
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()
	sess := NewSession(server, user, folded, false)
	t.Cleanup(sess.Close)
	t.Cleanup(func() { client.Close() })
	return sess
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewPresenceRegistry()
	sess := newTestSession(t, "Alice", "alice")

	if old := r.Register(sess); old != nil {
		t.Fatalf("unexpected evicted session: %v", old.User)
	}
	got, ok := r.Get("alice")
	if !ok || got != sess {
		t.Fatal("registered session not found")
	}
	if r.Count() != 1 {
		t.Errorf("expected count 1, got %d", r.Count())
	}
}

// TestRegistry_EvictsOldSession verifies a second login for the same user
// returns the first session for eviction.
func TestRegistry_EvictsOldSession(t *testing.T) {
	r := NewPresenceRegistry()
	first := newTestSession(t, "Alice", "alice")
	second := newTestSession(t, "Alice", "alice")

	r.Register(first)
	old := r.Register(second)
	if old != first {
		t.Fatal("expected the first session to be evicted")
	}
	got, _ := r.Get("alice")
	if got != second {
		t.Fatal("expected the second session to be current")
	}
	if r.Count() != 1 {
		t.Errorf("expected count 1 after eviction, got %d", r.Count())
	}
}

// TestRegistry_UnregisterOnlyCurrent pins the eviction race: the evicted
// session's cleanup must not remove its replacement.
func TestRegistry_UnregisterOnlyCurrent(t *testing.T) {
	r := NewPresenceRegistry()
	first := newTestSession(t, "Alice", "alice")
	second := newTestSession(t, "Alice", "alice")

	r.Register(first)
	r.Register(second)

	if r.Unregister(first) {
		t.Error("evicted session's unregister must report no change")
	}
	if _, ok := r.Get("alice"); !ok {
		t.Fatal("replacement session was removed by the evicted one")
	}
	if !r.Unregister(second) {
		t.Error("current session's unregister must report a change")
	}
	if r.Count() != 0 {
		t.Errorf("expected empty registry, got %d", r.Count())
	}
}
