package server

import (
	"testing"

	"openclaw/pkg/protocol"
)

func TestTransferBroker_AddAssignsServerID(t *testing.T) {
	b := NewTransferBroker()
	id := b.Add(&PendingTransfer{
		From:     "alice",
		To:       "bob",
		ClientID: "client-chosen-1",
		Files:    []protocol.FileMeta{{Filename: "photo.jpg", Size: 10}},
	})
	if id == "" {
		t.Fatal("expected a server-generated transfer id")
	}
	if id == "client-chosen-1" {
		t.Fatal("server id must not be the client's own handle")
	}

	got, ok := b.Get(id)
	if !ok {
		t.Fatal("transfer not found by server id")
	}
	if got.ClientID != "client-chosen-1" {
		t.Errorf("client id not preserved: %q", got.ClientID)
	}
	// Two offers never share an id.
	other := b.Add(&PendingTransfer{From: "alice", To: "bob"})
	if other == id {
		t.Error("duplicate transfer id minted")
	}
}

// TestTransferBroker_GetKeepsPending verifies accept-style reads leave the
// transfer in place for the later file_data.
func TestTransferBroker_GetKeepsPending(t *testing.T) {
	b := NewTransferBroker()
	id := b.Add(&PendingTransfer{From: "alice", To: "bob"})

	if _, ok := b.Get(id); !ok {
		t.Fatal("first Get failed")
	}
	if _, ok := b.Get(id); !ok {
		t.Fatal("transfer consumed by Get")
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 pending transfer, got %d", b.Len())
	}
}

func TestTransferBroker_TakeConsumes(t *testing.T) {
	b := NewTransferBroker()
	id := b.Add(&PendingTransfer{From: "alice", To: "bob"})

	if _, ok := b.Take(id); !ok {
		t.Fatal("Take failed")
	}
	if _, ok := b.Take(id); ok {
		t.Fatal("second Take succeeded; transfer must be single-use")
	}
	if b.Len() != 0 {
		t.Errorf("expected no pending transfers, got %d", b.Len())
	}
}

// TestTransferBroker_DropFor verifies disconnect cleanup removes transfers
// on both sides of the departing user.
func TestTransferBroker_DropFor(t *testing.T) {
	b := NewTransferBroker()
	asSender := b.Add(&PendingTransfer{From: "alice", To: "bob"})
	asReceiver := b.Add(&PendingTransfer{From: "carol", To: "alice"})
	unrelated := b.Add(&PendingTransfer{From: "bob", To: "carol"})

	dropped := b.DropFor("alice")
	if len(dropped) != 2 {
		t.Fatalf("expected 2 dropped transfers, got %d", len(dropped))
	}
	for _, id := range []string{asSender, asReceiver} {
		if _, ok := b.Get(id); ok {
			t.Errorf("transfer %s survived DropFor", id)
		}
	}
	if _, ok := b.Get(unrelated); !ok {
		t.Error("unrelated transfer was dropped")
	}
}
