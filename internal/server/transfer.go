package server

import (
	"sync"

	"github.com/google/uuid"

	"openclaw/pkg/protocol"
)

// PendingTransfer is one server-tracked file offer awaiting accept, decline
// or data. ID is server-generated and the only authoritative handle; the
// client's own transfer id is kept solely to echo back to the sender.
type PendingTransfer struct {
	ID       string
	From     string // folded sender
	To       string // folded recipient
	FromName string // display casing
	ToName   string
	ClientID string
	Files    []protocol.FileMeta // filenames fixed at offer time
}

// TransferBroker owns the pending-transfer map.
type TransferBroker struct {
	mu      sync.Mutex
	pending map[string]*PendingTransfer
}

// NewTransferBroker creates an empty broker.
func NewTransferBroker() *TransferBroker {
	return &TransferBroker{
		pending: make(map[string]*PendingTransfer),
	}
}

// Add records an offer under a freshly minted UUIDv4 and returns the id.
func (b *TransferBroker) Add(t *PendingTransfer) string {
	t.ID = uuid.NewString()
	b.mu.Lock()
	b.pending[t.ID] = t
	b.mu.Unlock()
	return t.ID
}

// Get looks up a pending transfer without consuming it.
func (b *TransferBroker) Get(id string) (*PendingTransfer, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.pending[id]
	return t, ok
}

// Take atomically consumes a pending transfer.
func (b *TransferBroker) Take(id string) (*PendingTransfer, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	return t, ok
}

// DropFor removes every transfer in which user is sender or receiver, as
// happens when that user disconnects.
func (b *TransferBroker) DropFor(folded string) []*PendingTransfer {
	b.mu.Lock()
	defer b.mu.Unlock()
	var dropped []*PendingTransfer
	for id, t := range b.pending {
		if t.From == folded || t.To == folded {
			dropped = append(dropped, t)
			delete(b.pending, id)
		}
	}
	return dropped
}

// Len reports the number of in-flight transfers.
func (b *TransferBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
