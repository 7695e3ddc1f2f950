package server

import (
	"encoding/json"
	"errors"
	"log"
	"net"
	"sync"
	"time"
)

// sendBuffer is the per-session outbound queue depth. A session that cannot
// drain this many events within sendTimeout is considered dead.
const sendBuffer = 64

const (
	sendTimeout  = 5 * time.Second
	writeTimeout = 30 * time.Second

	// closeTimeout bounds how long Close waits for the writer to flush
	// already-queued events before the transport is torn down.
	closeTimeout = 2 * time.Second
)

var errSessionClosed = errors.New("session closed")

// Session is one authenticated live connection. All writes to the client go
// through the sink channel and are serialised by a single writer goroutine,
// so two concurrent fan-outs never interleave bytes.
type Session struct {
	User   string // display casing, authoritative on the wire
	Folded string // canonical lower-case form
	IsTLS  bool

	conn    net.Conn
	sendCh  chan []byte
	done    chan struct{}
	flushed chan struct{}
	once    sync.Once

	mu     sync.Mutex
	status string
}

// NewSession wraps an authenticated connection and starts its writer.
func NewSession(conn net.Conn, user, folded string, isTLS bool) *Session {
	s := &Session{
		User:    user,
		Folded:  folded,
		IsTLS:   isTLS,
		conn:    conn,
		sendCh:  make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		status:  "online",
	}
	go s.writeLoop()
	return s
}

// Send queues one event for delivery. It fails when the session is closed
// or the client stops draining its queue; the caller should treat either as
// a dead session.
func (s *Session) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	// A closed session never accepts new events, even while the buffered
	// queue still has room.
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}

	select {
	case s.sendCh <- b:
		return nil
	case <-s.done:
		return errSessionClosed
	case <-time.After(sendTimeout):
		log.Printf("session %s: send queue stalled, dropping connection", s.User)
		s.Close()
		return errSessionClosed
	}
}

// writeLoop serialises all writes. After Close it drains whatever was
// queued first, so final notices like banned_kick or session_replaced
// still reach the wire.
func (s *Session) writeLoop() {
	defer close(s.flushed)
	for {
		select {
		case b := <-s.sendCh:
			if !s.write(b) {
				go s.Close()
				return
			}
		case <-s.done:
			for {
				select {
				case b := <-s.sendCh:
					if !s.write(b) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) write(b []byte) bool {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := s.conn.Write(b); err != nil {
		log.Printf("session %s: write failed: %v", s.User, err)
		return false
	}
	return true
}

// Close stops accepting events, waits for the writer to flush the queue
// (bounded by closeTimeout), then terminates the transport. Safe to call
// from any goroutine, any number of times.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		select {
		case <-s.flushed:
		case <-time.After(closeTimeout):
		}
		_ = s.conn.Close()
	})
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Status returns the current status text.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus replaces the status text, truncated to maxLen runes so a
// multi-byte character is never cut mid-sequence.
func (s *Session) SetStatus(text string, maxLen int) string {
	if runes := []rune(text); maxLen > 0 && len(runes) > maxLen {
		text = string(runes[:maxLen])
	}
	s.mu.Lock()
	s.status = text
	s.mu.Unlock()
	return text
}
