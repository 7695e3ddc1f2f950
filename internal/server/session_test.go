package server

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"
)

func TestSession_SendDeliversOneLine(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	sess := NewSession(server, "Alice", "alice", false)
	defer sess.Close()

	type ping struct {
		Action string `json:"action"`
		N      int    `json:"n"`
	}
	if err := sess.Send(ping{Action: "ping", N: 7}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(client).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var got ping
	if err := json.Unmarshal(line, &got); err != nil {
		t.Fatalf("invalid JSON on the wire: %v", err)
	}
	if got.Action != "ping" || got.N != 7 {
		t.Errorf("unexpected payload: %+v", got)
	}
}

// TestSession_CloseFlushesQueuedEvents pins the kick path: an event queued
// right before Close (banned_kick, session_replaced) must still reach the
// client before the transport goes down.
func TestSession_CloseFlushesQueuedEvents(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	sess := NewSession(server, "Alice", "alice", false)

	type notice struct {
		Action string `json:"action"`
		Reason string `json:"reason"`
	}
	got := make(chan notice, 1)
	go func() {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		line, err := bufio.NewReader(client).ReadBytes('\n')
		if err != nil {
			return
		}
		var n notice
		if json.Unmarshal(line, &n) == nil {
			got <- n
		}
	}()

	if err := sess.Send(notice{Action: "banned_kick", Reason: "spam"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	sess.Close()

	select {
	case n := <-got:
		if n.Action != "banned_kick" || n.Reason != "spam" {
			t.Errorf("unexpected notice: %+v", n)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("final notice never reached the client")
	}
}

func TestSession_SendAfterClose(t *testing.T) {
	_, server := net.Pipe()
	sess := NewSession(server, "Alice", "alice", false)
	sess.Close()
	// Close is idempotent.
	sess.Close()

	if !sess.Closed() {
		t.Fatal("session not reported closed")
	}
	if err := sess.Send(map[string]string{"action": "late"}); err == nil {
		t.Error("expected an error sending on a closed session")
	}
}

func TestSession_SetStatusTruncates(t *testing.T) {
	_, server := net.Pipe()
	sess := NewSession(server, "Alice", "alice", false)
	defer sess.Close()

	if got := sess.Status(); got != "online" {
		t.Errorf("expected default status online, got %q", got)
	}
	got := sess.SetStatus("0123456789", 4)
	if got != "0123" {
		t.Errorf("expected truncated status, got %q", got)
	}
	if sess.Status() != "0123" {
		t.Errorf("stored status mismatch: %q", sess.Status())
	}

	// Truncation counts runes, never splitting a multi-byte character.
	got = sess.SetStatus("héllo wörld", 5)
	if got != "héllo" {
		t.Errorf("expected rune-boundary truncation, got %q", got)
	}
}
