package server

import (
	"errors"
	"sort"
	"sync"

	"openclaw/pkg/protocol"
)

// ErrCallFull is returned when a join would exceed the participant limit.
var ErrCallFull = errors.New("Group call participant limit reached.")

// GroupCalls tracks the per-group participant sets for voice/video
// sessions. An empty participant set deletes the entry.
type GroupCalls struct {
	mu    sync.Mutex
	calls map[string]*callSession
}

type callSession struct {
	mode         string
	participants map[string]struct{}
}

// NewGroupCalls creates an empty map.
func NewGroupCalls() *GroupCalls {
	return &GroupCalls{
		calls: make(map[string]*callSession),
	}
}

// Join adds user to the group's call. The first participant fixes the mode;
// later joins inherit it. limit bounds the participant count for either
// mode (0 = unlimited).
func (g *GroupCalls) Join(group, mode, folded string, limit int) (string, []string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	call, ok := g.calls[group]
	if !ok {
		call = &callSession{mode: mode, participants: make(map[string]struct{})}
		g.calls[group] = call
	}
	if _, already := call.participants[folded]; !already {
		if limit > 0 && len(call.participants) >= limit {
			if len(call.participants) == 0 {
				delete(g.calls, group)
			}
			return "", nil, ErrCallFull
		}
		call.participants[folded] = struct{}{}
	}
	return call.mode, sortedKeys(call.participants), nil
}

// Leave removes user from the group's call. Returns the remaining
// participants and the mode; ok is false when the user was not in it.
func (g *GroupCalls) Leave(group, folded string) (mode string, remaining []string, ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.leaveLocked(group, folded)
}

func (g *GroupCalls) leaveLocked(group, folded string) (string, []string, bool) {
	call, exists := g.calls[group]
	if !exists {
		return "", nil, false
	}
	if _, in := call.participants[folded]; !in {
		return "", nil, false
	}
	delete(call.participants, folded)
	if len(call.participants) == 0 {
		delete(g.calls, group)
		return call.mode, nil, true
	}
	return call.mode, sortedKeys(call.participants), true
}

// LeaveAll removes user from every call, as on disconnect. Each affected
// group is returned with its remaining participants for leave broadcasts.
func (g *GroupCalls) LeaveAll(folded string) map[string]struct {
	Mode      string
	Remaining []string
} {
	g.mu.Lock()
	defer g.mu.Unlock()

	affected := make(map[string]struct {
		Mode      string
		Remaining []string
	})
	for group := range g.calls {
		if mode, remaining, ok := g.leaveLocked(group, folded); ok {
			affected[group] = struct {
				Mode      string
				Remaining []string
			}{mode, remaining}
		}
	}
	return affected
}

// IsParticipant reports whether user is currently in the group's call.
func (g *GroupCalls) IsParticipant(group, folded string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	call, ok := g.calls[group]
	if !ok {
		return false
	}
	_, in := call.participants[folded]
	return in
}

// List snapshots all active calls.
func (g *GroupCalls) List() []protocol.GroupCallInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]protocol.GroupCallInfo, 0, len(g.calls))
	for group, call := range g.calls {
		participants := sortedKeys(call.participants)
		out = append(out, protocol.GroupCallInfo{
			Group:        group,
			Mode:         call.mode,
			Participants: participants,
			Count:        len(participants),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
