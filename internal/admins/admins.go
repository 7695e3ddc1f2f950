// Package admins maintains the persisted admin set. The on-disk format is a
// line-delimited text file of usernames so operators can audit and edit it
// by hand while the server is down.
package admins

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Set is the mutex-guarded admin membership set backed by a file. Names are
// stored folded (lower-cased).
type Set struct {
	mu      sync.RWMutex
	path    string
	members map[string]struct{}
}

// Load reads the admin file. A missing file yields an empty set; the file
// is created on the first mutation.
func Load(path string) (*Set, error) {
	s := &Set{
		path:    path,
		members: make(map[string]struct{}),
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("open admin file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		s.members[name] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read admin file: %w", err)
	}
	return s, nil
}

// IsAdmin reports membership for a username (any casing).
func (s *Set) IsAdmin(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Add inserts a username and persists the file. Reports whether the set
// changed.
func (s *Set) Add(name string) (bool, error) {
	folded := strings.ToLower(strings.TrimSpace(name))
	if folded == "" {
		return false, fmt.Errorf("empty admin name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[folded]; ok {
		return false, nil
	}
	s.members[folded] = struct{}{}
	return true, s.persistLocked()
}

// Remove deletes a username and persists the file. Reports whether the set
// changed.
func (s *Set) Remove(name string) (bool, error) {
	folded := strings.ToLower(strings.TrimSpace(name))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[folded]; !ok {
		return false, nil
	}
	delete(s.members, folded)
	return true, s.persistLocked()
}

// List returns the members in sorted order.
func (s *Set) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.members))
	for name := range s.members {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// persistLocked writes the file atomically via a temp file rename. Caller
// holds the write lock.
func (s *Set) persistLocked() error {
	names := make([]string, 0, len(s.members))
	for name := range s.members {
		names = append(names, name)
	}
	sort.Strings(names)

	tmp := s.path + ".tmp"
	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(name)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o600); err != nil {
		return fmt.Errorf("write admin file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace admin file: %w", err)
	}
	return nil
}
