package bots

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"
)

// maxDocContext caps the extracted documentation context handed to the
// prompt.
const maxDocContext = 4000

// DocsIndex aggregates Markdown documentation and extracts context relevant
// to a user message by simple token matching.
type DocsIndex struct {
	mu     sync.Mutex
	path   string
	lines  []string
	loaded bool
}

// NewDocsIndex indexes a Markdown file or a directory of .md files. An
// empty path disables documentation context.
func NewDocsIndex(path string) *DocsIndex {
	return &DocsIndex{path: path}
}

func (d *DocsIndex) load() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loaded || d.path == "" {
		return d.lines
	}
	d.loaded = true

	var sb strings.Builder
	info, err := os.Stat(d.path)
	if err != nil {
		log.Printf("bots: docs source %s: %v", d.path, err)
		return nil
	}
	if info.IsDir() {
		_ = filepath.WalkDir(d.path, func(p string, e fs.DirEntry, err error) error {
			if err != nil || e.IsDir() || !strings.EqualFold(filepath.Ext(p), ".md") {
				return nil
			}
			if b, err := os.ReadFile(p); err == nil {
				sb.Write(b)
				sb.WriteByte('\n')
			}
			return nil
		})
	} else if b, err := os.ReadFile(d.path); err == nil {
		sb.Write(b)
	}

	d.lines = strings.Split(sb.String(), "\n")
	return d.lines
}

// Context returns documentation lines matching tokens of the message, each
// with one line of surrounding context, capped at maxDocContext bytes.
// Only tokens of at least four letters participate.
func (d *DocsIndex) Context(message string) string {
	lines := d.load()
	if len(lines) == 0 {
		return ""
	}

	tokens := matchTokens(message)
	if len(tokens) == 0 {
		return ""
	}

	keep := make(map[int]struct{})
	for i, line := range lines {
		lower := strings.ToLower(line)
		for _, tok := range tokens {
			if strings.Contains(lower, tok) {
				for j := i - 1; j <= i+1; j++ {
					if j >= 0 && j < len(lines) {
						keep[j] = struct{}{}
					}
				}
				break
			}
		}
	}
	if len(keep) == 0 {
		return ""
	}

	var sb strings.Builder
	for i := range lines {
		if _, ok := keep[i]; !ok {
			continue
		}
		if sb.Len()+len(lines[i])+1 > maxDocContext {
			break
		}
		sb.WriteString(lines[i])
		sb.WriteByte('\n')
	}
	return sb.String()
}

// matchTokens lower-cases the message and keeps alphabetic tokens of four
// or more letters.
func matchTokens(message string) []string {
	fields := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	var tokens []string
	seen := make(map[string]struct{})
	for _, f := range fields {
		if len([]rune(f)) < 4 {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}
