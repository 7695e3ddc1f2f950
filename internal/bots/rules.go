// Package bots synthesizes replies for virtual bot participants: prompt
// composition, the external text-generation service, optional TTS, and the
// bot rules sources.
package bots

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"
	"sync"
	"time"
)

// MaxRulesLen caps rules text from any source, global or per-admin.
const MaxRulesLen = 60000

// rulesPreference orders the archive members considered as the rule text.
var rulesPreference = []string{"AGENTS.md", "RULES.md", "BOT_RULES.md", "README.md"}

// RulesSource loads the global bot rules from a ZIP archive or a plain text
// file and caches the result until the file changes on disk.
type RulesSource struct {
	mu      sync.Mutex
	path    string
	rules   string
	modTime time.Time
	loaded  bool
}

// NewRulesSource returns a source for the given path. An empty path yields
// empty rules.
func NewRulesSource(path string) *RulesSource {
	return &RulesSource{path: path}
}

// Rules returns the current global rules text, reloading when the source
// file's mtime has changed. Load failures log and return the last good
// text.
func (r *RulesSource) Rules() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.path == "" {
		return ""
	}

	info, err := os.Stat(r.path)
	if err != nil {
		if r.loaded {
			return r.rules
		}
		log.Printf("bots: rules source %s: %v", r.path, err)
		return ""
	}
	if r.loaded && info.ModTime().Equal(r.modTime) {
		return r.rules
	}

	text, err := loadRules(r.path)
	if err != nil {
		log.Printf("bots: reload rules from %s: %v", r.path, err)
		return r.rules
	}
	r.rules = text
	r.modTime = info.ModTime()
	r.loaded = true
	return r.rules
}

func loadRules(p string) (string, error) {
	if strings.EqualFold(path.Ext(p), ".zip") {
		return loadRulesZip(p)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return capRules(string(b)), nil
}

func loadRulesZip(p string) (string, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	byName := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		byName[strings.ToUpper(path.Base(f.Name))] = f
	}
	for _, want := range rulesPreference {
		f, ok := byName[strings.ToUpper(want)]
		if !ok {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		b, err := io.ReadAll(io.LimitReader(rc, MaxRulesLen+1))
		rc.Close()
		if err != nil {
			return "", err
		}
		return capRules(string(b)), nil
	}
	return "", fmt.Errorf("no rules file (%s) in archive", strings.Join(rulesPreference, ", "))
}

func capRules(s string) string {
	if len(s) > MaxRulesLen {
		return s[:MaxRulesLen]
	}
	return s
}
