package policy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"openclaw/internal/models"
)

// Group policy scopes.
const (
	GroupScopeGlobal = "global"
	GroupScopeGroup  = "group"
)

// GroupKeyKind is the declared type of a group policy key.
type GroupKeyKind int

const (
	KindBool GroupKeyKind = iota
	KindInt               // non-negative
)

// GroupKey declares one schema entry.
type GroupKey struct {
	Kind        GroupKeyKind
	BoolDefault bool
	IntDefault  int
}

// GroupSchema fixes the set of group policy keys, their types and defaults.
// Missing keys always resolve to these defaults; reads at scope=group fall
// back to the schema, not to the global policy.
var GroupSchema = map[string]GroupKey{
	"allow_group_text":           {Kind: KindBool, BoolDefault: true},
	"allow_group_files":          {Kind: KindBool, BoolDefault: true},
	"allow_group_voice":          {Kind: KindBool, BoolDefault: true},
	"allow_group_video":          {Kind: KindBool, BoolDefault: true},
	"max_group_concurrent_voice": {Kind: KindInt, IntDefault: 40},
	"max_group_message_length":   {Kind: KindInt, IntDefault: 4000},
	"max_group_file_size_mb":     {Kind: KindInt, IntDefault: 100},
}

// GroupPolicyKeys lists the schema keys in a stable order.
func GroupPolicyKeys() []string {
	keys := make([]string, 0, len(GroupSchema))
	for k := range GroupSchema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GroupPolicy resolves the full typed bundle for a scope/group, merging
// stored rows over schema defaults.
func (e *Engine) GroupPolicy(scope, group string) (map[string]any, error) {
	if scope == GroupScopeGlobal {
		group = models.GlobalGroupName
	}
	stored, err := e.store.GroupPolicyValues(scope, group)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(GroupSchema))
	for key, decl := range GroupSchema {
		raw, ok := stored[key]
		if !ok {
			if decl.Kind == KindBool {
				out[key] = decl.BoolDefault
			} else {
				out[key] = decl.IntDefault
			}
			continue
		}
		switch decl.Kind {
		case KindBool:
			out[key] = raw == "true"
		case KindInt:
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				n = decl.IntDefault
			}
			out[key] = n
		}
	}
	return out, nil
}

// GroupBool reads one boolean key for a scope/group.
func (e *Engine) GroupBool(scope, group, key string) (bool, error) {
	values, err := e.GroupPolicy(scope, group)
	if err != nil {
		return false, err
	}
	v, ok := values[key].(bool)
	if !ok {
		return false, fmt.Errorf("group policy key %q is not a bool", key)
	}
	return v, nil
}

// GroupInt reads one integer key for a scope/group.
func (e *Engine) GroupInt(scope, group, key string) (int, error) {
	values, err := e.GroupPolicy(scope, group)
	if err != nil {
		return 0, err
	}
	v, ok := values[key].(int)
	if !ok {
		return 0, fmt.Errorf("group policy key %q is not an int", key)
	}
	return v, nil
}

// SetGroupPolicy coerces and stores updates, merging over current values.
// Unknown keys and values that cannot be coerced are rejected.
func (e *Engine) SetGroupPolicy(scope, group string, updates map[string]json.RawMessage) error {
	if scope == GroupScopeGlobal {
		group = models.GlobalGroupName
	}
	coerced := make(map[string]string, len(updates))
	for key, raw := range updates {
		decl, ok := GroupSchema[key]
		if !ok {
			return fmt.Errorf("unknown group policy key %q", key)
		}
		value, err := coerceValue(decl, raw)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		coerced[key] = value
	}
	return e.store.SetGroupPolicyValues(scope, group, coerced)
}

// SetGroupPolicyStrings is the admin-console entry point; values arrive as
// command-line words.
func (e *Engine) SetGroupPolicyStrings(scope, group string, updates map[string]string) error {
	raw := make(map[string]json.RawMessage, len(updates))
	for k, v := range updates {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		raw[k] = b
	}
	return e.SetGroupPolicy(scope, group, raw)
}

// ResetGroupPolicy drops stored rows so reads fall back to defaults.
func (e *Engine) ResetGroupPolicy(scope, group string) error {
	if scope == GroupScopeGlobal {
		group = models.GlobalGroupName
	}
	return e.store.ResetGroupPolicy(scope, group)
}

// coerceValue normalizes a JSON value (bool, number or string spelling)
// into the stored string form for its declared kind.
func coerceValue(decl GroupKey, raw json.RawMessage) (string, error) {
	var b bool
	var n float64
	var s string

	switch {
	case json.Unmarshal(raw, &b) == nil:
		// native bool
	case json.Unmarshal(raw, &n) == nil:
		if decl.Kind == KindInt {
			i := int(n)
			if float64(i) != n || i < 0 {
				return "", fmt.Errorf("expected a non-negative integer")
			}
			return strconv.Itoa(i), nil
		}
		b = n != 0
	case json.Unmarshal(raw, &s) == nil:
		return coerceString(decl, s)
	default:
		return "", fmt.Errorf("unsupported value")
	}

	if decl.Kind == KindBool {
		return strconv.FormatBool(b), nil
	}
	return "", fmt.Errorf("expected an integer")
}

func coerceString(decl GroupKey, s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if decl.Kind == KindBool {
		switch s {
		case "true", "1", "yes", "on":
			return "true", nil
		case "false", "0", "no", "off":
			return "false", nil
		}
		return "", fmt.Errorf("expected a boolean, got %q", s)
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return "", fmt.Errorf("expected a non-negative integer, got %q", s)
	}
	return strconv.Itoa(i), nil
}
