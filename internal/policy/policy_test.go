package policy

import (
	"encoding/json"
	"os"
	"testing"

	"openclaw/internal/storage"
)

// staticAdmins is a fixed admin set for tests.
type staticAdmins map[string]bool

func (a staticAdmins) IsAdmin(name string) bool { return a[name] }

func setupEngine(t *testing.T, admins staticAdmins) *Engine {
	t.Helper()
	f, err := os.CreateTemp("", "openclaw-policy-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db: %v", err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	store, err := storage.NewSQLiteStore(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	engine, err := NewEngine(store, admins)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func TestCanUse_Scopes(t *testing.T) {
	engine := setupEngine(t, staticAdmins{"root": true})

	// Seeded scope=all feature.
	if !engine.CanUse("alice", FeatureBots) {
		t.Error("scope=all feature denied to a plain user")
	}
	// Seeded scope=admin feature.
	if engine.CanUse("alice", FeatureAdminConsole) {
		t.Error("scope=admin feature allowed to a plain user")
	}
	if !engine.CanUse("root", FeatureAdminConsole) {
		t.Error("scope=admin feature denied to an admin")
	}
	// Unknown features are never usable.
	if engine.CanUse("root", "no_such_feature") {
		t.Error("unknown feature reported usable")
	}
}

func TestCanUse_DisabledBeatsScope(t *testing.T) {
	engine := setupEngine(t, staticAdmins{"root": true})

	off := false
	if err := engine.UpdateFeature(FeatureBots, &off, nil, "", nil); err != nil {
		t.Fatalf("UpdateFeature failed: %v", err)
	}
	if engine.CanUse("root", FeatureBots) {
		t.Error("disabled feature usable, even by an admin")
	}
}

func TestCanUse_Allowlist(t *testing.T) {
	engine := setupEngine(t, staticAdmins{"root": true})

	if err := engine.UpdateFeature(FeatureGroupCall, nil, nil, ScopeAllowlist, nil); err != nil {
		t.Fatalf("UpdateFeature failed: %v", err)
	}

	if engine.CanUse("alice", FeatureGroupCall) {
		t.Error("allowlist feature usable before listing")
	}
	// Admins always pass allowlist scope.
	if !engine.CanUse("root", FeatureGroupCall) {
		t.Error("allowlist feature denied to an admin")
	}

	if err := engine.store.AddFeatureAllowUser(FeatureGroupCall, "alice"); err != nil {
		t.Fatalf("AddFeatureAllowUser: %v", err)
	}
	if !engine.CanUse("alice", FeatureGroupCall) {
		t.Error("allowlisted user denied")
	}
}

func TestUpdateFeature_RejectsUnknownScope(t *testing.T) {
	engine := setupEngine(t, nil)
	if err := engine.UpdateFeature(FeatureBots, nil, nil, "everyone", nil); err == nil {
		t.Error("expected an error for an unknown scope")
	}
}

func TestCapabilities(t *testing.T) {
	engine := setupEngine(t, staticAdmins{"root": true})

	caps, err := engine.Capabilities("alice")
	if err != nil {
		t.Fatalf("Capabilities failed: %v", err)
	}
	if len(caps) != len(SeedFeatures()) {
		t.Fatalf("expected %d capabilities, got %d", len(SeedFeatures()), len(caps))
	}
	if !caps[FeatureFileTransfer].CanUse {
		t.Error("expected file_transfer usable for a plain user")
	}
	if caps[FeatureAdminConsole].CanUse {
		t.Error("expected admin_console unusable for a plain user")
	}
	if caps[FeatureAdminConsole].UIVisible {
		t.Error("expected admin_console hidden from the UI")
	}
}

func TestGroupPolicy_Defaults(t *testing.T) {
	engine := setupEngine(t, nil)

	values, err := engine.GroupPolicy(GroupScopeGlobal, "")
	if err != nil {
		t.Fatalf("GroupPolicy failed: %v", err)
	}
	if v, ok := values["allow_group_voice"].(bool); !ok || !v {
		t.Errorf("expected allow_group_voice default true, got %v", values["allow_group_voice"])
	}
	if v, ok := values["max_group_concurrent_voice"].(int); !ok || v != 40 {
		t.Errorf("expected max_group_concurrent_voice default 40, got %v", values["max_group_concurrent_voice"])
	}
	if len(values) != len(GroupSchema) {
		t.Errorf("expected every schema key resolved, got %d of %d", len(values), len(GroupSchema))
	}
}

func TestSetGroupPolicy_CoercionAndMerge(t *testing.T) {
	engine := setupEngine(t, nil)

	updates := map[string]json.RawMessage{
		"allow_group_voice":          json.RawMessage(`"off"`),
		"max_group_concurrent_voice": json.RawMessage(`"12"`),
		"allow_group_video":          json.RawMessage(`false`),
	}
	if err := engine.SetGroupPolicy(GroupScopeGlobal, "", updates); err != nil {
		t.Fatalf("SetGroupPolicy failed: %v", err)
	}

	if v, _ := engine.GroupBool(GroupScopeGlobal, "", "allow_group_voice"); v {
		t.Error("expected allow_group_voice false after 'off'")
	}
	if v, _ := engine.GroupInt(GroupScopeGlobal, "", "max_group_concurrent_voice"); v != 12 {
		t.Errorf("expected limit 12, got %d", v)
	}
	// Untouched keys keep their defaults.
	if v, _ := engine.GroupBool(GroupScopeGlobal, "", "allow_group_text"); !v {
		t.Error("expected allow_group_text to keep its default")
	}

	// Reset restores every default.
	if err := engine.ResetGroupPolicy(GroupScopeGlobal, ""); err != nil {
		t.Fatalf("ResetGroupPolicy failed: %v", err)
	}
	if v, _ := engine.GroupBool(GroupScopeGlobal, "", "allow_group_voice"); !v {
		t.Error("expected allow_group_voice restored after reset")
	}
}

func TestSetGroupPolicy_Rejections(t *testing.T) {
	engine := setupEngine(t, nil)

	cases := map[string]json.RawMessage{
		"no_such_key":                json.RawMessage(`true`),
		"max_group_concurrent_voice": json.RawMessage(`-3`),
		"allow_group_voice":          json.RawMessage(`"maybe"`),
	}
	for key, raw := range cases {
		err := engine.SetGroupPolicy(GroupScopeGlobal, "", map[string]json.RawMessage{key: raw})
		if err == nil {
			t.Errorf("expected rejection for %s=%s", key, raw)
		}
	}
}

// TestGroupScopeIsolation verifies scope=group reads never fall back to the
// global policy, only to schema defaults.
func TestGroupScopeIsolation(t *testing.T) {
	engine := setupEngine(t, nil)

	if err := engine.SetGroupPolicy(GroupScopeGlobal, "", map[string]json.RawMessage{
		"allow_group_voice": json.RawMessage(`false`),
	}); err != nil {
		t.Fatalf("SetGroupPolicy failed: %v", err)
	}

	v, err := engine.GroupBool(GroupScopeGroup, "gamers", "allow_group_voice")
	if err != nil {
		t.Fatalf("GroupBool failed: %v", err)
	}
	if !v {
		t.Error("group-scope read leaked the global override; expected the schema default")
	}
}

func TestGroupPolicyKeys_SortedAndComplete(t *testing.T) {
	keys := GroupPolicyKeys()
	if len(keys) != len(GroupSchema) {
		t.Fatalf("expected %d keys, got %d", len(GroupSchema), len(keys))
	}
	for i := 1; i < len(keys); i++ {
		if keys[i-1] >= keys[i] {
			t.Fatalf("keys not sorted: %v", keys)
		}
	}
}
