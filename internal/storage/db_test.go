package storage

import (
	"errors"
	"os"
	"testing"
	"time"

	apperrors "openclaw/internal/errors"
	"openclaw/internal/models"
)

// setupTestStore creates a temp-file SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	// Use a temp file so CGO sqlite works (some drivers don't support :memory: + multiple conns)
	f, err := os.CreateTemp("", "openclaw-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp db: %v", err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	store, err := NewSQLiteStore(f.Name())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestUser(t *testing.T, store *SQLiteStore, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, UsernameFolded: Fold(name), IsVerified: true}
	if err := store.CreateUser(u); err != nil {
		t.Fatalf("createTestUser(%q): %v", name, err)
	}
	return u
}

// TestCreateUser_UniqueConstraint verifies that two registrations differing
// only in casing collapse onto one folded name and surface ErrDuplicateKey.
func TestCreateUser_UniqueConstraint(t *testing.T) {
	store := setupTestStore(t)
	createTestUser(t, store, "Alice")

	dup := &models.User{Username: "ALICE", UsernameFolded: Fold("ALICE")}
	err := store.CreateUser(dup)
	if err == nil {
		t.Fatal("expected error for duplicate folded username, got nil")
	}
	if !errors.Is(err, apperrors.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got: %v", err)
	}
}

// TestLookupUser_CaseInsensitive verifies lookup by any casing returns the
// stored display casing.
func TestLookupUser_CaseInsensitive(t *testing.T) {
	store := setupTestStore(t)
	createTestUser(t, store, "Alice")

	u, err := store.LookupUser("  aLiCe ")
	if err != nil {
		t.Fatalf("LookupUser failed: %v", err)
	}
	if u.Username != "Alice" {
		t.Errorf("expected display casing Alice, got %q", u.Username)
	}

	if _, err := store.LookupUser("nobody"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got: %v", err)
	}
}

// TestDeleteUser_HardDelete verifies the row is gone for good so the same
// username can be registered again afterwards.
func TestDeleteUser_HardDelete(t *testing.T) {
	store := setupTestStore(t)
	createTestUser(t, store, "bob")

	if err := store.DeleteUser("bob"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if _, err := store.LookupUser("bob"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got: %v", err)
	}
	// Re-registering the same name must not hit the unique index.
	createTestUser(t, store, "bob")
}

// TestDeleteUser_PurgesContacts verifies both directions of the contact
// graph are removed with the account.
func TestDeleteUser_PurgesContacts(t *testing.T) {
	store := setupTestStore(t)
	createTestUser(t, store, "alice")
	createTestUser(t, store, "bob")

	for _, edge := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		err := store.CreateContact(&models.Contact{Owner: edge[0], Contact: edge[1], Display: edge[1]})
		if err != nil {
			t.Fatalf("CreateContact(%v): %v", edge, err)
		}
	}

	if err := store.DeleteUser("bob"); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}

	rows, err := store.ListContacts("alice")
	if err != nil {
		t.Fatalf("ListContacts failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected alice's contact list to be empty, got %d rows", len(rows))
	}
}

func TestBlockFlags(t *testing.T) {
	store := setupTestStore(t)
	createTestUser(t, store, "alice")
	createTestUser(t, store, "bob")

	if err := store.CreateContact(&models.Contact{Owner: "alice", Contact: "bob", Display: "bob"}); err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	if err := store.SetContactBlocked("alice", "bob", true); err != nil {
		t.Fatalf("SetContactBlocked: %v", err)
	}

	aBlockedB, bBlockedA, err := store.BlockFlags("alice", "bob")
	if err != nil {
		t.Fatalf("BlockFlags: %v", err)
	}
	if !aBlockedB || bBlockedA {
		t.Errorf("expected (true,false), got (%v,%v)", aBlockedB, bBlockedA)
	}
}

// TestListWatchers verifies presence fan-out targets: owners listing the
// user without blocking them.
func TestListWatchers(t *testing.T) {
	store := setupTestStore(t)
	for _, name := range []string{"alice", "bob", "carol"} {
		createTestUser(t, store, name)
	}
	for _, owner := range []string{"bob", "carol"} {
		if err := store.CreateContact(&models.Contact{Owner: owner, Contact: "alice", Display: "alice"}); err != nil {
			t.Fatalf("CreateContact(%s): %v", owner, err)
		}
	}
	if err := store.SetContactBlocked("carol", "alice", true); err != nil {
		t.Fatalf("SetContactBlocked: %v", err)
	}

	watchers, err := store.ListWatchers("alice")
	if err != nil {
		t.Fatalf("ListWatchers: %v", err)
	}
	if len(watchers) != 1 || watchers[0] != "bob" {
		t.Errorf("expected only bob to watch alice, got %v", watchers)
	}
}

func TestActiveFileBan(t *testing.T) {
	store := setupTestStore(t)
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

	until := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	if err := store.CreateFileBan(&models.FileBan{Username: "alice", FileType: "exe", Until: &until}); err != nil {
		t.Fatalf("CreateFileBan: %v", err)
	}

	ban, err := store.ActiveFileBan("alice", "exe", now)
	if err != nil {
		t.Fatalf("ActiveFileBan: %v", err)
	}
	if ban == nil {
		t.Fatal("expected an active ban for exe")
	}

	// Different extension is not covered.
	if ban, _ := store.ActiveFileBan("alice", "zip", now); ban != nil {
		t.Errorf("unexpected ban for zip: %+v", ban)
	}

	// Past the ban day the ban no longer applies.
	later := until.AddDate(0, 0, 2)
	if ban, _ := store.ActiveFileBan("alice", "exe", later); ban != nil {
		t.Errorf("expected ban to have expired, got %+v", ban)
	}
}

func TestActiveFileBan_Wildcard(t *testing.T) {
	store := setupTestStore(t)
	if err := store.CreateFileBan(&models.FileBan{Username: "bob", FileType: "*"}); err != nil {
		t.Fatalf("CreateFileBan: %v", err)
	}
	ban, err := store.ActiveFileBan("bob", "pdf", time.Now())
	if err != nil {
		t.Fatalf("ActiveFileBan: %v", err)
	}
	if ban == nil {
		t.Fatal("expected the wildcard ban to cover pdf")
	}

	n, err := store.DeleteFileBans("bob", "*")
	if err != nil {
		t.Fatalf("DeleteFileBans: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 ban removed, got %d", n)
	}
}

func TestGroupPolicyValues_RoundTrip(t *testing.T) {
	store := setupTestStore(t)

	in := map[string]string{"allow_group_voice": "false", "max_group_concurrent_voice": "10"}
	if err := store.SetGroupPolicyValues("global", models.GlobalGroupName, in); err != nil {
		t.Fatalf("SetGroupPolicyValues: %v", err)
	}
	// Second write merges over the first.
	if err := store.SetGroupPolicyValues("global", models.GlobalGroupName, map[string]string{"allow_group_voice": "true"}); err != nil {
		t.Fatalf("SetGroupPolicyValues (merge): %v", err)
	}

	out, err := store.GroupPolicyValues("global", models.GlobalGroupName)
	if err != nil {
		t.Fatalf("GroupPolicyValues: %v", err)
	}
	if out["allow_group_voice"] != "true" || out["max_group_concurrent_voice"] != "10" {
		t.Errorf("unexpected stored values: %v", out)
	}

	if err := store.ResetGroupPolicy("global", models.GlobalGroupName); err != nil {
		t.Fatalf("ResetGroupPolicy: %v", err)
	}
	out, err = store.GroupPolicyValues("global", models.GlobalGroupName)
	if err != nil {
		t.Fatalf("GroupPolicyValues after reset: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no stored rows after reset, got %v", out)
	}
}

// TestSeedFeaturePolicies_DoesNotOverwrite verifies seeding inserts missing
// rows only, so admin edits survive a restart.
func TestSeedFeaturePolicies_DoesNotOverwrite(t *testing.T) {
	store := setupTestStore(t)

	seed := []models.FeaturePolicy{
		{Feature: "bots", Enabled: true, Scope: "all"},
		{Feature: "file_transfer", Enabled: true, Scope: "all"},
	}
	if err := store.SeedFeaturePolicies(seed); err != nil {
		t.Fatalf("SeedFeaturePolicies: %v", err)
	}

	p, err := store.GetFeaturePolicy("bots")
	if err != nil {
		t.Fatalf("GetFeaturePolicy: %v", err)
	}
	p.Enabled = false
	p.Scope = "admin"
	if err := store.SaveFeaturePolicy(p); err != nil {
		t.Fatalf("SaveFeaturePolicy: %v", err)
	}

	if err := store.SeedFeaturePolicies(seed); err != nil {
		t.Fatalf("second SeedFeaturePolicies: %v", err)
	}
	p, err = store.GetFeaturePolicy("bots")
	if err != nil {
		t.Fatalf("GetFeaturePolicy after reseed: %v", err)
	}
	if p.Enabled || p.Scope != "admin" {
		t.Errorf("seeding overwrote the admin edit: %+v", p)
	}
}

func TestFeatureAllowlists(t *testing.T) {
	store := setupTestStore(t)
	if err := store.SeedFeaturePolicies([]models.FeaturePolicy{{Feature: "group_call", Enabled: true, Scope: "allowlist"}}); err != nil {
		t.Fatalf("SeedFeaturePolicies: %v", err)
	}

	// Direct user allowlist.
	if err := store.AddFeatureAllowUser("group_call", "alice"); err != nil {
		t.Fatalf("AddFeatureAllowUser: %v", err)
	}
	ok, err := store.IsFeatureUserAllowed("group_call", "alice")
	if err != nil || !ok {
		t.Fatalf("expected alice allowed, got ok=%v err=%v", ok, err)
	}

	// Allowed via access group membership.
	if err := store.AddUserAccessGroup("staff", "bob"); err != nil {
		t.Fatalf("AddUserAccessGroup: %v", err)
	}
	if err := store.AddFeatureAllowGroup("group_call", "staff"); err != nil {
		t.Fatalf("AddFeatureAllowGroup: %v", err)
	}
	ok, err = store.IsFeatureUserAllowed("group_call", "bob")
	if err != nil || !ok {
		t.Fatalf("expected bob allowed via staff group, got ok=%v err=%v", ok, err)
	}

	// Removal revokes.
	if err := store.RemoveFeatureAllowGroup("group_call", "staff"); err != nil {
		t.Fatalf("RemoveFeatureAllowGroup: %v", err)
	}
	ok, err = store.IsFeatureUserAllowed("group_call", "bob")
	if err != nil {
		t.Fatalf("IsFeatureUserAllowed: %v", err)
	}
	if ok {
		t.Error("expected bob no longer allowed after group removal")
	}
}

func TestBotRuleOverrides(t *testing.T) {
	store := setupTestStore(t)

	if _, err := store.GetBotRuleOverride("admin1", "helper"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
	if err := store.SetBotRuleOverride("admin1", "helper", "be nice"); err != nil {
		t.Fatalf("SetBotRuleOverride: %v", err)
	}
	o, err := store.GetBotRuleOverride("admin1", "helper")
	if err != nil {
		t.Fatalf("GetBotRuleOverride: %v", err)
	}
	if o.Rules != "be nice" {
		t.Errorf("unexpected rules %q", o.Rules)
	}

	// Upsert replaces.
	if err := store.SetBotRuleOverride("admin1", "helper", "be terse"); err != nil {
		t.Fatalf("SetBotRuleOverride (update): %v", err)
	}
	o, _ = store.GetBotRuleOverride("admin1", "helper")
	if o.Rules != "be terse" {
		t.Errorf("expected updated rules, got %q", o.Rules)
	}

	if err := store.DeleteBotRuleOverride("admin1", "helper"); err != nil {
		t.Fatalf("DeleteBotRuleOverride: %v", err)
	}
	if _, err := store.GetBotRuleOverride("admin1", "helper"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got: %v", err)
	}
}
