package auth

import (
	"strings"
	"testing"
)

// testParams keeps hashing fast in tests.
func testParams() Argon2Params {
	return Argon2Params{
		Memory:      1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLen:     8,
		KeyLen:      32,
	}
}

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret", testParams())
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !strings.HasPrefix(hash, "argon2id$v=19$") {
		t.Errorf("unexpected hash format: %q", hash)
	}

	ok, upgrade, err := VerifyAndUpgrade("s3cret", hash, testParams())
	if err != nil {
		t.Fatalf("VerifyAndUpgrade failed: %v", err)
	}
	if !ok {
		t.Error("correct password did not verify")
	}
	if upgrade != "" {
		t.Errorf("hashed credential should not request an upgrade, got %q", upgrade)
	}

	ok, _, err = VerifyAndUpgrade("wrong", hash, testParams())
	if err != nil {
		t.Fatalf("VerifyAndUpgrade failed: %v", err)
	}
	if ok {
		t.Error("wrong password verified")
	}
}

func TestHashPassword_Salted(t *testing.T) {
	a, err := HashPassword("same", testParams())
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	b, err := HashPassword("same", testParams())
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if a == b {
		t.Error("two hashes of the same password must differ by salt")
	}
}

// TestVerifyAndUpgrade_LegacyPlaintext verifies a matching plaintext
// credential yields a hashed replacement.
func TestVerifyAndUpgrade_LegacyPlaintext(t *testing.T) {
	ok, upgrade, err := VerifyAndUpgrade("hunter2", "hunter2", testParams())
	if err != nil {
		t.Fatalf("VerifyAndUpgrade failed: %v", err)
	}
	if !ok {
		t.Fatal("matching legacy credential did not verify")
	}
	if !strings.HasPrefix(upgrade, "argon2id$") {
		t.Fatalf("expected an upgrade hash, got %q", upgrade)
	}

	// The upgrade hash must verify the same password.
	ok, again, err := VerifyAndUpgrade("hunter2", upgrade, testParams())
	if err != nil || !ok {
		t.Fatalf("upgrade hash does not verify: ok=%v err=%v", ok, err)
	}
	if again != "" {
		t.Error("verified upgrade hash requested another upgrade")
	}

	ok, upgrade, err = VerifyAndUpgrade("wrong", "hunter2", testParams())
	if err != nil {
		t.Fatalf("VerifyAndUpgrade failed: %v", err)
	}
	if ok || upgrade != "" {
		t.Error("non-matching legacy credential must not verify or upgrade")
	}
}

func TestVerifyAndUpgrade_EmptyInputs(t *testing.T) {
	if ok, _, _ := VerifyAndUpgrade("", "stored", testParams()); ok {
		t.Error("empty password verified")
	}
	if ok, _, _ := VerifyAndUpgrade("pw", "", testParams()); ok {
		t.Error("empty stored credential verified")
	}
}

func TestParsePHC_Malformed(t *testing.T) {
	bad := []string{
		"argon2id$v=19$m=1024,t=1,p=1$saltonly",
		"argon2id$v=18$m=1024,t=1,p=1$AAAA$BBBB",
		"argon2id$v=19$m=abc,t=1,p=1$AAAA$BBBB",
		"argon2id$v=19$m=1024,t=1,p=1$!!$BBBB",
	}
	for _, s := range bad {
		if _, _, err := VerifyAndUpgrade("pw", s, testParams()); err == nil {
			t.Errorf("expected parse error for %q", s)
		}
	}
}
