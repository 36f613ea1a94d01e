package password

import (
	"encoding/base64"
	"strconv"
	"strings"
	"testing"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()

	hasher, err := NewHasher(DefaultConfig())
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	return hasher
}

func TestHashAndVerify(t *testing.T) {
	hasher := newTestHasher(t)

	hash, err := hasher.Hash("Secret123!")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if !strings.HasPrefix(hash, "pbkdf2_sha256$100000$") {
		t.Fatalf("unexpected hash prefix: %s", hash)
	}
	parts := strings.Split(hash, "$")
	if len(parts) != 4 {
		t.Fatalf("expected 4 fields, got %d", len(parts))
	}
	salt, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(salt) != DefaultSaltLength {
		t.Fatalf("unexpected salt field: len=%d err=%v", len(salt), err)
	}
	key, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil || len(key) != DefaultKeyLength {
		t.Fatalf("unexpected key field: len=%d err=%v", len(key), err)
	}

	if !hasher.Verify("Secret123!", hash) {
		t.Fatal("expected password verification to succeed")
	}
}

func TestHashUsesFreshSalt(t *testing.T) {
	hasher := newTestHasher(t)

	first, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	second, err := hasher.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if first == second {
		t.Fatal("expected two hashes of the same password to differ")
	}
	if !hasher.Verify("same-password", first) || !hasher.Verify("same-password", second) {
		t.Fatal("expected both hashes to verify")
	}
}

func TestVerifyWrongPassword(t *testing.T) {
	hasher := newTestHasher(t)

	hash, err := hasher.Hash("correct-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if hasher.Verify("wrong-password", hash) {
		t.Fatal("expected wrong password verification to fail")
	}
	if hasher.Verify("", hash) {
		t.Fatal("expected empty password verification to fail")
	}
}

func TestHashEmptyPassword(t *testing.T) {
	hasher := newTestHasher(t)

	for _, pwd := range []string{"", " ", "\t\n"} {
		if _, err := hasher.Hash(pwd); err != ErrEmptyPassword {
			t.Fatalf("Hash(%q): expected ErrEmptyPassword, got %v", pwd, err)
		}
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	hasher := newTestHasher(t)

	valid, err := hasher.Hash("malformed-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	parts := strings.Split(valid, "$")

	cases := map[string]string{
		"empty":            "",
		"whitespace":       "   ",
		"too few fields":   strings.Join(parts[:3], "$"),
		"too many fields":  valid + "$extra",
		"unknown tag":      "pbkdf2_sha1$" + strings.Join(parts[1:], "$"),
		"non-integer iter": parts[0] + "$abc$" + parts[2] + "$" + parts[3],
		"iter below floor": parts[0] + "$9999$" + parts[2] + "$" + parts[3],
		"iter above cap":   parts[0] + "$2000000000$" + parts[2] + "$" + parts[3],
		"bad salt":         parts[0] + "$" + parts[1] + "$!!!$" + parts[3],
		"bad key":          parts[0] + "$" + parts[1] + "$" + parts[2] + "$%%%",
		"empty key":        parts[0] + "$" + parts[1] + "$" + parts[2] + "$",
	}

	for name, encoded := range cases {
		if hasher.Verify("malformed-test", encoded) {
			t.Fatalf("%s: expected verification to fail", name)
		}
	}
}

func TestVerifyTamperedKey(t *testing.T) {
	hasher := newTestHasher(t)

	hash, err := hasher.Hash("tamper-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	// Skip the padding and the partially used final symbol.
	idx := len(hash) - 5
	replacement := byte('A')
	if hash[idx] == 'A' {
		replacement = 'B'
	}
	tampered := hash[:idx] + string(replacement) + hash[idx+1:]

	if hasher.Verify("tamper-test", tampered) {
		t.Fatal("expected tampered hash verification to fail")
	}
}

func TestVerifyHistoricalParameters(t *testing.T) {
	strong, err := NewHasher(Config{Iterations: 150_000, SaltLength: 24, KeyLength: 48})
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	hash, err := strong.Hash("rotated-defaults")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	current := newTestHasher(t)
	if !current.Verify("rotated-defaults", hash) {
		t.Fatal("expected hash with stored parameters to verify under different defaults")
	}
}

func TestVerifyLegacyIterationCount(t *testing.T) {
	// Hashes at or above the verification floor still verify even though new
	// hashes require more rounds.
	legacy := &Hasher{config: Config{Iterations: 20_000, SaltLength: 16, KeyLength: 32}, rand: newTestHasher(t).rand}
	hash, err := legacy.Hash("legacy-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, AlgorithmTag+"$"+strconv.Itoa(20_000)+"$") {
		t.Fatalf("unexpected legacy hash: %s", hash)
	}

	current := newTestHasher(t)
	if !current.Verify("legacy-password", hash) {
		t.Fatal("expected legacy hash to verify")
	}

	needsUpgrade, err := current.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("NeedsUpgrade error: %v", err)
	}
	if !needsUpgrade {
		t.Fatal("expected NeedsUpgrade to return true for weaker hash parameters")
	}
}

func TestNeedsUpgradeSameConfig(t *testing.T) {
	hasher := newTestHasher(t)

	hash, err := hasher.Hash("same-config-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	needsUpgrade, err := hasher.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("NeedsUpgrade error: %v", err)
	}
	if needsUpgrade {
		t.Fatal("expected NeedsUpgrade to return false for current parameters")
	}
}

func TestNeedsUpgradeMalformed(t *testing.T) {
	hasher := newTestHasher(t)

	if _, err := hasher.NeedsUpgrade("not-a-hash"); err == nil {
		t.Fatal("expected malformed hash to return an error")
	}
}

func TestRejectsIterationCountAboveCap(t *testing.T) {
	hasher := newTestHasher(t)

	valid, err := hasher.Hash("capped")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	parts := strings.Split(valid, "$")
	inflated := parts[0] + "$" + strconv.Itoa(MaxIterations+1) + "$" + parts[2] + "$" + parts[3]

	if hasher.Verify("capped", inflated) {
		t.Fatal("expected inflated iteration count to fail verification")
	}
	if _, err := hasher.NeedsUpgrade(inflated); err == nil {
		t.Fatal("expected inflated iteration count to be reported as malformed")
	}
}

func TestNewHasherRejectsWeakConfig(t *testing.T) {
	cases := []Config{
		{Iterations: 99_999, SaltLength: 16, KeyLength: 32},
		{Iterations: 100_000, SaltLength: 8, KeyLength: 32},
		{Iterations: 100_000, SaltLength: 16, KeyLength: 16},
		{Iterations: MaxIterations + 1, SaltLength: 16, KeyLength: 32},
	}

	for _, cfg := range cases {
		if _, err := NewHasher(cfg); err == nil {
			t.Fatalf("expected config %+v to be rejected", cfg)
		}
	}
}

func FuzzVerifyNeverPanics(f *testing.F) {
	f.Add("pbkdf2_sha256$100000$AAAA$AAAA")
	f.Add("pbkdf2_sha256$$$")
	f.Add("$$$$")
	f.Add("pbkdf2_sha256$-1$AAAA$AAAA")

	hasher := &Hasher{config: DefaultConfig()}
	f.Fuzz(func(t *testing.T, encoded string) {
		parts := strings.Split(encoded, "$")
		if len(parts) == 4 {
			if n, err := strconv.Atoi(parts[1]); err == nil && n > 200_000 {
				t.Skip()
			}
		}
		_ = hasher.Verify("fuzz-password", encoded)
	})
}
