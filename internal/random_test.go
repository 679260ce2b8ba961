package internal

import (
	"encoding/base64"
	"testing"
)

func TestNewRefreshSecretEntropy(t *testing.T) {
	seen := make(map[string]struct{}, 64)
	for i := 0; i < 64; i++ {
		raw, err := NewRefreshSecret()
		if err != nil {
			t.Fatalf("NewRefreshSecret: %v", err)
		}
		decoded, err := base64.RawURLEncoding.DecodeString(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(decoded)*8 < 128 {
			t.Fatalf("expected at least 128 bits, got %d", len(decoded)*8)
		}
		if _, dup := seen[raw]; dup {
			t.Fatal("duplicate refresh secret")
		}
		seen[raw] = struct{}{}
	}
}

func TestCheckSecret(t *testing.T) {
	raw, err := NewResetToken()
	if err != nil {
		t.Fatalf("NewResetToken: %v", err)
	}
	if err := CheckSecret(raw); err != nil {
		t.Fatalf("expected valid secret, got %v", err)
	}
	for _, bad := range []string{"", "abc", "!!!not-base64!!!", raw + "AA"} {
		if err := CheckSecret(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestHashSecretIsStable(t *testing.T) {
	if HashSecretHex("a") != HashSecretHex("a") {
		t.Fatal("hash must be deterministic")
	}
	if HashSecretHex("a") == HashSecretHex("b") {
		t.Fatal("distinct inputs must not collide")
	}
	if got := Fingerprint("secret"); len(got) != 8 {
		t.Fatalf("expected 8 char fingerprint, got %q", got)
	}
	if Fingerprint("") != "" {
		t.Fatal("empty secret must have empty fingerprint")
	}
}

func TestRecordIDsSortByCreation(t *testing.T) {
	a := NewRecordID()
	b := NewRecordID()
	if a == b {
		t.Fatal("record ids must be unique")
	}
	if len(a) != 26 {
		t.Fatalf("expected ulid length 26, got %d", len(a))
	}
}

func FuzzCheckSecret(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	if raw, err := NewRefreshSecret(); err == nil {
		f.Add(raw)
	}
	f.Fuzz(func(t *testing.T, input string) {
		if err := CheckSecret(input); err != nil {
			return
		}
		if HashSecretHex(input) == "" {
			t.Fatal("valid secret must hash")
		}
	})
}
