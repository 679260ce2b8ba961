package jwt

import (
	"errors"
	"testing"
	"time"
)

// FuzzParse feeds arbitrary strings to the verifier. Nothing may panic and
// every rejection must be the generic ErrTokenInvalid.
func FuzzParse(f *testing.F) {
	mgr, err := NewManager(Config{Secret: testSecret, AccessTTL: 5 * time.Minute})
	if err != nil {
		f.Fatal(err)
	}
	if token, _, err := mgr.IssueAccess("fuzz-user"); err == nil {
		f.Add(token)
	}
	f.Add("")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ4In0.")
	f.Add("not-a-jwt")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := mgr.Parse(input)
		if err != nil {
			if !errors.Is(err, ErrTokenInvalid) {
				t.Fatalf("unexpected error class: %v", err)
			}
			return
		}
		if claims.Subject == "" || claims.ID == "" {
			t.Fatal("accepted token without subject or jti")
		}
	})
}
