package auth

import (
	"testing"
	"time"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	ts := NewTokenService([]byte("secret"), time.Minute)

	token, _, err := ts.Issue("alice", []string{"alice", "staff"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := ts.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Username() != "alice" {
		t.Fatalf("Username() = %q, want alice", claims.Username())
	}
	if len(claims.Groups) != 2 {
		t.Fatalf("Groups = %v", claims.Groups)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	ts := NewTokenService([]byte("secret"), time.Minute)
	other := NewTokenService([]byte("different"), time.Minute)

	token, _, _ := ts.Issue("bob", nil)
	if _, err := other.Verify(token); err == nil {
		t.Fatal("expected verification to fail with a different secret")
	}
}
