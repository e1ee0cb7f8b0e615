package auth

import (
	"testing"
	"time"
)

func TestIssueParseRoundTrip(t *testing.T) {
	pair, err := Issue("S123", RoleStudent, "campusmark", "test-key", 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(pair.AccessToken, "test-key", "campusmark")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "S123" {
		t.Errorf("subject = %q, want S123", claims.Subject)
	}
	if claims.Role != RoleStudent {
		t.Errorf("role = %q, want %q", claims.Role, RoleStudent)
	}
}

func TestParseRejectsWrongKey(t *testing.T) {
	pair, err := Issue("S123", RoleStudent, "campusmark", "key-a", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "key-b", "campusmark"); err == nil {
		t.Error("expected rejection with the wrong signing key")
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	pair, err := Issue("S123", RoleAdmin, "someone-else", "test-key", time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "test-key", "campusmark"); err == nil {
		t.Error("expected issuer mismatch rejection")
	}
}

func TestParseRejectsExpired(t *testing.T) {
	pair, err := Issue("S123", RoleStudent, "campusmark", "test-key", -time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(pair.AccessToken, "test-key", "campusmark"); err == nil {
		t.Error("expected expired token rejection")
	}
}
