package auth

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	issuer := NewIssuer([]byte("test-secret"), time.Hour)

	token, err := issuer.Issue("u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	userID, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if userID != "u1" {
		t.Errorf("expected user u1, got %q", userID)
	}
}

func TestVerifyRejectsForgedToken(t *testing.T) {
	issuer := NewIssuer([]byte("test-secret"), time.Hour)
	other := NewIssuer([]byte("other-secret"), time.Hour)

	token, err := other.Issue("u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issuer := NewIssuer([]byte("test-secret"), -time.Minute)

	token, err := issuer.Issue("u1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	if err := SaveSession(path, &Session{UserID: "u1", Token: "tok"}); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	s, err := LoadSession(path)
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if !s.Valid() || s.UserID != "u1" || s.Token != "tok" {
		t.Errorf("session not round-tripped: %+v", s)
	}

	if err := ClearSession(path); err != nil {
		t.Fatalf("ClearSession failed: %v", err)
	}

	s, err = LoadSession(path)
	if err != nil {
		t.Fatalf("LoadSession after clear failed: %v", err)
	}
	if s.Valid() {
		t.Error("expected guest mode after clear")
	}

	// Clearing twice is fine.
	if err := ClearSession(path); err != nil {
		t.Errorf("second ClearSession failed: %v", err)
	}
}
