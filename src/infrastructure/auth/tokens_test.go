package auth

import (
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	s := NewStore([]string{"key-a", "key-b"})

	pair, err := s.Issue("key-a")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("empty tokens issued")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Error("access and refresh tokens collide")
	}

	if err := s.Validate(pair.AccessToken); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestIssueUnknownKey(t *testing.T) {
	s := NewStore([]string{"key-a"})

	if _, err := s.Issue("nope"); err != ErrInvalidAPIKey {
		t.Fatalf("err = %v, want ErrInvalidAPIKey", err)
	}
}

func TestValidateUnknownToken(t *testing.T) {
	s := NewStore([]string{"key-a"})

	if err := s.Validate("made-up"); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestExpiredAccessToken(t *testing.T) {
	s := NewStore([]string{"key-a"})
	s.accessTTL = -time.Second

	pair, err := s.Issue("key-a")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := s.Validate(pair.AccessToken); err != ErrInvalidToken {
		t.Fatalf("err = %v, want ErrInvalidToken for expired token", err)
	}
}

func TestRefreshRotatesPair(t *testing.T) {
	s := NewStore([]string{"key-a"})

	pair, err := s.Issue("key-a")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	next, err := s.Refresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.AccessToken == pair.AccessToken {
		t.Error("refresh did not rotate the access token")
	}
	if err := s.Validate(next.AccessToken); err != nil {
		t.Errorf("Validate new token: %v", err)
	}

	// The presented refresh token is single-use.
	if _, err := s.Refresh(pair.RefreshToken); err != ErrInvalidRefreshToken {
		t.Fatalf("err = %v, want ErrInvalidRefreshToken on reuse", err)
	}
}

func TestRefreshExpired(t *testing.T) {
	s := NewStore([]string{"key-a"})
	s.refreshTTL = -time.Second

	pair, err := s.Issue("key-a")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Refresh(pair.RefreshToken); err != ErrInvalidRefreshToken {
		t.Fatalf("err = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestEnabled(t *testing.T) {
	if NewStore(nil).Enabled() {
		t.Error("store with no keys reports enabled")
	}
	if NewStore([]string{""}).Enabled() {
		t.Error("blank keys must not enable auth")
	}
	if !NewStore([]string{"k"}).Enabled() {
		t.Error("store with a key reports disabled")
	}
}
