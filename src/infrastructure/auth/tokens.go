package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrInvalidAPIKey       = errors.New("invalid api key")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

const (
	DefaultAccessTTL = 15 * time.Minute

	// Refresh tokens outlive access tokens by enough for a long dashboard
	// session; a new pair is minted on every refresh.
	DefaultRefreshTTL = 12 * time.Hour
)

// TokenPair is what clients hold: a short-lived access token presented as a
// bearer credential, and a refresh token used once the access token expires.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type tokenRecord struct {
	expiresAt time.Time
}

// Store issues and validates opaque API tokens in memory. Tokens do not
// survive a server restart; clients re-authenticate with their api key.
type Store struct {
	mu         sync.Mutex
	apiKeys    map[string]struct{}
	access     map[string]tokenRecord
	refresh    map[string]tokenRecord
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewStore(apiKeys []string) *Store {
	keys := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}

	return &Store{
		apiKeys:    keys,
		access:     make(map[string]tokenRecord),
		refresh:    make(map[string]tokenRecord),
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
	}
}

// Enabled reports whether any api key is configured. With no keys the API
// runs open, which is the local development default.
func (s *Store) Enabled() bool {
	return len(s.apiKeys) > 0
}

// Issue exchanges an api key for a fresh token pair.
func (s *Store) Issue(apiKey string) (*TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.apiKeys[apiKey]; !ok {
		return nil, ErrInvalidAPIKey
	}

	return s.mint()
}

// Refresh exchanges a valid refresh token for a fresh pair. The presented
// refresh token is consumed whether or not it was still valid.
func (s *Store) Refresh(refreshToken string) (*TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.refresh[refreshToken]
	delete(s.refresh, refreshToken)
	if !ok || time.Now().After(rec.expiresAt) {
		return nil, ErrInvalidRefreshToken
	}

	return s.mint()
}

// Validate checks an access token.
func (s *Store) Validate(accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.access[accessToken]
	if !ok {
		return ErrInvalidToken
	}
	if time.Now().After(rec.expiresAt) {
		delete(s.access, accessToken)
		return ErrInvalidToken
	}

	return nil
}

func (s *Store) mint() (*TokenPair, error) {
	access, err := randomToken()
	if err != nil {
		return nil, err
	}
	refreshTok, err := randomToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expiresAt := now.Add(s.accessTTL)
	s.access[access] = tokenRecord{expiresAt: expiresAt}
	s.refresh[refreshTok] = tokenRecord{expiresAt: now.Add(s.refreshTTL)}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refreshTok,
		ExpiresAt:    expiresAt,
	}, nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
