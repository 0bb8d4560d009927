package auth

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session holds the bearer token the gateway presents to the HR backend.
// Ready is closed the first time a token is set; it never reopens.
type Session struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time // zero = no known expiry
	ready     chan struct{}
	readyOnce sync.Once
	now       func() time.Time
}

// NewSession creates an unauthenticated session
func NewSession() *Session {
	return &Session{
		ready: make(chan struct{}),
		now:   time.Now,
	}
}

// SetToken stores a bearer token. JWT tokens have their exp claim read
// without verification (the backend verifies them); opaque tokens are kept
// with no expiry.
func (s *Session) SetToken(token string) {
	var expiresAt time.Time
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	s.SetTokenWithExpiry(token, expiresAt)
}

// SetTokenWithExpiry stores a bearer token with an explicit expiry
func (s *Session) SetTokenWithExpiry(token string, expiresAt time.Time) {
	if token == "" {
		return
	}
	s.mu.Lock()
	s.token = token
	s.expiresAt = expiresAt
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })
}

// Clear drops the token; subsequent calls fail as unauthenticated
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.expiresAt = time.Time{}
}

// Token returns the current token if present and unexpired
func (s *Session) Token() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", false
	}
	if !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt) {
		return "", false
	}
	return s.token, true
}

// Authenticated reports whether Token would succeed
func (s *Session) Authenticated() bool {
	_, ok := s.Token()
	return ok
}

// ExpiresAt returns the token expiry, zero when unknown
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Ready returns a channel closed once the session has been authenticated
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until the session is authenticated or ctx is done
func (s *Session) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
