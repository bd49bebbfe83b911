package services

import (
	"context"
	"errors"
	"sync"

	"production-dashboard/models"
	"production-dashboard/utils"
)

var (
	ErrTokenUserMismatch = errors.New("token belongs to another user")
	ErrTokenUnverified   = errors.New("token signature cannot be verified without JWT_SECRET")
	ErrTokenNotNewer     = errors.New("token does not outlive the current one")
)

// TokenSource holds the session's current access token. The realtime
// channel and the API client ask it for a token on every attempt, so a token
// pushed by the browser is used from the next request or reconnect on.
type TokenSource struct {
	secret string

	mu     sync.RWMutex
	token  string
	claims *utils.Claims
	user   models.User
}

func NewTokenSource(token, secret string) (*TokenSource, error) {
	claims, err := utils.ValidateToken(token, secret)
	if err != nil {
		return nil, err
	}
	user, err := claims.User()
	if err != nil {
		return nil, err
	}
	return &TokenSource{secret: secret, token: token, claims: claims, user: user}, nil
}

func (s *TokenSource) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if exp, ok := s.claims.Expiry(); ok && !exp.After(timeNow()) {
		return "", utils.ErrTokenExpired
	}
	return s.token, nil
}

func (s *TokenSource) User() models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Update replaces the token if its signature verifies, it belongs to the
// same user and it expires later than the current one. Without a signing
// secret no token can be verified, so the session keeps its first token and
// any other token is rejected.
func (s *TokenSource) Update(token string) error {
	s.mu.RLock()
	same := token == s.token
	s.mu.RUnlock()
	if same {
		return nil
	}
	if s.secret == "" {
		return ErrTokenUnverified
	}

	claims, err := utils.ValidateToken(token, s.secret)
	if err != nil {
		return err
	}
	user, err := claims.User()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID != s.user.ID {
		return ErrTokenUserMismatch
	}
	newExp, newOK := claims.Expiry()
	oldExp, oldOK := s.claims.Expiry()
	if oldOK && newOK && !newExp.After(oldExp) {
		return ErrTokenNotNewer
	}
	s.token = token
	s.claims = claims
	s.user = user
	return nil
}
