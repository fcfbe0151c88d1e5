package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/vidtube/backend/internal/models"
)

var (
	// ErrSessionNotFound indicates the token does not resolve to an existing user.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenReused indicates a validly signed refresh token that is no
	// longer the one stored for its user: it was rotated away or revoked.
	ErrRefreshTokenReused = errors.New("refresh token expired or used")
)

// SessionStore persists the single active refresh token on each user record.
type SessionStore interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	// SetRefreshToken stores token for the user; an empty token clears it.
	SetRefreshToken(ctx context.Context, userID, token string) error
}

// Manager manages the lifecycle of issued session tokens backed by the user store.
type Manager struct {
	tokens *TokenIssuer
	store  SessionStore

	// IsNotFound reports whether a store error means the user does not exist.
	IsNotFound func(error) bool
}

// NewManager constructs a Manager that signs with tokens and persists through store.
func NewManager(tokens *TokenIssuer, store SessionStore, isNotFound func(error) bool) *Manager {
	if tokens == nil || store == nil {
		panic("auth: token issuer and session store must not be nil")
	}
	if isNotFound == nil {
		isNotFound = func(error) bool { return false }
	}
	return &Manager{tokens: tokens, store: store, IsNotFound: isNotFound}
}

// Issue creates a new pair of access and refresh tokens for the user and makes
// the refresh token the only one accepted for that user.
func (m *Manager) Issue(ctx context.Context, user models.User) (models.SessionTokens, error) {
	if user.ID == "" {
		return models.SessionTokens{}, errors.New("user id must be provided")
	}

	accessToken, accessExpires, err := m.tokens.IssueAccess(user)
	if err != nil {
		return models.SessionTokens{}, err
	}

	refreshToken, refreshExpires, err := m.tokens.IssueRefresh(user.ID)
	if err != nil {
		return models.SessionTokens{}, err
	}

	if err := m.store.SetRefreshToken(ctx, user.ID, refreshToken); err != nil {
		return models.SessionTokens{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return models.SessionTokens{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessExpires,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshExpires,
	}, nil
}

// Refresh exchanges a refresh token for a new session token pair. The presented
// token must verify and must equal the token currently stored for its user.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	if refreshToken == "" {
		return models.SessionTokens{}, ErrSessionNotFound
	}

	claims, err := m.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return models.SessionTokens{}, err
	}

	user, err := m.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if m.IsNotFound(err) {
			return models.SessionTokens{}, ErrSessionNotFound
		}
		return models.SessionTokens{}, fmt.Errorf("load session user: %w", err)
	}

	if user.RefreshToken == "" || user.RefreshToken != refreshToken {
		return models.SessionTokens{}, ErrRefreshTokenReused
	}

	return m.Issue(ctx, user)
}

// Revoke clears the stored refresh token for the user. Revoking twice is a no-op.
func (m *Manager) Revoke(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	return m.store.SetRefreshToken(ctx, userID, "")
}

// Authenticate verifies an access token and resolves the user it names.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (models.User, error) {
	if accessToken == "" {
		return models.User{}, ErrTokenInvalid
	}

	claims, err := m.tokens.ParseAccess(accessToken)
	if err != nil {
		return models.User{}, err
	}

	user, err := m.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if m.IsNotFound(err) {
			return models.User{}, ErrSessionNotFound
		}
		return models.User{}, fmt.Errorf("load authenticated user: %w", err)
	}
	return user, nil
}
