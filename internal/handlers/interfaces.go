package handlers

import (
	"context"

	"github.com/vidtube/backend/internal/accounts"
	"github.com/vidtube/backend/internal/models"
)

// AccountService captures the account use cases the HTTP handlers expose.
type AccountService interface {
	Register(ctx context.Context, req accounts.RegisterRequest) (models.User, error)
	Login(ctx context.Context, req accounts.LoginRequest) (accounts.LoginResult, error)
	Logout(ctx context.Context, userID string) error
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	ChangePassword(ctx context.Context, userID string, req accounts.ChangePasswordRequest) error
	CurrentUser(user models.User) models.User
	UpdateAccountDetails(ctx context.Context, userID string, req accounts.UpdateAccountRequest) (models.User, error)
	UpdateAvatar(ctx context.Context, user models.User, localPath string) (models.User, error)
	UpdateCoverImage(ctx context.Context, user models.User, localPath string) (models.User, error)
	ChannelProfile(ctx context.Context, viewerID, username string) (models.ChannelProfile, error)
	WatchHistory(ctx context.Context, userID string) ([]models.WatchedVideo, error)
}

// Authenticator resolves an access token to the user it was issued for.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (models.User, error)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker func(ctx context.Context) error
