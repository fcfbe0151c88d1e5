package repositories

import (
	"context"

	"github.com/vidtube/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	// FindByUsernameOrEmail matches either field. Empty arguments are ignored;
	// when both are empty it returns ErrNotFound.
	FindByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error)
	// SetRefreshToken stores the user's refresh token. An empty token clears it.
	SetRefreshToken(ctx context.Context, userID, token string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateAccountDetails(ctx context.Context, userID, fullName, email string) (models.User, error)
	UpdateAvatar(ctx context.Context, userID, url, publicID string) (models.User, error)
	UpdateCoverImage(ctx context.Context, userID, url, publicID string) (models.User, error)
}
