// Package accounts implements registration, sessions and profile management
// for VidTube users.
package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/apierror"
	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/media"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/readmodel"
	"github.com/vidtube/backend/internal/repositories"
)

// Client-facing messages.
const (
	msgAllFieldsRequired   = "All fields are required"
	msgPasswordTooLong     = "Password must be at most 72 bytes"
	msgUserExists          = "User with email or username already exists"
	msgAvatarRequired      = "Avatar file is required"
	msgAvatarUploadFailed  = "Error while uploading avatar"
	msgCoverUploadFailed   = "Error while uploading cover image"
	msgRegisterFailed      = "Something went wrong while registering the user"
	msgIdentifierRequired  = "username or email is required"
	msgPasswordRequired    = "password is required"
	msgUserNotFound        = "User does not exist"
	msgInvalidCredentials  = "Invalid user credentials"
	msgTokenFailure        = "Something went wrong while generating refresh and access token"
	msgUnauthorized        = "Unauthorized request"
	msgInvalidRefresh      = "Invalid refresh token"
	msgRefreshUsed         = "Refresh token is expired or used"
	msgPasswordsRequired   = "Old and new password are required"
	msgOldPasswordMismatch = "Your old password does not match"
	msgDetailsRequired     = "Full name and email are required"
	msgAvatarMissing       = "Avatar file is missing"
	msgCoverMissing        = "Cover image file is missing"
	msgUsernameMissing     = "username is missing"
	msgChannelNotFound     = "Channel does not exist"
)

// Users is the persistence the service needs.
type Users interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	UpdateAccountDetails(ctx context.Context, userID, fullName, email string) (models.User, error)
	UpdateAvatar(ctx context.Context, userID, url, publicID string) (models.User, error)
	UpdateCoverImage(ctx context.Context, userID, url, publicID string) (models.User, error)
}

// Sessions issues, rotates and revokes token pairs.
type Sessions interface {
	Issue(ctx context.Context, user models.User) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, userID string) error
}

// MediaStore uploads local files and deletes stored objects.
type MediaStore interface {
	Upload(ctx context.Context, localPath string) (media.Asset, error)
	Delete(ctx context.Context, publicID string) error
}

// ReadModels answers the aggregated profile queries.
type ReadModels interface {
	ChannelProfile(ctx context.Context, viewerID, username string) (models.ChannelProfile, error)
	WatchHistory(ctx context.Context, userID string) ([]models.WatchedVideo, error)
}

// Service implements the account use cases. Every error it returns for a
// client mistake is an *apierror.Error.
type Service struct {
	Users    Users
	Sessions Sessions
	Media    MediaStore
	Reads    ReadModels
	NowFunc  func() time.Time
}

// RegisterRequest carries the registration form. AvatarPath and CoverImagePath
// point at temp files already written to disk.
type RegisterRequest struct {
	FullName       string
	Username       string
	Email          string
	Password       string
	AvatarPath     string
	CoverImagePath string
}

// LoginRequest identifies the user by username or email.
type LoginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest carries the current and replacement password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// UpdateAccountRequest carries editable profile details.
type UpdateAccountRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// LoginResult is a sanitized user with a fresh token pair.
type LoginResult struct {
	User   models.User
	Tokens models.SessionTokens
}

func (s *Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}

// Register creates a user with an uploaded avatar and optional cover image.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (models.User, error) {
	logger := logging.FromContext(ctx)

	fullName := strings.TrimSpace(req.FullName)
	username := strings.ToLower(strings.TrimSpace(req.Username))
	email := strings.TrimSpace(req.Email)
	if fullName == "" || username == "" || email == "" || strings.TrimSpace(req.Password) == "" {
		return models.User{}, apierror.Validation(msgAllFieldsRequired)
	}
	if len(req.Password) > auth.MaxPasswordBytes {
		return models.User{}, apierror.Validation(msgPasswordTooLong)
	}

	if _, err := s.Users.FindByUsernameOrEmail(ctx, username, email); err == nil {
		return models.User{}, apierror.Conflict(msgUserExists)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return models.User{}, apierror.Upstream(msgRegisterFailed, err)
	}

	if strings.TrimSpace(req.AvatarPath) == "" {
		return models.User{}, apierror.Validation(msgAvatarRequired)
	}

	avatar, err := s.Media.Upload(ctx, req.AvatarPath)
	if err != nil || avatar.URL == "" {
		return models.User{}, apierror.Upstream(msgAvatarUploadFailed, err)
	}

	var cover media.Asset
	if strings.TrimSpace(req.CoverImagePath) != "" {
		cover, err = s.Media.Upload(ctx, req.CoverImagePath)
		if err != nil || cover.URL == "" {
			s.discard(ctx, avatar.PublicID)
			return models.User{}, apierror.Upstream(msgCoverUploadFailed, err)
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.discard(ctx, avatar.PublicID, cover.PublicID)
		return models.User{}, apierror.Upstream(msgRegisterFailed, err)
	}

	now := s.now()
	user := models.User{
		ID:                 uuid.NewString(),
		Username:           username,
		Email:              email,
		FullName:           fullName,
		Avatar:             avatar.URL,
		AvatarPublicID:     avatar.PublicID,
		CoverImage:         cover.URL,
		CoverImagePublicID: cover.PublicID,
		Password:           hash,
		WatchHistory:       []string{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.Users.Create(ctx, user); err != nil {
		s.discard(ctx, avatar.PublicID, cover.PublicID)
		if errors.Is(err, repositories.ErrConflict) {
			return models.User{}, apierror.Conflict(msgUserExists)
		}
		return models.User{}, apierror.Upstream(msgRegisterFailed, err)
	}

	created, err := s.Users.FindByID(ctx, user.ID)
	if err != nil {
		return models.User{}, apierror.Upstream(msgRegisterFailed, err)
	}

	logger.Info("user registered", "userId", created.ID, "username", created.Username)
	return created.Sanitized(), nil
}

// Login verifies credentials and starts a new session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	email := strings.TrimSpace(req.Email)
	if username == "" && email == "" {
		return LoginResult{}, apierror.Validation(msgIdentifierRequired)
	}
	if req.Password == "" {
		return LoginResult{}, apierror.Validation(msgPasswordRequired)
	}

	user, err := s.Users.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return LoginResult{}, apierror.NotFound(msgUserNotFound)
		}
		return LoginResult{}, err
	}

	if err := auth.ComparePassword(user.Password, req.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return LoginResult{}, apierror.Authentication(msgInvalidCredentials, nil)
		}
		return LoginResult{}, err
	}

	tokens, err := s.Sessions.Issue(ctx, user)
	if err != nil {
		return LoginResult{}, apierror.Upstream(msgTokenFailure, err)
	}

	logging.FromContext(ctx).Info("user logged in", "userId", user.ID)
	return LoginResult{User: user.Sanitized(), Tokens: tokens}, nil
}

// Logout revokes the user's refresh token. Logging out twice is harmless.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.Sessions.Revoke(ctx, userID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return err
	}
	return nil
}

// Refresh rotates the presented refresh token into a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return models.SessionTokens{}, apierror.Authentication(msgUnauthorized, nil)
	}

	tokens, err := s.Sessions.Refresh(ctx, refreshToken)
	switch {
	case err == nil:
		return tokens, nil
	case errors.Is(err, auth.ErrRefreshTokenReused):
		return models.SessionTokens{}, apierror.Authentication(msgRefreshUsed, err)
	case errors.Is(err, auth.ErrTokenInvalid), errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrSessionNotFound):
		return models.SessionTokens{}, apierror.Authentication(msgInvalidRefresh, err)
	default:
		return models.SessionTokens{}, apierror.Upstream(msgTokenFailure, err)
	}
}

// ChangePassword replaces the user's password after verifying the old one.
func (s *Service) ChangePassword(ctx context.Context, userID string, req ChangePasswordRequest) error {
	if req.OldPassword == "" || req.NewPassword == "" {
		return apierror.Validation(msgPasswordsRequired)
	}
	if len(req.NewPassword) > auth.MaxPasswordBytes {
		return apierror.Validation(msgPasswordTooLong)
	}

	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apierror.NotFound(msgUserNotFound)
		}
		return err
	}

	if err := auth.ComparePassword(user.Password, req.OldPassword); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return apierror.Validation(msgOldPasswordMismatch)
		}
		return err
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}
	return s.Users.UpdatePassword(ctx, userID, hash)
}

// CurrentUser returns the authenticated user without secrets.
func (s *Service) CurrentUser(user models.User) models.User {
	return user.Sanitized()
}

// UpdateAccountDetails changes the user's full name and email.
func (s *Service) UpdateAccountDetails(ctx context.Context, userID string, req UpdateAccountRequest) (models.User, error) {
	fullName := strings.TrimSpace(req.FullName)
	email := strings.TrimSpace(req.Email)
	if fullName == "" || email == "" {
		return models.User{}, apierror.Validation(msgDetailsRequired)
	}

	user, err := s.Users.UpdateAccountDetails(ctx, userID, fullName, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.User{}, apierror.NotFound(msgUserNotFound)
		}
		return models.User{}, err
	}
	return user.WithoutPassword(), nil
}

// UpdateAvatar replaces the user's avatar with the file at localPath.
func (s *Service) UpdateAvatar(ctx context.Context, user models.User, localPath string) (models.User, error) {
	return s.replaceImage(ctx, user, localPath, imageSlot{
		missing:  msgAvatarMissing,
		failed:   msgAvatarUploadFailed,
		previous: user.AvatarPublicID,
		update:   s.Users.UpdateAvatar,
	})
}

// UpdateCoverImage replaces the user's cover image with the file at localPath.
func (s *Service) UpdateCoverImage(ctx context.Context, user models.User, localPath string) (models.User, error) {
	return s.replaceImage(ctx, user, localPath, imageSlot{
		missing:  msgCoverMissing,
		failed:   msgCoverUploadFailed,
		previous: user.CoverImagePublicID,
		update:   s.Users.UpdateCoverImage,
	})
}

type imageSlot struct {
	missing  string
	failed   string
	previous string
	update   func(ctx context.Context, userID, url, publicID string) (models.User, error)
}

func (s *Service) replaceImage(ctx context.Context, user models.User, localPath string, slot imageSlot) (models.User, error) {
	if strings.TrimSpace(localPath) == "" {
		return models.User{}, apierror.Validation(slot.missing)
	}

	asset, err := s.Media.Upload(ctx, localPath)
	if err != nil || asset.URL == "" {
		return models.User{}, apierror.Upstream(slot.failed, err)
	}

	updated, err := slot.update(ctx, user.ID, asset.URL, asset.PublicID)
	if err != nil {
		s.discard(ctx, asset.PublicID)
		if errors.Is(err, repositories.ErrNotFound) {
			return models.User{}, apierror.NotFound(msgUserNotFound)
		}
		return models.User{}, err
	}

	if slot.previous != "" && slot.previous != asset.PublicID {
		s.discard(ctx, slot.previous)
	}
	return updated.Sanitized(), nil
}

// discard deletes stored objects, logging failures instead of returning them.
func (s *Service) discard(ctx context.Context, publicIDs ...string) {
	for _, id := range publicIDs {
		if id == "" {
			continue
		}
		if err := s.Media.Delete(ctx, id); err != nil {
			logging.FromContext(ctx).Warn("delete stored media", "publicId", id, "error", err)
		}
	}
}

// ChannelProfile returns the channel named username as seen by viewerID.
func (s *Service) ChannelProfile(ctx context.Context, viewerID, username string) (models.ChannelProfile, error) {
	if strings.TrimSpace(username) == "" {
		return models.ChannelProfile{}, apierror.Validation(msgUsernameMissing)
	}

	profile, err := s.Reads.ChannelProfile(ctx, viewerID, username)
	if err != nil {
		if errors.Is(err, readmodel.ErrChannelNotFound) {
			return models.ChannelProfile{}, apierror.NotFound(msgChannelNotFound)
		}
		return models.ChannelProfile{}, err
	}
	return profile, nil
}

// WatchHistory returns the user's watched videos in stored order.
func (s *Service) WatchHistory(ctx context.Context, userID string) ([]models.WatchedVideo, error) {
	history, err := s.Reads.WatchHistory(ctx, userID)
	if err != nil {
		if errors.Is(err, readmodel.ErrUserNotFound) {
			return nil, apierror.NotFound(msgUserNotFound)
		}
		return nil, err
	}
	return history, nil
}
