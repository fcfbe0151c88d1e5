package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/vidtube/backend/internal/accounts"
	"github.com/vidtube/backend/internal/apierror"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/media"
	"github.com/vidtube/backend/internal/models"
)

const defaultMaxUploadBytes = 10 << 20

// UserHandler implements the /api/v1/users endpoints.
type UserHandler struct {
	Accounts       AccountService
	Cookies        CookiePolicy
	Limiter        RateLimiter
	UploadDir      string
	MaxUploadBytes int64
}

type loginResponse struct {
	User         models.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Register handles POST /register (multipart form).
func (h UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.throttled(w, r, scopeRegister) {
		return
	}

	if err := h.parseMultipart(w, r); err != nil {
		respondError(ctx, w, err)
		return
	}

	uploads := newUploadSet(h.UploadDir)
	defer uploads.cleanup(r)

	avatarPath, err := uploads.save(r, "avatar")
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	coverPath, err := uploads.save(r, "coverImage")
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	user, err := h.Accounts.Register(ctx, accounts.RegisterRequest{
		FullName:       r.FormValue("fullName"),
		Username:       r.FormValue("username"),
		Email:          r.FormValue("email"),
		Password:       r.FormValue("password"),
		AvatarPath:     avatarPath,
		CoverImagePath: coverPath,
	})
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondSuccess(ctx, w, http.StatusCreated, user, "User registered successfully.")
}

// Login handles POST /login.
func (h UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.throttled(w, r, scopeLogin) {
		return
	}

	var req accounts.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	result, err := h.Accounts.Login(ctx, req)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	h.Cookies.setSession(w, result.Tokens)
	respondSuccess(ctx, w, http.StatusOK, loginResponse{
		User:         result.User,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
	}, "User logged in successfully.")
}

// Logout handles POST /logout.
func (h UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)

	if err := h.Accounts.Logout(ctx, user.ID); err != nil {
		respondError(ctx, w, err)
		return
	}

	h.Cookies.clearSession(w)
	respondSuccess(ctx, w, http.StatusOK, nil, "User logged out successfully.")
}

// RefreshToken handles POST /refresh-token. The token is read from the
// refreshToken cookie, falling back to the JSON body.
func (h UserHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.throttled(w, r, scopeRefresh) {
		return
	}

	var token string
	if c, err := r.Cookie(refreshCookieName); err == nil {
		token = c.Value
	}
	if token == "" {
		var req refreshRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(ctx, w, err)
			return
		}
		token = req.RefreshToken
	}

	tokens, err := h.Accounts.Refresh(ctx, token)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	h.Cookies.setSession(w, tokens)
	respondSuccess(ctx, w, http.StatusOK, tokens, "Access token refreshed.")
}

// ChangePassword handles POST /change-password.
func (h UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)

	var req accounts.ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Accounts.ChangePassword(ctx, user.ID, req); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, nil, "Password changed successfully.")
}

// CurrentUser handles GET /current-user.
func (h UserHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)
	respondSuccess(ctx, w, http.StatusOK, h.Accounts.CurrentUser(user), "Current user details fetched successfully.")
}

// UpdateAccount handles PATCH /update-account.
func (h UserHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)

	var req accounts.UpdateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	updated, err := h.Accounts.UpdateAccountDetails(ctx, user.ID, req)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, updated, "Account details updated successfully.")
}

// UpdateAvatar handles PATCH /avatar (multipart field "avatar").
func (h UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, "avatar", h.Accounts.UpdateAvatar, "Avatar updated successfully.")
}

// UpdateCoverImage handles PATCH /cover-image (multipart field "coverImage").
func (h UserHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.replaceImage(w, r, "coverImage", h.Accounts.UpdateCoverImage, "Cover image updated successfully.")
}

type imageUpdater func(ctx context.Context, user models.User, localPath string) (models.User, error)

func (h UserHandler) replaceImage(w http.ResponseWriter, r *http.Request, field string, update imageUpdater, message string) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)

	if err := h.parseMultipart(w, r); err != nil {
		respondError(ctx, w, err)
		return
	}

	uploads := newUploadSet(h.UploadDir)
	defer uploads.cleanup(r)

	path, err := uploads.save(r, field)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	updated, err := update(ctx, user, path)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, updated, message)
}

// ChannelProfile handles GET /c/{username}.
func (h UserHandler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, _ := UserFromContext(ctx)

	profile, err := h.Accounts.ChannelProfile(ctx, viewer.ID, chi.URLParam(r, "username"))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, profile, "User channel fetched successfully.")
}

// WatchHistory handles GET /history.
func (h UserHandler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := UserFromContext(ctx)

	history, err := h.Accounts.WatchHistory(ctx, user.ID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, history, "Watch history fetched successfully.")
}

func (h UserHandler) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apierror.Validation("Uploaded file is too large")
		}
		return apierror.Validation("Invalid multipart form")
	}
	return nil
}

// decodeJSON reads a JSON object from the body. An empty body decodes as an
// empty object so field validation reports what is missing.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apierror.Validation("Invalid request body")
	}
	return nil
}

// uploadSet tracks temp files written for one request.
type uploadSet struct {
	dir   string
	paths []string
}

func newUploadSet(dir string) *uploadSet {
	if dir == "" {
		dir = os.TempDir()
	}
	return &uploadSet{dir: dir}
}

// save writes the first file of the form field to disk. A missing field
// yields an empty path.
func (u *uploadSet) save(r *http.Request, field string) (string, error) {
	if r.MultipartForm == nil {
		return "", nil
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return "", nil
	}

	path, err := media.SaveTemp(u.dir, headers[0])
	if err != nil {
		return "", apierror.Upstream("Unable to store uploaded file", err)
	}
	u.paths = append(u.paths, path)
	return path, nil
}

func (u *uploadSet) cleanup(r *http.Request) {
	for _, path := range u.paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.FromContext(r.Context()).Warn("remove temp upload", "path", path, "error", err)
		}
	}
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
