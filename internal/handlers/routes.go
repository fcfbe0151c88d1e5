package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/vidtube/backend/internal/apierror"
)

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Accounts       AccountService
	Authenticator  Authenticator
	Limiter        RateLimiter
	Cookies        CookiePolicy
	Health         HealthChecker
	CORSOrigins    []string
	UploadDir      string
	MaxUploadBytes int64
	// MediaDir, when set, is served under /media/ for the disk media driver.
	MediaDir string
}

// NewRouter wires the HTTP handlers into a chi router.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   deps.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           int((5 * time.Minute).Seconds()),
		}))
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(req.Context(), w, apierror.NotFound("Route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondJSON(req.Context(), w, http.StatusMethodNotAllowed, errorEnvelope{
			StatusCode: http.StatusMethodNotAllowed,
			Message:    "Method not allowed",
			Errors:     []string{},
		})
	})

	health := HealthHandler{Check: deps.Health}
	r.Get("/healthz", health.Handle)

	if deps.MediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(deps.MediaDir))))
	}

	users := UserHandler{
		Accounts:       deps.Accounts,
		Cookies:        deps.Cookies,
		Limiter:        deps.Limiter,
		UploadDir:      deps.UploadDir,
		MaxUploadBytes: deps.MaxUploadBytes,
	}

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Post("/register", users.Register)
		r.Post("/login", users.Login)
		r.Post("/refresh-token", users.RefreshToken)

		r.Group(func(r chi.Router) {
			r.Use(RequireUser(deps.Authenticator))

			r.Post("/logout", users.Logout)
			r.Post("/change-password", users.ChangePassword)
			r.Get("/current-user", users.CurrentUser)
			r.Patch("/update-account", users.UpdateAccount)
			r.Patch("/avatar", users.UpdateAvatar)
			r.Patch("/cover-image", users.UpdateCoverImage)
			r.Get("/c/{username}", users.ChannelProfile)
			r.Get("/history", users.WatchHistory)
		})
	})

	return r
}
