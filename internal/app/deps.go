package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vidtube/backend/internal/accounts"
	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/config"
	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/handlers"
	"github.com/vidtube/backend/internal/logging"
	"github.com/vidtube/backend/internal/media"
	"github.com/vidtube/backend/internal/middleware"
	"github.com/vidtube/backend/internal/readmodel"
	"github.com/vidtube/backend/internal/repositories"
)

type cleanupFunc func(ctx context.Context) error

// store bundles the persistence chosen by the configured driver.
type store struct {
	users   repositories.UserRepository
	source  readmodel.Source
	health  handlers.HealthChecker
	cleanup cleanupFunc
}

func openStore(ctx context.Context, cfg config.Config) (store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return store{}, err
		}
		return store{
			users:  repositories.NewPostgresUserRepository(pool),
			source: repositories.NewPostgresSource(pool),
			health: pool.Ping,
			cleanup: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil
	case config.StoreDriverMongo:
		client, err := repositories.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return store{}, err
		}
		database := client.Database(cfg.MongoDatabase)
		return store{
			users:   repositories.NewMongoUserRepository(database),
			source:  repositories.NewMongoSource(database),
			health:  func(ctx context.Context) error { return client.Ping(ctx, nil) },
			cleanup: client.Disconnect,
		}, nil
	case config.StoreDriverMemory:
		mem := repositories.NewMemoryStore()
		return store{
			users:   mem,
			source:  mem,
			cleanup: func(context.Context) error { return nil },
		}, nil
	default:
		return store{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// openMedia returns the media store and, for the disk driver, the directory
// the HTTP server should expose under /media/.
func openMedia(ctx context.Context, cfg config.Config) (accounts.MediaStore, string, error) {
	switch cfg.ObjectStore.Driver {
	case config.MediaDriverS3:
		s3, err := media.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, "", err
		}
		return s3, "", nil
	case config.MediaDriverDisk:
		baseURL := cfg.ObjectStore.PublicBaseURL
		if strings.TrimSpace(baseURL) == "" {
			baseURL = fmt.Sprintf("http://localhost:%d/media", cfg.AppPort)
		}
		disk, err := media.NewDiskStorage(cfg.ObjectStore.Dir, baseURL, cfg.ObjectStore.KeyPrefix)
		if err != nil {
			return nil, "", err
		}
		return disk, disk.Dir(), nil
	default:
		return nil, "", fmt.Errorf("unknown media driver %q", cfg.ObjectStore.Driver)
	}
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, cfg config.Config) (handlers.Dependencies, cleanupFunc, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	files, mediaDir, err := openMedia(ctx, cfg)
	if err != nil {
		return handlers.Dependencies{}, nil, errors.Join(err, st.cleanup(ctx))
	}

	issuer := auth.NewTokenIssuer(cfg.Tokens.AccessSecret, cfg.Tokens.AccessTTL, cfg.Tokens.RefreshSecret, cfg.Tokens.RefreshTTL)
	sessions := auth.NewManager(issuer, st.users, repositories.IsNotFound)

	svc := &accounts.Service{
		Users:    st.users,
		Sessions: sessions,
		Media:    files,
		Reads:    readmodel.NewBuilder(st.source),
	}

	logging.FromContext(ctx).Info("dependencies ready",
		"store", cfg.StoreDriver,
		"media", cfg.ObjectStore.Driver,
	)

	return handlers.Dependencies{
		Accounts:       svc,
		Authenticator:  sessions,
		Limiter:        middleware.NewRateLimiter(cfg.RateLimit),
		Cookies:        handlers.CookiePolicy{Secure: cfg.Cookies.Secure, Domain: cfg.Cookies.Domain},
		Health:         st.health,
		CORSOrigins:    cfg.CORSOrigins,
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MediaDir:       mediaDir,
	}, st.cleanup, nil
}
