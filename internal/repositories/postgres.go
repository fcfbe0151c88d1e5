package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vidtube/backend/internal/db"
	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/readmodel"
)

const userColumns = `id, username, email, full_name, avatar, avatar_public_id, cover_image,
        cover_image_public_id, password_hash, COALESCE(refresh_token, ''), watch_history, created_at, updated_at`

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool, now: time.Now}
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName,
		&user.Avatar, &user.AvatarPublicID, &user.CoverImage, &user.CoverImagePublicID,
		&user.Password, &user.RefreshToken, &user.WatchHistory,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return models.User{}, err
	}
	if user.WatchHistory == nil {
		user.WatchHistory = []string{}
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	watchHistory := user.WatchHistory
	if watchHistory == nil {
		watchHistory = []string{}
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, username, email, full_name, avatar, avatar_public_id, cover_image,
            cover_image_public_id, password_hash, watch_history, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `, user.ID, user.Username, user.Email, user.FullName, user.Avatar, user.AvatarPublicID,
		user.CoverImage, user.CoverImagePublicID, user.Password, watchHistory,
		user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByID fetches a user by primary key.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by id: %w", err)
	}
	return user, nil
}

// FindByUsernameOrEmail fetches the first user matching either identifier.
func (r *PostgresUserRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error) {
	if username == "" && email == "" {
		return models.User{}, ErrNotFound
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT `+userColumns+`
        FROM users
        WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
        ORDER BY created_at
        LIMIT 1
    `, username, email)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by username or email: %w", err)
	}
	return user, nil
}

// SetRefreshToken stores token on the user, or clears it when token is empty.
func (r *PostgresUserRepository) SetRefreshToken(ctx context.Context, userID, token string) error {
	var value any
	if token != "" {
		value = token
	}
	return r.exec(ctx, "update refresh token", `
        UPDATE users SET refresh_token = $2, updated_at = $3 WHERE id = $1
    `, userID, value, r.now().UTC())
}

// UpdatePassword replaces the stored password hash.
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return r.exec(ctx, "update password", `
        UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1
    `, userID, passwordHash, r.now().UTC())
}

// UpdateAccountDetails sets the full name and email and returns the updated user.
func (r *PostgresUserRepository) UpdateAccountDetails(ctx context.Context, userID, fullName, email string) (models.User, error) {
	return r.updateReturning(ctx, "update account details", `
        UPDATE users SET full_name = $2, email = $3, updated_at = $4 WHERE id = $1
        RETURNING `+userColumns, userID, fullName, email, r.now().UTC())
}

// UpdateAvatar records a new avatar URL and its storage identifier.
func (r *PostgresUserRepository) UpdateAvatar(ctx context.Context, userID, url, publicID string) (models.User, error) {
	return r.updateReturning(ctx, "update avatar", `
        UPDATE users SET avatar = $2, avatar_public_id = $3, updated_at = $4 WHERE id = $1
        RETURNING `+userColumns, userID, url, publicID, r.now().UTC())
}

// UpdateCoverImage records a new cover image URL and its storage identifier.
func (r *PostgresUserRepository) UpdateCoverImage(ctx context.Context, userID, url, publicID string) (models.User, error) {
	return r.updateReturning(ctx, "update cover image", `
        UPDATE users SET cover_image = $2, cover_image_public_id = $3, updated_at = $4 WHERE id = $1
        RETURNING `+userColumns, userID, url, publicID, r.now().UTC())
}

func (r *PostgresUserRepository) exec(ctx context.Context, op, query string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresUserRepository) updateReturning(ctx context.Context, op, query string, args ...any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		if isUniqueViolation(err) {
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// sourceTable maps document field names onto the columns of one table.
type sourceTable struct {
	table   string
	columns map[string]string
}

// Secrets never leave the users table through the read model.
var sourceTables = map[string]sourceTable{
	readmodel.CollectionUsers: {table: "users", columns: map[string]string{
		readmodel.IDField: "id",
		"username":        "username",
		"email":           "email",
		"fullName":        "full_name",
		"avatar":          "avatar",
		"coverImage":      "cover_image",
		"watchHistory":    "watch_history",
		"createdAt":       "created_at",
		"updatedAt":       "updated_at",
	}},
	readmodel.CollectionVideos: {table: "videos", columns: map[string]string{
		readmodel.IDField: "id",
		"videoFile":       "video_file",
		"thumbnail":       "thumbnail",
		"title":           "title",
		"description":     "description",
		"duration":        "duration",
		"views":           "views",
		"isPublished":     "is_published",
		"owner":           "owner_id",
		"createdAt":       "created_at",
		"updatedAt":       "updated_at",
	}},
	readmodel.CollectionSubscriptions: {table: "subscriptions", columns: map[string]string{
		readmodel.IDField: "id",
		"subscriber":      "subscriber_id",
		"channel":         "channel_id",
		"createdAt":       "created_at",
		"updatedAt":       "updated_at",
	}},
}

func (t sourceTable) selectList() string {
	parts := make([]string, 0, len(t.columns))
	for field, column := range t.columns {
		parts = append(parts, fmt.Sprintf(`%s AS "%s"`, column, field))
	}
	return strings.Join(parts, ", ")
}

// PostgresSource serves read model queries from PostgreSQL tables.
type PostgresSource struct {
	pool db.Pool
}

// NewPostgresSource constructs a read model source backed by PostgreSQL.
func NewPostgresSource(pool db.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Find returns rows of collection whose field is one of values.
func (s *PostgresSource) Find(ctx context.Context, collection, field string, values []string) ([]readmodel.Document, error) {
	table, ok := sourceTables[collection]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", collection)
	}
	column, ok := table.columns[field]
	if !ok {
		return nil, fmt.Errorf("unknown field %q on %s", field, collection)
	}
	if len(values) == 0 {
		return nil, nil
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ANY($1)`, table.selectList(), table.table, column)
	rows, err := conn.Query(ctx, query, values)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table.table, err)
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", table.table, err)
	}

	docs := make([]readmodel.Document, 0, len(maps))
	for _, m := range maps {
		doc := make(readmodel.Document, len(m))
		for k, v := range m {
			doc[k] = normalizeValue(v)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case time.Time:
		return t.UTC()
	default:
		return v
	}
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ readmodel.Source = (*PostgresSource)(nil)
