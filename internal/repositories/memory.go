package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/readmodel"
)

// MemoryStore keeps users, videos and subscriptions in process memory. It
// satisfies UserRepository and readmodel.Source and backs local development
// and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]models.User
	videos        map[string]models.Video
	subscriptions map[string]models.Subscription
	now           func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]models.User),
		videos:        make(map[string]models.Video),
		subscriptions: make(map[string]models.Subscription),
		now:           time.Now,
	}
}

func cloneUser(u models.User) models.User {
	u.WatchHistory = append([]string{}, u.WatchHistory...)
	return u
}

// Create persists a new user; usernames are unique.
func (s *MemoryStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return ErrConflict
	}
	for _, existing := range s.users {
		if existing.Username == user.Username {
			return ErrConflict
		}
	}
	s.users[user.ID] = cloneUser(user)
	return nil
}

// FindByID fetches a user by identifier.
func (s *MemoryStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return cloneUser(user), nil
}

// FindByUsernameOrEmail returns the oldest user matching either identifier.
func (s *MemoryStore) FindByUsernameOrEmail(_ context.Context, username, email string) (models.User, error) {
	if username == "" && email == "" {
		return models.User{}, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		found models.User
		ok    bool
	)
	for _, u := range s.users {
		if (username != "" && u.Username == username) || (email != "" && u.Email == email) {
			if !ok || u.CreatedAt.Before(found.CreatedAt) {
				found, ok = u, true
			}
		}
	}
	if !ok {
		return models.User{}, ErrNotFound
	}
	return cloneUser(found), nil
}

func (s *MemoryStore) update(userID string, mutate func(*models.User)) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return models.User{}, ErrNotFound
	}
	mutate(&user)
	user.UpdatedAt = s.now().UTC()
	s.users[userID] = user
	return cloneUser(user), nil
}

// SetRefreshToken stores or clears the user's refresh token.
func (s *MemoryStore) SetRefreshToken(_ context.Context, userID, token string) error {
	_, err := s.update(userID, func(u *models.User) { u.RefreshToken = token })
	return err
}

// UpdatePassword replaces the stored password hash.
func (s *MemoryStore) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	_, err := s.update(userID, func(u *models.User) { u.Password = passwordHash })
	return err
}

// UpdateAccountDetails sets the full name and email.
func (s *MemoryStore) UpdateAccountDetails(_ context.Context, userID, fullName, email string) (models.User, error) {
	return s.update(userID, func(u *models.User) {
		u.FullName = fullName
		u.Email = email
	})
}

// UpdateAvatar records a new avatar.
func (s *MemoryStore) UpdateAvatar(_ context.Context, userID, url, publicID string) (models.User, error) {
	return s.update(userID, func(u *models.User) {
		u.Avatar = url
		u.AvatarPublicID = publicID
	})
}

// UpdateCoverImage records a new cover image.
func (s *MemoryStore) UpdateCoverImage(_ context.Context, userID, url, publicID string) (models.User, error) {
	return s.update(userID, func(u *models.User) {
		u.CoverImage = url
		u.CoverImagePublicID = publicID
	})
}

// PutVideo inserts or replaces a video.
func (s *MemoryStore) PutVideo(video models.Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[video.ID] = video
}

// PutSubscription inserts or replaces a subscription edge.
func (s *MemoryStore) PutSubscription(sub models.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.ID] = sub
}

// AppendWatchHistory appends videoID to the user's watch history.
func (s *MemoryStore) AppendWatchHistory(userID, videoID string) error {
	_, err := s.update(userID, func(u *models.User) { u.WatchHistory = append(u.WatchHistory, videoID) })
	return err
}

// Find implements readmodel.Source.
func (s *MemoryStore) Find(_ context.Context, collection, field string, values []string) ([]readmodel.Document, error) {
	wanted := make(map[string]struct{}, len(values))
	for _, v := range values {
		wanted[v] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []readmodel.Document
	switch collection {
	case readmodel.CollectionUsers:
		for _, u := range s.users {
			all = append(all, memoryUserDocument(u))
		}
	case readmodel.CollectionVideos:
		for _, v := range s.videos {
			all = append(all, memoryVideoDocument(v))
		}
	case readmodel.CollectionSubscriptions:
		for _, sub := range s.subscriptions {
			all = append(all, memorySubscriptionDocument(sub))
		}
	default:
		return nil, fmt.Errorf("unknown collection %q", collection)
	}

	var out []readmodel.Document
	for _, doc := range all {
		if v, ok := doc[field].(string); ok {
			if _, hit := wanted[v]; hit {
				out = append(out, doc)
			}
		}
	}
	return out, nil
}

func memoryUserDocument(u models.User) readmodel.Document {
	return readmodel.Document{
		readmodel.IDField: u.ID,
		"username":        u.Username,
		"email":           u.Email,
		"fullName":        u.FullName,
		"avatar":          u.Avatar,
		"coverImage":      u.CoverImage,
		"watchHistory":    append([]string{}, u.WatchHistory...),
		"createdAt":       u.CreatedAt,
		"updatedAt":       u.UpdatedAt,
	}
}

func memoryVideoDocument(v models.Video) readmodel.Document {
	return readmodel.Document{
		readmodel.IDField: v.ID,
		"videoFile":       v.VideoFile,
		"thumbnail":       v.Thumbnail,
		"title":           v.Title,
		"description":     v.Description,
		"duration":        v.Duration,
		"views":           v.Views,
		"isPublished":     v.IsPublished,
		"owner":           v.OwnerID,
		"createdAt":       v.CreatedAt,
		"updatedAt":       v.UpdatedAt,
	}
}

func memorySubscriptionDocument(sub models.Subscription) readmodel.Document {
	return readmodel.Document{
		readmodel.IDField: sub.ID,
		"subscriber":      sub.SubscriberID,
		"channel":         sub.ChannelID,
		"createdAt":       sub.CreatedAt,
		"updatedAt":       sub.UpdatedAt,
	}
}

var _ UserRepository = (*MemoryStore)(nil)
var _ readmodel.Source = (*MemoryStore)(nil)
