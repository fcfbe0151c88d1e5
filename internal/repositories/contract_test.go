package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/readmodel"
)

// fixtures inserts videos and subscriptions, which the user repository never writes.
type fixtures interface {
	putVideo(t *testing.T, video models.Video)
	putSubscription(t *testing.T, sub models.Subscription)
}

func newTestUser(username, email string, created time.Time) models.User {
	return models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		FullName:     "Test " + username,
		Avatar:       "https://media.example.com/" + username + ".png",
		Password:     "password-hash",
		WatchHistory: []string{},
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func exerciseUserRepository(t *testing.T, repo UserRepository) {
	t.Helper()
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)

	alice := newTestUser("alice", "shared@example.com", base)
	if err := repo.Create(ctx, alice); err != nil {
		t.Fatalf("create user: %v", err)
	}

	dup := newTestUser("alice", "other@example.com", base.Add(time.Minute))
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}

	// Emails are not unique at the storage layer.
	bob := newTestUser("bob", "shared@example.com", base.Add(2*time.Minute))
	if err := repo.Create(ctx, bob); err != nil {
		t.Fatalf("create user with shared email: %v", err)
	}

	fetched, err := repo.FindByID(ctx, alice.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if fetched.Username != "alice" || fetched.Password != alice.Password || fetched.FullName != alice.FullName {
		t.Fatalf("unexpected user fetched: %+v", fetched)
	}
	if fetched.WatchHistory == nil || len(fetched.WatchHistory) != 0 {
		t.Fatalf("expected empty watch history, got %#v", fetched.WatchHistory)
	}

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing id, got %v", err)
	}

	byName, err := repo.FindByUsernameOrEmail(ctx, "bob", "")
	if err != nil || byName.ID != bob.ID {
		t.Fatalf("expected bob by username, got %+v (%v)", byName, err)
	}

	byEmail, err := repo.FindByUsernameOrEmail(ctx, "", "shared@example.com")
	if err != nil || byEmail.ID != alice.ID {
		t.Fatalf("expected oldest user for shared email, got %+v (%v)", byEmail, err)
	}

	if _, err := repo.FindByUsernameOrEmail(ctx, "", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty identifiers, got %v", err)
	}
	if _, err := repo.FindByUsernameOrEmail(ctx, "nobody", "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown identifiers, got %v", err)
	}

	if err := repo.SetRefreshToken(ctx, alice.ID, "refresh-1"); err != nil {
		t.Fatalf("set refresh token: %v", err)
	}
	if fetched, _ = repo.FindByID(ctx, alice.ID); fetched.RefreshToken != "refresh-1" {
		t.Fatalf("expected stored refresh token, got %q", fetched.RefreshToken)
	}
	if err := repo.SetRefreshToken(ctx, alice.ID, ""); err != nil {
		t.Fatalf("clear refresh token: %v", err)
	}
	if fetched, _ = repo.FindByID(ctx, alice.ID); fetched.RefreshToken != "" {
		t.Fatalf("expected cleared refresh token, got %q", fetched.RefreshToken)
	}
	if err := repo.SetRefreshToken(ctx, uuid.NewString(), "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound setting token on missing user, got %v", err)
	}

	if err := repo.UpdatePassword(ctx, alice.ID, "rotated-hash"); err != nil {
		t.Fatalf("update password: %v", err)
	}
	if fetched, _ = repo.FindByID(ctx, alice.ID); fetched.Password != "rotated-hash" {
		t.Fatalf("expected rotated password hash, got %q", fetched.Password)
	}

	updated, err := repo.UpdateAccountDetails(ctx, alice.ID, "Alice Renamed", "alice@example.com")
	if err != nil {
		t.Fatalf("update account details: %v", err)
	}
	if updated.FullName != "Alice Renamed" || updated.Email != "alice@example.com" {
		t.Fatalf("unexpected account details: %+v", updated)
	}
	if !updated.UpdatedAt.After(alice.UpdatedAt) {
		t.Fatalf("expected updatedAt to advance, got %v", updated.UpdatedAt)
	}
	if _, err := repo.UpdateAccountDetails(ctx, uuid.NewString(), "x", "x@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound updating missing user, got %v", err)
	}

	updated, err = repo.UpdateAvatar(ctx, alice.ID, "https://media.example.com/new.png", "images/new.png")
	if err != nil {
		t.Fatalf("update avatar: %v", err)
	}
	if updated.Avatar != "https://media.example.com/new.png" || updated.AvatarPublicID != "images/new.png" {
		t.Fatalf("unexpected avatar: %+v", updated)
	}

	updated, err = repo.UpdateCoverImage(ctx, alice.ID, "https://media.example.com/cover.png", "images/cover.png")
	if err != nil {
		t.Fatalf("update cover image: %v", err)
	}
	if updated.CoverImage != "https://media.example.com/cover.png" || updated.CoverImagePublicID != "images/cover.png" {
		t.Fatalf("unexpected cover image: %+v", updated)
	}
	if updated.Avatar != "https://media.example.com/new.png" {
		t.Fatalf("cover image update clobbered avatar: %+v", updated)
	}
}

func exerciseSource(t *testing.T, repo UserRepository, src readmodel.Source, fx fixtures) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	channel := newTestUser("channel", "channel@example.com", now)
	fan := newTestUser("fan", "fan@example.com", now)
	other := newTestUser("other", "other@example.com", now)
	for _, u := range []models.User{channel, fan, other} {
		if err := repo.Create(ctx, u); err != nil {
			t.Fatalf("create %s: %v", u.Username, err)
		}
	}

	first := models.Video{ID: uuid.NewString(), VideoFile: "v1.mp4", Thumbnail: "v1.png", Title: "First",
		Duration: 61.5, Views: 7, IsPublished: true, OwnerID: channel.ID, CreatedAt: now, UpdatedAt: now}
	second := models.Video{ID: uuid.NewString(), VideoFile: "v2.mp4", Thumbnail: "v2.png", Title: "Second",
		Duration: 12, Views: 0, IsPublished: true, OwnerID: other.ID, CreatedAt: now, UpdatedAt: now}
	fx.putVideo(t, first)
	fx.putVideo(t, second)

	fx.putSubscription(t, models.Subscription{ID: uuid.NewString(), SubscriberID: fan.ID, ChannelID: channel.ID, CreatedAt: now, UpdatedAt: now})
	fx.putSubscription(t, models.Subscription{ID: uuid.NewString(), SubscriberID: other.ID, ChannelID: channel.ID, CreatedAt: now, UpdatedAt: now})
	fx.putSubscription(t, models.Subscription{ID: uuid.NewString(), SubscriberID: channel.ID, ChannelID: other.ID, CreatedAt: now, UpdatedAt: now})

	viewer := newTestUser("viewer", "viewer@example.com", now)
	viewer.WatchHistory = []string{second.ID, first.ID}
	if err := repo.Create(ctx, viewer); err != nil {
		t.Fatalf("create viewer: %v", err)
	}

	docs, err := src.Find(ctx, readmodel.CollectionUsers, readmodel.IDField, []string{channel.ID})
	if err != nil {
		t.Fatalf("find channel: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one channel document, got %d", len(docs))
	}
	if _, leaked := docs[0]["password"]; leaked {
		t.Fatalf("password leaked into read model: %v", docs[0])
	}
	if _, leaked := docs[0]["refreshToken"]; leaked {
		t.Fatalf("refresh token leaked into read model: %v", docs[0])
	}

	builder := readmodel.NewBuilder(src)

	profile, err := builder.ChannelProfile(ctx, fan.ID, "channel")
	if err != nil {
		t.Fatalf("channel profile: %v", err)
	}
	if profile.SubscriberCount != 2 || profile.ChannelsSubscribedToCount != 1 || !profile.IsSubscribed {
		t.Fatalf("unexpected profile for subscriber: %+v", profile)
	}

	profile, err = builder.ChannelProfile(ctx, viewer.ID, "channel")
	if err != nil {
		t.Fatalf("channel profile for non-subscriber: %v", err)
	}
	if profile.IsSubscribed {
		t.Fatalf("expected non-subscriber view, got %+v", profile)
	}

	if _, err := builder.ChannelProfile(ctx, fan.ID, "missing"); !errors.Is(err, readmodel.ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}

	history, err := builder.WatchHistory(ctx, viewer.ID)
	if err != nil {
		t.Fatalf("watch history: %v", err)
	}
	if len(history) != 2 || history[0].ID != second.ID || history[1].ID != first.ID {
		t.Fatalf("unexpected watch history order: %+v", history)
	}
	if history[1].Owner == nil || history[1].Owner.Username != "channel" || history[1].Owner.FullName != channel.FullName {
		t.Fatalf("expected owner resolved on watched video, got %+v", history[1].Owner)
	}
	if history[1].Duration != 61.5 || history[1].Views != 7 || !history[1].IsPublished {
		t.Fatalf("unexpected video fields: %+v", history[1])
	}
}
