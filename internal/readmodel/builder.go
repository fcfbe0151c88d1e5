package readmodel

import (
	"context"
	"errors"
	"strings"

	"github.com/vidtube/backend/internal/models"
)

var (
	// ErrChannelNotFound indicates no user has the requested username.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrUserNotFound indicates the user whose history was requested does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// Builder answers the channel profile and watch history queries.
type Builder struct {
	source Source
}

// NewBuilder constructs a Builder reading from src.
func NewBuilder(src Source) *Builder {
	return &Builder{source: src}
}

// ChannelProfilePipeline describes the channel profile read for username as seen by viewerID.
func ChannelProfilePipeline(viewerID, username string) Pipeline {
	return Pipeline{
		Collection: CollectionUsers,
		Stages: []Stage{
			Match{Field: "username", Value: strings.ToLower(strings.TrimSpace(username))},
			Lookup{From: CollectionSubscriptions, LocalField: IDField, ForeignField: "channel", As: "subscribers"},
			Lookup{From: CollectionSubscriptions, LocalField: IDField, ForeignField: "subscriber", As: "subscribedTo"},
			AddFields{Fields: []Field{
				{Name: "subscriberCount", Expr: Size{Field: "subscribers"}},
				{Name: "channelsSubscribedToCount", Expr: Size{Field: "subscribedTo"}},
				{Name: "isSubscribed", Expr: Contains{Field: "subscribers", Key: "subscriber", Value: viewerID}},
			}},
			Project{Fields: []string{
				"fullName", "username", "subscriberCount", "channelsSubscribedToCount",
				"isSubscribed", "avatar", "coverImage",
			}},
		},
	}
}

// WatchHistoryPipeline describes the watch history read for userID, with each
// video's owner reduced to a small embedded object.
func WatchHistoryPipeline(userID string) Pipeline {
	return Pipeline{
		Collection: CollectionUsers,
		Stages: []Stage{
			Match{Field: IDField, Value: userID},
			Lookup{
				From:         CollectionVideos,
				LocalField:   "watchHistory",
				ForeignField: IDField,
				As:           "watchHistory",
				Pipeline: []Stage{
					Lookup{
						From:         CollectionUsers,
						LocalField:   "owner",
						ForeignField: IDField,
						As:           "owner",
						Pipeline: []Stage{
							Project{Fields: []string{"fullName", "username", "avatar"}},
						},
					},
					AddFields{Fields: []Field{
						{Name: "owner", Expr: First{Field: "owner"}},
					}},
				},
			},
		},
	}
}

// ChannelProfile returns the channel named username. viewerID may be empty.
func (b *Builder) ChannelProfile(ctx context.Context, viewerID, username string) (models.ChannelProfile, error) {
	docs, err := Execute(ctx, b.source, ChannelProfilePipeline(viewerID, username))
	if err != nil {
		return models.ChannelProfile{}, err
	}
	if len(docs) == 0 {
		return models.ChannelProfile{}, ErrChannelNotFound
	}

	doc := docs[0]
	return models.ChannelProfile{
		ID:                        doc.Text(IDField),
		FullName:                  doc.Text("fullName"),
		Username:                  doc.Text("username"),
		SubscriberCount:           int(doc.Int("subscriberCount")),
		ChannelsSubscribedToCount: int(doc.Int("channelsSubscribedToCount")),
		IsSubscribed:              doc.Bool("isSubscribed"),
		Avatar:                    doc.Text("avatar"),
		CoverImage:                doc.Text("coverImage"),
	}, nil
}

// WatchHistory returns the user's watched videos in the stored order.
func (b *Builder) WatchHistory(ctx context.Context, userID string) ([]models.WatchedVideo, error) {
	docs, err := Execute(ctx, b.source, WatchHistoryPipeline(userID))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrUserNotFound
	}

	videos, _ := docs[0]["watchHistory"].([]Document)
	history := make([]models.WatchedVideo, 0, len(videos))
	for _, v := range videos {
		entry := models.WatchedVideo{
			ID:          v.Text(IDField),
			VideoFile:   v.Text("videoFile"),
			Thumbnail:   v.Text("thumbnail"),
			Title:       v.Text("title"),
			Description: v.Text("description"),
			Duration:    v.Float("duration"),
			Views:       v.Int("views"),
			IsPublished: v.Bool("isPublished"),
			CreatedAt:   v.Time("createdAt"),
			UpdatedAt:   v.Time("updatedAt"),
		}
		if owner, ok := v.Doc("owner"); ok {
			entry.Owner = &models.VideoOwner{
				ID:       owner.Text(IDField),
				FullName: owner.Text("fullName"),
				Username: owner.Text("username"),
				Avatar:   owner.Text("avatar"),
			}
		}
		history = append(history, entry)
	}
	return history, nil
}
