package readmodel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	collections map[string][]Document
	calls       map[string]int
	err         error
}

func newSliceSource() *sliceSource {
	return &sliceSource{collections: make(map[string][]Document), calls: make(map[string]int)}
}

func (s *sliceSource) add(collection string, docs ...Document) {
	s.collections[collection] = append(s.collections[collection], docs...)
}

func (s *sliceSource) Find(_ context.Context, collection, field string, values []string) ([]Document, error) {
	s.calls[collection]++
	if s.err != nil {
		return nil, s.err
	}
	wanted := make(map[string]struct{}, len(values))
	for _, v := range values {
		wanted[v] = struct{}{}
	}
	var out []Document
	for _, doc := range s.collections[collection] {
		if v, ok := doc[field].(string); ok {
			if _, hit := wanted[v]; hit {
				out = append(out, doc)
			}
		}
	}
	return out, nil
}

func seedChannel(src *sliceSource) {
	src.add(CollectionUsers,
		Document{IDField: "c", "username": "channel", "fullName": "Channel C", "avatar": "https://img/c.png", "coverImage": "https://img/c-cover.png", "email": "c@x.com"},
		Document{IDField: "a", "username": "alice", "fullName": "Alice"},
		Document{IDField: "b", "username": "bob", "fullName": "Bob"},
		Document{IDField: "z", "username": "zed", "fullName": "Zed"},
	)
	src.add(CollectionSubscriptions,
		Document{IDField: "s1", "subscriber": "a", "channel": "c"},
		Document{IDField: "s2", "subscriber": "b", "channel": "c"},
		Document{IDField: "s3", "subscriber": "c", "channel": "a"},
	)
}

func TestChannelProfileCountsAndSubscription(t *testing.T) {
	src := newSliceSource()
	seedChannel(src)
	builder := NewBuilder(src)

	profile, err := builder.ChannelProfile(context.Background(), "a", "channel")
	require.NoError(t, err)
	assert.Equal(t, "c", profile.ID)
	assert.Equal(t, "Channel C", profile.FullName)
	assert.Equal(t, 2, profile.SubscriberCount)
	assert.Equal(t, 1, profile.ChannelsSubscribedToCount)
	assert.True(t, profile.IsSubscribed)
	assert.Equal(t, "https://img/c-cover.png", profile.CoverImage)

	profile, err = builder.ChannelProfile(context.Background(), "z", "channel")
	require.NoError(t, err)
	assert.Equal(t, 2, profile.SubscriberCount)
	assert.False(t, profile.IsSubscribed)

	profile, err = builder.ChannelProfile(context.Background(), "", "channel")
	require.NoError(t, err)
	assert.False(t, profile.IsSubscribed)
}

func TestChannelProfileUsernameIsCaseFolded(t *testing.T) {
	src := newSliceSource()
	seedChannel(src)

	profile, err := NewBuilder(src).ChannelProfile(context.Background(), "a", "  ChAnNeL ")
	require.NoError(t, err)
	assert.Equal(t, "channel", profile.Username)
}

func TestChannelProfileProjectsFixedFields(t *testing.T) {
	src := newSliceSource()
	seedChannel(src)

	docs, err := Execute(context.Background(), src, ChannelProfilePipeline("a", "channel"))
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.NotContains(t, docs[0], "email")
	assert.NotContains(t, docs[0], "subscribers")
	assert.NotContains(t, docs[0], "subscribedTo")
	assert.Contains(t, docs[0], "isSubscribed")
}

func TestChannelProfileUnknownChannel(t *testing.T) {
	src := newSliceSource()
	seedChannel(src)

	_, err := NewBuilder(src).ChannelProfile(context.Background(), "a", "nobody")
	assert.ErrorIs(t, err, ErrChannelNotFound)
	assert.Zero(t, src.calls[CollectionSubscriptions], "no joins after an empty match")
}

func seedHistory(src *sliceSource) {
	created := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	src.add(CollectionUsers,
		Document{IDField: "viewer", "username": "viewer", "watchHistory": []string{"v2", "v1", "v2", "gone"}},
		Document{IDField: "u1", "username": "uploader1", "fullName": "Uploader One", "avatar": "https://img/u1.png", "email": "u1@x.com"},
		Document{IDField: "u2", "username": "uploader2", "fullName": "Uploader Two", "avatar": "https://img/u2.png"},
	)
	src.add(CollectionVideos,
		Document{IDField: "v1", "title": "First", "owner": "u1", "duration": 12.5, "views": int64(3), "isPublished": true, "createdAt": created},
		Document{IDField: "v2", "title": "Second", "owner": "u2", "duration": int32(7), "views": int32(0), "isPublished": false},
	)
}

func TestWatchHistoryOrderAndOwner(t *testing.T) {
	src := newSliceSource()
	seedHistory(src)

	history, err := NewBuilder(src).WatchHistory(context.Background(), "viewer")
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, "v2", history[0].ID)
	assert.Equal(t, "v1", history[1].ID)

	require.NotNil(t, history[1].Owner)
	assert.Equal(t, "u1", history[1].Owner.ID)
	assert.Equal(t, "Uploader One", history[1].Owner.FullName)
	assert.Equal(t, "uploader1", history[1].Owner.Username)
	assert.Equal(t, "https://img/u1.png", history[1].Owner.Avatar)
	assert.Equal(t, 12.5, history[1].Duration)
	assert.Equal(t, int64(3), history[1].Views)
	assert.True(t, history[1].IsPublished)
	assert.Equal(t, time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC), history[1].CreatedAt)

	assert.Equal(t, float64(7), history[0].Duration)
}

func TestWatchHistoryOwnerIsASingleProjectedObject(t *testing.T) {
	src := newSliceSource()
	seedHistory(src)

	docs, err := Execute(context.Background(), src, WatchHistoryPipeline("viewer"))
	require.NoError(t, err)
	require.Len(t, docs, 1)

	videos := docs[0]["watchHistory"].([]Document)
	owner, ok := videos[1]["owner"].(Document)
	require.True(t, ok, "owner should be an object, got %T", videos[1]["owner"])
	assert.ElementsMatch(t, []string{IDField, "fullName", "username", "avatar"}, keys(owner))
}

func TestWatchHistoryBatchesLookups(t *testing.T) {
	src := newSliceSource()
	seedHistory(src)

	_, err := NewBuilder(src).WatchHistory(context.Background(), "viewer")
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls[CollectionVideos])
	assert.Equal(t, 2, src.calls[CollectionUsers], "one match plus one batched owner lookup")
}

func TestWatchHistoryEmptyAndUnknown(t *testing.T) {
	src := newSliceSource()
	src.add(CollectionUsers, Document{IDField: "fresh", "username": "fresh"})
	builder := NewBuilder(src)

	history, err := builder.WatchHistory(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.NotNil(t, history)

	_, err = builder.WatchHistory(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestVideoWithoutOwnerHasNilOwner(t *testing.T) {
	src := newSliceSource()
	src.add(CollectionUsers, Document{IDField: "viewer", "watchHistory": []any{"v1"}})
	src.add(CollectionVideos, Document{IDField: "v1", "title": "Orphan", "owner": "deleted-user"})

	history, err := NewBuilder(src).WatchHistory(context.Background(), "viewer")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Nil(t, history[0].Owner)
}

func TestExecuteRequiresLeadingMatch(t *testing.T) {
	src := newSliceSource()

	_, err := Execute(context.Background(), src, Pipeline{Collection: CollectionUsers})
	assert.ErrorIs(t, err, errMissingMatch)

	_, err = Execute(context.Background(), src, Pipeline{
		Collection: CollectionUsers,
		Stages:     []Stage{Project{Fields: []string{"username"}}},
	})
	assert.ErrorIs(t, err, errMissingMatch)
}

func TestExecutePropagatesSourceErrors(t *testing.T) {
	src := newSliceSource()
	src.err = errors.New("connection reset")

	_, err := Execute(context.Background(), src, WatchHistoryPipeline("viewer"))
	assert.ErrorIs(t, err, src.err)
}

func TestInnerMatchFilters(t *testing.T) {
	src := newSliceSource()
	src.add(CollectionVideos,
		Document{IDField: "v1", "owner": "u1", "title": "a"},
		Document{IDField: "v2", "owner": "u1", "title": "b"},
	)

	docs, err := Execute(context.Background(), src, Pipeline{
		Collection: CollectionVideos,
		Stages: []Stage{
			Match{Field: "owner", Value: "u1"},
			Match{Field: "title", Value: "b"},
		},
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "v2", docs[0].Text(IDField))
}

func keys(doc Document) []string {
	out := make([]string, 0, len(doc))
	for k := range doc {
		out = append(out, k)
	}
	return out
}
