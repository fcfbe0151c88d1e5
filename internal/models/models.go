package models

import "time"

// User represents an account within the VidTube platform.
type User struct {
	ID                 string    `json:"_id"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	FullName           string    `json:"fullName"`
	Avatar             string    `json:"avatar"`
	AvatarPublicID     string    `json:"-"`
	CoverImage         string    `json:"coverImage"`
	CoverImagePublicID string    `json:"-"`
	Password           string    `json:"-"`
	RefreshToken       string    `json:"refreshToken,omitempty"`
	WatchHistory       []string  `json:"watchHistory"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Sanitized returns a copy of the user that is safe to hand to clients:
// the password hash and the refresh token are both removed.
func (u User) Sanitized() User {
	u.Password = ""
	u.RefreshToken = ""
	if u.WatchHistory == nil {
		u.WatchHistory = []string{}
	}
	return u
}

// WithoutPassword strips only the password hash.
func (u User) WithoutPassword() User {
	u.Password = ""
	if u.WatchHistory == nil {
		u.WatchHistory = []string{}
	}
	return u
}

// Video is an uploaded video. The account service only ever reads videos.
type Video struct {
	ID          string
	VideoFile   string
	Thumbnail   string
	Title       string
	Description string
	Duration    float64
	Views       int64
	IsPublished bool
	OwnerID     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Subscription is a directed edge from a subscriber to a channel.
type Subscription struct {
	ID           string
	SubscriberID string
	ChannelID    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChannelProfile is the public view of a user as a channel.
type ChannelProfile struct {
	ID                        string `json:"_id"`
	FullName                  string `json:"fullName"`
	Username                  string `json:"username"`
	SubscriberCount           int    `json:"subscriberCount"`
	ChannelsSubscribedToCount int    `json:"channelsSubscribedToCount"`
	IsSubscribed              bool   `json:"isSubscribed"`
	Avatar                    string `json:"avatar"`
	CoverImage                string `json:"coverImage"`
}

// VideoOwner is the slice of a user embedded into watch history entries.
type VideoOwner struct {
	ID       string `json:"_id"`
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// WatchedVideo is a watch history entry with its owner resolved.
type WatchedVideo struct {
	ID          string      `json:"_id"`
	VideoFile   string      `json:"videoFile"`
	Thumbnail   string      `json:"thumbnail"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Duration    float64     `json:"duration"`
	Views       int64       `json:"views"`
	IsPublished bool        `json:"isPublished"`
	Owner       *VideoOwner `json:"owner"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"-"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"-"`
}
