package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vidtube/backend/internal/models"
	"github.com/vidtube/backend/internal/readmodel"
)

// userDocument is the stored shape of a user in MongoDB.
type userDocument struct {
	ID                 string    `bson:"_id"`
	Username           string    `bson:"username"`
	Email              string    `bson:"email"`
	FullName           string    `bson:"fullName"`
	Avatar             string    `bson:"avatar"`
	AvatarPublicID     string    `bson:"avatarPublicId,omitempty"`
	CoverImage         string    `bson:"coverImage"`
	CoverImagePublicID string    `bson:"coverImagePublicId,omitempty"`
	Password           string    `bson:"password"`
	RefreshToken       string    `bson:"refreshToken,omitempty"`
	WatchHistory       []string  `bson:"watchHistory"`
	CreatedAt          time.Time `bson:"createdAt"`
	UpdatedAt          time.Time `bson:"updatedAt"`
}

func newUserDocument(u models.User) userDocument {
	watchHistory := u.WatchHistory
	if watchHistory == nil {
		watchHistory = []string{}
	}
	return userDocument{
		ID:                 u.ID,
		Username:           u.Username,
		Email:              u.Email,
		FullName:           u.FullName,
		Avatar:             u.Avatar,
		AvatarPublicID:     u.AvatarPublicID,
		CoverImage:         u.CoverImage,
		CoverImagePublicID: u.CoverImagePublicID,
		Password:           u.Password,
		RefreshToken:       u.RefreshToken,
		WatchHistory:       watchHistory,
		CreatedAt:          u.CreatedAt.UTC(),
		UpdatedAt:          u.UpdatedAt.UTC(),
	}
}

func (d userDocument) model() models.User {
	watchHistory := d.WatchHistory
	if watchHistory == nil {
		watchHistory = []string{}
	}
	return models.User{
		ID:                 d.ID,
		Username:           d.Username,
		Email:              d.Email,
		FullName:           d.FullName,
		Avatar:             d.Avatar,
		AvatarPublicID:     d.AvatarPublicID,
		CoverImage:         d.CoverImage,
		CoverImagePublicID: d.CoverImagePublicID,
		Password:           d.Password,
		RefreshToken:       d.RefreshToken,
		WatchHistory:       watchHistory,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
}

// ConnectMongo opens a client against uri and verifies it with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the indexes the repositories rely on. Usernames are
// unique; emails are indexed but not unique.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	_, err := database.Collection(readmodel.CollectionUsers).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}},
		{Keys: bson.D{{Key: "fullName", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	if _, err := database.Collection(readmodel.CollectionSubscriptions).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "channel", Value: 1}}},
		{Keys: bson.D{{Key: "subscriber", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("create subscription indexes: %w", err)
	}

	if _, err := database.Collection(readmodel.CollectionVideos).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create video indexes: %w", err)
	}
	return nil
}

// MongoUserRepository provides MongoDB-backed persistence for users.
type MongoUserRepository struct {
	users *mongo.Collection
	now   func() time.Time
}

// NewMongoUserRepository constructs a user repository over database.
func NewMongoUserRepository(database *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{users: database.Collection(readmodel.CollectionUsers), now: time.Now}
}

// Create persists a new user record.
func (r *MongoUserRepository) Create(ctx context.Context, user models.User) error {
	if _, err := r.users.InsertOne(ctx, newUserDocument(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) findOne(ctx context.Context, op string, filter bson.M) (models.User, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	var doc userDocument
	if err := r.users.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if IsNotFound(err) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return doc.model(), nil
}

// FindByID fetches a user by identifier.
func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, "find user by id", bson.M{"_id": id})
}

// FindByUsernameOrEmail fetches the first user matching either identifier.
func (r *MongoUserRepository) FindByUsernameOrEmail(ctx context.Context, username, email string) (models.User, error) {
	var or bson.A
	if username != "" {
		or = append(or, bson.M{"username": username})
	}
	if email != "" {
		or = append(or, bson.M{"email": email})
	}
	if len(or) == 0 {
		return models.User{}, ErrNotFound
	}
	return r.findOne(ctx, "find user by username or email", bson.M{"$or": or})
}

func (r *MongoUserRepository) updateOne(ctx context.Context, op, userID string, update bson.M) error {
	res, err := r.users.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoUserRepository) findAndSet(ctx context.Context, op, userID string, set bson.M) (models.User, error) {
	set["updatedAt"] = r.now().UTC()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc userDocument
	err := r.users.FindOneAndUpdate(ctx, bson.M{"_id": userID}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		if IsNotFound(err) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return doc.model(), nil
}

// SetRefreshToken stores token on the user, or unsets it when token is empty.
func (r *MongoUserRepository) SetRefreshToken(ctx context.Context, userID, token string) error {
	now := r.now().UTC()
	update := bson.M{"$set": bson.M{"refreshToken": token, "updatedAt": now}}
	if token == "" {
		update = bson.M{
			"$unset": bson.M{"refreshToken": 1},
			"$set":   bson.M{"updatedAt": now},
		}
	}
	return r.updateOne(ctx, "update refresh token", userID, update)
}

// UpdatePassword replaces the stored password hash.
func (r *MongoUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	return r.updateOne(ctx, "update password", userID, bson.M{
		"$set": bson.M{"password": passwordHash, "updatedAt": r.now().UTC()},
	})
}

// UpdateAccountDetails sets the full name and email and returns the updated user.
func (r *MongoUserRepository) UpdateAccountDetails(ctx context.Context, userID, fullName, email string) (models.User, error) {
	return r.findAndSet(ctx, "update account details", userID, bson.M{"fullName": fullName, "email": email})
}

// UpdateAvatar records a new avatar URL and its storage identifier.
func (r *MongoUserRepository) UpdateAvatar(ctx context.Context, userID, url, publicID string) (models.User, error) {
	return r.findAndSet(ctx, "update avatar", userID, bson.M{"avatar": url, "avatarPublicId": publicID})
}

// UpdateCoverImage records a new cover image URL and its storage identifier.
func (r *MongoUserRepository) UpdateCoverImage(ctx context.Context, userID, url, publicID string) (models.User, error) {
	return r.findAndSet(ctx, "update cover image", userID, bson.M{"coverImage": url, "coverImagePublicId": publicID})
}

// hiddenFields are stripped from every document the read model sees.
var hiddenFields = bson.M{
	"password":           0,
	"refreshToken":       0,
	"avatarPublicId":     0,
	"coverImagePublicId": 0,
}

// MongoSource serves read model queries from MongoDB collections.
type MongoSource struct {
	database *mongo.Database
}

// NewMongoSource constructs a read model source over database.
func NewMongoSource(database *mongo.Database) *MongoSource {
	return &MongoSource{database: database}
}

// Find returns documents of collection whose field is one of values.
func (s *MongoSource) Find(ctx context.Context, collection, field string, values []string) ([]readmodel.Document, error) {
	if len(values) == 0 {
		return nil, nil
	}

	opts := options.Find()
	if collection == readmodel.CollectionUsers {
		opts.SetProjection(hiddenFields)
	}

	cursor, err := s.database.Collection(collection).Find(ctx, bson.M{field: bson.M{"$in": values}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}

	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}

	docs := make([]readmodel.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, mongoDocument(m))
	}
	return docs, nil
}

func mongoDocument(m bson.M) readmodel.Document {
	doc := make(readmodel.Document, len(m))
	for k, v := range m {
		doc[k] = mongoValue(v)
	}
	return doc
}

func mongoValue(v any) any {
	switch t := v.(type) {
	case primitive.A:
		out := make([]any, 0, len(t))
		for _, item := range t {
			out = append(out, mongoValue(item))
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case bson.M:
		return mongoDocument(t)
	default:
		return v
	}
}

var _ UserRepository = (*MongoUserRepository)(nil)
var _ readmodel.Source = (*MongoSource)(nil)
