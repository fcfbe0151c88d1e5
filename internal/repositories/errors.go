package repositories

import (
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound indicates no user, video or subscription matched.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write collided with a unique index, such as a taken username.
	ErrConflict = errors.New("record conflict")
)

// IsNotFound reports whether err means the record does not exist in any backend.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, mongo.ErrNoDocuments)
}
