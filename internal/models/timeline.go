package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Timeline entry titles recorded as side effects of user actions.
const (
	EventLogin           = "Login"
	EventRegister        = "Register"
	EventAddedFavorite   = "Added Favorite"
	EventDeletedFavorite = "Deleted Favorite"
)

// TimelineEntry is an activity record stored in MongoDB. Entries are never
// mutated after insertion.
type TimelineEntry struct {
	ID          primitive.ObjectID `json:"id"          bson:"_id,omitempty"`
	Title       string             `json:"title"       bson:"title"`
	Description string             `json:"description" bson:"description"`
	Timestamp   time.Time          `json:"timestamp"   bson:"timestamp"`
	Owner       string             `json:"owner"       bson:"owner"`
}

// Archive is the snapshot of a user's data written to object storage before
// the user is deleted.
type Archive struct {
	User       User            `json:"user"`
	Favorites  []Favorite      `json:"favorites"`
	Timeline   []TimelineEntry `json:"timeline"`
	ArchivedAt time.Time       `json:"archived_at"`
}
