package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Favorite is a single entry of a user's favorites list stored in MongoDB.
type Favorite struct {
	ID        primitive.ObjectID `json:"id"         bson:"_id,omitempty"`
	Name      string             `json:"name"       bson:"name"`
	Owner     string             `json:"owner"      bson:"owner"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// FavoriteRequest is the body for POST /addFavorite.
type FavoriteRequest struct {
	Name string `json:"name"`
}
