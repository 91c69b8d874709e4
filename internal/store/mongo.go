package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ayush/favorites-app/internal/models"
)

// MongoStore handles favorites and timeline documents in MongoDB. Every
// query is filtered by owner.
type MongoStore struct {
	favorites *mongo.Collection
	timeline  *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		favorites: db.Collection("favorites"),
		timeline:  db.Collection("timeline"),
	}
}

// EnsureIndexes creates the indexes the queries below rely on, including the
// per-owner uniqueness of favorite names.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.favorites.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return mongoError("favorites index", err)
	}
	_, err = s.timeline.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	return mongoError("timeline index", err)
}

// ParseID converts a hex identifier into an ObjectID.
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}

func (s *MongoStore) InsertFavorite(ctx context.Context, fav *models.Favorite) (*models.Favorite, error) {
	fav.CreatedAt = time.Now().UTC()
	res, err := s.favorites.InsertOne(ctx, fav)
	if err != nil {
		return nil, mongoError("insert favorite", err)
	}
	fav.ID = res.InsertedID.(primitive.ObjectID)
	return fav, nil
}

func (s *MongoStore) ListFavorites(ctx context.Context, owner string) ([]models.Favorite, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.favorites.Find(ctx, bson.M{"owner": owner}, opts)
	if err != nil {
		return nil, mongoError("list favorites", err)
	}
	defer cur.Close(ctx)

	var favs []models.Favorite
	if err := cur.All(ctx, &favs); err != nil {
		return nil, mongoError("list favorites", err)
	}
	return favs, nil
}

// DeleteFavorite removes the favorite only when owner matches. A missing
// document and one owned by someone else both yield ErrNotFound.
func (s *MongoStore) DeleteFavorite(ctx context.Context, owner, id string) (*models.Favorite, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	var fav models.Favorite
	err = s.favorites.FindOneAndDelete(ctx, bson.M{"_id": oid, "owner": owner}).Decode(&fav)
	if err != nil {
		return nil, mongoError("delete favorite", err)
	}
	return &fav, nil
}

func (s *MongoStore) InsertTimeline(ctx context.Context, entry *models.TimelineEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	res, err := s.timeline.InsertOne(ctx, entry)
	if err != nil {
		return mongoError("insert timeline", err)
	}
	entry.ID = res.InsertedID.(primitive.ObjectID)
	return nil
}

// ListTimeline returns the owner's entries in chronological order.
func (s *MongoStore) ListTimeline(ctx context.Context, owner string) ([]models.TimelineEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.timeline.Find(ctx, bson.M{"owner": owner}, opts)
	if err != nil {
		return nil, mongoError("list timeline", err)
	}
	defer cur.Close(ctx)

	var entries []models.TimelineEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, mongoError("list timeline", err)
	}
	return entries, nil
}

func (s *MongoStore) DeleteTimeline(ctx context.Context, owner, id string) error {
	oid, err := ParseID(id)
	if err != nil {
		return err
	}
	res, err := s.timeline.DeleteOne(ctx, bson.M{"_id": oid, "owner": owner})
	if err != nil {
		return mongoError("delete timeline", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RenameOwner moves every document owned by from to to.
func (s *MongoStore) RenameOwner(ctx context.Context, from, to string) error {
	update := bson.M{"$set": bson.M{"owner": to}}
	if _, err := s.favorites.UpdateMany(ctx, bson.M{"owner": from}, update); err != nil {
		return mongoError("rename favorites owner", err)
	}
	_, err := s.timeline.UpdateMany(ctx, bson.M{"owner": from}, update)
	return mongoError("rename timeline owner", err)
}

// DeleteOwner removes every favorite and timeline entry of owner.
func (s *MongoStore) DeleteOwner(ctx context.Context, owner string) error {
	if _, err := s.favorites.DeleteMany(ctx, bson.M{"owner": owner}); err != nil {
		return mongoError("delete favorites", err)
	}
	_, err := s.timeline.DeleteMany(ctx, bson.M{"owner": owner})
	return mongoError("delete timeline", err)
}
