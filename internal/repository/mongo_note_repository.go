package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"parchment/internal/models"
)

type MongoNoteRepository struct {
	notes *mongo.Collection
}

func NewMongoNoteRepository(db *mongo.Database) *MongoNoteRepository {
	return &MongoNoteRepository{notes: db.Collection("notes")}
}

func (r *MongoNoteRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.notes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "owner", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("notes indexes: %w", err)
	}
	return nil
}

func (r *MongoNoteRepository) Create(ctx context.Context, note models.Note) error {
	_, err := r.notes.InsertOne(ctx, note)
	return err
}

func (r *MongoNoteRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Note, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.notes.Find(ctx, bson.M{"owner": ownerID}, opts)
	if err != nil {
		return nil, err
	}

	notes := make([]models.Note, 0)
	if err := cursor.All(ctx, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *MongoNoteRepository) GetByOwner(ctx context.Context, ownerID string, id string) (models.Note, error) {
	var note models.Note
	err := r.notes.FindOne(ctx, ownedNoteFilter(ownerID, id)).Decode(&note)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Note{}, ErrNoteNotFound
	}
	return note, err
}

func (r *MongoNoteRepository) Update(ctx context.Context, note models.Note) error {
	res, err := r.notes.UpdateOne(ctx, ownedNoteFilter(note.OwnerID, note.ID), noteUpdate(note))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNoteNotFound
	}
	return nil
}

func (r *MongoNoteRepository) DeleteByOwner(ctx context.Context, ownerID string, id string) (models.Note, error) {
	var note models.Note
	err := r.notes.FindOneAndDelete(ctx, ownedNoteFilter(ownerID, id)).Decode(&note)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Note{}, ErrNoteNotFound
	}
	return note, err
}

// ownedNoteFilter matches a note only for its owner, so other users see
// ErrNoteNotFound rather than a permission error.
func ownedNoteFilter(ownerID string, id string) bson.M {
	return bson.M{"_id": id, "owner": ownerID}
}

// noteUpdate rewrites the mutable fields. Owner and creation time never change.
func noteUpdate(note models.Note) bson.M {
	return bson.M{
		"$set": bson.M{
			"title":     note.Title,
			"content":   note.Content,
			"imageUrl":  note.ImageURL,
			"imageKey":  note.ImageKey,
			"updatedAt": note.UpdatedAt,
		},
	}
}
