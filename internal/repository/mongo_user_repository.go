package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"parchment/internal/models"
)

type MongoUserRepository struct {
	db    *mongo.Database
	users *mongo.Collection
	now   func() time.Time
}

func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{
		db:    db,
		users: db.Collection("users"),
		now:   time.Now,
	}
}

func (r *MongoUserRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "refreshExpiresAt", Value: 1}},
		},
	})
	if err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, nil)
}

func (r *MongoUserRepository) Create(ctx context.Context, user models.User) error {
	_, err := r.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return ErrEmailExists
	}
	return err
}

func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoUserRepository) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var user models.User
	if err := r.users.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (r *MongoUserRepository) SetRefreshToken(ctx context.Context, userID string, tokenHash string, expiresAt time.Time, lastLoginAt time.Time) error {
	res, err := r.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$set": bson.M{
			"refreshTokenHash": tokenHash,
			"refreshExpiresAt": expiresAt,
			"lastLoginAt":      lastLoginAt,
			"updatedAt":        r.now().UTC(),
		},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RotateRefreshToken matches on the current digest inside the update filter,
// which makes the swap atomic on a single document.
func (r *MongoUserRepository) RotateRefreshToken(ctx context.Context, userID string, currentHash string, nextHash string, expiresAt time.Time) error {
	res, err := r.users.UpdateOne(ctx,
		refreshRotationFilter(userID, currentHash),
		refreshRotationUpdate(nextHash, expiresAt, r.now().UTC()),
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrRefreshTokenMismatch
	}
	return nil
}

func (r *MongoUserRepository) ClearRefreshToken(ctx context.Context, userID string) error {
	res, err := r.users.UpdateOne(ctx, bson.M{"_id": userID}, clearRefreshUpdate(r.now().UTC()))
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *MongoUserRepository) ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.users.UpdateMany(ctx, expiredRefreshFilter(now), clearRefreshUpdate(now))
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// refreshRotationFilter only matches while the stored digest is still the
// presented one.
func refreshRotationFilter(userID string, currentHash string) bson.M {
	return bson.M{"_id": userID, "refreshTokenHash": currentHash}
}

func refreshRotationUpdate(nextHash string, expiresAt time.Time, now time.Time) bson.M {
	return bson.M{
		"$set": bson.M{
			"refreshTokenHash": nextHash,
			"refreshExpiresAt": expiresAt,
			"updatedAt":        now,
		},
	}
}

func clearRefreshUpdate(now time.Time) bson.M {
	return bson.M{
		"$unset": bson.M{"refreshTokenHash": "", "refreshExpiresAt": ""},
		"$set":   bson.M{"updatedAt": now},
	}
}

func expiredRefreshFilter(now time.Time) bson.M {
	return bson.M{"refreshExpiresAt": bson.M{"$lt": now}}
}
