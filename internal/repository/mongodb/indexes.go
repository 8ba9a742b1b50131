package mongodb

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates the indexes the registry queries rely on. Existing indexes are kept.
func (r *MongoDBRepository) EnsureIndexes(ctx context.Context) error {
	// batches: one live batch per (facility, code); tombstoned codes may be reused.
	if _, err := r.collection(batchesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "facility_code", Value: 1},
			{Key: "code", Value: 1},
		},
		Options: options.Index().
			SetName("batch_facility_code").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"deleted_at": bson.M{"$type": "null"}}),
	}); err != nil && !isIndexExistsError(err) {
		return fmt.Errorf("create batch_facility_code index: %w", err)
	}

	// batches: weekly advance listing
	if _, err := r.collection(batchesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "facility_code", Value: 1},
			{Key: "status", Value: 1},
		},
		Options: options.Index().SetName("batch_facility_status"),
	}); err != nil && !isIndexExistsError(err) {
		return fmt.Errorf("create batch_facility_status index: %w", err)
	}

	if _, err := r.collection(contributionsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "batch_id", Value: 1}, {Key: "created_at", Value: 1}},
		Options: options.Index().SetName("contribution_batch_created"),
	}); err != nil && !isIndexExistsError(err) {
		return fmt.Errorf("create contribution_batch_created index: %w", err)
	}

	if _, err := r.collection(photosCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "batch_id", Value: 1}, {Key: "contribution_id", Value: 1}},
		Options: options.Index().SetName("photo_batch_contribution"),
	}); err != nil && !isIndexExistsError(err) {
		return fmt.Errorf("create photo_batch_contribution index: %w", err)
	}

	return nil
}

func isIndexExistsError(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "already exists") || strings.Contains(s, "duplicate")
}
