package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/compost/internal/domain/apperr"
	"github.com/mamadbah2/compost/internal/domain/models"
	"github.com/mamadbah2/compost/internal/repository"
)

const (
	facilitiesCollection    = "facilities"
	batchesCollection       = "batches"
	contributionsCollection = "contributions"
	photosCollection        = "photos"
)

// live matches documents without a tombstone.
var live = bson.E{Key: "deleted_at", Value: nil}

// MongoDBRepository implements repository.Registry for MongoDB.
type MongoDBRepository struct {
	client *mongo.Client
	dbName string
	// transactions is false on a standalone server.
	transactions bool
}

var _ repository.Registry = (*MongoDBRepository)(nil)

// NewMongoDBRepository creates a new MongoDB repository and ensures its indexes.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	transactions, err := supportsTransactions(ctx, client)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to inspect mongodb topology: %w", err)
	}

	repo := &MongoDBRepository{client: client, dbName: dbName, transactions: transactions}
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return repo, nil
}

// supportsTransactions reports whether the deployment is a replica set or a sharded cluster.
func supportsTransactions(ctx context.Context, client *mongo.Client) (bool, error) {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return false, err
	}
	return hello.SetName != "" || hello.Msg == "isdbgrid", nil
}

func (r *MongoDBRepository) collection(name string) *mongo.Collection {
	return r.client.Database(r.dbName).Collection(name)
}

func (r *MongoDBRepository) UpsertFacility(ctx context.Context, facility models.Facility) error {
	update := bson.M{
		"$set": bson.M{
			"name":       facility.Name,
			"latitude":   facility.Latitude,
			"longitude":  facility.Longitude,
			"updated_at": facility.UpdatedAt,
		},
		"$setOnInsert": bson.M{"created_at": facility.CreatedAt},
	}
	_, err := r.collection(facilitiesCollection).UpdateOne(ctx,
		bson.M{"_id": facility.Code}, update, options.Update().SetUpsert(true))
	if err != nil {
		return apperr.Persistence("upsert facility", facility.Code, err)
	}
	return nil
}

func (r *MongoDBRepository) GetFacility(ctx context.Context, code string) (models.Facility, error) {
	var f models.Facility
	err := r.collection(facilitiesCollection).FindOne(ctx, bson.M{"_id": code}).Decode(&f)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Facility{}, apperr.NotFound("get facility", code, "facility not found")
	}
	if err != nil {
		return models.Facility{}, apperr.Persistence("get facility", code, err)
	}
	return f, nil
}

func (r *MongoDBRepository) CreateBatch(ctx context.Context, batch models.Batch) error {
	if _, err := r.GetBatchByCode(ctx, batch.FacilityCode, batch.Code); err == nil {
		return repository.DuplicateCode("create batch", batch.Code)
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		return err
	}

	if _, err := r.collection(batchesCollection).InsertOne(ctx, batch); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.DuplicateCode("create batch", batch.Code)
		}
		return apperr.Persistence("create batch", batch.Code, err)
	}
	return nil
}

func (r *MongoDBRepository) GetBatch(ctx context.Context, id string) (models.Batch, error) {
	return r.findBatch(ctx, "get batch", id, bson.D{{Key: "_id", Value: id}, live})
}

func (r *MongoDBRepository) GetBatchByCode(ctx context.Context, facilityCode, code string) (models.Batch, error) {
	return r.findBatch(ctx, "get batch", code, bson.D{
		{Key: "facility_code", Value: facilityCode},
		{Key: "code", Value: code},
		live,
	})
}

func (r *MongoDBRepository) findBatch(ctx context.Context, op, ref string, filter bson.D) (models.Batch, error) {
	var b models.Batch
	err := r.collection(batchesCollection).FindOne(ctx, filter).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Batch{}, repository.BatchNotFound(op, ref)
	}
	if err != nil {
		return models.Batch{}, apperr.Persistence(op, ref, err)
	}
	return b, nil
}

func (r *MongoDBRepository) ListProcessingBatches(ctx context.Context, facilityCode string) ([]models.Batch, error) {
	filter := bson.D{
		{Key: "facility_code", Value: facilityCode},
		{Key: "status", Value: models.BatchProcessing},
		live,
	}
	cursor, err := r.collection(batchesCollection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "code", Value: 1}}))
	if err != nil {
		return nil, apperr.Persistence("list batches", facilityCode, err)
	}
	batches := make([]models.Batch, 0)
	if err := cursor.All(ctx, &batches); err != nil {
		return nil, apperr.Persistence("list batches", facilityCode, err)
	}
	return batches, nil
}

func (r *MongoDBRepository) UpdateBatch(ctx context.Context, batch models.Batch) (models.Batch, error) {
	filter := bson.D{
		{Key: "_id", Value: batch.ID},
		{Key: "version", Value: batch.Version},
		live,
	}
	update := bson.M{
		"$set": bson.M{
			"status":             batch.Status,
			"station":            batch.Station,
			"week":               batch.Week,
			"current_mass":       batch.CurrentMass,
			"closed_at":          batch.ClosedAt,
			"finalized_at":       batch.FinalizedAt,
			"updated_at":         batch.UpdatedAt,
			"fingerprint":        batch.Fingerprint,
			"last_advance_cycle": batch.LastAdvanceCycle,
		},
		"$inc": bson.M{"version": 1},
	}

	var stored models.Batch
	err := r.collection(batchesCollection).
		FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After)).
		Decode(&stored)
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Batch{}, apperr.Persistence("update batch", batch.Code, err)
	}

	// Either gone or changed underneath us.
	if _, getErr := r.GetBatch(ctx, batch.ID); getErr != nil {
		return models.Batch{}, getErr
	}
	return models.Batch{}, repository.Conflict("update batch", batch.Code)
}

func (r *MongoDBRepository) SoftDeleteBatch(ctx context.Context, id string, at time.Time) error {
	res, err := r.collection(batchesCollection).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}, live},
		bson.M{"$set": bson.M{"deleted_at": at, "updated_at": at}, "$inc": bson.M{"version": 1}})
	if err != nil {
		return apperr.Persistence("delete batch", id, err)
	}
	if res.MatchedCount == 0 {
		return repository.BatchNotFound("delete batch", id)
	}
	return nil
}

func (r *MongoDBRepository) AddContribution(ctx context.Context, event models.ContributionEvent) error {
	return r.withBatchTouch(ctx, event.BatchID, event.CreatedAt, func(ctx context.Context) error {
		if _, err := r.collection(contributionsCollection).InsertOne(ctx, event); err != nil {
			return apperr.Persistence("add contribution", event.BatchCode, err)
		}
		return nil
	})
}

func (r *MongoDBRepository) GetContribution(ctx context.Context, id string) (models.ContributionEvent, error) {
	var e models.ContributionEvent
	err := r.collection(contributionsCollection).FindOne(ctx, bson.D{{Key: "_id", Value: id}, live}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ContributionEvent{}, apperr.NotFound("get contribution", id, "contribution not found")
	}
	if err != nil {
		return models.ContributionEvent{}, apperr.Persistence("get contribution", id, err)
	}
	return e, nil
}

func (r *MongoDBRepository) ListContributions(ctx context.Context, batchID string) ([]models.ContributionEvent, error) {
	cursor, err := r.collection(contributionsCollection).Find(ctx,
		bson.D{{Key: "batch_id", Value: batchID}, live},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, apperr.Persistence("list contributions", batchID, err)
	}
	events := make([]models.ContributionEvent, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, apperr.Persistence("list contributions", batchID, err)
	}
	return events, nil
}

func (r *MongoDBRepository) SoftDeleteContribution(ctx context.Context, id string, at time.Time) error {
	event, err := r.GetContribution(ctx, id)
	if err != nil {
		return err
	}
	return r.withBatchTouch(ctx, event.BatchID, at, func(ctx context.Context) error {
		res, err := r.collection(contributionsCollection).UpdateOne(ctx,
			bson.D{{Key: "_id", Value: id}, live},
			bson.M{"$set": bson.M{"deleted_at": at}})
		if err != nil {
			return apperr.Persistence("delete contribution", id, err)
		}
		if res.MatchedCount == 0 {
			return apperr.NotFound("delete contribution", id, "contribution not found")
		}
		return nil
	})
}

func (r *MongoDBRepository) AddPhoto(ctx context.Context, photo models.PhotoRecord) error {
	return r.withBatchTouch(ctx, photo.BatchID, photo.CreatedAt, func(ctx context.Context) error {
		if _, err := r.collection(photosCollection).InsertOne(ctx, photo); err != nil {
			return apperr.Persistence("add photo", photo.BatchID, err)
		}
		return nil
	})
}

func (r *MongoDBRepository) ListPhotos(ctx context.Context, batchID string) ([]models.PhotoRecord, error) {
	events, err := r.ListContributions(ctx, batchID)
	if err != nil {
		return nil, err
	}
	liveIDs := make([]string, 0, len(events))
	for _, e := range events {
		liveIDs = append(liveIDs, e.ID)
	}

	filter := bson.M{
		"batch_id": batchID,
		"$or": bson.A{
			bson.M{"contribution_id": ""},
			bson.M{"contribution_id": bson.M{"$in": liveIDs}},
		},
	}
	cursor, err := r.collection(photosCollection).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, apperr.Persistence("list photos", batchID, err)
	}
	photos := make([]models.PhotoRecord, 0)
	if err := cursor.All(ctx, &photos); err != nil {
		return nil, apperr.Persistence("list photos", batchID, err)
	}
	return photos, nil
}

// withBatchTouch runs a child write and then bumps the parent batch, inside one
// transaction when the deployment supports it. The bump comes second: a certification
// that read the batch before it either fails its version guard or has its fingerprint
// cleared by the bump.
func (r *MongoDBRepository) withBatchTouch(ctx context.Context, batchID string, at time.Time, write func(ctx context.Context) error) error {
	apply := func(ctx context.Context) error {
		if err := write(ctx); err != nil {
			return err
		}
		return r.touchBatch(ctx, batchID, at)
	}

	if !r.transactions {
		// Without a transaction a missing batch must be caught before the child lands.
		if _, err := r.GetBatch(ctx, batchID); err != nil {
			return err
		}
		return apply(ctx)
	}

	return r.client.UseSession(ctx, func(sc mongo.SessionContext) error {
		_, err := sc.WithTransaction(sc, func(txCtx mongo.SessionContext) (interface{}, error) {
			return nil, apply(txCtx)
		})
		return err
	})
}

// touchBatch bumps the batch version and clears its fingerprint.
func (r *MongoDBRepository) touchBatch(ctx context.Context, batchID string, at time.Time) error {
	res, err := r.collection(batchesCollection).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: batchID}, live},
		bson.M{"$set": bson.M{"fingerprint": nil, "updated_at": at}, "$inc": bson.M{"version": 1}})
	if err != nil {
		return apperr.Persistence("touch batch", batchID, err)
	}
	if res.MatchedCount == 0 {
		return repository.BatchNotFound("touch batch", batchID)
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
