package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"museum-discovery/internal/errs"
	"museum-discovery/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Reader is the read side of the document index.
type Reader interface {
	Aggregate(ctx context.Context, index string, pipeline mongo.Pipeline) ([]bson.Raw, error)
	FindByID(ctx context.Context, index, id string) (*models.Document, error)
}

// Writer is the bulk-write side of the document index.
type Writer interface {
	BulkUpsert(ctx context.Context, index string, ops []models.IngestionOperation) (BulkResult, error)
	UpsertTerms(ctx context.Context, terms []models.Term) (BulkResult, error)
	DeleteStale(ctx context.Context, index, sourceID string, keep []string) (int64, error)
}

// BulkResult reports the per-operation outcome of a bulk write.
type BulkResult struct {
	Matched  int64
	Upserted int64
	Modified int64
	Failures []errs.OpFailure
}

// OK reports whether every operation succeeded.
func (r BulkResult) OK() bool {
	return len(r.Failures) == 0
}

// MongoStore keeps one collection per index in a single database.
type MongoStore struct {
	db  *mongo.Database
	now func() time.Time
}

// NewMongoStore wraps db. The client lifecycle stays with the caller.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db, now: time.Now}
}

func (s *MongoStore) Aggregate(ctx context.Context, index string, pipeline mongo.Pipeline) ([]bson.Raw, error) {
	cursor, err := s.db.Collection(index).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errs.FromMongo(err)
	}
	defer cursor.Close(ctx)

	var out []bson.Raw
	if err := cursor.All(ctx, &out); err != nil {
		return nil, errs.FromMongo(err)
	}
	return out, nil
}

func (s *MongoStore) FindByID(ctx context.Context, index, id string) (*models.Document, error) {
	var doc models.Document
	if err := s.db.Collection(index).FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, errs.FromMongo(err)
	}
	doc.Index = index
	return &doc, nil
}

// BulkUpsert sends ops as one ordered bulk write. Each operation merges the
// document into any existing one; ingestedAt is only written on insert.
func (s *MongoStore) BulkUpsert(ctx context.Context, index string, ops []models.IngestionOperation) (BulkResult, error) {
	if len(ops) == 0 {
		return BulkResult{}, nil
	}
	now := s.now().UTC()
	writes := make([]mongo.WriteModel, 0, len(ops))
	for _, op := range ops {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": op.ID}).
			SetUpdate(bson.M{
				"$set":         storable(op.Document),
				"$setOnInsert": bson.M{"ingestedAt": now},
			}).
			SetUpsert(true))
	}
	ids := make([]string, len(ops))
	for i, op := range ops {
		ids[i] = op.ID
	}
	return s.bulkWrite(ctx, index, writes, ids)
}

func (s *MongoStore) UpsertTerms(ctx context.Context, terms []models.Term) (BulkResult, error) {
	if len(terms) == 0 {
		return BulkResult{}, nil
	}
	writes := make([]mongo.WriteModel, 0, len(terms))
	ids := make([]string, len(terms))
	for i, term := range terms {
		ids[i] = term.ID
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": term.ID}).
			SetReplacement(term).
			SetUpsert(true))
	}
	return s.bulkWrite(ctx, Terms, writes, ids)
}

// DeleteStale removes documents of sourceID whose ids are not in keep. An
// empty keep list is a no-op so a failed extraction never empties an index.
func (s *MongoStore) DeleteStale(ctx context.Context, index, sourceID string, keep []string) (int64, error) {
	if len(keep) == 0 || sourceID == "" {
		return 0, nil
	}
	res, err := s.db.Collection(index).DeleteMany(ctx, bson.M{
		"sourceId": sourceID,
		"_id":      bson.M{"$nin": keep},
	})
	if err != nil {
		return 0, errs.FromMongo(err)
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) bulkWrite(ctx context.Context, collection string, writes []mongo.WriteModel, ids []string) (BulkResult, error) {
	res, err := s.db.Collection(collection).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(true))

	var result BulkResult
	if res != nil {
		result.Matched = res.MatchedCount
		result.Upserted = res.UpsertedCount
		result.Modified = res.ModifiedCount
	}
	if err == nil {
		return result, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return result, errs.FromMongo(err)
	}
	for _, we := range bwe.WriteErrors {
		failure := errs.OpFailure{Position: we.Index, Code: we.Code, Message: we.Message}
		if we.Index >= 0 && we.Index < len(ids) {
			failure.ID = ids[we.Index]
		}
		result.Failures = append(result.Failures, failure)
	}
	if bwe.WriteConcernError != nil {
		result.Failures = append(result.Failures, errs.OpFailure{
			Position: -1,
			Code:     bwe.WriteConcernError.Code,
			Message:  fmt.Sprintf("write concern: %s", bwe.WriteConcernError.Message),
		})
	}
	return result, nil
}

// storable strips the fields that must never be written through $set.
func storable(doc *models.Document) models.Document {
	out := *doc
	out.ID = ""
	out.Index = ""
	out.IngestedAt = nil
	out.Score = 0
	out.Similarity = 0
	out.ColorDistance = nil
	return out
}
