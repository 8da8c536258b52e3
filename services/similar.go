package services

import (
	"context"
	"fmt"
	"time"

	"museum-discovery/internal/index"
	"museum-discovery/internal/normalize"
	"museum-discovery/internal/palette"
	"museum-discovery/internal/telemetry"
	"museum-discovery/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Similarity weights per shared field.
const (
	weightConstituent    = 4
	weightClassification = 2
	weightDefault        = 1
	colorBonus           = 2.0
)

// SimilarOptions narrow a similarity query.
type SimilarOptions struct {
	RequirePhoto bool
	Color        string
	Size         int
}

// SimilarityService finds art documents that share descriptive fields with a
// given one.
type SimilarityService struct {
	reader  index.Reader
	metrics *telemetry.Metrics
}

func NewSimilarityService(reader index.Reader, metrics *telemetry.Metrics) *SimilarityService {
	return &SimilarityService{reader: reader, metrics: metrics}
}

// SimilarTo returns documents ranked by weighted field overlap with id. The
// source document itself is never returned.
func (s *SimilarityService) SimilarTo(ctx context.Context, id string, opts SimilarOptions) ([]models.Document, error) {
	start := time.Now()
	ctx, span := otel.Tracer("services").Start(ctx, "similar")
	span.SetAttributes(attribute.String("similar.id", id))
	defer span.End()

	docs, err := s.similarTo(ctx, id, opts)
	s.metrics.RecordSearch(ctx, "similar", index.Art, time.Since(start).Seconds(), err == nil)
	if err != nil {
		span.RecordError(err)
	}
	return docs, err
}

func (s *SimilarityService) similarTo(ctx context.Context, id string, opts SimilarOptions) ([]models.Document, error) {
	src, err := s.reader.FindByID(ctx, index.Art, id)
	if err != nil {
		return nil, err
	}
	pipeline, ok := BuildSimilarPipeline(src, opts)
	if !ok {
		return []models.Document{}, nil
	}

	raws, err := s.reader.Aggregate(ctx, index.Art, pipeline)
	if err != nil {
		return nil, err
	}
	docs := make([]models.Document, 0, len(raws))
	for _, raw := range raws {
		var doc models.Document
		if err := bson.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode similar document: %w", err)
		}
		doc.Index = index.Art
		docs = append(docs, doc)
	}
	return docs, nil
}

type similarityField struct {
	path   string
	weight int
	values bson.A
	array  bool
}

// BuildSimilarPipeline returns the aggregation for documents similar to src.
// It reports false when src has no field a candidate could share.
func BuildSimilarPipeline(src *models.Document, opts SimilarOptions) (mongo.Pipeline, bool) {
	fields := similarityFields(src)
	if len(fields) == 0 {
		return nil, false
	}
	size := opts.Size
	if size <= 0 || size > MaxPageSize {
		size = DefaultPageSize
	}

	or := bson.A{}
	score := bson.A{}
	for _, f := range fields {
		or = append(or, bson.M{f.path: bson.M{"$in": f.values}})
		score = append(score, fieldScore(f))
	}

	match := bson.D{
		{Key: "_id", Value: bson.M{"$ne": src.ID}},
		{Key: "$or", Value: or},
	}
	if opts.RequirePhoto {
		match = append(match, bson.E{Key: "image.url", Value: bson.M{"$exists": true, "$ne": ""}})
	}

	pipeline := mongo.Pipeline{{{Key: "$match", Value: match}}}
	if target, err := palette.FromHex(opts.Color); opts.Color != "" && err == nil {
		pipeline = append(pipeline, bson.D{{Key: "$addFields", Value: bson.M{"_colorDistance": labDistanceExpr(target)}}})
		// full bonus on an exact match, none from a distance of 100 on
		score = append(score, bson.M{"$max": bson.A{0, bson.M{"$multiply": bson.A{
			colorBonus,
			bson.M{"$subtract": bson.A{1, bson.M{"$divide": bson.A{bson.M{"$ifNull": bson.A{"$_colorDistance", 100}}, 100}}}},
		}}}})
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$addFields", Value: bson.M{"_similarity": bson.M{"$add": score}}}},
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "_similarity", Value: -1},
			{Key: "ingestedAt", Value: -1},
			{Key: "_id", Value: 1},
		}}},
		bson.D{{Key: "$limit", Value: size}},
	)
	return pipeline, true
}

func similarityFields(src *models.Document) []similarityField {
	var fields []similarityField
	addArray := func(path string, weight int, values []string) {
		vals := bson.A{}
		for _, v := range values {
			if v != "" {
				vals = append(vals, v)
			}
		}
		if len(vals) > 0 {
			fields = append(fields, similarityField{path: path, weight: weight, values: vals, array: true})
		}
	}
	addScalar := func(path string, weight int, value string) {
		if value != "" {
			fields = append(fields, similarityField{path: path, weight: weight, values: bson.A{value}})
		}
	}

	var names []string
	for _, c := range src.Constituents {
		if c.CanonicalName != "" && normalize.Name(c.CanonicalName) != "unknown" {
			names = append(names, c.CanonicalName)
		}
	}
	addArray("constituents.canonicalName", weightConstituent, names)
	addScalar("classification", weightClassification, src.Classification)
	addArray("medium", weightDefault, src.Medium)
	addScalar("period", weightDefault, src.Period)
	addScalar("dynasty", weightDefault, src.Dynasty)
	addArray("departments", weightDefault, src.Departments)
	if g := src.PrimaryGeographicalLocation; g != nil {
		addScalar("primaryGeographicalLocation.name", weightDefault, g.Name)
	}
	return fields
}

// fieldScore awards the field weight when the candidate shares any value.
func fieldScore(f similarityField) bson.M {
	var shared bson.M
	if f.array {
		shared = bson.M{"$gt": bson.A{
			bson.M{"$size": bson.M{"$setIntersection": bson.A{
				bson.M{"$ifNull": bson.A{"$" + f.path, bson.A{}}},
				f.values,
			}}},
			0,
		}}
	} else {
		shared = bson.M{"$eq": bson.A{"$" + f.path, f.values[0]}}
	}
	return bson.M{"$cond": bson.A{shared, f.weight, 0}}
}
