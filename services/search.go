package services

import (
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"museum-discovery/internal/errs"
	"museum-discovery/internal/index"
	"museum-discovery/internal/logger"
	"museum-discovery/internal/palette"
	"museum-discovery/internal/telemetry"
	"museum-discovery/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBucketSize     = 20
	DefaultColorTolerance = 20.0
)

// Bucket is one facet value and its document count.
type Bucket struct {
	Key      string `bson:"_id" json:"key"`
	DocCount int64  `bson:"count" json:"doc_count"`
}

// SearchResult is one page of hits with the facets of the whole result set.
type SearchResult struct {
	Data         []models.Document       `json:"data"`
	TotalPages   int                     `json:"totalPages"`
	Total        int64                   `json:"total"`
	Aggregations map[string][]Bucket     `json:"aggregations"`
	Terms        []models.Term           `json:"terms,omitempty"`
	Filters      map[string]*models.Term `json:"filters,omitempty"`
}

// SearchOptions tune the searcher.
type SearchOptions struct {
	BucketSize     int
	ColorTolerance float64
	Metrics        *telemetry.Metrics
}

// Searcher turns search parameters into aggregation pipelines over the
// document index.
type Searcher struct {
	reader   index.Reader
	registry *index.Registry
	terms    *TermsService
	opts     SearchOptions
}

// NewSearcher returns a searcher reading through reader.
func NewSearcher(reader index.Reader, registry *index.Registry, opts SearchOptions) *Searcher {
	if opts.BucketSize <= 0 {
		opts.BucketSize = DefaultBucketSize
	}
	if opts.ColorTolerance <= 0 {
		opts.ColorTolerance = DefaultColorTolerance
	}
	return &Searcher{
		reader:   reader,
		registry: registry,
		terms:    NewTermsService(reader),
		opts:     opts,
	}
}

// Search runs p and returns one page of results. Out of window pages fail
// before any query is sent.
func (s *Searcher) Search(ctx context.Context, p SearchParams) (*SearchResult, error) {
	start := time.Now()
	ctx, span := otel.Tracer("services").Start(ctx, "search")
	span.SetAttributes(
		attribute.String("search.index", p.Index),
		attribute.String("search.query", p.Query),
		attribute.Int("search.page", p.Page),
	)
	defer span.End()

	res, err := s.search(ctx, p)
	s.opts.Metrics.RecordSearch(ctx, "search", p.Index, time.Since(start).Seconds(), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.attachExtras(ctx, p, res)
	return res, nil
}

func (s *Searcher) search(ctx context.Context, p SearchParams) (*SearchResult, error) {
	window := s.resultWindow(p.Index)
	if p.Page*p.Size > window {
		return nil, fmt.Errorf("%w: page %d with size %d exceeds %d results", errs.ErrOutOfRange, p.Page, p.Size, window)
	}

	var (
		page *facetPage
		err  error
	)
	switch {
	case !p.MultiIndex:
		page, err = s.single(ctx, p)
	case p.Query == "":
		page, err = s.union(ctx, p)
	default:
		page, err = s.fanOut(ctx, p)
	}
	if err != nil {
		return nil, err
	}

	res := &SearchResult{
		Data:         page.Hits,
		Total:        page.Total,
		Aggregations: page.Aggregations,
	}
	if res.Data == nil {
		res.Data = []models.Document{}
	}
	pages := int((page.Total + int64(p.Size) - 1) / int64(p.Size))
	res.TotalPages = min(pages, window/p.Size)
	return res, nil
}

func (s *Searcher) resultWindow(name string) int {
	if m, ok := s.registry.Lookup(name); ok && m.MaxResultWindow > 0 {
		return m.MaxResultWindow
	}
	return index.DefaultMaxResultWindow
}

// facetPage is the decoded output of a $facet stage.
type facetPage struct {
	Hits         []models.Document
	Total        int64
	Aggregations map[string][]Bucket
}

func (s *Searcher) single(ctx context.Context, p SearchParams) (*facetPage, error) {
	pipeline, err := s.BuildPipeline(p)
	if err != nil {
		return nil, err
	}
	page, err := s.run(ctx, p.Index, pipeline, s.registry.FacetsFor(p.Index))
	if err != nil {
		return nil, err
	}
	for i := range page.Hits {
		page.Hits[i].Index = p.Index
	}
	return page, nil
}

// union searches every physical index in one aggregation without free text.
func (s *Searcher) union(ctx context.Context, p SearchParams) (*facetPage, error) {
	pipeline, err := s.BuildUnionPipeline(p)
	if err != nil {
		return nil, err
	}
	names := s.registry.Names()
	return s.run(ctx, names[0], pipeline, s.registry.FacetsFor(index.All))
}

// fanOut runs one $text aggregation per index in parallel and merges them.
// $text is not allowed inside $unionWith.
func (s *Searcher) fanOut(ctx context.Context, p SearchParams) (*facetPage, error) {
	names := s.registry.Names()
	facets := s.registry.FacetsFor(index.All)
	pages := make([]*facetPage, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			branch := p
			branch.Index = name
			branch.MultiIndex = false
			pipeline, err := s.buildPipeline(branch, facets, 0, p.Page*p.Size, branchBucketSize(s.opts.BucketSize))
			if err != nil {
				return err
			}
			page, err := s.run(gctx, name, pipeline, facets)
			if err != nil {
				return fmt.Errorf("search %s: %w", name, err)
			}
			boost := 1.0
			if m, ok := s.registry.Lookup(name); ok && m.Boost > 0 {
				boost = m.Boost
			}
			for j := range page.Hits {
				page.Hits[j].Index = name
				page.Hits[j].Score *= boost
			}
			pages[i] = page
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergePages(pages, p, facets, s.opts.BucketSize), nil
}

func (s *Searcher) run(ctx context.Context, name string, pipeline mongo.Pipeline, facets []string) (*facetPage, error) {
	raws, err := s.reader.Aggregate(ctx, name, pipeline)
	if err != nil {
		return nil, err
	}
	page := &facetPage{Aggregations: make(map[string][]Bucket, len(facets))}
	if len(raws) == 0 {
		return page, nil
	}
	raw := raws[0]

	var out struct {
		Hits  []models.Document `bson:"hits"`
		Total []struct {
			Count int64 `bson:"count"`
		} `bson:"total"`
	}
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode search result: %w", err)
	}
	page.Hits = out.Hits
	if len(out.Total) > 0 {
		page.Total = out.Total[0].Count
	}
	for i, field := range facets {
		buckets := []Bucket{}
		if v, err := raw.LookupErr(facetKey(i)); err == nil {
			if err := v.Unmarshal(&buckets); err != nil {
				return nil, fmt.Errorf("decode facet %s: %w", field, err)
			}
		}
		page.Aggregations[field] = buckets
	}
	return page, nil
}

// BuildPipeline returns the aggregation for a single index search.
func (s *Searcher) BuildPipeline(p SearchParams) (mongo.Pipeline, error) {
	return s.buildPipeline(p, s.registry.FacetsFor(p.Index), p.Skip(), p.Size, s.opts.BucketSize)
}

func (s *Searcher) buildPipeline(p SearchParams, facets []string, skip, limit, bucketSize int) (mongo.Pipeline, error) {
	base, err := s.baseMatch(p, true)
	if err != nil {
		return nil, err
	}
	pipeline := mongo.Pipeline{{{Key: "$match", Value: base}}}
	if p.Query != "" {
		pipeline = append(pipeline, bson.D{{Key: "$addFields", Value: bson.M{"_score": bson.M{"$meta": "textScore"}}}})
	}
	if stage, ok := s.colorDistanceStage(p.Color); ok {
		pipeline = append(pipeline, stage)
	}
	pipeline = append(pipeline, s.facetStage(p, facets, skip, limit, bucketSize))
	return pipeline, nil
}

// BuildUnionPipeline returns the aggregation that searches every physical
// index through $unionWith. Each branch tags its documents with _index.
func (s *Searcher) BuildUnionPipeline(p SearchParams) (mongo.Pipeline, error) {
	base, err := s.baseMatch(p, false)
	if err != nil {
		return nil, err
	}
	names := s.registry.Names()
	branch := func(name string) mongo.Pipeline {
		return mongo.Pipeline{
			{{Key: "$match", Value: base}},
			{{Key: "$addFields", Value: bson.M{"_index": name}}},
		}
	}

	pipeline := branch(names[0])
	for _, name := range names[1:] {
		pipeline = append(pipeline, bson.D{{Key: "$unionWith", Value: bson.M{
			"coll":     name,
			"pipeline": branch(name),
		}}})
	}
	if stage, ok := s.colorDistanceStage(p.Color); ok {
		pipeline = append(pipeline, stage)
	}
	pipeline = append(pipeline, s.facetStage(p, s.registry.FacetsFor(index.All), p.Skip(), p.Size, s.opts.BucketSize))
	return pipeline, nil
}

// baseMatch holds every condition that is not a facet filter. $text is
// included when allowed and must stay in the first stage.
func (s *Searcher) baseMatch(p SearchParams, withText bool) (bson.D, error) {
	match := bson.D{}
	if withText && p.Query != "" {
		match = append(match, bson.E{Key: "$text", Value: bson.M{"$search": p.Query}})
	}
	if p.StartYear != nil {
		match = append(match, bson.E{Key: "startYear", Value: bson.M{"$gte": *p.StartYear}})
	}
	if p.EndYear != nil {
		match = append(match, bson.E{Key: "endYear", Value: bson.M{"$lte": *p.EndYear}})
	}
	if p.HasPhoto {
		match = append(match, bson.E{Key: "image.url", Value: bson.M{"$exists": true, "$ne": ""}})
	}
	if p.OnView {
		match = append(match, bson.E{Key: "onView", Value: true})
	}
	if p.IsUnrestricted {
		match = append(match, bson.E{Key: "copyrightRestricted", Value: bson.M{"$ne": true}})
	}
	if p.Color != "" {
		target, err := palette.FromHex(p.Color)
		if err != nil {
			return nil, errs.Invalid("color", "%v", err)
		}
		tol := s.opts.ColorTolerance
		match = append(match, bson.E{Key: "image.dominantColors", Value: bson.M{"$elemMatch": bson.M{
			"l": bson.M{"$gte": target.L - tol, "$lte": target.L + tol},
			"a": bson.M{"$gte": target.A - tol, "$lte": target.A + tol},
			"b": bson.M{"$gte": target.B - tol, "$lte": target.B + tol},
		}}})
	}
	return match, nil
}

// colorDistanceStage computes the distance from the target to the nearest
// palette entry of each document.
func (s *Searcher) colorDistanceStage(hex string) (bson.D, bool) {
	if hex == "" {
		return nil, false
	}
	target, err := palette.FromHex(hex)
	if err != nil {
		return nil, false
	}
	return bson.D{{Key: "$addFields", Value: bson.M{"_colorDistance": labDistanceExpr(target)}}}, true
}

func labDistanceExpr(target palette.Lab) bson.M {
	sq := func(field string, v float64) bson.M {
		return bson.M{"$pow": bson.A{bson.M{"$subtract": bson.A{"$$c." + field, v}}, 2}}
	}
	return bson.M{"$min": bson.M{"$map": bson.M{
		"input": bson.M{"$ifNull": bson.A{"$image.dominantColors", bson.A{}}},
		"as":    "c",
		"in":    bson.M{"$sqrt": bson.M{"$add": bson.A{sq("l", target.L), sq("a", target.A), sq("b", target.B)}}},
	}}}
}

// facetStage builds the $facet with the hit page, the total and one bucket
// list per facet field. Every facet branch applies all filters except its
// own field.
func (s *Searcher) facetStage(p SearchParams, facets []string, skip, limit, bucketSize int) bson.D {
	hits := mongo.Pipeline{
		{{Key: "$match", Value: filterMatch(p.Filters, "")}},
		{{Key: "$sort", Value: sortSpec(p)}},
	}
	if skip > 0 {
		hits = append(hits, bson.D{{Key: "$skip", Value: skip}})
	}
	hits = append(hits, bson.D{{Key: "$limit", Value: limit}})

	branches := bson.D{
		{Key: "hits", Value: hits},
		{Key: "total", Value: mongo.Pipeline{
			{{Key: "$match", Value: filterMatch(p.Filters, "")}},
			{{Key: "$count", Value: "count"}},
		}},
	}
	for i, field := range facets {
		branches = append(branches, bson.E{Key: facetKey(i), Value: bucketPipeline(field, filterMatch(p.Filters, field), "", bucketSize)})
	}
	return bson.D{{Key: "$facet", Value: branches}}
}

// branchBucketSize is how many buckets each index contributes before a
// merge cuts to size, so keys ranked just below the cut in one index can
// still surface after summing.
func branchBucketSize(size int) int {
	return size*3/2 + 10
}

func facetKey(i int) string {
	return fmt.Sprintf("agg_%d", i)
}

// filterMatch ANDs the facet filters, skipping except. Values of one field
// are ORed.
func filterMatch(filters []FieldFilter, except string) bson.D {
	match := bson.D{}
	for _, f := range filters {
		if f.Field == except {
			continue
		}
		match = append(match, bson.E{Key: f.Field, Value: bson.M{"$in": f.Values}})
	}
	return match
}

// bucketPipeline counts the values of field, optionally narrowed to keys
// containing contains.
func bucketPipeline(field string, match bson.D, contains string, size int) mongo.Pipeline {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$unwind", Value: "$" + field}},
		{{Key: "$group", Value: bson.M{"_id": bson.M{"$toString": "$" + field}, "count": bson.M{"$sum": 1}}}},
	}
	keyMatch := bson.M{"$nin": bson.A{nil, ""}}
	if contains != "" {
		keyMatch["$regex"] = primitive.Regex{Pattern: regexp.QuoteMeta(contains), Options: "i"}
	}
	pipeline = append(pipeline,
		bson.D{{Key: "$match", Value: bson.M{"_id": keyMatch}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		bson.D{{Key: "$limit", Value: size}},
	)
	return pipeline
}

// sortSpec orders hits: an explicit field first, otherwise color distance,
// relevance, sort priority and start year. _id breaks ties.
func sortSpec(p SearchParams) bson.D {
	if p.SortField != "" {
		dir := 1
		if p.SortOrder == "desc" {
			dir = -1
		}
		return bson.D{{Key: p.SortField, Value: dir}, {Key: "_id", Value: 1}}
	}
	order := bson.D{}
	if p.Color != "" {
		order = append(order, bson.E{Key: "_colorDistance", Value: 1})
	}
	if p.Query != "" {
		order = append(order, bson.E{Key: "_score", Value: -1})
	}
	return append(order,
		bson.E{Key: "sortPriority", Value: -1},
		bson.E{Key: "startYear", Value: -1},
		bson.E{Key: "_id", Value: 1},
	)
}

// mergePages combines per-index pages: totals and buckets are summed and
// hits are re-sorted before the requested page is cut.
func mergePages(pages []*facetPage, p SearchParams, facets []string, bucketSize int) *facetPage {
	merged := &facetPage{Aggregations: make(map[string][]Bucket, len(facets))}
	counts := make(map[string]map[string]int64, len(facets))
	for _, page := range pages {
		merged.Total += page.Total
		merged.Hits = append(merged.Hits, page.Hits...)
		for field, buckets := range page.Aggregations {
			if counts[field] == nil {
				counts[field] = make(map[string]int64)
			}
			for _, b := range buckets {
				counts[field][b.Key] += b.DocCount
			}
		}
	}

	slices.SortStableFunc(merged.Hits, func(a, b models.Document) int {
		return compareHits(p, &a, &b)
	})
	skip := min(p.Skip(), len(merged.Hits))
	end := min(skip+p.Size, len(merged.Hits))
	merged.Hits = merged.Hits[skip:end]

	for _, field := range facets {
		buckets := make([]Bucket, 0, len(counts[field]))
		for key, n := range counts[field] {
			buckets = append(buckets, Bucket{Key: key, DocCount: n})
		}
		slices.SortFunc(buckets, func(a, b Bucket) int {
			if c := cmp.Compare(b.DocCount, a.DocCount); c != 0 {
				return c
			}
			return strings.Compare(a.Key, b.Key)
		})
		if len(buckets) > bucketSize {
			buckets = buckets[:bucketSize]
		}
		merged.Aggregations[field] = buckets
	}
	return merged
}

// compareHits mirrors sortSpec for documents already in memory.
func compareHits(p SearchParams, a, b *models.Document) int {
	if p.SortField != "" {
		c := compareField(p.SortField, a, b)
		if p.SortOrder == "desc" {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	}
	if p.Color != "" {
		if c := compareOptional(a.ColorDistance, b.ColorDistance); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	if c := cmp.Compare(b.SortPriority, a.SortPriority); c != 0 {
		return c
	}
	if c := compareOptional(b.StartYear, a.StartYear); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func compareField(field string, a, b *models.Document) int {
	switch field {
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "startYear":
		return compareOptional(a.StartYear, b.StartYear)
	case "primaryConstituent.canonicalName":
		return strings.Compare(constituentName(a), constituentName(b))
	}
	return 0
}

func constituentName(d *models.Document) string {
	if d.PrimaryConstituent == nil {
		return ""
	}
	return d.PrimaryConstituent.CanonicalName
}

// compareOptional orders nil before any value, as the index does.
func compareOptional[T cmp.Ordered](a, b *T) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return cmp.Compare(*a, *b)
}

// Options lists the buckets of one facet field of an index, optionally
// narrowed by a case-insensitive substring.
func (s *Searcher) Options(ctx context.Context, name, field, q string) ([]Bucket, error) {
	if name == "" {
		name = index.All
	}
	if !slices.Contains(s.registry.FacetsFor(name), field) {
		return nil, errs.Invalid("field", "%q is not an aggregation of %s", field, name)
	}
	names := []string{name}
	size := s.opts.BucketSize
	if name == index.All {
		names = s.registry.Names()
		size = branchBucketSize(size)
	}

	pages := make([]*facetPage, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i, n := range names {
		g.Go(func() error {
			raws, err := s.reader.Aggregate(gctx, n, bucketPipeline(field, bson.D{}, strings.TrimSpace(q), size))
			if err != nil {
				return err
			}
			buckets := make([]Bucket, 0, len(raws))
			for _, raw := range raws {
				var b Bucket
				if err := bson.Unmarshal(raw, &b); err != nil {
					return fmt.Errorf("decode bucket: %w", err)
				}
				buckets = append(buckets, b)
			}
			pages[i] = &facetPage{Aggregations: map[string][]Bucket{field: buckets}}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mergePages(pages, SearchParams{Page: 1, Size: 1}, []string{field}, s.opts.BucketSize).Aggregations[field], nil
}

// attachExtras adds matching terms and the record of an active constituent
// filter. Both are optional and failures are only logged.
func (s *Searcher) attachExtras(ctx context.Context, p SearchParams, res *SearchResult) {
	if len([]rune(p.Query)) > 3 && p.Page == 1 {
		terms, err := s.terms.Terms(ctx, p.Query)
		if err != nil {
			logger.Warn("search: terms lookup failed", "query", p.Query, "error", err)
		} else if len(terms) > 0 {
			res.Terms = terms
		}
	}

	values := p.Filter(index.TermFieldConstituent)
	if len(values) == 0 || p.MultiIndex {
		return
	}
	term, err := s.terms.ByID(ctx, index.TermID(p.Index, index.TermFieldConstituent, values[0]))
	if err != nil {
		logger.Warn("search: filter term lookup failed", "value", values[0], "error", err)
		return
	}
	if term != nil {
		res.Filters = map[string]*models.Term{index.TermFieldConstituent: term}
	}
}
