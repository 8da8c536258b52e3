package services

import (
	"cmp"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"museum-discovery/internal/index"
	"museum-discovery/internal/normalize"
	"museum-discovery/models"

	"github.com/agnivade/levenshtein"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	SuggestLimit = 10
	TermsLimit   = 12

	valueHitWeight     = 3
	alternateHitWeight = 1
)

// TermsService answers completion and fuzzy term queries over the terms
// collection built at ingestion time.
type TermsService struct {
	reader index.Reader
}

func NewTermsService(reader index.Reader) *TermsService {
	return &TermsService{reader: reader}
}

// Suggest returns up to SuggestLimit terms in which every query token
// prefixes some token of the term. An empty query returns nil.
func (s *TermsService) Suggest(ctx context.Context, q string) ([]models.Term, error) {
	tokens := normalize.Tokens(q)
	if len(tokens) == 0 {
		return nil, nil
	}
	return s.find(ctx, SuggestPipeline(tokens))
}

// SuggestPipeline matches terms whose suggest tokens cover every prefix.
func SuggestPipeline(tokens []string) mongo.Pipeline {
	prefixes := make(bson.A, 0, len(tokens))
	for _, tok := range tokens {
		prefixes = append(prefixes, primitive.Regex{Pattern: "^" + regexp.QuoteMeta(tok)})
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"suggest": bson.M{"$all": prefixes}}}},
		{{Key: "$sort", Value: bson.D{{Key: "value", Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: SuggestLimit}},
	}
}

// Terms returns the best TermsLimit fuzzy matches for q. A term matches when
// any query token is within the edit distance allowed for its length of a
// token of the value or of an alternate. An empty query returns an empty
// slice.
func (s *TermsService) Terms(ctx context.Context, q string) ([]models.Term, error) {
	tokens := normalize.Tokens(q)
	if len(tokens) == 0 {
		return []models.Term{}, nil
	}
	candidates, err := s.find(ctx, TermsCandidatePipeline(tokens))
	if err != nil {
		return nil, err
	}
	return RankTerms(tokens, candidates, TermsLimit), nil
}

// TermsCandidatePipeline selects every term holding a suggest token that
// could be within fuzzy distance of a query token.
func TermsCandidatePipeline(tokens []string) mongo.Pipeline {
	patterns := make(bson.A, 0, len(tokens))
	seen := make(map[string]bool)
	for _, tok := range tokens {
		if seen[tok] {
			continue
		}
		seen[tok] = true
		patterns = append(patterns, primitive.Regex{Pattern: fuzzyPattern(tok)})
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"suggest": bson.M{"$in": patterns}}}},
	}
}

// fuzzyPattern matches tokens whose length is within the allowed distance
// of tok and which contain one of its k+1 disjoint chunks. k edits touch at
// most k chunks, so every match within distance k survives the filter.
func fuzzyPattern(tok string) string {
	k := Fuzziness(tok)
	if k == 0 {
		return "^" + regexp.QuoteMeta(tok) + "$"
	}
	runes := []rune(tok)
	n := len(runes)
	chunks := make([]string, 0, k+1)
	for i := 0; i <= k; i++ {
		lo, hi := i*n/(k+1), (i+1)*n/(k+1)
		chunks = append(chunks, regexp.QuoteMeta(string(runes[lo:hi])))
	}
	return fmt.Sprintf("^(?=.{%d,%d}$).*(?:%s)", max(1, n-k), n+k, strings.Join(chunks, "|"))
}

// RankTerms scores candidates against query tokens and keeps the best limit.
// A token hitting the value counts more than one hitting an alternate.
func RankTerms(tokens []string, candidates []models.Term, limit int) []models.Term {
	type scored struct {
		term  models.Term
		score int
	}
	var hits []scored
	for _, term := range candidates {
		valueTokens := normalize.Tokens(term.Value)
		var altTokens []string
		for _, alt := range term.Alternates {
			altTokens = append(altTokens, normalize.Tokens(alt)...)
		}

		score := 0
		for _, tok := range tokens {
			switch {
			case fuzzyContains(valueTokens, tok):
				score += valueHitWeight
			case fuzzyContains(altTokens, tok):
				score += alternateHitWeight
			}
		}
		if score > 0 {
			hits = append(hits, scored{term: term, score: score})
		}
	}

	slices.SortStableFunc(hits, func(a, b scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return strings.Compare(a.term.Value, b.term.Value)
	})
	out := make([]models.Term, 0, min(len(hits), limit))
	for _, h := range hits {
		if len(out) == limit {
			break
		}
		out = append(out, h.term)
	}
	return out
}

// Fuzziness is the AUTO:3,7 edit distance allowed for a token.
func Fuzziness(token string) int {
	switch n := len([]rune(token)); {
	case n < 3:
		return 0
	case n < 7:
		return 1
	default:
		return 2
	}
}

func fuzzyContains(candidates []string, tok string) bool {
	allowed := Fuzziness(tok)
	for _, c := range candidates {
		if c == tok || (allowed > 0 && levenshtein.ComputeDistance(c, tok) <= allowed) {
			return true
		}
	}
	return false
}

// ByID loads one term. A missing term is nil without error.
func (s *TermsService) ByID(ctx context.Context, id string) (*models.Term, error) {
	terms, err := s.find(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"_id": id}}},
		{{Key: "$limit", Value: 1}},
	})
	if err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return nil, nil
	}
	return &terms[0], nil
}

func (s *TermsService) find(ctx context.Context, pipeline mongo.Pipeline) ([]models.Term, error) {
	raws, err := s.reader.Aggregate(ctx, index.Terms, pipeline)
	if err != nil {
		return nil, err
	}
	terms := make([]models.Term, 0, len(raws))
	for _, raw := range raws {
		var t models.Term
		if err := bson.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode term: %w", err)
		}
		terms = append(terms, t)
	}
	return terms, nil
}
