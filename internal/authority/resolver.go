// Package authority resolves free-text person names against an external
// vocabulary of canonical identities.
package authority

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"museum-discovery/internal/errs"
	"museum-discovery/internal/logger"
	"museum-discovery/internal/normalize"
	"museum-discovery/models"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// Candidate is one loosely ranked vocabulary match.
type Candidate struct {
	ID                string   `json:"id"`
	PreferredTerm     string   `json:"preferredTerm"`
	NonPreferredTerms []string `json:"nonPreferredTerms,omitempty"`
	Biography         string   `json:"biography,omitempty"`
	BirthYear         *int     `json:"birthDate,omitempty"`
	DeathYear         *int     `json:"deathDate,omitempty"`
}

// Vocabulary returns ranked candidates for a name, best first.
type Vocabulary interface {
	Lookup(ctx context.Context, name string) ([]Candidate, error)
}

// Options tune how the vocabulary is called.
type Options struct {
	Timeout       time.Duration
	RequestsPerS  float64
	OnStateChange func(name string, from, to gobreaker.State)
}

// Resolver applies a deterministic tie-break over vocabulary candidates.
type Resolver struct {
	vocab   Vocabulary
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewResolver wraps vocab with a timeout, a rate limiter and a breaker.
// Lookups are attempted once.
func NewResolver(vocab Vocabulary, opts Options) *Resolver {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.RequestsPerS <= 0 {
		opts.RequestsPerS = 10
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "VocabularyLookup",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if opts.OnStateChange != nil {
				opts.OnStateChange(name, from, to)
			}
		},
	})
	return &Resolver{
		vocab:   vocab,
		timeout: opts.Timeout,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerS), int(opts.RequestsPerS)+1),
	}
}

// Resolve returns the authority record for rawName, or nil when no candidate
// clears the bar. Lookup failures are wrapped in errs.ErrUpstreamUnavailable.
func (r *Resolver) Resolve(ctx context.Context, rawName string) (*models.AuthorityRecord, error) {
	return r.ResolveConstituent(ctx, rawName, nil, nil)
}

// ResolveConstituent is Resolve with optional life dates. Among exact
// matches a candidate whose known dates agree is preferred.
func (r *Resolver) ResolveConstituent(ctx context.Context, rawName string, birthYear, deathYear *int) (*models.AuthorityRecord, error) {
	query := normalize.Name(rawName)
	if query == "" {
		return nil, nil
	}

	ctx, span := otel.Tracer("museum-discovery").Start(ctx, "authority.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("authority.query", query))

	candidates, err := r.lookup(ctx, rawName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("authority.candidates", len(candidates)))

	if c := pick(query, candidates, birthYear, deathYear); c != nil {
		return record(query, c), nil
	}
	return nil, nil
}

func (r *Resolver) lookup(ctx context.Context, name string) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: vocabulary rate limit: %v", errs.ErrUpstreamUnavailable, err)
	}
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.vocab.Lookup(ctx, name)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: vocabulary circuit open", errs.ErrUpstreamUnavailable)
		}
		return nil, fmt.Errorf("%w: vocabulary lookup: %v", errs.ErrUpstreamUnavailable, err)
	}
	candidates, _ := result.([]Candidate)
	return candidates, nil
}

// pick applies the tie-break: an exact normalized match on a preferred or
// non-preferred term wins, otherwise the top candidate must share the first
// token with one of its terms.
func pick(query string, candidates []Candidate, birthYear, deathYear *int) *Candidate {
	var exact *Candidate
	for i := range candidates {
		c := &candidates[i]
		if !c.matches(query, normalize.Name) {
			continue
		}
		if datesAgree(c, birthYear, deathYear) {
			return c
		}
		if exact == nil {
			exact = c
		}
	}
	if exact != nil {
		return exact
	}
	if len(candidates) == 0 {
		return nil
	}
	top := &candidates[0]
	first := firstToken(query)
	if top.matches(first, func(term string) string { return firstToken(normalize.Name(term)) }) {
		return top
	}
	return nil
}

// matches reports whether key(term) equals want for any of c's terms.
func (c *Candidate) matches(want string, key func(string) string) bool {
	if key(c.PreferredTerm) == want {
		return true
	}
	for _, term := range c.NonPreferredTerms {
		if key(term) == want {
			return true
		}
	}
	return false
}

func datesAgree(c *Candidate, birthYear, deathYear *int) bool {
	if birthYear == nil && deathYear == nil {
		return true
	}
	if birthYear != nil && (c.BirthYear == nil || *c.BirthYear != *birthYear) {
		return false
	}
	if deathYear != nil && (c.DeathYear == nil || *c.DeathYear != *deathYear) {
		return false
	}
	return true
}

func firstToken(s string) string {
	tok, _, _ := strings.Cut(s, " ")
	return tok
}

func record(query string, c *Candidate) *models.AuthorityRecord {
	return &models.AuthorityRecord{
		Query:             query,
		ID:                c.ID,
		PreferredTerm:     c.PreferredTerm,
		NonPreferredTerms: c.NonPreferredTerms,
		Biography:         c.Biography,
		BirthYear:         c.BirthYear,
		DeathYear:         c.DeathYear,
	}
}

// ConstituentResolver is what ingestion needs from a resolver.
type ConstituentResolver interface {
	ResolveConstituent(ctx context.Context, rawName string, birthYear, deathYear *int) (*models.AuthorityRecord, error)
}

// RunCache memoizes lookups for the lifetime of one ingestion run. Failed
// lookups are cached as misses so an unavailable service is asked once per
// name.
type RunCache struct {
	resolver ConstituentResolver
	mu       sync.Mutex
	entries  map[string]*models.AuthorityRecord
}

// NewRunCache returns an empty cache in front of resolver.
func NewRunCache(resolver ConstituentResolver) *RunCache {
	return &RunCache{resolver: resolver, entries: make(map[string]*models.AuthorityRecord)}
}

func (c *RunCache) ResolveConstituent(ctx context.Context, rawName string, birthYear, deathYear *int) (*models.AuthorityRecord, error) {
	key := cacheKey(rawName, birthYear, deathYear)
	c.mu.Lock()
	rec, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return rec, nil
	}

	rec, err := c.resolver.ResolveConstituent(ctx, rawName, birthYear, deathYear)
	c.mu.Lock()
	c.entries[key] = rec
	c.mu.Unlock()
	return rec, err
}

// Len returns the number of cached names.
func (c *RunCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func cacheKey(name string, birthYear, deathYear *int) string {
	key := normalize.Name(name)
	if birthYear != nil {
		key += fmt.Sprintf("|b%d", *birthYear)
	}
	if deathYear != nil {
		key += fmt.Sprintf("|d%d", *deathYear)
	}
	return key
}
