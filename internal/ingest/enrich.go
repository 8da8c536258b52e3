package ingest

import (
	"context"
	"errors"
	"net/http"

	"museum-discovery/internal/authority"
	"museum-discovery/internal/errs"
	"museum-discovery/internal/palette"
	"museum-discovery/models"
)

// Enricher adds derived data to a transformed document before it is
// written. A returned error is logged and the document is kept.
type Enricher interface {
	Enrich(ctx context.Context, doc *models.Document) error
}

// runScoped is implemented by enrichers that keep per-run state.
type runScoped interface {
	ForRun() Enricher
}

// AuthorityEnricher resolves the primary constituent against the vocabulary
// and replaces its canonical name with the preferred term.
type AuthorityEnricher struct {
	Resolver authority.ConstituentResolver
}

// ForRun returns a copy whose lookups are memoized for one run.
func (e *AuthorityEnricher) ForRun() Enricher {
	return &AuthorityEnricher{Resolver: authority.NewRunCache(e.Resolver)}
}

func (e *AuthorityEnricher) Enrich(ctx context.Context, doc *models.Document) error {
	pc := doc.PrimaryConstituent
	if pc == nil || pc.Name == "" || isUnknown(pc.Name) {
		return nil
	}
	rec, err := e.Resolver.ResolveConstituent(ctx, pc.Name, pc.BirthYear, pc.DeathYear)
	if err != nil {
		if errors.Is(err, errs.ErrUpstreamUnavailable) {
			return nil
		}
		return err
	}
	if rec == nil {
		return nil
	}
	apply := func(c *models.Constituent) {
		c.CanonicalName = rec.PreferredTerm
		c.AuthorityID = rec.ID
		c.Authority = rec
	}
	for i := range doc.Constituents {
		c := &doc.Constituents[i]
		if c.Name == pc.Name && c.Rank == pc.Rank {
			apply(c)
		}
	}
	apply(pc)
	return nil
}

// ColorEnricher extracts the dominant colors of a document image.
type ColorEnricher struct {
	Client *http.Client
	Size   int
}

func (e *ColorEnricher) Enrich(ctx context.Context, doc *models.Document) error {
	if !doc.HasImage() || len(doc.Image.DominantColors) > 0 {
		return nil
	}
	src := doc.Image.ThumbnailURL
	if src == "" {
		src = doc.Image.URL
	}
	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	size := e.Size
	if size <= 0 {
		size = 5
	}
	colors, err := palette.Fetch(ctx, client, src, size)
	if err != nil {
		return err
	}
	doc.Image.DominantColors = colors
	return nil
}
