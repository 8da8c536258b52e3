// Package index declares the searchable indices and wraps the document store
// behind them.
package index

import (
	"fmt"

	"museum-discovery/models"
)

// Index names
const (
	Art      = "art"
	News     = "news"
	Archives = "archives"
	Events   = "events"
	All      = "all"
	Terms    = "terms"
)

// Boolean filters that are not aggregated.
const (
	FilterHasPhoto       = "hasPhoto"
	FilterOnView         = "onView"
	FilterIsUnrestricted = "isUnrestricted"
)

// DefaultMaxResultWindow bounds offset pagination.
const DefaultMaxResultWindow = 10000

// Meta is the static declaration of one index.
type Meta struct {
	Name            string
	Kind            string
	Aggregations    []string
	Filters         []string
	MaxResultWindow int
	// TextWeights feeds the weighted text index. Title carries the boost.
	TextWeights map[string]int32
	// Boost scales text scores when indices are merged.
	Boost float64
}

// Registry is an immutable table of index metadata.
type Registry struct {
	byName map[string]Meta
	names  []string
}

// NewRegistry validates metas and builds a registry. Physical indices keep
// declaration order; the All pseudo-index is addressable but not listed.
func NewRegistry(metas ...Meta) (*Registry, error) {
	r := &Registry{byName: make(map[string]Meta, len(metas))}
	for _, m := range metas {
		if m.Name == "" {
			return nil, fmt.Errorf("index meta without name")
		}
		if _, dup := r.byName[m.Name]; dup {
			return nil, fmt.Errorf("index %s declared twice", m.Name)
		}
		filters := make(map[string]bool, len(m.Filters))
		for _, f := range m.Filters {
			filters[f] = true
		}
		for _, agg := range m.Aggregations {
			if !filters[agg] {
				return nil, fmt.Errorf("index %s: aggregation %s is not a filter", m.Name, agg)
			}
		}
		if m.MaxResultWindow <= 0 {
			m.MaxResultWindow = DefaultMaxResultWindow
		}
		if m.Boost == 0 {
			m.Boost = 1
		}
		r.byName[m.Name] = m
		if m.Name != All {
			r.names = append(r.names, m.Name)
		}
	}
	return r, nil
}

// FacetsFor returns the aggregation fields of index, or nil if unknown.
func (r *Registry) FacetsFor(index string) []string {
	m, ok := r.byName[index]
	if !ok {
		return nil
	}
	return append([]string(nil), m.Aggregations...)
}

// FiltersFor returns the filter fields of index, or nil if unknown.
func (r *Registry) FiltersFor(index string) []string {
	m, ok := r.byName[index]
	if !ok {
		return nil
	}
	return append([]string(nil), m.Filters...)
}

// IsFilter reports whether field may filter index.
func (r *Registry) IsFilter(index, field string) bool {
	for _, f := range r.byName[index].Filters {
		if f == field {
			return true
		}
	}
	return false
}

// Lookup returns the metadata of index.
func (r *Registry) Lookup(index string) (Meta, bool) {
	m, ok := r.byName[index]
	return m, ok
}

// Names returns the physical indices in declaration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

var artAggregations = []string{
	"source",
	"primaryConstituent.canonicalName",
	"classification",
	"medium",
	"departments",
	"period",
	"dynasty",
	"primaryGeographicalLocation.continent",
	"primaryGeographicalLocation.country",
	"primaryGeographicalLocation.name",
	"museumLocation.name",
	"exhibitions",
	"section",
}

// DefaultRegistry returns the registry used by the service.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Meta{
			Name:         Art,
			Kind:         models.KindCollectionObject,
			Aggregations: artAggregations,
			Filters:      append(append([]string(nil), artAggregations...), FilterIsUnrestricted, FilterHasPhoto, FilterOnView),
			TextWeights: map[string]int32{
				"boostedKeywords":                  20,
				"primaryConstituent.canonicalName": 6,
				"title":                            4,
				"keywords":                         4,
				"accessionNumber":                  2,
				"constituents.name":                2,
				"description":                      1,
				"searchText":                       1,
				"exhibitions":                      1,
			},
		},
		Meta{
			Name:         News,
			Kind:         models.KindContent,
			Aggregations: []string{"source"},
			Filters:      []string{"source"},
			TextWeights:  map[string]int32{"title": 4, "description": 1, "searchText": 1},
			Boost:        1.5,
		},
		Meta{
			Name:         Archives,
			Kind:         models.KindArchive,
			Aggregations: []string{"source", "subject", "format", "language"},
			Filters:      []string{"source", "subject", "format", "language", FilterHasPhoto},
			TextWeights:  map[string]int32{"title": 4, "subject": 2, "description": 1, "searchText": 1},
		},
		Meta{
			Name:         Events,
			Kind:         models.KindEvent,
			Aggregations: []string{"source", "location"},
			Filters:      []string{"source", "location"},
			TextWeights:  map[string]int32{"title": 4, "location": 1, "description": 1, "searchText": 1},
			Boost:        1.5,
		},
		Meta{
			Name:         All,
			Aggregations: []string{"source"},
			Filters:      []string{"source"},
		},
	)
	if err != nil {
		panic(err)
	}
	return r
}
