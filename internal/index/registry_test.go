package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryAggregationsAreFilters(t *testing.T) {
	r := DefaultRegistry()
	for _, name := range append(r.Names(), All) {
		filters := r.FiltersFor(name)
		for _, agg := range r.FacetsFor(name) {
			assert.Contains(t, filters, agg, "index %s", name)
		}
	}
}

func TestUnknownIndexYieldsEmptySets(t *testing.T) {
	r := DefaultRegistry()
	assert.Empty(t, r.FacetsFor("paintings"))
	assert.Empty(t, r.FiltersFor("paintings"))
	_, ok := r.Lookup("paintings")
	assert.False(t, ok)
}

func TestArtFilters(t *testing.T) {
	r := DefaultRegistry()
	filters := r.FiltersFor(Art)
	assert.Contains(t, filters, FilterHasPhoto)
	assert.NotContains(t, r.FacetsFor(Art), FilterHasPhoto)
	assert.Equal(t, "source", r.FacetsFor(Art)[0])
	assert.True(t, r.IsFilter(Art, "medium"))
	assert.False(t, r.IsFilter(News, "medium"))
}

func TestFacetsForReturnsCopy(t *testing.T) {
	r := DefaultRegistry()
	facets := r.FacetsFor(Art)
	facets[0] = "mutated"
	assert.Equal(t, "source", r.FacetsFor(Art)[0])
}

func TestNamesExcludeAll(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{Art, News, Archives, Events}, r.Names())
	_, ok := r.Lookup(All)
	assert.True(t, ok)
}

func TestNewRegistryRejectsAggregationOutsideFilters(t *testing.T) {
	_, err := NewRegistry(Meta{Name: "x", Aggregations: []string{"a"}, Filters: []string{"b"}})
	require.Error(t, err)

	_, err = NewRegistry(Meta{Name: "x"}, Meta{Name: "x"})
	require.Error(t, err)

	r, err := NewRegistry(Meta{Name: "x", Aggregations: []string{"a"}, Filters: []string{"a", "b"}})
	require.NoError(t, err)
	m, _ := r.Lookup("x")
	assert.Equal(t, DefaultMaxResultWindow, m.MaxResultWindow)
	assert.Equal(t, 1.0, m.Boost)
}

func TestTermIDNormalizesConstituents(t *testing.T) {
	assert.Equal(t, TermID(Art, TermFieldConstituent, "Picasso, Pablo"), TermID(Art, TermFieldConstituent, "Pablo Picasso"))
	assert.Equal(t, "art-departments-arts-of-asia", TermID(Art, TermFieldDepartments, "Arts of Asia"))
}
