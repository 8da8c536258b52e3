package services

import (
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"museum-discovery/internal/errs"
	"museum-discovery/internal/index"
)

const (
	DefaultPageSize = 24
	MaxPageSize     = 100
)

// Sortable fields
var sortFields = []string{"title", "startYear", "primaryConstituent.canonicalName"}

var hexColor = regexp.MustCompile(`^[0-9a-f]{6}$`)

// FieldFilter is one active facet filter. Values are ORed.
type FieldFilter struct {
	Field  string
	Values []string
}

// SearchParams is the validated form of a search request.
type SearchParams struct {
	Index      string
	MultiIndex bool
	Query      string
	Page       int
	Size       int
	SortField  string
	SortOrder  string
	Filters    []FieldFilter
	StartYear  *int
	EndYear    *int
	Color      string

	HasPhoto       bool
	OnView         bool
	IsUnrestricted bool
}

// Skip is the number of hits before the requested page.
func (p SearchParams) Skip() int {
	return (p.Page - 1) * p.Size
}

// Filter returns the values of an active facet filter.
func (p SearchParams) Filter(field string) []string {
	for _, f := range p.Filters {
		if f.Field == field {
			return f.Values
		}
	}
	return nil
}

// ParseSearchParams reads and validates the query string of a search
// request. Filters that the index does not declare are ignored.
func ParseSearchParams(reg *index.Registry, q url.Values) (SearchParams, error) {
	p := SearchParams{
		Index:     strings.TrimSpace(q.Get("index")),
		Query:     strings.TrimSpace(q.Get("q")),
		Page:      1,
		Size:      DefaultPageSize,
		SortOrder: "asc",
	}

	if p.Index == "" || p.Index == index.All {
		p.Index = index.All
		p.MultiIndex = true
	} else if !slices.Contains(reg.Names(), p.Index) {
		return p, errs.Invalid("index", "unknown index %q", p.Index)
	}

	var err error
	if p.Page, err = intParam(q, "p", 1); err != nil {
		return p, err
	}
	if p.Page < 1 {
		return p, errs.Invalid("p", "must be at least 1")
	}
	if p.Size, err = intParam(q, "size", DefaultPageSize); err != nil {
		return p, err
	}
	if p.Size < 1 || p.Size > MaxPageSize {
		return p, errs.Invalid("size", "must be between 1 and %d", MaxPageSize)
	}

	if sf := q.Get("sf"); sf != "" {
		if !slices.Contains(sortFields, sf) {
			return p, errs.Invalid("sf", "cannot sort by %q", sf)
		}
		p.SortField = sf
	}
	if so := strings.ToLower(q.Get("so")); so != "" {
		if so != "asc" && so != "desc" {
			return p, errs.Invalid("so", "must be asc or desc")
		}
		p.SortOrder = so
	}

	if c := q.Get("color"); c != "" {
		c = strings.ToLower(strings.TrimPrefix(c, "#"))
		if !hexColor.MatchString(c) {
			return p, errs.Invalid("color", "expected 6 hex digits")
		}
		p.Color = c
	}

	if p.StartYear, err = optionalInt(q, "startYear"); err != nil {
		return p, err
	}
	if p.EndYear, err = optionalInt(q, "endYear"); err != nil {
		return p, err
	}

	for _, field := range reg.FacetsFor(p.Index) {
		var values []string
		for _, v := range q[field] {
			if v = strings.TrimSpace(v); v != "" && !slices.Contains(values, v) {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			p.Filters = append(p.Filters, FieldFilter{Field: field, Values: values})
		}
	}

	flags := []struct {
		name string
		dst  *bool
	}{
		{index.FilterHasPhoto, &p.HasPhoto},
		{index.FilterOnView, &p.OnView},
		{index.FilterIsUnrestricted, &p.IsUnrestricted},
	}
	for _, f := range flags {
		if !reg.IsFilter(p.Index, f.name) {
			continue
		}
		if *f.dst, err = boolParam(q, f.name); err != nil {
			return p, err
		}
	}
	return p, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Invalid(name, "%q is not a number", raw)
	}
	return n, nil
}

func optionalInt(q url.Values, name string) (*int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, errs.Invalid(name, "%q is not a year", raw)
	}
	return &n, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errs.Invalid(name, "%q is not a boolean", raw)
	}
	return b, nil
}
