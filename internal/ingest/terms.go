package ingest

import (
	"slices"

	"museum-discovery/internal/index"
	"museum-discovery/internal/normalize"
	"museum-discovery/models"
)

// BuildTerms collects the distinct department, classification and primary
// constituent terms of docs. Later occurrences of an id are ignored.
func BuildTerms(source, idx string, docs []*models.Document) []models.Term {
	var terms []models.Term
	seen := make(map[string]bool)
	add := func(t models.Term) {
		if t.Value == "" || seen[t.ID] || normalize.Slug(t.Value) == "" {
			return
		}
		seen[t.ID] = true
		t.Suggest = suggestTokens(t.Value, t.Alternates)
		terms = append(terms, t)
	}

	for _, doc := range docs {
		if doc == nil {
			continue
		}
		for _, dept := range doc.Departments {
			add(models.Term{
				ID:     index.TermID(idx, index.TermFieldDepartments, dept),
				Source: source,
				Index:  idx,
				Field:  index.TermFieldDepartments,
				Value:  dept,
			})
		}
		if doc.Classification != "" {
			add(models.Term{
				ID:     index.TermID(idx, index.TermFieldClassification, doc.Classification),
				Source: source,
				Index:  idx,
				Field:  index.TermFieldClassification,
				Value:  doc.Classification,
			})
		}
		if c := doc.PrimaryConstituent; c != nil && c.CanonicalName != "" && !isUnknown(c.CanonicalName) {
			t := models.Term{
				ID:      index.TermID(idx, index.TermFieldConstituent, c.CanonicalName),
				Source:  source,
				Index:   idx,
				Field:   index.TermFieldConstituent,
				Value:   c.CanonicalName,
				Summary: c.Dates,
			}
			if rec := c.Authority; rec != nil {
				t.Data = rec
				t.Alternates = rec.NonPreferredTerms
				if rec.Biography != "" {
					t.Summary = rec.Biography
				}
			}
			add(t)
		}
	}
	return terms
}

func suggestTokens(value string, alternates []string) []string {
	var out []string
	for _, s := range append([]string{value}, alternates...) {
		for _, tok := range normalize.Tokens(s) {
			if !slices.Contains(out, tok) {
				out = append(out, tok)
			}
		}
	}
	return out
}

func isUnknown(name string) bool {
	return normalize.Name(name) == "unknown"
}
