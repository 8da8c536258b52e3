package index

import (
	"fmt"

	"museum-discovery/internal/normalize"
)

// Fields that feed the terms collection.
const (
	TermFieldDepartments    = "departments"
	TermFieldClassification = "classification"
	TermFieldConstituent    = "primaryConstituent.canonicalName"
)

// TermID builds the stable id of a term document. Constituent names are
// normalized first so "Picasso, Pablo" and "Pablo Picasso" share an id.
func TermID(index, field, value string) string {
	key := normalize.Slug(value)
	if field == TermFieldConstituent {
		key = normalize.Slug(normalize.Name(value))
	}
	return fmt.Sprintf("%s-%s-%s", index, field, key)
}
