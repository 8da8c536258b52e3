package models

// Term is an entry of the completion structure built at ingestion time.
type Term struct {
	ID         string           `bson:"_id" json:"_id"`
	Source     string           `bson:"source,omitempty" json:"source,omitempty"`
	Index      string           `bson:"index" json:"index"`
	Field      string           `bson:"field" json:"field"`
	Value      string           `bson:"value" json:"value"`
	Alternates []string         `bson:"alternates,omitempty" json:"alternates,omitempty"`
	Summary    string           `bson:"summary,omitempty" json:"summary,omitempty"`
	Data       *AuthorityRecord `bson:"data,omitempty" json:"data,omitempty"`
	Suggest    []string         `bson:"suggest" json:"-"`
}

// AuthorityRecord is the canonical identity returned by a vocabulary lookup.
type AuthorityRecord struct {
	Query             string   `bson:"query" json:"query"`
	ID                string   `bson:"id" json:"id"`
	PreferredTerm     string   `bson:"preferredTerm" json:"preferredTerm"`
	NonPreferredTerms []string `bson:"nonPreferredTerms,omitempty" json:"nonPreferredTerms,omitempty"`
	Biography         string   `bson:"biography,omitempty" json:"biography,omitempty"`
	BirthYear         *int     `bson:"birthYear,omitempty" json:"birthYear,omitempty"`
	DeathYear         *int     `bson:"deathYear,omitempty" json:"deathYear,omitempty"`
}
