package models

import (
	"time"
)

// Index kinds
const (
	KindCollectionObject = "collection-object"
	KindContent          = "content"
	KindArchive          = "archive"
	KindEvent            = "event"
)

// Document is the canonical record stored in and returned by every index.
// Index specific fields are left empty by sources that do not carry them.
type Document struct {
	ID       string `bson:"_id,omitempty" json:"_id"`
	Index    string `bson:"_index,omitempty" json:"_index,omitempty"` // attached at read time only
	Source   string `bson:"source,omitempty" json:"source,omitempty"`
	SourceID string `bson:"sourceId,omitempty" json:"sourceId,omitempty"`
	Type     string `bson:"type,omitempty" json:"type,omitempty"`
	URL      string `bson:"url,omitempty" json:"url,omitempty"`
	// RecordID is the identifier of the record inside its source system.
	RecordID string `bson:"recordId,omitempty" json:"recordId,omitempty"`

	Title           string   `bson:"title,omitempty" json:"title,omitempty"`
	Description     string   `bson:"description,omitempty" json:"description,omitempty"`
	SearchText      string   `bson:"searchText,omitempty" json:"searchText,omitempty"`
	Keywords        []string `bson:"keywords,omitempty" json:"keywords,omitempty"`
	BoostedKeywords []string `bson:"boostedKeywords,omitempty" json:"boostedKeywords,omitempty"`

	Date          string `bson:"date,omitempty" json:"date,omitempty"`
	FormattedDate string `bson:"formattedDate,omitempty" json:"formattedDate,omitempty"`
	StartYear     *int   `bson:"startYear,omitempty" json:"startYear,omitempty"`
	EndYear       *int   `bson:"endYear,omitempty" json:"endYear,omitempty"`
	EndDate       string `bson:"endDate,omitempty" json:"endDate,omitempty"`

	Image *Image `bson:"image,omitempty" json:"image,omitempty"`

	PrimaryConstituent *Constituent  `bson:"primaryConstituent,omitempty" json:"primaryConstituent,omitempty"`
	Constituents       []Constituent `bson:"constituents,omitempty" json:"constituents,omitempty"`

	PrimaryGeographicalLocation *GeographicalLocation  `bson:"primaryGeographicalLocation,omitempty" json:"primaryGeographicalLocation,omitempty"`
	GeographicalLocations       []GeographicalLocation `bson:"geographicalLocations,omitempty" json:"geographicalLocations,omitempty"`

	// collection-object
	AccessionNumber     string          `bson:"accessionNumber,omitempty" json:"accessionNumber,omitempty"`
	Classification      string          `bson:"classification,omitempty" json:"classification,omitempty"`
	Medium              []string        `bson:"medium,omitempty" json:"medium,omitempty"`
	FormattedMedium     string          `bson:"formattedMedium,omitempty" json:"formattedMedium,omitempty"`
	Dimensions          string          `bson:"dimensions,omitempty" json:"dimensions,omitempty"`
	Departments         []string        `bson:"departments,omitempty" json:"departments,omitempty"`
	Period              string          `bson:"period,omitempty" json:"period,omitempty"`
	Dynasty             string          `bson:"dynasty,omitempty" json:"dynasty,omitempty"`
	CreditLine          string          `bson:"creditLine,omitempty" json:"creditLine,omitempty"`
	CopyrightRestricted bool            `bson:"copyrightRestricted" json:"copyrightRestricted"`
	MuseumLocation      *MuseumLocation `bson:"museumLocation,omitempty" json:"museumLocation,omitempty"`
	OnView              bool            `bson:"onView" json:"onView"`
	Exhibitions         []string        `bson:"exhibitions,omitempty" json:"exhibitions,omitempty"`
	Section             string          `bson:"section,omitempty" json:"section,omitempty"`

	// event
	Location string `bson:"location,omitempty" json:"location,omitempty"`

	// archive
	Subject  string `bson:"subject,omitempty" json:"subject,omitempty"`
	Format   string `bson:"format,omitempty" json:"format,omitempty"`
	Language string `bson:"language,omitempty" json:"language,omitempty"`

	SortPriority int        `bson:"sortPriority,omitempty" json:"sortPriority,omitempty"`
	IngestedAt   *time.Time `bson:"ingestedAt,omitempty" json:"ingestedAt,omitempty"`

	// Computed by read pipelines, never persisted.
	Score         float64  `bson:"_score,omitempty" json:"-"`
	Similarity    float64  `bson:"_similarity,omitempty" json:"-"`
	ColorDistance *float64 `bson:"_colorDistance,omitempty" json:"-"`
}

// Image is the primary image of a document.
type Image struct {
	URL            string          `bson:"url,omitempty" json:"url,omitempty"`
	ThumbnailURL   string          `bson:"thumbnailUrl,omitempty" json:"thumbnailUrl,omitempty"`
	Alt            string          `bson:"alt,omitempty" json:"alt,omitempty"`
	DominantColors []DominantColor `bson:"dominantColors,omitempty" json:"dominantColors,omitempty"`
}

// DominantColor is one palette entry in CIE Lab (L 0..100).
type DominantColor struct {
	L       float64 `bson:"l" json:"l"`
	A       float64 `bson:"a" json:"a"`
	B       float64 `bson:"b" json:"b"`
	Hex     string  `bson:"hex" json:"hex"`
	Percent float64 `bson:"percent" json:"percent"`
}

// Constituent is a person or organization credited on a document.
type Constituent struct {
	ID            string `bson:"id,omitempty" json:"id,omitempty"`
	Name          string `bson:"name" json:"name"`
	CanonicalName string `bson:"canonicalName,omitempty" json:"canonicalName,omitempty"`
	Role          string `bson:"role,omitempty" json:"role,omitempty"`
	Rank          int    `bson:"rank" json:"rank"`
	Dates         string `bson:"dates,omitempty" json:"dates,omitempty"`
	BirthYear     *int   `bson:"birthYear,omitempty" json:"birthYear,omitempty"`
	DeathYear     *int   `bson:"deathYear,omitempty" json:"deathYear,omitempty"`
	Nationality   string `bson:"nationality,omitempty" json:"nationality,omitempty"`
	AuthorityID   string `bson:"authorityId,omitempty" json:"authorityId,omitempty"`

	// Authority is attached by enrichment and only feeds term building.
	Authority *AuthorityRecord `bson:"-" json:"-"`
}

// GeographicalLocation is a place associated with a document.
type GeographicalLocation struct {
	ID        string `bson:"id,omitempty" json:"id,omitempty"`
	Name      string `bson:"name" json:"name"`
	Type      string `bson:"type,omitempty" json:"type,omitempty"`
	Continent string `bson:"continent,omitempty" json:"continent,omitempty"`
	Country   string `bson:"country,omitempty" json:"country,omitempty"`
}

// MuseumLocation is the gallery an object is displayed in.
type MuseumLocation struct {
	ID       string `bson:"id,omitempty" json:"id,omitempty"`
	Name     string `bson:"name" json:"name"`
	IsPublic bool   `bson:"isPublic" json:"isPublic"`
}

// HasImage reports whether the document carries a usable image URL.
func (d *Document) HasImage() bool {
	return d.Image != nil && d.Image.URL != ""
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
