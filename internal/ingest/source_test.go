package ingest

import (
	"testing"

	"museum-discovery/internal/errs"
	"museum-discovery/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourcesYAML = `
sources:
  - name: brooklyn
    sourceId: bkm
    label: Brooklyn Museum
    transformer: catalog
    file: data/bkm.jsonl.gz
    prune: true
  - name: museum-news
    transformer: rss
    url: https://www.example.org/feed
  - name: exhibitions
    transformer: exhibitions
    url: https://www.example.org/exhibitions
    nextSelector: a.next
    maxPages: 3
  - name: archive-dump
    transformer: catalog
    index: archives
    file: data/archives.csv
`

func TestParseSources(t *testing.T) {
	cfgs, err := ParseSources([]byte(sourcesYAML))
	require.NoError(t, err)
	require.Len(t, cfgs, 4)

	assert.Equal(t, "bkm", cfgs[0].SourceID)
	assert.Equal(t, "art", cfgs[0].Index)
	assert.True(t, cfgs[0].Prune)

	assert.Equal(t, "museum-news", cfgs[1].SourceID)
	assert.Equal(t, "museum-news", cfgs[1].Label)
	assert.Equal(t, "news", cfgs[1].Index)

	assert.Equal(t, "events", cfgs[2].Index)
	assert.Equal(t, "a.next", cfgs[2].NextSelector)
	assert.Equal(t, 3, cfgs[2].MaxPages)

	assert.Equal(t, "archives", cfgs[3].Index)
}

func TestParseSourcesRejects(t *testing.T) {
	cases := map[string]string{
		"missing name":        "sources:\n  - transformer: rss\n    url: x",
		"duplicate":           "sources:\n  - {name: a, transformer: rss, url: x}\n  - {name: a, transformer: rss, url: y}",
		"unknown transformer": "sources:\n  - {name: a, transformer: pdf, url: x}",
		"unknown index":       "sources:\n  - {name: a, transformer: rss, index: all, url: x}",
		"no location":         "sources:\n  - {name: a, transformer: rss}",
		"bad yaml":            "sources: [",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSources([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestSelect(t *testing.T) {
	cfgs, err := ParseSources([]byte(sourcesYAML))
	require.NoError(t, err)

	defaults, err := Select(cfgs, "")
	require.NoError(t, err)
	var names []string
	for _, c := range defaults {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"museum-news", "exhibitions"}, names)

	one, err := Select(cfgs, "brooklyn")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "bkm", one[0].SourceID)

	_, err = Select(cfgs, "missing")
	var verr *errs.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestRegistryUnknownTransformer(t *testing.T) {
	_, err := NewRegistry().Build(SourceConfig{Name: "x", Transformer: "nope"}, Deps{})
	assert.Error(t, err)
}

func TestIDs(t *testing.T) {
	id, err := URLID("HTTPS://www.Example.org:443/collection/objects/42/#details")
	require.NoError(t, err)
	assert.Equal(t, "www-example-org-collection-objects-42", id)

	_, err = URLID("not a url")
	assert.Error(t, err)

	id, err = SourceAwareID("bkm", " 225001 ")
	require.NoError(t, err)
	assert.Equal(t, "bkm_225001", id)

	_, err = SourceAwareID("bkm", "")
	assert.Error(t, err)

	assert.Equal(t, HashID("a", "b"), HashID("a", "b"))
	assert.NotEqual(t, HashID("a", "b"), HashID("ab"))
	assert.Len(t, HashID("x"), 64)
}

func TestContentTransform(t *testing.T) {
	sc := SourceContext{Name: "stories", SourceID: "stories", Label: "Stories", Index: "news"}

	doc, err := contentTransformer{}.Transform(ContentItem{
		ID:     "st-9",
		URL:    "https://www.example.org/stories/nine",
		Title:  "  A <em>closer</em> look ",
		Body:   `<p>Body text <img src="/img/nine.jpg"></p><script>x()</script>`,
		Author: "Grace Hopper",
		Date:   "2024-02-03",
	}, sc)
	require.NoError(t, err)
	assert.Equal(t, "A closer look", doc.Title)
	assert.Equal(t, "Body text", doc.SearchText)
	assert.Equal(t, "/img/nine.jpg", doc.Image.URL)
	assert.Equal(t, models.KindContent, doc.Type)
	assert.Equal(t, 2024, *doc.StartYear)

	id, err := contentTransformer{}.GenerateID(doc)
	require.NoError(t, err)
	assert.Equal(t, "stories_st-9", id)

	doc.RecordID = ""
	id, err = contentTransformer{}.GenerateID(doc)
	require.NoError(t, err)
	assert.Equal(t, "www-example-org-stories-nine", id)

	_, err = contentTransformer{}.Transform(ContentItem{Title: "orphan"}, sc)
	assert.True(t, errs.IsMalformed(err))
}

func TestBuildTerms(t *testing.T) {
	rec := &models.AuthorityRecord{
		ID:                "500004793",
		PreferredTerm:     "Cézanne, Paul",
		NonPreferredTerms: []string{"Paul Cezanne"},
		Biography:         "French painter, 1839-1906",
	}
	docs := []*models.Document{
		{
			Departments:    []string{"European Art"},
			Classification: "Painting",
			PrimaryConstituent: &models.Constituent{
				Name: "Paul Cézanne", CanonicalName: "Cézanne, Paul", Authority: rec,
			},
		},
		{
			Departments:        []string{"European Art", "Prints"},
			Classification:     "Painting",
			PrimaryConstituent: &models.Constituent{Name: "Unknown", CanonicalName: "Unknown"},
		},
		nil,
	}

	terms := BuildTerms("Brooklyn", "art", docs)
	byID := make(map[string]models.Term)
	for _, term := range terms {
		byID[term.ID] = term
	}
	require.Len(t, byID, 4)
	assert.Len(t, terms, 4)

	artist, ok := byID["art-primaryConstituent.canonicalName-paul-cezanne"]
	require.True(t, ok)
	assert.Equal(t, "Cézanne, Paul", artist.Value)
	assert.Equal(t, "French painter, 1839-1906", artist.Summary)
	assert.Equal(t, []string{"cezanne", "paul"}, artist.Suggest)
	assert.Same(t, rec, artist.Data)

	dept, ok := byID["art-departments-european-art"]
	require.True(t, ok)
	assert.Equal(t, "Brooklyn", dept.Source)
	assert.Equal(t, []string{"european", "art"}, dept.Suggest)

	_, ok = byID["art-classification-painting"]
	assert.True(t, ok)
	_, ok = byID["art-departments-prints"]
	assert.True(t, ok)
}

