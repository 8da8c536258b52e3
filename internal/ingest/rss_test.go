package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"museum-discovery/internal/errs"
	"museum-discovery/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"
  xmlns:media="http://search.yahoo.com/mrss/"
  xmlns:content="http://purl.org/rss/1.0/modules/content/"
  xmlns:dc="http://purl.org/dc/elements/1.1/"
  xmlns:atom="http://www.w3.org/2005/Atom">
<channel>
  <title>Museum news</title>
  <atom:link href="https://www.example.org/feed" rel="self"/>
  <item>
    <title>Media wins</title>
    <link>https://www.example.org/news/media-wins/</link>
    <media:content url="https://cdn.example.org/media.jpg" medium="image"/>
    <content:encoded><![CDATA[<p><img src="https://cdn.example.org/content.jpg"></p>]]></content:encoded>
    <media:thumbnail url="https://cdn.example.org/thumb.jpg"/>
    <category>Exhibitions</category>
    <category>Exhibitions</category>
    <pubDate>Tue, 10 Oct 2023 09:00:00 +0000</pubDate>
    <dc:creator>Ada Lovelace</dc:creator>
  </item>
  <item>
    <title>Content image</title>
    <link>https://www.example.org/news/content-image</link>
    <content:encoded><![CDATA[<p><img src="https://cdn.example.org/content.jpg"></p>]]></content:encoded>
    <description><![CDATA[<img src="https://cdn.example.org/description.jpg">]]></description>
    <media:thumbnail url="https://cdn.example.org/thumb.jpg"/>
  </item>
  <item>
    <title>Description image</title>
    <link>https://www.example.org/news/description-image</link>
    <description><![CDATA[Intro <img src="https://cdn.example.org/description.jpg"> text]]></description>
    <media:thumbnail url="https://cdn.example.org/thumb.jpg"/>
  </item>
  <item>
    <title>Thumbnail only</title>
    <atom:link>https://www.example.org/atom/thumbnail-only</atom:link>
    <link>https://www.example.org/news/thumbnail-only</link>
    <media:group>
      <media:thumbnail url="https://cdn.example.org/thumb.jpg"/>
    </media:group>
    <dc:date>2023-06-01</dc:date>
  </item>
  <item>
    <title>Enclosure &amp; video</title>
    <link>https://www.example.org/news/enclosure</link>
    <media:content url="https://cdn.example.org/clip.mp4" type="video/mp4"/>
    <enclosure url="https://cdn.example.org/enclosure.png" type="image/png"/>
  </item>
  <item>
    <title>No link</title>
  </item>
</channel>
</rss>`

func collectItems(t *testing.T, feed string) []RSSItem {
	t.Helper()
	var items []RSSItem
	for it, err := range ParseRSS(strings.NewReader(feed)) {
		require.NoError(t, err)
		items = append(items, it)
	}
	return items
}

func TestParseRSSImageOrder(t *testing.T) {
	items := collectItems(t, testFeed)
	require.Len(t, items, 6)

	assert.Equal(t, "https://cdn.example.org/media.jpg", items[0].ImageURL())
	assert.Equal(t, "https://cdn.example.org/content.jpg", items[1].ImageURL())
	assert.Equal(t, "https://cdn.example.org/description.jpg", items[2].ImageURL())
	assert.Equal(t, "https://cdn.example.org/thumb.jpg", items[3].ImageURL())
	assert.Equal(t, "https://cdn.example.org/enclosure.png", items[4].ImageURL())
	assert.Empty(t, items[5].ImageURL())
}

func TestEnclosureWithoutTypeFallsBackToExtension(t *testing.T) {
	item := RSSItem{Enclosures: []RSSEnclosure{
		{URL: "https://cdn.example.org/podcast.mp3"},
		{URL: "https://cdn.example.org/untyped.JPG?w=800"},
	}}
	assert.Equal(t, "https://cdn.example.org/untyped.JPG?w=800", item.ImageURL())

	item = RSSItem{Enclosures: []RSSEnclosure{{URL: "https://cdn.example.org/photo.jpg", Type: "audio/mpeg"}}}
	assert.Empty(t, item.ImageURL())
}

func TestParseRSSIgnoresAtomLink(t *testing.T) {
	items := collectItems(t, testFeed)
	require.Len(t, items, 6)
	assert.Equal(t, "https://www.example.org/news/thumbnail-only", items[3].Link)
	assert.Equal(t, "2023-06-01", items[3].PubDate)
	assert.Equal(t, "Enclosure & video", items[4].Title)
}

func TestParseRSSSyntaxError(t *testing.T) {
	var gotErr error
	for _, err := range ParseRSS(strings.NewReader(`<rss><channel><item><title>x</title></chan`)) {
		if err != nil {
			gotErr = err
		}
	}
	assert.Error(t, gotErr)
}

func TestRSSTransform(t *testing.T) {
	items := collectItems(t, testFeed)
	sc := SourceContext{Name: "news-feed", SourceID: "news", Label: "Museum News", Index: "news"}

	doc, err := rssTransformer{}.Transform(items[0], sc)
	require.NoError(t, err)
	assert.Equal(t, "Media wins", doc.Title)
	assert.Equal(t, []string{"Exhibitions"}, doc.Keywords)
	assert.Equal(t, "Museum News", doc.Source)
	require.NotNil(t, doc.PrimaryConstituent)
	assert.Equal(t, "Ada Lovelace", doc.PrimaryConstituent.Name)
	assert.Equal(t, 2023, *doc.StartYear)
	assert.Equal(t, "October 10, 2023", doc.FormattedDate)
	assert.Equal(t, 1, doc.SortPriority)

	id, err := rssTransformer{}.GenerateID(doc)
	require.NoError(t, err)
	assert.Equal(t, "www-example-org-news-media-wins", id)

	_, err = rssTransformer{}.Transform(items[5], sc)
	assert.True(t, errs.IsMalformed(err))
}

func TestRSSSourceFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.xml")
	require.NoError(t, os.WriteFile(path, []byte(testFeed), 0o644))

	src, err := NewRegistry().Build(SourceConfig{
		Name: "news-feed", SourceID: "news", Label: "News", Transformer: TransformerRSS, Index: "news", File: path,
	}, Deps{})
	require.NoError(t, err)

	var ops []models.IngestionOperation
	skipped := 0
	for job, err := range src.Jobs(context.Background()) {
		require.NoError(t, err)
		op, err := job()
		if errs.IsMalformed(err) {
			skipped++
			continue
		}
		require.NoError(t, err)
		ops = append(ops, op)
	}
	assert.Len(t, ops, 5)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, "news", ops[0].Index)
	assert.Equal(t, ops[0].ID, ops[0].Document.ID)
}
