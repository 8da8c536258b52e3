package ingest

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"iter"
	"path"
	"strings"
	"time"

	"museum-discovery/internal/crawler"
	"museum-discovery/internal/errs"
	"museum-discovery/models"

	"golang.org/x/net/html/charset"
)

const (
	nsMedia   = "http://search.yahoo.com/mrss/"
	nsContent = "http://purl.org/rss/1.0/modules/content/"
	nsDC      = "http://purl.org/dc/elements/1.1/"

	rssAccept = "application/rss+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5"
)

// RSSItem is one <item> of an RSS 2.0 feed with the media, content and
// Dublin Core extensions.
type RSSItem struct {
	Title           string
	Link            string
	GUID            string
	Description     string
	ContentEncoded  string
	PubDate         string
	Creator         string
	Categories      []string
	MediaContent    []RSSMedia
	MediaThumbnails []RSSMedia
	Enclosures      []RSSEnclosure
}

// RSSMedia is a media:content or media:thumbnail element.
type RSSMedia struct {
	URL    string `xml:"url,attr"`
	Type   string `xml:"type,attr"`
	Medium string `xml:"medium,attr"`
}

// RSSEnclosure is an <enclosure> element.
type RSSEnclosure struct {
	URL  string `xml:"url,attr"`
	Type string `xml:"type,attr"`
}

// xmlText keeps the element name so that unprefixed RSS elements can be told
// apart from same-named extension elements (atom:link, media:title).
type xmlText struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type rawItem struct {
	Titles       []xmlText      `xml:"title"`
	Links        []xmlText      `xml:"link"`
	GUIDs        []xmlText      `xml:"guid"`
	Descriptions []xmlText      `xml:"description"`
	PubDates     []xmlText      `xml:"pubDate"`
	Categories   []xmlText      `xml:"category"`
	Enclosures   []RSSEnclosure `xml:"enclosure"`

	Encoded string `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
	DCDate  string `xml:"http://purl.org/dc/elements/1.1/ date"`
	Creator string `xml:"http://purl.org/dc/elements/1.1/ creator"`

	MediaContent    []RSSMedia `xml:"http://search.yahoo.com/mrss/ content"`
	MediaThumbnails []RSSMedia `xml:"http://search.yahoo.com/mrss/ thumbnail"`
	MediaGroups     []struct {
		Content    []RSSMedia `xml:"http://search.yahoo.com/mrss/ content"`
		Thumbnails []RSSMedia `xml:"http://search.yahoo.com/mrss/ thumbnail"`
	} `xml:"http://search.yahoo.com/mrss/ group"`
}

func plain(values []xmlText) []string {
	var out []string
	for _, v := range values {
		if v.XMLName.Space != "" {
			continue
		}
		if s := strings.TrimSpace(v.Value); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func firstPlain(values []xmlText) string {
	if vals := plain(values); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func (r *rawItem) item() RSSItem {
	it := RSSItem{
		Title:           firstPlain(r.Titles),
		Link:            firstPlain(r.Links),
		GUID:            firstPlain(r.GUIDs),
		Description:     firstPlain(r.Descriptions),
		ContentEncoded:  strings.TrimSpace(r.Encoded),
		PubDate:         firstPlain(r.PubDates),
		Creator:         strings.TrimSpace(r.Creator),
		Categories:      plain(r.Categories),
		MediaContent:    r.MediaContent,
		MediaThumbnails: r.MediaThumbnails,
		Enclosures:      r.Enclosures,
	}
	if it.PubDate == "" {
		it.PubDate = strings.TrimSpace(r.DCDate)
	}
	for _, g := range r.MediaGroups {
		it.MediaContent = append(it.MediaContent, g.Content...)
		it.MediaThumbnails = append(it.MediaThumbnails, g.Thumbnails...)
	}
	return it
}

// ParseRSS streams the items of a feed. The document encoding declaration is
// honored. A syntax error ends the sequence.
func ParseRSS(r io.Reader) iter.Seq2[RSSItem, error] {
	return func(yield func(RSSItem, error) bool) {
		dec := xml.NewDecoder(r)
		dec.CharsetReader = charset.NewReaderLabel
		dec.Strict = false
		dec.Entity = xml.HTMLEntity

		for {
			tok, err := dec.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(RSSItem{}, fmt.Errorf("parse feed: %w", err))
				return
			}
			se, ok := tok.(xml.StartElement)
			if !ok || se.Name.Local != "item" {
				continue
			}
			var raw rawItem
			if err := dec.DecodeElement(&raw, &se); err != nil {
				yield(RSSItem{}, fmt.Errorf("parse feed item: %w", err))
				return
			}
			if !yield(raw.item(), nil) {
				return
			}
		}
	}
}

// ImageURL picks the item image: an image media:content or enclosure, then
// the first <img> of content:encoded, then of the description, then the
// media thumbnail.
func (it RSSItem) ImageURL() string {
	for _, m := range it.MediaContent {
		if m.URL != "" && isImageMedia(m.Medium, m.Type, m.URL) {
			return m.URL
		}
	}
	for _, e := range it.Enclosures {
		if e.URL != "" && isImageMedia("", e.Type, e.URL) {
			return e.URL
		}
	}
	if src := crawler.FirstImageSource(it.ContentEncoded); src != "" {
		return src
	}
	if src := crawler.FirstImageSource(it.Description); src != "" {
		return src
	}
	for _, m := range it.MediaThumbnails {
		if m.URL != "" {
			return m.URL
		}
	}
	return ""
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

func isImageMedia(medium, mimeType, rawURL string) bool {
	if medium != "" {
		return strings.EqualFold(medium, "image")
	}
	if mimeType != "" {
		return strings.HasPrefix(strings.ToLower(mimeType), "image/")
	}
	p, _, _ := strings.Cut(rawURL, "?")
	return imageExtensions[strings.ToLower(path.Ext(p))]
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parsePubDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

type rssTransformer struct{}

func (rssTransformer) GenerateID(doc *models.Document) (string, error) {
	return URLID(doc.URL)
}

func (rssTransformer) Transform(it RSSItem, sc SourceContext) (*models.Document, error) {
	link := it.Link
	if link == "" && strings.HasPrefix(it.GUID, "http") {
		link = it.GUID
	}
	if link == "" {
		return nil, errs.Malformed(sc.Name, "item has no link", nil)
	}
	title := crawler.PlainText(it.Title)
	if title == "" {
		return nil, errs.Malformed(sc.Name, "item has no title", nil)
	}

	doc := &models.Document{
		Source:      sc.Label,
		SourceID:    sc.SourceID,
		Type:        "rss",
		URL:         link,
		RecordID:    it.GUID,
		Title:       title,
		Description: crawler.PlainText(it.Description),
		SearchText:  crawler.PlainText(it.ContentEncoded),
		Keywords:    dedupe(it.Categories),
	}

	if img := it.ImageURL(); img != "" {
		doc.Image = &models.Image{URL: img, ThumbnailURL: img, Alt: title}
		doc.SortPriority = 1
	}

	if it.Creator != "" {
		author := models.Constituent{Name: it.Creator, CanonicalName: it.Creator, Role: "Author"}
		doc.PrimaryConstituent = &author
		doc.Constituents = []models.Constituent{author}
	}

	if t, ok := parsePubDate(it.PubDate); ok {
		setDate(doc, t)
	}
	return doc, nil
}

func setDate(doc *models.Document, t time.Time) {
	doc.Date = t.Format(time.RFC3339)
	doc.FormattedDate = t.Format("January 2, 2006")
	doc.StartYear = models.IntPtr(t.Year())
	doc.EndYear = models.IntPtr(t.Year())
}

func dedupe(values []string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func newRSSSource(cfg SourceConfig, deps Deps) (Source, error) {
	extract := func(ctx context.Context) iter.Seq2[RSSItem, error] {
		return func(yield func(RSSItem, error) bool) {
			body, err := openSource(ctx, deps.HTTPClient, cfg, rssAccept)
			if err != nil {
				yield(RSSItem{}, fmt.Errorf("open feed %s: %w", cfg.Name, err))
				return
			}
			defer body.Close()
			for item, err := range ParseRSS(body) {
				if !yield(item, err) {
					return
				}
			}
		}
	}
	return NewSource[RSSItem](cfg, extract, rssTransformer{}), nil
}
