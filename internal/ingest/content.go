package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"museum-discovery/internal/crawler"
	"museum-discovery/internal/errs"
	"museum-discovery/internal/jsonl"
	"museum-discovery/models"
)

// ContentItem is an editorial page from a JSONL content export.
type ContentItem struct {
	ID          string   `json:"id"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Text        string   `json:"text"`
	Body        string   `json:"body"`
	Image       string   `json:"image"`
	ImageAlt    string   `json:"imageAlt"`
	Author      string   `json:"author"`
	Date        string   `json:"date"`
	Section     string   `json:"section"`
	Keywords    []string `json:"keywords"`
}

type contentTransformer struct{}

// GenerateID prefers the source-local id and falls back to the page URL.
func (contentTransformer) GenerateID(doc *models.Document) (string, error) {
	if doc.RecordID != "" {
		return SourceAwareID(doc.SourceID, doc.RecordID)
	}
	return URLID(doc.URL)
}

func (contentTransformer) Transform(item ContentItem, sc SourceContext) (*models.Document, error) {
	title := crawler.PlainText(item.Title)
	if title == "" {
		return nil, errs.Malformed(sc.Name, "content item has no title", nil)
	}
	if strings.TrimSpace(item.ID) == "" && strings.TrimSpace(item.URL) == "" {
		return nil, errs.Malformed(sc.Name, "content item has neither id nor url", nil)
	}

	text := strings.TrimSpace(item.Text)
	if text == "" {
		text = crawler.PlainText(item.Body)
	}

	doc := &models.Document{
		Source:      sc.Label,
		SourceID:    sc.SourceID,
		Type:        models.KindContent,
		RecordID:    strings.TrimSpace(item.ID),
		URL:         strings.TrimSpace(item.URL),
		Title:       title,
		Description: crawler.PlainText(item.Description),
		SearchText:  text,
		Keywords:    dedupe(item.Keywords),
		Section:     strings.TrimSpace(item.Section),
	}

	img := strings.TrimSpace(item.Image)
	if img == "" {
		img = crawler.FirstImageSource(item.Body)
	}
	if img != "" {
		doc.Image = &models.Image{URL: img, ThumbnailURL: img, Alt: strings.TrimSpace(item.ImageAlt)}
		doc.SortPriority = 1
	}

	if author := strings.TrimSpace(item.Author); author != "" {
		c := models.Constituent{Name: author, CanonicalName: author, Role: "Author"}
		doc.PrimaryConstituent = &c
		doc.Constituents = []models.Constituent{c}
	}

	if t, ok := parsePubDate(item.Date); ok {
		setDate(doc, t)
	}
	return doc, nil
}

func newContentSource(cfg SourceConfig, deps Deps) (Source, error) {
	extract := func(ctx context.Context) iter.Seq2[ContentItem, error] {
		return func(yield func(ContentItem, error) bool) {
			body, err := openSource(ctx, deps.HTTPClient, cfg, "application/x-ndjson, application/json;q=0.9")
			if err != nil {
				yield(ContentItem{}, fmt.Errorf("open content %s: %w", cfg.Name, err))
				return
			}
			defer body.Close()
			for item, err := range jsonl.Decode[ContentItem](body) {
				var lineErr *jsonl.LineError
				if errors.As(err, &lineErr) {
					err = errs.Malformed(cfg.Name, fmt.Sprintf("line %d", lineErr.Line), lineErr.Err)
				}
				if !yield(item, err) {
					return
				}
			}
		}
	}
	return NewSource[ContentItem](cfg, extract, contentTransformer{}), nil
}
