package ingest

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"time"

	"museum-discovery/internal/crawler"
	"museum-discovery/internal/errs"
	"museum-discovery/models"
)

type exhibitionTransformer struct{}

func (exhibitionTransformer) GenerateID(doc *models.Document) (string, error) {
	return URLID(doc.URL)
}

func (exhibitionTransformer) Transform(card crawler.ExhibitionCard, sc SourceContext) (*models.Document, error) {
	if card.Title == "" || card.URL == "" {
		return nil, errs.Malformed(sc.Name, "exhibition card without title or link", nil)
	}

	doc := &models.Document{
		Source:        sc.Label,
		SourceID:      sc.SourceID,
		Type:          models.KindEvent,
		URL:           card.URL,
		Title:         card.Title,
		FormattedDate: card.DateText,
		Location:      card.Location,
		SearchText:    strings.TrimSpace(card.Title + " " + card.Location),
	}
	if card.ImageURL != "" {
		doc.Image = &models.Image{URL: card.ImageURL, ThumbnailURL: card.ImageURL, Alt: card.ImageAlt}
		doc.SortPriority = 1
	}

	start, end := ParseDateRange(card.DateText, time.Now().Year())
	if !start.IsZero() {
		doc.Date = start.Format(time.DateOnly)
		doc.StartYear = models.IntPtr(start.Year())
	}
	if !end.IsZero() {
		doc.EndDate = end.Format(time.DateOnly)
		doc.EndYear = models.IntPtr(end.Year())
		if start.IsZero() {
			doc.StartYear = models.IntPtr(end.Year())
		}
	}
	return doc, nil
}

var (
	ordinalRe   = regexp.MustCompile(`(\d)(st|nd|rd|th)\b`)
	prefixRe    = regexp.MustCompile(`(?i)^(through|until|to|ends)\s+`)
	rangeSplits = []string{" to ", "–", "—", " - ", "-"}
	dayYearRe   = regexp.MustCompile(`^\d{1,2},?\s+\d{4}$`)
)

var dateLayouts = []struct {
	layout   string
	hasYear  bool
	monthEnd bool
}{
	{"January 2, 2006", true, false},
	{"January 2 2006", true, false},
	{"Jan 2, 2006", true, false},
	{"Jan 2 2006", true, false},
	{"2 January 2006", true, false},
	{"2 January, 2006", true, false},
	{"January 2006", true, true},
	{"Jan 2006", true, true},
	{"January 2", false, false},
	{"Jan 2", false, false},
	{"January", false, true},
	{"Jan", false, true},
}

// ParseDateRange reads an exhibition date line such as
// "June 23–October 22, 2023", "October 14, 2022 - September 17, 2023",
// "June 2–September 2023" or "Through Aug 13". A start without a year
// borrows the end's year, a bare month means its last day, and a missing
// year falls back to fallbackYear. "Ongoing" and unparsable text yield zero
// times.
func ParseDateRange(text string, fallbackYear int) (start, end time.Time) {
	s := strings.Join(strings.Fields(text), " ")
	s = ordinalRe.ReplaceAllString(s, "$1")
	s = prefixRe.ReplaceAllString(s, "")
	if s == "" || strings.EqualFold(s, "ongoing") {
		return time.Time{}, time.Time{}
	}

	for _, sep := range rangeSplits {
		left, right, found := strings.Cut(s, sep)
		if !found {
			continue
		}
		left, right = strings.TrimSpace(left), strings.TrimSpace(right)
		if left == "" || right == "" {
			continue
		}
		endDate, endHasYear, ok := parseDatePart(right, fallbackYear, true)
		if !ok && dayYearRe.MatchString(right) {
			// "March 3–9, 2023": the end borrows the start's month
			if month, _, _ := strings.Cut(left, " "); month != "" {
				endDate, endHasYear, ok = parseDatePart(month+" "+right, fallbackYear, true)
			}
		}
		if !ok {
			continue
		}
		year := fallbackYear
		if endHasYear {
			year = endDate.Year()
		}
		startDate, _, ok := parseDatePart(left, year, false)
		if !ok {
			continue
		}
		return startDate, endDate
	}

	endDate, _, ok := parseDatePart(s, fallbackYear, true)
	if !ok {
		return time.Time{}, time.Time{}
	}
	return time.Time{}, endDate
}

// parseDatePart parses one side of a range. Month-only values resolve to the
// last day of the month when atEnd, else the first.
func parseDatePart(s string, fallbackYear int, atEnd bool) (time.Time, bool, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ",")
	for _, l := range dateLayouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		if !l.hasYear {
			t = time.Date(fallbackYear, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
		if l.monthEnd && atEnd {
			t = t.AddDate(0, 1, -t.Day())
		}
		return t, l.hasYear, true
	}
	return time.Time{}, false, false
}

func newExhibitionSource(cfg SourceConfig, _ Deps) (Source, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("source %s: exhibitions need a url", cfg.Name)
	}
	extract := func(ctx context.Context) iter.Seq2[crawler.ExhibitionCard, error] {
		return func(yield func(crawler.ExhibitionCard, error) bool) {
			res, err := crawler.CrawlExhibitions(ctx, crawler.CrawlConfig{
				URL:              cfg.URL,
				MaxPages:         cfg.MaxPages,
				NextSelector:     cfg.NextSelector,
				RenderJS:         cfg.RenderJS,
				WaitSelector:     cfg.WaitSelector,
				NetworkIdleAfter: 500 * time.Millisecond,
			})
			if err != nil {
				yield(crawler.ExhibitionCard{}, fmt.Errorf("crawl %s: %w", cfg.Name, err))
				return
			}
			for _, card := range res.Cards {
				if !yield(card, nil) {
					return
				}
			}
		}
	}
	return NewSource[crawler.ExhibitionCard](cfg, extract, exhibitionTransformer{}), nil
}
