package crawler

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExhibitionCard is the raw record scraped from an exhibition listing.
type ExhibitionCard struct {
	Title    string
	URL      string
	ImageURL string
	ImageAlt string
	DateText string
	Location string
}

// Selector fallbacks, most specific first.
var (
	cardSelectors     = []string{".image-card", ".exhibition-card", "article.exhibition", "li.exhibition"}
	titleSelectors    = []string{"h2 a", "h3 a", ".card-title a", "a"}
	imageSelectors    = []string{"figure img", "picture img", "img"}
	dateSelectors     = []string{"h4", ".dates", ".date", "time"}
	locationSelectors = []string{"h6", ".location", ".venue"}
)

// ParseExhibitionCards extracts every card below root. Relative links and
// image sources are resolved against base.
func ParseExhibitionCards(root *goquery.Selection, base *url.URL) []ExhibitionCard {
	var cards []ExhibitionCard
	for _, sel := range cardSelectors {
		found := root.Find(sel)
		if found.Length() == 0 {
			continue
		}
		found.Each(func(_ int, s *goquery.Selection) {
			if card, ok := parseCard(s, base); ok {
				cards = append(cards, card)
			}
		})
		break
	}
	return cards
}

func parseCard(s *goquery.Selection, base *url.URL) (ExhibitionCard, bool) {
	var card ExhibitionCard

	for _, sel := range titleSelectors {
		a := s.Find(sel).First()
		if a.Length() == 0 {
			continue
		}
		card.Title = collapse(a.Text())
		if href, ok := a.Attr("href"); ok {
			card.URL = resolve(base, href)
		}
		if card.Title != "" {
			break
		}
	}
	if card.Title == "" || card.URL == "" {
		return card, false
	}

	for _, sel := range imageSelectors {
		img := s.Find(sel).First()
		if img.Length() == 0 {
			continue
		}
		src := imageSource(img)
		if src != "" {
			card.ImageURL = resolve(base, src)
			card.ImageAlt = strings.TrimSpace(img.AttrOr("alt", ""))
			break
		}
	}

	card.DateText = firstText(s, dateSelectors)
	card.Location = firstText(s, locationSelectors)
	return card, true
}

// imageSource prefers src, falling back to lazy-load attributes and the
// first srcset candidate.
func imageSource(img *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	if srcset := img.AttrOr("srcset", ""); srcset != "" {
		first, _, _ := strings.Cut(strings.TrimSpace(srcset), ",")
		candidate, _, _ := strings.Cut(strings.TrimSpace(first), " ")
		return candidate
	}
	return ""
}

func firstText(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		if text := collapse(s.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return u.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FirstImageSource returns the first <img> source in an HTML fragment.
func FirstImageSource(fragment string) string {
	if !strings.Contains(fragment, "<img") && !strings.Contains(fragment, "<IMG") {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return ""
	}
	var src string
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src = imageSource(img)
		return src == ""
	})
	return src
}

// PlainText strips markup from an HTML fragment and collapses whitespace.
func PlainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return collapse(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	doc.Find("script, style").Remove()
	return collapse(doc.Text())
}
