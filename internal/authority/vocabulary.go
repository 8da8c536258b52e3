package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"museum-discovery/internal/jsonl"
	"museum-discovery/internal/normalize"
)

// HTTPVocabulary queries a JSON lookup service:
// GET {BaseURL}?q=<name>&limit=<n> -> {"results": [Candidate...]}
type HTTPVocabulary struct {
	BaseURL string
	Limit   int
	Client  *http.Client
}

// NewHTTPVocabulary returns a client for baseURL.
func NewHTTPVocabulary(baseURL string, timeout time.Duration) *HTTPVocabulary {
	return &HTTPVocabulary{
		BaseURL: baseURL,
		Limit:   10,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (v *HTTPVocabulary) Lookup(ctx context.Context, name string) ([]Candidate, error) {
	u, err := url.Parse(v.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid vocabulary url: %w", err)
	}
	q := u.Query()
	q.Set("q", name)
	q.Set("limit", fmt.Sprint(v.Limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vocabulary returned status %d", resp.StatusCode)
	}

	var body struct {
		Results []Candidate `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode vocabulary response: %w", err)
	}
	return body.Results, nil
}

// FileVocabulary serves lookups from an authority dump in JSONL(.gz), one
// Candidate per line. Preferred and non-preferred terms are both indexed.
type FileVocabulary struct {
	byName map[string][]Candidate
	size   int
}

// LoadFileVocabulary reads path fully into memory. Malformed lines are
// skipped.
func LoadFileVocabulary(path string) (*FileVocabulary, error) {
	rc, err := jsonl.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer rc.Close()

	v := &FileVocabulary{byName: make(map[string][]Candidate)}
	for c, err := range jsonl.Decode[Candidate](rc) {
		if err != nil {
			continue
		}
		v.add(c)
	}
	return v, nil
}

func (v *FileVocabulary) add(c Candidate) {
	if c.PreferredTerm == "" {
		return
	}
	v.size++
	seen := make(map[string]bool)
	for _, term := range append([]string{c.PreferredTerm}, c.NonPreferredTerms...) {
		key := normalize.Name(term)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		v.byName[key] = append(v.byName[key], c)
	}
}

// Len returns the number of loaded records.
func (v *FileVocabulary) Len() int {
	return v.size
}

func (v *FileVocabulary) Lookup(_ context.Context, name string) ([]Candidate, error) {
	return v.byName[normalize.Name(name)], nil
}
