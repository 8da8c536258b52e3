package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"museum-discovery/internal/crawler"
)

var urlIDReplacer = strings.NewReplacer("/", "-", ".", "-", ":", "-")

// HashID returns the sha256 hex digest of the joined key parts.
func HashID(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// URLID derives an id from a normalized URL:
// https://www.example.org/a/b.html -> www-example-org-a-b-html
func URLID(rawURL string) (string, error) {
	normalized, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return "", fmt.Errorf("url id: %w", err)
	}
	_, rest, found := strings.Cut(normalized, "://")
	if !found {
		rest = normalized
	}
	id := strings.TrimRight(urlIDReplacer.Replace(rest), "-")
	if id == "" {
		return "", fmt.Errorf("url id: empty id for %q", rawURL)
	}
	return id, nil
}

// SourceAwareID prefixes a source-local id with its source: bkm_225001.
func SourceAwareID(sourceID, localID string) (string, error) {
	localID = strings.TrimSpace(localID)
	if sourceID == "" || localID == "" {
		return "", fmt.Errorf("source aware id: source %q, local id %q", sourceID, localID)
	}
	return sourceID + "_" + localID, nil
}
