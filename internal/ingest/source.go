// Package ingest extracts records from external sources, transforms them into
// canonical documents and writes them to the index in ordered chunks.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"os"
	"slices"
	"time"

	"museum-discovery/internal/crawler"
	"museum-discovery/internal/errs"
	"museum-discovery/internal/index"
	"museum-discovery/internal/jsonl"
	"museum-discovery/models"

	"gopkg.in/yaml.v3"
)

// Transformer names
const (
	TransformerRSS         = "rss"
	TransformerCatalog     = "catalog"
	TransformerContent     = "content"
	TransformerExhibitions = "exhibitions"
)

// SourceConfig is one entry of the sources file.
type SourceConfig struct {
	Name         string `yaml:"name"`
	SourceID     string `yaml:"sourceId"`
	Label        string `yaml:"label"`
	Transformer  string `yaml:"transformer"`
	Index        string `yaml:"index"`
	URL          string `yaml:"url"`
	File         string `yaml:"file"`
	Sheet        string `yaml:"sheet"`
	Schedule     string `yaml:"schedule"`
	Prune        bool   `yaml:"prune"`
	RenderJS     bool   `yaml:"renderJS"`
	NextSelector string `yaml:"nextSelector"`
	WaitSelector string `yaml:"waitSelector"`
	MaxPages     int    `yaml:"maxPages"`
}

// SourceContext is handed to every Transform call of a source.
type SourceContext struct {
	Name     string
	SourceID string
	Label    string
	Index    string
}

// Transformer turns one raw record of type R into a canonical document.
type Transformer[R any] interface {
	GenerateID(doc *models.Document) (string, error)
	Transform(raw R, sc SourceContext) (*models.Document, error)
}

// Extractor yields raw records lazily. A per-record problem is reported as an
// errs.MalformedRecord and iteration continues; any other error ends the
// sequence.
type Extractor[R any] func(ctx context.Context) iter.Seq2[R, error]

// Job transforms one extracted record when run.
type Job func() (models.IngestionOperation, error)

// Source is a configured, type-erased extractor and transformer pair.
type Source interface {
	Config() SourceConfig
	Jobs(ctx context.Context) iter.Seq2[Job, error]
}

type typedSource[R any] struct {
	cfg         SourceConfig
	extract     Extractor[R]
	transformer Transformer[R]
}

// NewSource binds an extractor to its transformer.
func NewSource[R any](cfg SourceConfig, extract Extractor[R], transformer Transformer[R]) Source {
	return &typedSource[R]{cfg: cfg, extract: extract, transformer: transformer}
}

func (s *typedSource[R]) Config() SourceConfig { return s.cfg }

func (s *typedSource[R]) Jobs(ctx context.Context) iter.Seq2[Job, error] {
	sc := SourceContext{
		Name:     s.cfg.Name,
		SourceID: s.cfg.SourceID,
		Label:    s.cfg.Label,
		Index:    s.cfg.Index,
	}
	return func(yield func(Job, error) bool) {
		for raw, err := range s.extract(ctx) {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(s.job(raw, sc), nil) {
				return
			}
		}
	}
}

func (s *typedSource[R]) job(raw R, sc SourceContext) Job {
	return func() (models.IngestionOperation, error) {
		doc, err := s.transformer.Transform(raw, sc)
		if err != nil {
			if errs.IsMalformed(err) {
				return models.IngestionOperation{}, err
			}
			return models.IngestionOperation{}, errs.Malformed(sc.Name, "transform", err)
		}
		if doc == nil {
			return models.IngestionOperation{}, errs.Malformed(sc.Name, "no document produced", nil)
		}
		if doc.SourceID == "" {
			doc.SourceID = sc.SourceID
		}
		if doc.Source == "" {
			doc.Source = sc.Label
		}
		id, err := s.transformer.GenerateID(doc)
		if err != nil || id == "" {
			return models.IngestionOperation{}, errs.Malformed(sc.Name, "no id", err)
		}
		doc.ID = id
		return models.IngestionOperation{Index: sc.Index, ID: id, Document: doc}, nil
	}
}

// Deps are the shared clients handed to source factories.
type Deps struct {
	HTTPClient *http.Client
}

// Factory builds a Source from its configuration.
type Factory func(cfg SourceConfig, deps Deps) (Source, error)

// Registry maps transformer names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with every built-in transformer.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(TransformerRSS, newRSSSource)
	r.Register(TransformerCatalog, newCatalogSource)
	r.Register(TransformerContent, newContentSource)
	r.Register(TransformerExhibitions, newExhibitionSource)
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Build instantiates the source described by cfg.
func (r *Registry) Build(cfg SourceConfig, deps Deps) (Source, error) {
	f, ok := r.factories[cfg.Transformer]
	if !ok {
		return nil, fmt.Errorf("source %s: unknown transformer %q", cfg.Name, cfg.Transformer)
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return f(cfg, deps)
}

// BuildAll instantiates every configuration, failing on the first error.
func (r *Registry) BuildAll(cfgs []SourceConfig, deps Deps) ([]Source, error) {
	sources := make([]Source, 0, len(cfgs))
	for _, cfg := range cfgs {
		src, err := r.Build(cfg, deps)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

var defaultIndex = map[string]string{
	TransformerRSS:         index.News,
	TransformerCatalog:     index.Art,
	TransformerContent:     index.News,
	TransformerExhibitions: index.Events,
}

// LoadSources reads and validates a YAML sources file of the form
// "sources: [...]".
func LoadSources(path string) ([]SourceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	return ParseSources(data)
}

// ParseSources validates sources file content and fills defaults.
func ParseSources(data []byte) ([]SourceConfig, error) {
	var file struct {
		Sources []SourceConfig `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse sources file: %w", err)
	}

	seen := make(map[string]bool, len(file.Sources))
	for i := range file.Sources {
		cfg := &file.Sources[i]
		if cfg.Name == "" {
			return nil, fmt.Errorf("source #%d has no name", i+1)
		}
		if seen[cfg.Name] {
			return nil, fmt.Errorf("source %s declared twice", cfg.Name)
		}
		seen[cfg.Name] = true

		def, ok := defaultIndex[cfg.Transformer]
		if !ok {
			return nil, fmt.Errorf("source %s: unknown transformer %q", cfg.Name, cfg.Transformer)
		}
		if cfg.Index == "" {
			cfg.Index = def
		}
		if !slices.Contains(index.DefaultRegistry().Names(), cfg.Index) {
			return nil, fmt.Errorf("source %s: unknown index %q", cfg.Name, cfg.Index)
		}
		if cfg.SourceID == "" {
			cfg.SourceID = cfg.Name
		}
		if cfg.Label == "" {
			cfg.Label = cfg.Name
		}
		if cfg.URL == "" && cfg.File == "" {
			return nil, fmt.Errorf("source %s needs a url or a file", cfg.Name)
		}
	}
	return file.Sources, nil
}

// Select picks the sources for one run. An empty name selects the feed-like
// sources (rss and exhibitions); otherwise exactly the named source.
func Select(cfgs []SourceConfig, name string) ([]SourceConfig, error) {
	if name == "" {
		var out []SourceConfig
		for _, cfg := range cfgs {
			if cfg.Transformer == TransformerRSS || cfg.Transformer == TransformerExhibitions {
				out = append(out, cfg)
			}
		}
		return out, nil
	}
	for _, cfg := range cfgs {
		if cfg.Name == name {
			return []SourceConfig{cfg}, nil
		}
	}
	return nil, errs.Invalid("source", "unknown source %q", name)
}

// openSource returns the raw bytes of a file or URL source. Files ending in
// .gz are decompressed.
func openSource(ctx context.Context, client *http.Client, cfg SourceConfig, accept string) (io.ReadCloser, error) {
	if cfg.File != "" {
		return jsonl.Open(cfg.File)
	}
	resp, err := crawler.Fetch(ctx, client, cfg.URL, accept)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(resp.Body)), nil
}
