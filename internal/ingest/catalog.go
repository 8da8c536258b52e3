package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"museum-discovery/internal/errs"
	"museum-discovery/internal/index"
	"museum-discovery/internal/jsonl"
	"museum-discovery/internal/normalize"
	"museum-discovery/models"

	"github.com/xuri/excelize/v2"
)

// CatalogRow is one collection record from a tabular or JSONL catalog dump.
// Tabular files use the same names as column headers; multi-valued columns
// are separated by "|".
type CatalogRow struct {
	ID              string `json:"id"`
	AccessionNumber string `json:"accessionNumber"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	URL             string `json:"url"`
	Date            string `json:"date"`
	StartYear       *int   `json:"startYear"`
	EndYear         *int   `json:"endYear"`

	Classification      string   `json:"classification"`
	Medium              string   `json:"medium"`
	Dimensions          string   `json:"dimensions"`
	Departments         []string `json:"departments"`
	Period              string   `json:"period"`
	Dynasty             string   `json:"dynasty"`
	CreditLine          string   `json:"creditLine"`
	CopyrightRestricted bool     `json:"copyrightRestricted"`
	Keywords            []string `json:"keywords"`

	ImageURL     string `json:"imageUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	ImageAlt     string `json:"imageAlt"`

	Artists               []CatalogArtist               `json:"artists"`
	GeographicalLocations []models.GeographicalLocation `json:"geographicalLocations"`
	MuseumLocation        *models.MuseumLocation        `json:"museumLocation"`
	Exhibitions           []string                      `json:"exhibitions"`
	Section               string                        `json:"section"`

	// archives
	Subject  string `json:"subject"`
	Format   string `json:"format"`
	Language string `json:"language"`
}

// CatalogArtist is one credited constituent of a CatalogRow.
type CatalogArtist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	Rank        *int   `json:"rank"`
	Dates       string `json:"dates"`
	BirthYear   *int   `json:"birthYear"`
	DeathYear   *int   `json:"deathYear"`
	Nationality string `json:"nationality"`
}

type catalogTransformer struct{}

func (catalogTransformer) GenerateID(doc *models.Document) (string, error) {
	return SourceAwareID(doc.SourceID, doc.RecordID)
}

func (catalogTransformer) Transform(row CatalogRow, sc SourceContext) (*models.Document, error) {
	recordID := strings.TrimSpace(row.ID)
	if recordID == "" {
		return nil, errs.Malformed(sc.Name, "row has no id", nil)
	}
	title := strings.TrimSpace(row.Title)
	if title == "" {
		return nil, errs.Malformed(sc.Name, fmt.Sprintf("row %s has no title", recordID), nil)
	}

	doc := &models.Document{
		Source:              sc.Label,
		SourceID:            sc.SourceID,
		Type:                models.KindCollectionObject,
		RecordID:            recordID,
		URL:                 strings.TrimSpace(row.URL),
		Title:               title,
		Description:         strings.TrimSpace(row.Description),
		AccessionNumber:     strings.TrimSpace(row.AccessionNumber),
		Classification:      strings.TrimSpace(row.Classification),
		Dimensions:          strings.TrimSpace(row.Dimensions),
		Departments:         dedupe(row.Departments),
		Period:              strings.TrimSpace(row.Period),
		Dynasty:             strings.TrimSpace(row.Dynasty),
		CreditLine:          strings.TrimSpace(row.CreditLine),
		CopyrightRestricted: row.CopyrightRestricted,
		Keywords:            dedupe(row.Keywords),
		Exhibitions:         dedupe(row.Exhibitions),
		Section:             strings.TrimSpace(row.Section),
		Subject:             strings.TrimSpace(row.Subject),
		Format:              strings.TrimSpace(row.Format),
		Language:            strings.TrimSpace(row.Language),
	}
	if sc.Index == index.Archives {
		doc.Type = models.KindArchive
	}

	if m := strings.TrimSpace(row.Medium); m != "" {
		doc.FormattedMedium = m
		doc.Medium = SignificantWords(m)
	}

	doc.FormattedDate = strings.TrimSpace(row.Date)
	doc.StartYear, doc.EndYear = row.StartYear, row.EndYear
	if doc.StartYear == nil && doc.EndYear == nil {
		doc.StartYear, doc.EndYear = ParseYearRange(doc.FormattedDate)
	}

	if img := strings.TrimSpace(row.ImageURL); img != "" {
		thumb := strings.TrimSpace(row.ThumbnailURL)
		if thumb == "" {
			thumb = img
		}
		doc.Image = &models.Image{URL: img, ThumbnailURL: thumb, Alt: strings.TrimSpace(row.ImageAlt)}
		doc.SortPriority = 1
	}

	doc.Constituents = catalogConstituents(row.Artists)
	if len(doc.Constituents) > 0 {
		primary := doc.Constituents[0]
		doc.PrimaryConstituent = &primary
	}

	for _, loc := range row.GeographicalLocations {
		if strings.TrimSpace(loc.Name) == "" {
			continue
		}
		doc.GeographicalLocations = append(doc.GeographicalLocations, loc)
	}
	if len(doc.GeographicalLocations) > 0 {
		primary := doc.GeographicalLocations[0]
		doc.PrimaryGeographicalLocation = &primary
	}

	if loc := row.MuseumLocation; loc != nil && loc.IsPublic && strings.TrimSpace(loc.Name) != "" {
		doc.MuseumLocation = loc
		doc.OnView = true
	}

	doc.SearchText = catalogSearchText(doc)
	return doc, nil
}

// catalogConstituents drops unknown artists and orders the rest by rank, so
// the rank 0 artist (or the first listed) becomes primary.
func catalogConstituents(artists []CatalogArtist) []models.Constituent {
	var out []models.Constituent
	for i, a := range artists {
		name := strings.TrimSpace(a.Name)
		if name == "" || normalize.Name(name) == "unknown" {
			continue
		}
		rank := i
		if a.Rank != nil {
			rank = *a.Rank
		}
		out = append(out, models.Constituent{
			ID:            strings.TrimSpace(a.ID),
			Name:          name,
			CanonicalName: name,
			Role:          strings.TrimSpace(a.Role),
			Rank:          rank,
			Dates:         strings.TrimSpace(a.Dates),
			BirthYear:     a.BirthYear,
			DeathYear:     a.DeathYear,
			Nationality:   strings.TrimSpace(a.Nationality),
		})
	}
	slices.SortStableFunc(out, func(a, b models.Constituent) int { return a.Rank - b.Rank })
	return out
}

func catalogSearchText(doc *models.Document) string {
	parts := []string{doc.AccessionNumber}
	for _, c := range doc.Constituents {
		parts = append(parts, c.Name)
	}
	parts = append(parts, doc.Classification, doc.FormattedMedium, doc.Period, doc.Dynasty, doc.CreditLine)
	parts = append(parts, doc.Keywords...)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

var mediumStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "on": true, "in": true, "of": true,
	"with": true, "the": true, "or": true, "over": true, "under": true,
	"traces": true, "mounted": true, "to": true, "from": true, "by": true,
	"for": true, "at": true, "its": true, "original": true, "frame": true,
}

var nonWordRun = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// SignificantWords splits a free-form medium description into lowercase
// material words, dropping stopwords and duplicates.
// "Oil on canvas, with gold leaf" -> [oil canvas gold leaf]
func SignificantWords(s string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range nonWordRun.Split(strings.ToLower(s), -1) {
		if len(w) < 2 || mediumStopwords[w] || seen[w] {
			continue
		}
		if _, err := strconv.Atoi(w); err == nil {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

var (
	monthRangeRe = regexp.MustCompile(`^(\d{4})-(\d{2})\s*-+\s*(\d{4})-(\d{2})$`)
	yearMonthRe  = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
	yearRangeRe  = regexp.MustCompile(`(\d{4})\D+?(\d{2,4})\b`)
	decadeRe     = regexp.MustCompile(`(\d{4})'?s\b`)
	singleYearRe = regexp.MustCompile(`\d{4}`)
)

// ParseYearRange extracts a start and end year from a display date:
// "1978-80" -> 1978, 1980; "c. 1932-66" -> 1932, 1966; "1920s" -> 1920, 1929;
// "1974 -- 1975", "1988-03-1988-05"; "Before 1946" -> 1946, 1946.
func ParseYearRange(date string) (*int, *int) {
	if date == "" {
		return nil, nil
	}
	if m := monthRangeRe.FindStringSubmatch(date); m != nil {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[3])
		return &start, &end
	}
	if m := yearMonthRe.FindStringSubmatch(date); m != nil {
		year, _ := strconv.Atoi(m[1])
		return models.IntPtr(year), models.IntPtr(year)
	}
	if m := yearRangeRe.FindStringSubmatch(date); m != nil {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		if len(m[2]) == 2 {
			end += start / 100 * 100
		}
		if len(m[2]) == 4 || end >= start {
			return &start, &end
		}
	}
	if m := decadeRe.FindStringSubmatch(date); m != nil {
		start, _ := strconv.Atoi(m[1])
		return models.IntPtr(start), models.IntPtr(start + 9)
	}
	if m := singleYearRe.FindString(date); m != "" {
		year, _ := strconv.Atoi(m)
		return models.IntPtr(year), models.IntPtr(year)
	}
	return nil, nil
}

// rowFromRecord maps one tabular record onto a CatalogRow by header name.
func rowFromRecord(header, record []string) (CatalogRow, error) {
	var row CatalogRow
	var artist struct {
		names, roles, ids, births, deaths, nationalities, dates []string
	}
	var loc models.MuseumLocation
	var geo models.GeographicalLocation

	for i, col := range header {
		if i >= len(record) {
			break
		}
		v := strings.TrimSpace(record[i])
		if v == "" {
			continue
		}
		var err error
		switch strings.TrimSpace(col) {
		case "id":
			row.ID = v
		case "accessionNumber":
			row.AccessionNumber = v
		case "title":
			row.Title = v
		case "description":
			row.Description = v
		case "url":
			row.URL = v
		case "date":
			row.Date = v
		case "startYear":
			row.StartYear, err = intCell(col, v)
		case "endYear":
			row.EndYear, err = intCell(col, v)
		case "classification":
			row.Classification = v
		case "medium":
			row.Medium = v
		case "dimensions":
			row.Dimensions = v
		case "departments", "department":
			row.Departments = splitCell(v)
		case "period":
			row.Period = v
		case "dynasty":
			row.Dynasty = v
		case "creditLine":
			row.CreditLine = v
		case "copyrightRestricted":
			row.CopyrightRestricted, err = strconv.ParseBool(v)
		case "keywords":
			row.Keywords = splitCell(v)
		case "imageUrl":
			row.ImageURL = v
		case "thumbnailUrl":
			row.ThumbnailURL = v
		case "imageAlt":
			row.ImageAlt = v
		case "artist":
			artist.names = splitCell(v)
		case "artistRole":
			artist.roles = splitCell(v)
		case "artistId":
			artist.ids = splitCell(v)
		case "artistBirthYear":
			artist.births = splitCell(v)
		case "artistDeathYear":
			artist.deaths = splitCell(v)
		case "artistNationality":
			artist.nationalities = splitCell(v)
		case "artistDates":
			artist.dates = splitCell(v)
		case "museumLocation":
			loc.Name = v
		case "museumLocationPublic":
			loc.IsPublic, err = strconv.ParseBool(v)
		case "exhibitions":
			row.Exhibitions = splitCell(v)
		case "section":
			row.Section = v
		case "place":
			geo.Name = v
		case "country":
			geo.Country = v
		case "continent":
			geo.Continent = v
		case "subject":
			row.Subject = v
		case "format":
			row.Format = v
		case "language":
			row.Language = v
		}
		if err != nil {
			return row, fmt.Errorf("column %s: %w", col, err)
		}
	}

	for i, name := range artist.names {
		a := CatalogArtist{
			Name:        name,
			Role:        at(artist.roles, i),
			ID:          at(artist.ids, i),
			Nationality: at(artist.nationalities, i),
			Dates:       at(artist.dates, i),
		}
		var err error
		if a.BirthYear, err = intCell("artistBirthYear", at(artist.births, i)); err != nil {
			return row, err
		}
		if a.DeathYear, err = intCell("artistDeathYear", at(artist.deaths, i)); err != nil {
			return row, err
		}
		row.Artists = append(row.Artists, a)
	}
	if loc.Name != "" {
		row.MuseumLocation = &loc
	}
	if geo.Name == "" {
		geo.Name = geo.Country
	}
	if geo.Name != "" {
		geo.Type = "place"
		row.GeographicalLocations = []models.GeographicalLocation{geo}
	}
	return row, nil
}

func splitCell(v string) []string {
	var out []string
	for _, p := range strings.Split(v, "|") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

func intCell(col, v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("column %s: %q is not an integer", col, v)
	}
	return &n, nil
}

// ReadCSV streams catalog rows from CSV with a header line.
func ReadCSV(r io.Reader, source string) iter.Seq2[CatalogRow, error] {
	return func(yield func(CatalogRow, error) bool) {
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.LazyQuotes = true

		header, err := cr.Read()
		if err != nil {
			yield(CatalogRow{}, fmt.Errorf("read csv header: %w", err))
			return
		}
		for {
			record, err := cr.Read()
			if err == io.EOF {
				return
			}
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				if !yield(CatalogRow{}, errs.Malformed(source, fmt.Sprintf("csv line %d", parseErr.Line), err)) {
					return
				}
				continue
			}
			if err != nil {
				yield(CatalogRow{}, fmt.Errorf("read csv: %w", err))
				return
			}
			row, err := rowFromRecord(header, record)
			if err != nil {
				err = errs.Malformed(source, "csv row", err)
			}
			if !yield(row, err) {
				return
			}
		}
	}
}

// ReadXLSX streams catalog rows from the first (or named) sheet of a workbook.
func ReadXLSX(r io.Reader, sheet, source string) iter.Seq2[CatalogRow, error] {
	return func(yield func(CatalogRow, error) bool) {
		f, err := excelize.OpenReader(r)
		if err != nil {
			yield(CatalogRow{}, fmt.Errorf("open workbook: %w", err))
			return
		}
		defer f.Close()

		if sheet == "" {
			sheet = f.GetSheetName(0)
		}
		rows, err := f.Rows(sheet)
		if err != nil {
			yield(CatalogRow{}, fmt.Errorf("open sheet %q: %w", sheet, err))
			return
		}
		defer rows.Close()

		var header []string
		line := 0
		for rows.Next() {
			line++
			record, err := rows.Columns()
			if err != nil {
				if !yield(CatalogRow{}, errs.Malformed(source, fmt.Sprintf("sheet row %d", line), err)) {
					return
				}
				continue
			}
			if header == nil {
				header = record
				continue
			}
			if len(record) == 0 {
				continue
			}
			row, err := rowFromRecord(header, record)
			if err != nil {
				err = errs.Malformed(source, fmt.Sprintf("sheet row %d", line), err)
			}
			if !yield(row, err) {
				return
			}
		}
		if err := rows.Error(); err != nil {
			yield(CatalogRow{}, fmt.Errorf("read sheet %q: %w", sheet, err))
		}
	}
}

// ReadCatalogJSONL streams rows from JSON lines. Undecodable lines are
// reported as malformed.
func ReadCatalogJSONL(r io.Reader, source string) iter.Seq2[CatalogRow, error] {
	return func(yield func(CatalogRow, error) bool) {
		for row, err := range jsonl.Decode[CatalogRow](r) {
			var lineErr *jsonl.LineError
			if errors.As(err, &lineErr) {
				err = errs.Malformed(source, fmt.Sprintf("line %d", lineErr.Line), lineErr.Err)
			}
			if !yield(row, err) {
				return
			}
		}
	}
}

// catalogFormat derives the reader from the file or URL path extension.
func catalogFormat(cfg SourceConfig) string {
	name := cfg.File
	if name == "" {
		if u, err := url.Parse(cfg.URL); err == nil {
			name = u.Path
		}
	}
	name = strings.TrimSuffix(strings.ToLower(name), ".gz")
	switch path.Ext(name) {
	case ".csv":
		return "csv"
	case ".xlsx":
		return "xlsx"
	}
	return "jsonl"
}

func newCatalogSource(cfg SourceConfig, deps Deps) (Source, error) {
	format := catalogFormat(cfg)
	extract := func(ctx context.Context) iter.Seq2[CatalogRow, error] {
		return func(yield func(CatalogRow, error) bool) {
			body, err := openSource(ctx, deps.HTTPClient, cfg, "")
			if err != nil {
				yield(CatalogRow{}, fmt.Errorf("open catalog %s: %w", cfg.Name, err))
				return
			}
			defer body.Close()

			var rows iter.Seq2[CatalogRow, error]
			switch format {
			case "csv":
				rows = ReadCSV(body, cfg.Name)
			case "xlsx":
				rows = ReadXLSX(body, cfg.Sheet, cfg.Name)
			default:
				rows = ReadCatalogJSONL(body, cfg.Name)
			}
			for row, err := range rows {
				if err == nil && ctx.Err() != nil {
					err = ctx.Err()
				}
				if !yield(row, err) {
					return
				}
			}
		}
	}
	return NewSource[CatalogRow](cfg, extract, catalogTransformer{}), nil
}
