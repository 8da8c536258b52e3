// Package jsonl streams newline-delimited JSON files, gzip compressed or not.
package jsonl

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
)

const maxLine = 16 << 20

// Open returns a reader for path, transparently gunzipping ".gz" files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("gzip %s: %w", path, err)
	}
	return &gzipFile{Reader: gz, file: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	gerr := g.Reader.Close()
	if err := g.file.Close(); err != nil {
		return err
	}
	return gerr
}

// LineError reports a line that is not valid JSON for the target type.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e *LineError) Unwrap() error { return e.Err }

// Decode yields one value per non-blank line of r. A line that fails to
// decode yields an error and iteration continues; a read error ends it.
// The sequence is single-pass.
func Decode[T any](r io.Reader) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLine)
		line := 0
		for sc.Scan() {
			line++
			raw := strings.TrimSpace(sc.Text())
			if raw == "" {
				continue
			}
			var v T
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				var zero T
				if !yield(zero, &LineError{Line: line, Err: err}) {
					return
				}
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			var zero T
			yield(zero, fmt.Errorf("read after line %d: %w", line, err))
		}
	}
}

// File streams path and closes it once iteration stops.
func File[T any](path string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		rc, err := Open(path)
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}
		defer rc.Close()
		for v, err := range Decode[T](rc) {
			if !yield(v, err) {
				return
			}
		}
	}
}
