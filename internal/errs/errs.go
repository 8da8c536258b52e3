package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	// ErrNotFound is returned when a document id is absent from its index.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable covers an unreachable or timed out index or
	// vocabulary service.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrOutOfRange is returned for pages past the index result window.
	ErrOutOfRange = errors.New("page out of range")
)

// ValidationError reports a missing or malformed request parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// OpFailure is one failed operation inside a bulk write.
type OpFailure struct {
	Position int    `json:"position"`
	ID       string `json:"id"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
}

// PartialIngestionFailure aborts ingestion of a single source after a chunk
// reported per-operation errors.
type PartialIngestionFailure struct {
	Source   string
	Index    string
	Failures []OpFailure
}

func (e *PartialIngestionFailure) Error() string {
	msgs := make([]string, 0, 3)
	for i, f := range e.Failures {
		if i == 3 {
			break
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.ID, f.Message))
	}
	return fmt.Sprintf("bulk upsert into %s for source %s failed for %d operations (%s)",
		e.Index, e.Source, len(e.Failures), strings.Join(msgs, "; "))
}

// MalformedRecord marks a single source record that could not be transformed.
type MalformedRecord struct {
	Source string
	Reason string
	Err    error
}

func (e *MalformedRecord) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed record from %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed record from %s: %s", e.Source, e.Reason)
}

func (e *MalformedRecord) Unwrap() error { return e.Err }

// Malformed builds a MalformedRecord.
func Malformed(source, reason string, err error) error {
	return &MalformedRecord{Source: source, Reason: reason, Err: err}
}

// IsMalformed reports whether err carries a MalformedRecord.
func IsMalformed(err error) bool {
	var m *MalformedRecord
	return errors.As(err, &m)
}

// FromMongo maps driver errors onto the service taxonomy.
func FromMongo(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case errors.Is(err, context.DeadlineExceeded),
		mongo.IsTimeout(err),
		mongo.IsNetworkError(err),
		errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return err
}
