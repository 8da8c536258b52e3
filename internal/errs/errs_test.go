package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestFromMongo(t *testing.T) {
	assert.Nil(t, FromMongo(nil))
	assert.ErrorIs(t, FromMongo(mongo.ErrNoDocuments), ErrNotFound)
	assert.ErrorIs(t, FromMongo(fmt.Errorf("find: %w", context.DeadlineExceeded)), ErrUpstreamUnavailable)

	other := errors.New("boom")
	assert.Equal(t, other, FromMongo(other))
}

func TestMalformedRecord(t *testing.T) {
	cause := errors.New("missing title")
	err := fmt.Errorf("transform: %w", Malformed("bkm", "row 4", cause))

	assert.True(t, IsMalformed(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsMalformed(cause))
}

func TestValidationError(t *testing.T) {
	err := Invalid("size", "must be between %d and %d", 1, 100)

	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "size", ve.Field)
	assert.Equal(t, "invalid size: must be between 1 and 100", err.Error())
}

func TestPartialIngestionFailureMessage(t *testing.T) {
	err := &PartialIngestionFailure{
		Source: "bkm",
		Index:  "art",
		Failures: []OpFailure{
			{Position: 0, ID: "bkm_1", Message: "bad"},
			{Position: 1, ID: "bkm_2", Message: "bad"},
			{Position: 2, ID: "bkm_3", Message: "bad"},
			{Position: 3, ID: "bkm_4", Message: "bad"},
		},
	}
	assert.Contains(t, err.Error(), "failed for 4 operations")
	assert.NotContains(t, err.Error(), "bkm_4")
}
