package status

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errTestSentinel = errors.New("status: test sentinel")

func init() {
	Register(errTestSentinel, ErrAlreadyExists)
}

func TestFromErrorMapsRegisteredSentinel(t *testing.T) {
	assert.Equal(t, ErrAlreadyExists, FromError(errTestSentinel))
}

func TestFromErrorWrapsUnregisteredAsInvalidData(t *testing.T) {
	assert.Equal(t, ErrInvalidData, FromError(errors.New("something else")))
}

func TestFromErrorNilIsOk(t *testing.T) {
	assert.Equal(t, Ok, FromError(nil))
}

func TestFromErrorUnwrapsWrappedSentinel(t *testing.T) {
	wrapped := fmt.Errorf("wrapping: %w", errTestSentinel)
	assert.Equal(t, ErrAlreadyExists, FromError(wrapped))
}
