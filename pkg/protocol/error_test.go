package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLifecycleErrorsWrapInvalidState(t *testing.T) {
	for _, err := range []error{ErrNotInitialized, ErrAlreadyInitialized, ErrReadOnly, ErrNotCompiled} {
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.NotErrorIs(t, err, ErrEncoding)
	}
}

func TestEncodingError(t *testing.T) {
	_, err := EncodeB64(4096, 2)

	var encErr *EncodingError
	assert.True(t, errors.As(err, &encErr))
	assert.Equal(t, "EncodeB64", encErr.Op)
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Contains(t, err.Error(), "protocol: EncodeB64:")
}
