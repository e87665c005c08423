package internal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, 400, StatusFor(fmt.Errorf("%w: bad date", ErrValidation)))
	assert.Equal(t, 400, StatusFor(ErrInvalidToken))
	assert.Equal(t, 401, StatusFor(ErrTokenExpired))
	assert.Equal(t, 404, StatusFor(WrapError(ErrNotFound, "User not found")))
	assert.Equal(t, 409, StatusFor(fmt.Errorf("follow: %w", WrapError(ErrConflict, "taken"))))
	assert.Equal(t, 500, StatusFor(errors.New("boom")))
	assert.Equal(t, 418, StatusFor(NewAppError(418, "teapot")))
}

func TestPublicMessage(t *testing.T) {
	err := WrapError(ErrNotFound, "User not found")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "User not found", PublicMessage(err, "fallback"))
	assert.Equal(t, "fallback", PublicMessage(ErrConflict, "fallback"))
	assert.Equal(t, "Internal Server Error", PublicMessage(fmt.Errorf("%w: db down", ErrInternal), "fallback"))
}
