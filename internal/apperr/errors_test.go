package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("product not found")))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInsufficientStock, KindOf(fmt.Errorf("ctx: %w", InsufficientStock("x"))))
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, "x"))

	base := errors.New("disk full")
	err := Wrap(base, "create order")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "create order: disk full", err.Error())

	typed := Forbidden("nope")
	assert.Same(t, typed, Wrap(typed, "ignored"))
}

func TestErrorsIsByKind(t *testing.T) {
	err := InsufficientBalance("sender's points are not enough")
	assert.ErrorIs(t, err, InsufficientBalance(""))
	assert.NotErrorIs(t, err, InsufficientStock(""))
	assert.True(t, IsKind(err, KindInsufficientBalance))
	assert.False(t, IsKind(nil, KindInternal))
}

func TestInvalidRequestDetails(t *testing.T) {
	err := InvalidRequest("validation error", "amount: must be > 0")
	assert.Equal(t, []string{"amount: must be > 0"}, err.Details)
	assert.Equal(t, "invalid_request", err.Kind.String())
}
