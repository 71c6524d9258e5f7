package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	e := New(NotFound, "memory missing", nil).WithDetail("id", "abc")
	assert.Contains(t, e.Error(), "NOT_FOUND")
	assert.Equal(t, "abc", e.Details["id"])
}

func TestIsMatchesByKind(t *testing.T) {
	e := NotFoundf("memory %s missing", "m1")
	assert.True(t, errors.Is(e, New(NotFound, "", nil)))
	assert.False(t, errors.Is(e, New(InvalidInput, "", nil)))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 400, InvalidInput.HTTPStatus())
	assert.Equal(t, 404, NotFound.HTTPStatus())
	assert.Equal(t, 500, Internal.HTTPStatus())
}
