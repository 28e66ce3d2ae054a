package errors_test

import (
	"net/http"
	"testing"

	stderrors "errors"

	"github.com/chris-alexander-pop/ratelimitcore/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesCode(t *testing.T) {
	base := errors.New(errors.CodeInvalidArgument, "permits must be positive", nil)
	wrapped := errors.Wrap(base, "try_acquire failed")

	assert.Equal(t, errors.CodeInvalidArgument, errors.GetCode(wrapped))
	assert.True(t, errors.Is(wrapped, errors.CodeInvalidArgument))
}

func TestWrapNilIsNil(t *testing.T) {
	assert.NoError(t, errors.Wrap(nil, "unused"))
}

func TestWrapUnknownErrorIsInternal(t *testing.T) {
	wrapped := errors.Wrap(stderrors.New("boom"), "storage op failed")
	assert.Equal(t, errors.CodeInternal, errors.GetCode(wrapped))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, errors.HTTPStatus(errors.New(errors.CodeInvalidArgument, "x", nil)))
	assert.Equal(t, http.StatusServiceUnavailable, errors.HTTPStatus(errors.New(errors.CodeStorageUnavailable, "x", nil)))
	assert.Equal(t, http.StatusInternalServerError, errors.HTTPStatus(stderrors.New("x")))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := errors.New(errors.CodeStorageUnavailable, "redis unreachable", cause)
	assert.Same(t, cause, stderrors.Unwrap(err))
}
