package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	t.Parallel()
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad", nil), http.StatusBadRequest},
		{NotFound("x", nil), http.StatusNotFound},
		{Conflict("x", nil), http.StatusConflict},
		{Unauthorized("x", nil), http.StatusUnauthorized},
		{Forbidden("x", nil), http.StatusForbidden},
		{ForbiddenCSRF("x"), http.StatusForbidden},
		{AuthFailed(nil), http.StatusBadRequest},
		{OtpRequired(), http.StatusUnauthorized},
		{OtpLocked(nil), http.StatusTooManyRequests},
		{InvalidGrant("x", nil), http.StatusBadRequest},
		{TooManyRequests("x"), http.StatusTooManyRequests},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain error"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Code(c.err))
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, KindNotFound, KindOf(NotFound("x", nil)))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()
	cause := errors.New("underlying")
	withCause := New(KindInternal, "wrapped", cause)
	assert.Contains(t, withCause.Error(), "wrapped")
	assert.Contains(t, withCause.Error(), "underlying")
	require.ErrorIs(t, withCause, cause)

	withoutCause := New(KindValidation, "bad input", nil)
	assert.Equal(t, "validation_error: bad input", withoutCause.Error())
}

func TestAuthFailedMessageIsConstant(t *testing.T) {
	t.Parallel()
	// The caller must not be able to distinguish "unknown subject" from
	// "wrong password" by message text alone.
	a := AuthFailed(errors.New("no such subject"))
	b := AuthFailed(errors.New("bad password"))
	assert.Equal(t, a.Message, b.Message)
}

func TestNewPasswordEqualsCurrent(t *testing.T) {
	t.Parallel()
	err := NewPasswordEqualsCurrent()
	assert.Equal(t, KindConflict, err.Kind)
	assert.Equal(t, http.StatusConflict, Code(err))
}
