package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_WrappedChain(t *testing.T) {
	base := E(KindStoreUnavailable, "otp.Insert", errors.New("connection refused"))
	wrapped := fmt.Errorf("request code: %w", base)

	assert.Equal(t, KindStoreUnavailable, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindStoreUnavailable))
	assert.False(t, IsKind(nil, KindStoreUnavailable))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestIs_MatchesSentinelByKind(t *testing.T) {
	err := New(KindExpired, "otp.VerifyCode", "code expired")

	assert.True(t, errors.Is(err, ErrExpired))
	assert.False(t, errors.Is(err, ErrMismatch))
}

func TestE_NilPassthrough(t *testing.T) {
	assert.NoError(t, E(KindInternal, "op", nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidInput:     http.StatusBadRequest,
		KindExpired:          http.StatusBadRequest,
		KindMismatch:         http.StatusBadRequest,
		KindNotFound:         http.StatusNotFound,
		KindUnauthorized:     http.StatusUnauthorized,
		KindForbidden:        http.StatusForbidden,
		KindRateLimited:      http.StatusTooManyRequests,
		KindStoreUnavailable: http.StatusInternalServerError,
		KindInternal:         http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), kind.String())
	}
}

func TestError_Message(t *testing.T) {
	err := E(KindStoreUnavailable, "identity.FindByEmail", errors.New("timeout"))
	assert.Equal(t, "identity.FindByEmail: store_unavailable: timeout", err.Error())
}
