package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_FormatsContextSorted(t *testing.T) {
	t.Parallel()

	err := Wrap(errors.New("dial tcp"), KindExternal, "booking service unavailable").
		WithContext("trim_id", 42).
		WithContext("attempt", 1)

	assert.Equal(t,
		"[External] booking service unavailable | context: attempt=1, trim_id=42 | cause: dial tcp",
		err.Error())
}

func TestKindOf_FollowsWrapChain(t *testing.T) {
	t.Parallel()

	base := New(KindNotFound, "vehicle not found")
	wrapped := fmt.Errorf("schedule: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindNotFound))
	assert.False(t, IsKind(nil, KindNotFound))
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestKind_HTTPStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusBadRequest, KindValidation.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, KindAuth.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusServiceUnavailable, KindConfig.HTTPStatus())
	assert.Equal(t, http.StatusBadGateway, KindExternal.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindUnknown.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindInternal.HTTPStatus())
}

func TestPublicMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Unable to verify user.", PublicMessage(New(KindAuth, "Unable to verify user.")))
	assert.Equal(t, "internal error", PublicMessage(errors.New("pq: relation missing")))
}

func TestSafeExecute_RecoversPanic(t *testing.T) {
	t.Parallel()

	err := SafeExecute(func() error {
		var m map[string]int
		m["boom"] = 1
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime error")
	assert.Equal(t, KindUnknown, KindOf(err))

	assert.NoError(t, SafeExecute(func() error { return nil }))
}
