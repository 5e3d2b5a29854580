package booking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MimeLyc/carshop-agent/internal/apperr"
	"github.com/MimeLyc/carshop-agent/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_CreateBooking(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/bookings", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(42), req.Vehicle.TrimID)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"booking":{"id":"bk-9","car_id":42,"status":"pending"}}`))
	}))
	defer srv.Close()

	b, err := NewHTTPClient(srv.URL).CreateBooking(context.Background(), &identity.User{ID: "u", AccessToken: "tok"}, validRequest())
	require.NoError(t, err)
	assert.Equal(t, "bk-9", b.ID)
	assert.Equal(t, StatusPending, b.Status)
}

func TestHTTPClient_SurfacesCollaboratorMessage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		body   string
		kind   apperr.Kind
		msg    string
	}{
		{http.StatusBadRequest, `{"message":"Preferred location is required."}`, apperr.KindValidation, "Preferred location is required."},
		{http.StatusUnauthorized, `{"message":"Unable to verify user."}`, apperr.KindAuth, "Unable to verify user."},
		{http.StatusNotFound, `{"message":"The selected vehicle could not be found. Please choose another model."}`, apperr.KindNotFound, "The selected vehicle could not be found. Please choose another model."},
		{http.StatusInternalServerError, `{"message":"Unable to create booking. Please try again later."}`, apperr.KindExternal, "Unable to create booking. Please try again later."},
		{http.StatusBadGateway, `upstream sad`, apperr.KindExternal, "Booking service returned status 502."},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(tc.body))
		}))

		_, err := NewHTTPClient(srv.URL).CreateBooking(context.Background(), &identity.User{ID: "u"}, validRequest())
		srv.Close()

		require.Error(t, err)
		assert.Equal(t, tc.kind, apperr.KindOf(err), "status %d", tc.status)
		assert.Equal(t, tc.msg, apperr.PublicMessage(err))
	}
}

func TestHTTPClient_NotConfigured(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPClient("").CreateBooking(context.Background(), nil, validRequest())
	assert.True(t, apperr.IsKind(err, apperr.KindConfig))
}
