package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/staykeep/internal/apperr"
	"github.com/starford/staykeep/internal/models"
)

type fakeProfiles map[string]*models.Profile

func (f fakeProfiles) ProfileByUserID(_ context.Context, userID string) (*models.Profile, error) {
	p, ok := f[userID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return p, nil
}

func TestDisabledModeActsAsOwner(t *testing.T) {
	a := NewAuthenticator("", "", "")
	u, err := a.Authenticate("")
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, u.Role)
	assert.True(t, u.SeesAllProperties())
}

func TestTokenMode(t *testing.T) {
	a := NewAuthenticator(ModeToken, "s3cret", "")
	_, err := a.Authenticate("wrong")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	u, err := a.Authenticate("s3cret")
	require.NoError(t, err)
	assert.Equal(t, "local", u.UserID)
}

func TestJWTRoundTrip(t *testing.T) {
	a := NewAuthenticator(ModeJWT, "", "signing-key")
	tok, err := a.Issue(User{UserID: "u1", ProfileID: "pr1", Role: models.RoleManager}, time.Minute)
	require.NoError(t, err)

	u, err := a.Authenticate(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)
	assert.Equal(t, "pr1", u.ProfileID)
	assert.Equal(t, models.RoleManager, u.Role)
}

func TestJWTRejectsExpiredAndForeign(t *testing.T) {
	a := NewAuthenticator(ModeJWT, "", "signing-key")
	expired, err := a.Issue(User{UserID: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = a.Authenticate(expired)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	other := NewAuthenticator(ModeJWT, "", "other-key")
	foreign, err := other.Issue(User{UserID: "u1"}, time.Minute)
	require.NoError(t, err)
	_, err = a.Authenticate(foreign)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = a.Authenticate("")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestMiddlewareResolvesProfile(t *testing.T) {
	a := NewAuthenticator(ModeJWT, "", "k")
	tok, err := a.Issue(User{UserID: "u7"}, time.Minute)
	require.NoError(t, err)

	profiles := fakeProfiles{"u7": {Meta: models.Meta{ID: "prof-7"}, UserID: "u7", Role: models.RoleStaff}}

	var seen *User
	h := a.Middleware(profiles, func(w http.ResponseWriter, err error) {
		w.WriteHeader(http.StatusUnauthorized)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.NotNil(t, seen)
	assert.Equal(t, "prof-7", seen.ProfileID)
	assert.Equal(t, models.RoleStaff, seen.Role)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBearerTokenQueryFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/events?access_token=abc", nil)
	assert.Equal(t, "abc", BearerToken(req))
}
