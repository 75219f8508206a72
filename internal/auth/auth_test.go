package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	tm := NewTokenManager("s3cret", time.Hour)

	token, expiresAt, err := tm.Issue(7, "p7@example.com", "Pat", RolePatient)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := tm.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "p7@example.com", claims.Email)
	assert.Equal(t, RolePatient, claims.Role)
	assert.Equal(t, "7", claims.Subject)
}

func TestParseRejectsForeignSignatureAndExpiry(t *testing.T) {
	issuer := NewTokenManager("one", time.Hour)
	token, _, err := issuer.Issue(1, "a@example.com", "", RolePatient)
	require.NoError(t, err)

	_, err = NewTokenManager("two", time.Hour).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewTokenManager("one", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue(1, "a@example.com", "", RolePatient)
	require.NoError(t, err)

	_, err = issuer.Parse(old)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCanActFor(t *testing.T) {
	patient := &Claims{UserID: 7, Role: RolePatient}
	doctor := &Claims{UserID: 3, Role: RoleDoctor}

	assert.True(t, patient.CanActFor(7))
	assert.False(t, patient.CanActFor(8))
	assert.True(t, doctor.CanActFor(8))

	var nobody *Claims
	assert.False(t, nobody.CanActFor(7))
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("s3cret", time.Hour)
	token, _, err := tm.Issue(7, "p7@example.com", "", RolePatient)
	require.NoError(t, err)

	var seen *Claims
	handler := Middleware(tm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"bearer header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusNoContent},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieName, Value: token}) }, http.StatusNoContent},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic "+token) }, http.StatusUnauthorized},
		{"garbage", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, int64(7), seen.UserID)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}
