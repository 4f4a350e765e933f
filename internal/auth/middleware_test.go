package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	testIssuer = "recipes.identity"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func testMiddleware(skipper Skipper) Middleware {
	return NewMiddleware(Config{Secret: testSecret, Issuer: testIssuer}, skipper)
}

func TestWrapStoresClaimsOnContext(t *testing.T) {
	var got *Claims
	handler := testMiddleware(nil).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	token := signToken(t, jwt.MapClaims{
		"sub":    "user-1",
		"iss":    testIssuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": []string{ScopePointsWrite},
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/points/summary", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	require.Equal(t, "user-1", got.Subject)
	require.True(t, got.HasScope(ScopePointsWrite))
}

func TestWrapRejectsMissingAndBadTokens(t *testing.T) {
	handler := testMiddleware(nil).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run without valid claims")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"wrong issuer", "Bearer " + signToken(t, jwt.MapClaims{
			"sub": "user-1",
			"iss": "someone-else",
			"exp": time.Now().Add(time.Hour).Unix(),
		})},
		{"expired", "Bearer " + signToken(t, jwt.MapClaims{
			"sub": "user-1",
			"iss": testIssuer,
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/points/summary", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code, tc.name)
		require.Equal(t, "application/json", rec.Header().Get("Content-Type"), tc.name)

		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body), tc.name)
		require.Equal(t, "unauthorized", body["error"], tc.name)
	}
}

func TestWrapSkipperBypassesAuth(t *testing.T) {
	called := false
	skipper := func(r *http.Request) bool { return r.URL.Path == "/healthz" }
	handler := testMiddleware(skipper).Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, called, "skipped paths reach the handler without a token")
}
