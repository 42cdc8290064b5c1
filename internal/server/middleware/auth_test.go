package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTokenValidator is a test implementation of TokenValidator for unit tests.
type testTokenValidator struct {
	validTokens map[string]string
}

func newTestTokenValidator() *testTokenValidator {
	return &testTokenValidator{validTokens: make(map[string]string)}
}

func (v *testTokenValidator) addValidToken(token, subject string) {
	v.validTokens[token] = subject
}

func (v *testTokenValidator) ValidateToken(tokenString string) (SubjectGetter, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token string is empty")
	}
	subject, ok := v.validTokens[tokenString]
	if !ok {
		return nil, fmt.Errorf("invalid token")
	}
	return testClaims(subject), nil
}

type testClaims string

func (c testClaims) GetSubject() (string, error) {
	return string(c), nil
}

func okHandler(t *testing.T, wantSubject string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := GetSubject(r)
		require.NoError(t, err)
		assert.Equal(t, wantSubject, subject)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	validator := newTestTokenValidator()
	validator.addValidToken("valid-test-token-123", "ops@acme.example")

	handler := AuthMiddleware(validator)(okHandler(t, "ops@acme.example"))

	for _, header := range []string{"Bearer valid-test-token-123", "bearer valid-test-token-123", "BEARER  valid-test-token-123 "} {
		req := httptest.NewRequest(http.MethodGet, "/artifacts", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, header)
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	validator := newTestTokenValidator()
	validator.addValidToken("good", "ops")
	validator.addValidToken("anonymous", "")

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header", header: ""},
		{name: "no scheme", header: "good"},
		{name: "basic scheme", header: "Basic good"},
		{name: "extra parts", header: "Bearer good extra"},
		{name: "unknown token", header: "Bearer forged"},
		{name: "empty subject", header: "Bearer anonymous"},
	}

	called := false
	handler := AuthMiddleware(validator)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/artifacts", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			assert.JSONEq(t, `{"error":"unauthorized"}`, rec.Body.String())
		})
	}
	assert.False(t, called)
}

func TestGetSubject(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := GetSubject(req)
	assert.Error(t, err)

	req = req.WithContext(context.WithValue(req.Context(), SubjectKey(), 42))
	_, err = GetSubject(req)
	assert.Error(t, err, "wrong type is not a subject")

	req = req.WithContext(context.WithValue(req.Context(), SubjectKey(), "ops"))
	subject, err := GetSubject(req)
	require.NoError(t, err)
	assert.Equal(t, "ops", subject)
}
