package server

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/resume-optimizer/internal/config"
)

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{Secret: testJWTSecret, ExpirationHours: 1, Issuer: config.DefaultJWTIssuer}
}

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(testJWTConfig())

	token, err := svc.GenerateToken("ci-bot")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ci-bot", claims.Subject)
	assert.Equal(t, config.DefaultJWTIssuer, claims.Issuer)

	subject, err := claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "ci-bot", subject)
}

func TestJWTService_EmptySubject(t *testing.T) {
	_, err := NewJWTService(testJWTConfig()).GenerateToken("")
	assert.Error(t, err)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService(testJWTConfig())

	sign := func(method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, Claims{RegisteredClaims: claims}).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func() jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   "ci-bot",
			Issuer:    config.DefaultJWTIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	otherIssuer := valid()
	otherIssuer.Issuer = "someone-else"
	noExpiry := valid()
	noExpiry.ExpiresAt = nil

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("ffffffffffffffffffffffffffffffff"), valid())},
		{"expired", sign(jwt.SigningMethodHS256, []byte(testJWTSecret), expired)},
		{"wrong issuer", sign(jwt.SigningMethodHS256, []byte(testJWTSecret), otherIssuer)},
		{"no expiry", sign(jwt.SigningMethodHS256, []byte(testJWTSecret), noExpiry)},
		{"other algorithm", sign(jwt.SigningMethodHS512, []byte(testJWTSecret), valid())},
		{"unsigned", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ValidateToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestJWTService_AsTokenValidator(t *testing.T) {
	svc := NewJWTService(testJWTConfig())
	token, err := svc.GenerateToken("ops")
	require.NoError(t, err)

	got, err := svc.AsTokenValidator().ValidateToken(token)
	require.NoError(t, err)
	subject, err := got.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "ops", subject)

	_, err = svc.AsTokenValidator().ValidateToken("bogus")
	assert.Error(t, err)
}
