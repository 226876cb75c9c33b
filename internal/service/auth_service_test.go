package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
)

type mockUserMirror struct {
	upserted []models.User
	err      error
}

func (m *mockUserMirror) Upsert(ctx context.Context, user *models.User) error {
	if m.err != nil {
		return m.err
	}
	m.upserted = append(m.upserted, *user)
	return nil
}

func signToken(t *testing.T, secret string, claims *models.JWTClaims, method jwt.SigningMethod) string {
	t.Helper()
	token := jwt.NewWithClaims(method, claims)
	var key interface{} = []byte(secret)
	if method == jwt.SigningMethodNone {
		key = jwt.UnsafeAllowNoneSignatureType
	}
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func lmsClaims(expires time.Time) *models.JWTClaims {
	return &models.JWTClaims{
		Username: "learner",
		Email:    "learner@example.com",
		FullName: "Lea Rner",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "lms",
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
}

func TestValidateTokenFillsSubjectAndRole(t *testing.T) {
	svc := NewAuthService(nil, nil, nil, AuthConfig{Secret: "s3cret", Issuer: "lms"})
	token := signToken(t, "s3cret", lmsClaims(time.Now().Add(time.Hour)), jwt.SigningMethodHS256)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleLearner, claims.Role)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewAuthService(nil, nil, nil, AuthConfig{Secret: "s3cret", Issuer: "lms"})
	cases := map[string]string{
		"expired":      signToken(t, "s3cret", lmsClaims(time.Now().Add(-time.Hour)), jwt.SigningMethodHS256),
		"wrong secret": signToken(t, "other", lmsClaims(time.Now().Add(time.Hour)), jwt.SigningMethodHS256),
		"alg none":     signToken(t, "", lmsClaims(time.Now().Add(time.Hour)), jwt.SigningMethodNone),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			var appErr *appErrors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
		})
	}
}

func TestValidateTokenWrongIssuer(t *testing.T) {
	svc := NewAuthService(nil, nil, nil, AuthConfig{Secret: "s3cret", Issuer: "other-lms"})
	_, err := svc.ValidateToken(signToken(t, "s3cret", lmsClaims(time.Now().Add(time.Hour)), jwt.SigningMethodHS256))
	assert.Error(t, err)
}

func TestAuthenticateMirrorsUser(t *testing.T) {
	users := &mockUserMirror{}
	svc := NewAuthService(users, nil, nil, AuthConfig{Secret: "s3cret"})
	token := signToken(t, "s3cret", lmsClaims(time.Now().Add(time.Hour)), jwt.SigningMethodHS256)

	claims, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	require.Len(t, users.upserted, 1)
	assert.Equal(t, "learner@example.com", users.upserted[0].Email)
	assert.True(t, users.upserted[0].Active)
}

func TestAuthenticateIgnoresMirrorFailure(t *testing.T) {
	users := &mockUserMirror{err: errors.New("db down")}
	svc := NewAuthService(users, nil, nil, AuthConfig{Secret: "s3cret"})
	token := signToken(t, "s3cret", lmsClaims(time.Now().Add(time.Hour)), jwt.SigningMethodHS256)

	_, err := svc.Authenticate(context.Background(), token)
	assert.NoError(t, err)
}
