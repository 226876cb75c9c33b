package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
)

type userMirror interface {
	Upsert(ctx context.Context, user *models.User) error
}

// AuthConfig defines how LMS access tokens are verified.
type AuthConfig struct {
	Secret string
	Issuer string
	// MirrorTTL bounds how often a known account is written back to users.
	MirrorTTL time.Duration
}

// AuthService verifies access tokens issued by the LMS and keeps the local
// user mirror in step with their claims.
type AuthService struct {
	users  userMirror
	cache  *CacheService
	logger *zap.Logger
	config AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users userMirror, cache *CacheService, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.MirrorTTL <= 0 {
		config.MirrorTTL = 10 * time.Minute
	}
	return &AuthService{users: users, cache: cache, logger: logger, config: config}
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token has no subject")
	}
	if claims.Role == "" {
		claims.Role = models.RoleLearner
	}
	return claims, nil
}

// Authenticate validates the token and mirrors the account locally.
// Mirror failures are logged; the request still proceeds.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	s.mirror(ctx, claims)
	return claims, nil
}

func (s *AuthService) mirror(ctx context.Context, claims *models.JWTClaims) {
	if s.users == nil {
		return
	}
	key := fmt.Sprintf("user:mirror:%s", claims.UserID)
	var seen bool
	if s.cache.Get(ctx, key, &seen) && seen {
		return
	}
	user := &models.User{
		ID:       claims.UserID,
		Email:    claims.Email,
		Username: claims.Username,
		FullName: claims.FullName,
		Role:     claims.Role,
		Active:   true,
	}
	if user.Username == "" {
		user.Username = claims.Email
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		s.logger.Warn("failed to mirror user", zap.String("user_id", claims.UserID), zap.Error(err))
		return
	}
	s.cache.Set(ctx, key, true, s.config.MirrorTTL)
}
