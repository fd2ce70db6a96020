package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/assignment-tracker-api/internal/models"
	appErrors "github.com/noah-isme/assignment-tracker-api/pkg/errors"
)

// TokenConfig configures access token signing.
type TokenConfig struct {
	Secret string
	Issuer string
	Expiry time.Duration
}

// TokenService issues and validates HS256 access tokens carrying the caller identity.
type TokenService struct {
	cfg   TokenConfig
	clock func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(cfg TokenConfig) *TokenService {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 24 * time.Hour
	}
	return &TokenService{cfg: cfg, clock: func() time.Time { return time.Now().UTC() }}
}

// Issue signs a token for the given identity. Used by tooling and tests; sign-in is out of scope.
func (s *TokenService) Issue(userID string, role models.UserRole, email, fullName string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrValidation, "user id is required")
	}
	issuedAt := s.clock()
	expiresAt := issuedAt.Add(s.cfg.Expiry)
	claims := &models.JWTClaims{
		UserID:   userID,
		Role:     role,
		Email:    email,
		FullName: fullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *TokenService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(s.clock)}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	switch claims.Role {
	case models.RoleAdmin, models.RoleInstructor, models.RoleApplicant:
	default:
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unknown role")
	}
	if claims.UserID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}
