package service

import (
	"fmt"
	"time"

	"github.com/boddenberg/pdv-assistant-bfa-go/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// ============================================================
// Store access tokens (HS256)
// ============================================================

const tokenIssuer = "pdv-bfa"

// JWTClaims represents the custom claims in access tokens. Sub is the store id.
type JWTClaims struct {
	Sub  string `json:"sub"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// TokenService signs and validates store access tokens.
type TokenService struct {
	jwtSecret []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenService creates a TokenService. A non-positive ttl defaults to 12h,
// one shift at the counter.
func NewTokenService(secret string, accessTTL time.Duration) *TokenService {
	if accessTTL <= 0 {
		accessTTL = 12 * time.Hour
	}
	return &TokenService{jwtSecret: []byte(secret), accessTTL: accessTTL, now: time.Now}
}

// SignAccessToken issues an access token for storeID.
func (s *TokenService) SignAccessToken(storeID string) (string, error) {
	if storeID == "" {
		return "", &domain.ErrValidation{Field: "store_id", Message: "required"}
	}
	now := s.now()
	claims := JWTClaims{
		Sub:  storeID,
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateAccessToken parses tokenString and returns its claims.
func (s *TokenService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido"}
	}

	if claims.Type != "access" || claims.Sub == "" {
		return nil, &domain.ErrUnauthorized{Message: "Tipo de token inválido"}
	}

	return claims, nil
}
