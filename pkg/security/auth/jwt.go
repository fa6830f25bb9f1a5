package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/Hari1275/sdp-sub000/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingUser  = errors.New("token carries no user id")
)

// Claims is what the identity provider asserts about a field user.
type Claims struct {
	UserID    uuid.UUID  `json:"user_id"`
	Role      string     `json:"role"`
	Region    string     `json:"region,omitempty"`
	ReportsTo *uuid.UUID `json:"reports_to,omitempty"`
	jwt.RegisteredClaims
}

// JWTService signs and verifies HS256 tokens.
type JWTService struct {
	secretKey     []byte
	tokenDuration time.Duration
	issuer        string
}

func NewJWTService(cfg *config.Config) *JWTService {
	return &JWTService{
		secretKey:     []byte(cfg.Auth.JWTSecret),
		tokenDuration: time.Duration(cfg.Auth.JWTExpiryHours) * time.Hour,
		issuer:        cfg.Auth.JWTIssuer,
	}
}

// GenerateToken issues a token for the given identity.
func (s *JWTService) GenerateToken(userID uuid.UUID, role, region string, reportsTo *uuid.UUID) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		Role:      role,
		Region:    region,
		ReportsTo: reportsTo,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signedToken, nil
}

// ValidateToken verifies signature, expiry and issuer and returns the claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == uuid.Nil {
		return nil, ErrMissingUser
	}
	return claims, nil
}
