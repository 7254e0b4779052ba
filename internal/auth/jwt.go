package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BreederHQ/server/internal/domain/ids"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess = "access"
	clockLeeway     = 30 * time.Second
)

// Claims identifies a user. Tenant membership is resolved per request from
// X-Tenant-ID, so tokens carry no tenant or role.
type Claims struct {
	TokenType string `json:"typ"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken also matches ErrInvalidToken; clients should refresh.
	ErrExpiredToken = fmt.Errorf("%w: expired", ErrInvalidToken)
)

// JWTManager signs and checks short-lived HS256 access tokens.
type JWTManager struct {
	secret []byte
	expiry time.Duration
	issuer string
	now    func() time.Time
}

func NewJWTManager(secret string, expiry time.Duration, issuer string) *JWTManager {
	return &JWTManager{secret: []byte(secret), expiry: expiry, issuer: issuer, now: time.Now}
}

func (m *JWTManager) Expiry() time.Duration { return m.expiry }

// Generate issues an access token for userID and returns its expiry.
func (m *JWTManager) Generate(userID, email string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, ErrInvalidToken
	}
	issued := m.now()
	expires := issued.Add(m.expiry)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		TokenType: tokenTypeAccess,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ids.New(),
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expires, nil
}

// Validate checks signature, issuer, expiry and token type.
func (m *JWTManager) Validate(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
		jwt.WithTimeFunc(m.now),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, ErrInvalidToken
	case claims.TokenType != tokenTypeAccess:
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenFromHeader extracts the token from "Bearer <token>".
func TokenFromHeader(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMissingToken
	}
	return token, nil
}
