package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// RequestIDHeader carries the fetch cycle id; it is mirrored into the
// token id so the API can correlate both.
const RequestIDHeader = "X-Request-ID"

var (
	ErrMissingSecret = errors.New("service token secret is empty")
	ErrInvalidToken  = errors.New("invalid token")
)

// ServiceClaims are the claims of a configuration API service token
type ServiceClaims struct {
	jwt.RegisteredClaims
}

// GenerateServiceToken creates a short-lived HS256 token for subject.
// It returns the signed token and its expiration as a unix timestamp.
func GenerateServiceToken(secret []byte, subject, tokenID string, expiresAt time.Time) (string, int64, error) {
	if len(secret) == 0 {
		return "", 0, ErrMissingSecret
	}

	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedToken, err := token.SignedString(secret)
	if err != nil {
		return "", 0, err
	}
	return signedToken, expiresAt.Unix(), nil
}

// ValidateServiceToken verifies signature and expiry and returns the claims.
// It is the receiving side of ServiceTokenAuth, for the configuration API.
func ValidateServiceToken(tokenString string, secret []byte) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
