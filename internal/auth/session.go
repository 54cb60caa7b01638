package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidSession = errors.New("invalid session token")

// Principal is the authenticated caller extracted from a session token.
type Principal struct {
	UserID string
	Email  string
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer issues and validates the service's own session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenIssuer constructs a TokenIssuer signing HS256 tokens.
func NewTokenIssuer(secret string, ttl time.Duration, issuer string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

// Issue signs a session token for the user.
func (i *TokenIssuer) Issue(userID, email string) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ValidateToken verifies a session token and returns its principal.
func (i *TokenIssuer) ValidateToken(token string) (Principal, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(i.issuer))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return Principal{}, ErrInvalidSession
	}
	return Principal{UserID: claims.Subject, Email: claims.Email}, nil
}
