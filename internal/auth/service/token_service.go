package service

//go:generate mockgen -destination=../../mocks/mock_token_generator.go -package=mocks github.com/NotEclipsed/jira-dashboard/internal/auth/service TokenGenerator

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenGenerator signs and verifies session capability tokens. A token only
// references a session; the registry holds the state.
type TokenGenerator interface {
	Generate(sessionID, userID string, ttl time.Duration) (string, time.Time, error)
	Verify(tokenString string) (*SessionClaims, error)
}

type TokenService struct {
	secret []byte
	now    func() time.Time
}

type SessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	UserID    string `json:"uid"`
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// WithTimeFunc replaces the clock used for iat/exp and for expiry checks.
func (ts *TokenService) WithTimeFunc(now func() time.Time) *TokenService {
	ts.now = now
	return ts
}

func (ts *TokenService) Generate(sessionID, userID string, ttl time.Duration) (string, time.Time, error) {
	now := ts.now()
	expiresAt := now.Add(ttl)

	claims := SessionClaims{
		SessionID: sessionID,
		UserID:    userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.secret)
	if err != nil {
		return "", time.Time{}, err
	}

	return token, expiresAt, nil
}

// Verify parses and validates the token. Expired tokens fail with an error
// matching jwt.ErrTokenExpired; when the signature is still good the claims
// are returned alongside that error so the caller can find the session.
func (ts *TokenService) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := ts.parse(tokenString, claims,
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ts.expiredClaims(tokenString, err)
		}
		return nil, err
	}

	if !token.Valid || claims.SessionID == "" || claims.UserID == "" {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// expiredClaims re-checks only the signature of a token that failed on
// expiry.
func (ts *TokenService) expiredClaims(tokenString string, expired error) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := ts.parse(tokenString, claims, jwt.WithoutClaimsValidation())
	if err != nil || !token.Valid || claims.SessionID == "" || claims.UserID == "" {
		return nil, expired
	}
	return claims, expired
}

func (ts *TokenService) parse(tokenString string, claims *SessionClaims, opts ...jwt.ParserOption) (*jwt.Token, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.secret, nil
	}, opts...)
}
