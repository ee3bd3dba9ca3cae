package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"parchment/internal/ids"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrMalformedToken = errors.New("malformed token payload")
	ErrMissingSecret  = errors.New("token secret not configured")
)

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

type Claims struct {
	UserID string    `json:"uid"`
	Kind   TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies access and refresh tokens. Both kinds carry
// the same payload but use separate secrets and lifetimes.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenService(accessSecret string, refreshSecret string, accessTTL time.Duration, refreshTTL time.Duration) *TokenService {
	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenService) IssueAccessToken(userID string) (string, error) {
	token, _, err := s.issue(userID, TokenKindAccess, s.accessSecret, s.accessTTL)
	return token, err
}

// IssueRefreshToken returns the signed token and the moment it stops being valid.
func (s *TokenService) IssueRefreshToken(userID string) (string, time.Time, error) {
	return s.issue(userID, TokenKindRefresh, s.refreshSecret, s.refreshTTL)
}

func (s *TokenService) VerifyAccessToken(token string) (*Claims, error) {
	return s.verify(token, TokenKindAccess, s.accessSecret)
}

func (s *TokenService) VerifyRefreshToken(token string) (*Claims, error) {
	return s.verify(token, TokenKindRefresh, s.refreshSecret)
}

func (s *TokenService) issue(userID string, kind TokenKind, secret []byte, ttl time.Duration) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, fmt.Errorf("%s token: %w", kind, ErrMissingSecret)
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID: userID,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ids.New(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign jwt: %w", err)
	}
	return signed, expiresAt, nil
}

func (s *TokenService) verify(tokenStr string, kind TokenKind, secret []byte) (*Claims, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("%s token: %w", kind, ErrMissingSecret)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

// HashRefreshToken is the form a refresh token is persisted in.
func HashRefreshToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RefreshHashEqual compares two stored-form digests in constant time. An empty
// stored digest never matches.
func RefreshHashEqual(presentedHash string, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presentedHash), []byte(storedHash)) == 1
}
