package auth

import (
	"anon-chat/domain"
	"anon-chat/errors"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	issuerName = "anon-chat"
	keyInfo    = "anon-chat session token v1"
)

// Claims is the content of an anonymous session token.
// It carries nothing but the opaque user id.
type Claims struct {
	UserID domain.UserID `json:"uid"`
	jwt.RegisteredClaims
}

// Issuer mints and validates anonymous session tokens.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewIssuer derives the HMAC key from the configured secret.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	return &Issuer{key: key, ttl: ttl, now: time.Now}, nil
}

// Issue creates a new anonymous identity and its signed token.
func (i *Issuer) Issue() (string, domain.UserID, time.Time, error) {
	userID := newUserID()
	now := i.now()
	expiresAt := now.Add(i.ttl)

	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuerName,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", 0, time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return token, userID, expiresAt, nil
}

// Validate checks signature, issuer and expiration and returns the user id.
func (i *Issuer) Validate(tokenString string) (domain.UserID, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrUnauthenticated, err)
	}
	if !token.Valid || claims.UserID <= 0 {
		return 0, fmt.Errorf("%w: invalid claims", errors.ErrUnauthenticated)
	}
	return claims.UserID, nil
}

// newUserID draws a positive id from a random UUID.
func newUserID() domain.UserID {
	for {
		u := uuid.New()
		id := int64(binary.BigEndian.Uint64(u[:8]) & math.MaxInt64)
		if id != 0 {
			return domain.UserID(id)
		}
	}
}
