package access

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrTokensDisabled is returned when no signing key is configured.
var ErrTokensDisabled = errors.New("owner tokens are not configured")

const tokenRole = "owner"

// OwnerClaims identifies the listing an owner token was issued for.
// DigestTag binds the token to the owner digest at issue time, so rotating
// the owner secret revokes every outstanding token.
type OwnerClaims struct {
	Role      string `json:"role"`
	DigestTag string `json:"dtg"`
	jwt.RegisteredClaims
}

func (c *OwnerClaims) matches(listingID uint, digest string) bool {
	if c.Subject != strconv.FormatUint(uint64(listingID), 10) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.DigestTag), []byte(digestTag(digest))) == 1
}

// TokenIssuer signs and checks owner tokens.
type TokenIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenIssuer returns an issuer. An empty key disables tokens.
func NewTokenIssuer(key string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &TokenIssuer{key: []byte(key), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for listingID bound to digest.
func (t *TokenIssuer) Issue(listingID uint, digest string) (string, time.Time, error) {
	if t == nil || len(t.key) == 0 {
		return "", time.Time{}, ErrTokensDisabled
	}
	now := t.now()
	expires := now.Add(t.ttl)
	claims := OwnerClaims{
		Role:      tokenRole,
		DigestTag: digestTag(digest),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(listingID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign owner token: %w", err)
	}
	return signed, expires, nil
}

// parse verifies the signature and expiry of token.
func (t *TokenIssuer) parse(token string) (*OwnerClaims, bool) {
	if t == nil || len(t.key) == 0 || token == "" {
		return nil, false
	}

	claims := &OwnerClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.key, nil
	})
	if err != nil || !parsed.Valid {
		return nil, false
	}
	if claims.Role != tokenRole {
		return nil, false
	}
	return claims, true
}

func digestTag(digest string) string {
	sum := sha256.Sum256([]byte(digest))
	return hex.EncodeToString(sum[:8])
}
