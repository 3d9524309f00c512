package access

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// MaxSecretLength is the longest secret bcrypt accepts.
const MaxSecretLength = 72

// ErrSecretTooLong is returned by Hash for secrets bcrypt would reject.
var ErrSecretTooLong = errors.New("secret exceeds 72 bytes")

// Hasher turns owner secrets into one-way digests and checks them.
type Hasher interface {
	Hash(secret string) (string, error)
	// Verify reports whether secret matches digest. It never returns an
	// error: malformed digests and algorithm mismatches are simply false.
	Verify(secret, digest string) bool
	// LooksHashed reports whether value already has the digest format.
	LooksHashed(value string) bool
}

// BcryptHasher implements Hasher with bcrypt.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher using cost, or bcrypt.DefaultCost when cost is out of range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

func (h *BcryptHasher) Hash(secret string) (string, error) {
	if len(secret) > MaxSecretLength {
		return "", ErrSecretTooLong
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), h.Cost)
	return string(bytes), err
}

func (h *BcryptHasher) Verify(secret, digest string) bool {
	if secret == "" || digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

func (h *BcryptHasher) LooksHashed(value string) bool {
	if len(value) != 60 {
		return false
	}
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(value, prefix) {
			_, err := bcrypt.Cost([]byte(value))
			return err == nil
		}
	}
	return false
}
