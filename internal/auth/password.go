package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

// PASSWORD HASHING
//
// WHY AN ADAPTIVE HASH?
// bcrypt and argon2id are password hashing functions designed to be slow.
// That slowness is a security feature: it makes brute-force attacks expensive.
//
// Both schemes:
//   - Generate a random salt (two users with the same password get different hashes)
//   - Embed the salt and the cost parameters in the output string
//   - Compare in constant time, so response timing leaks nothing about the hash
//
// Hash formats:
//
//	bcrypt:   $2a$12$<22-char salt><31-char hash>
//	argon2id: $argon2id$v=19$m=65536,t=1,p=2$<salt>$<key>

// DefaultCost is the bcrypt work factor used when none is configured.
//
// COST TUNING RULE OF THUMB:
// Set cost so that hashing takes ~200–300ms on your production hardware.
// Too low → easy to crack. Too high → login is sluggish and your server
// spends all its time on bcrypt during traffic spikes.
const DefaultCost = 12

// maxPasswordBytes is bcrypt's input limit. Longer passwords are rejected
// rather than silently truncated.
const maxPasswordBytes = 72

// ErrPasswordTooLong is returned by Hash for passwords over 72 bytes.
var ErrPasswordTooLong = errors.New("auth: password must be 72 bytes or fewer")

// PasswordHasher hashes passwords and checks candidates against stored hashes.
//
// Compare returns (false, nil) for a wrong password. A non-nil error means
// the stored hash itself could not be decoded.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(hash, plaintext string) (bool, error)
}

// Hasher names accepted by NewPasswordHasher.
const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// NewPasswordHasher builds the hasher selected by configuration.
// cost is the bcrypt work factor; argon2id uses its library defaults.
func NewPasswordHasher(kind string, cost int) (PasswordHasher, error) {
	switch strings.ToLower(kind) {
	case "", HasherBcrypt:
		return NewBcryptHasher(cost)
	case HasherArgon2id:
		return NewArgon2Hasher(argon2id.DefaultParams), nil
	default:
		return nil, fmt.Errorf("auth: unknown password hasher %q", kind)
	}
}

// BcryptHasher provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so that the cost can be injected
// in tests: using a lower cost (e.g. 4) makes tests run much faster
// without compromising the logic being tested.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a BcryptHasher with the given work factor.
// A zero cost selects DefaultCost.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// NewBcryptHasherForTest creates a BcryptHasher with bcrypt's minimum cost (4).
// Use this in tests in other packages to avoid the ~250ms overhead of cost 12
// per hashing operation.
//
// Do NOT use in production: cost 4 is far too weak.
func NewBcryptHasherForTest() *BcryptHasher {
	return &BcryptHasher{cost: bcrypt.MinCost}
}

// Cost reports the configured work factor.
func (b *BcryptHasher) Cost() int {
	return b.cost
}

// Hash hashes the given plaintext password with bcrypt.
//
// The output is a self-contained string like:
//
//	$2a$12$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy
//
// Store this string directly in the database. It includes the salt and
// cost; bcrypt.CompareHashAndPassword knows how to decode it.
func (b *BcryptHasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Compare checks whether a plaintext password matches a stored bcrypt hash.
//
// bcrypt.CompareHashAndPassword uses a constant-time comparison internally,
// so this is safe against timing attacks.
func (b *BcryptHasher) Compare(hash, plaintext string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return true, nil
}

// Argon2Hasher hashes with argon2id. Unlike bcrypt it has no 72-byte limit,
// but the limit is kept so switching hashers never changes which passwords
// are accepted.
type Argon2Hasher struct {
	params *argon2id.Params
}

// NewArgon2Hasher creates an Argon2Hasher with the given parameters.
func NewArgon2Hasher(params *argon2id.Params) *Argon2Hasher {
	return &Argon2Hasher{params: params}
}

// Hash hashes the given plaintext password with argon2id.
func (a *Argon2Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}

	hashed, err := argon2id.CreateHash(plaintext, a.params)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return hashed, nil
}

// Compare checks a plaintext password against an argon2id hash in constant time.
func (a *Argon2Hasher) Compare(hash, plaintext string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(plaintext, hash)
	if err != nil {
		return false, fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return match, nil
}
