package auth

import (
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/argon2"

	"campus-alert/core/utils"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

// Hasher derives and verifies password hashes. The pepper is a deployment
// secret mixed into every hash in addition to the per-user salt.
type Hasher struct {
	pepper string
}

func NewHasher(pepper string) *Hasher {
	return &Hasher{pepper: pepper}
}

// Hash returns the hex hash and the hex salt it was derived with.
func (h *Hasher) Hash(password string) (hash, salt string) {
	saltBytes, err := utils.RandBytes(saltLen)
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken.
		panic(err)
	}
	return h.hashWith(password, saltBytes), hex.EncodeToString(saltBytes)
}

// Verify checks a password against a stored hash and salt in constant time.
func (h *Hasher) Verify(password, storedHash, storedSalt string) bool {
	saltBytes, err := hex.DecodeString(storedSalt)
	if err != nil {
		return false
	}
	got := h.hashWith(password, saltBytes)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}

func (h *Hasher) hashWith(password string, salt []byte) string {
	key := argon2.IDKey([]byte(password+h.pepper), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return hex.EncodeToString(key)
}
