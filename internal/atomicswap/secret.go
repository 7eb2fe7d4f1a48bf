package atomicswap

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// NewSecret returns 32 random bytes.
func NewSecret() (Bytes32, error) {
	var s Bytes32
	if _, err := rand.Read(s[:]); err != nil {
		return s, fmt.Errorf("generate secret: %w", err)
	}
	return s, nil
}

// NewSwapID returns a random swap id.
func NewSwapID() (Bytes32, error) {
	return NewSecret()
}

// SecretFromPhrase derives a secret as the Keccak-256 digest of phrase, the
// way EVM counterparties derive theirs.
func SecretFromPhrase(phrase string) Bytes32 {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(phrase))
	var s Bytes32
	copy(s[:], h.Sum(nil))
	return s
}

// HashSecret returns the hashlock committed to at deposit.
func HashSecret(secret Bytes32) Bytes32 {
	return sha256.Sum256(secret[:])
}

// VerifySecret reports whether secret hashes to hash, in constant time.
func VerifySecret(secret, hash Bytes32) bool {
	digest := HashSecret(secret)
	return subtle.ConstantTimeCompare(digest[:], hash[:]) == 1
}
