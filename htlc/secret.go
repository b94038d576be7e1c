// Package htlc implements the hash-time-lock primitives shared by both
// chain sides of a swap: 32-byte secret generation, its SHA-256
// commitment, and constant-time comparison. Nothing in this package ever
// renders a Secret's raw bytes through a logger or a %v/%s format verb.
package htlc

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Size is the byte length of both a Secret and a Hash.
const Size = 32

// Secret is 32 bytes of cryptographically strong randomness, the preimage
// whose revelation on one chain unlocks the counter-claim on the other.
type Secret [Size]byte

// Hash is SHA-256(Secret), the on-chain commitment both escrows lock
// against.
type Hash [Size]byte

// GenerateSecret draws a new Secret from a CSPRNG.
func GenerateSecret() (Secret, error) {
	var s Secret
	if _, err := rand.Read(s[:]); err != nil {
		return Secret{}, fmt.Errorf("htlc: failed to generate secret: %w", err)
	}

	return s, nil
}

// Commit computes the SHA-256 commitment of s.
func (s Secret) Commit() Hash {
	return Hash(sha256.Sum256(s[:]))
}

// Verify reports whether s hashes to h, using a constant-time comparison
// so that an attacker probing the claim path cannot learn partial-match
// information via timing.
func (s Secret) Verify(h Hash) bool {
	computed := s.Commit()
	return subtle.ConstantTimeCompare(computed[:], h[:]) == 1
}

// Format deliberately refuses to print the secret's bytes through any verb,
// including %v and %x, so that a stray Printf/log call can't leak it.
func (s Secret) Format(f fmt.State, verb rune) {
	fmt.Fprint(f, "<redacted secret>")
}

// GoString matches Format's redaction for %#v call sites.
func (s Secret) GoString() string {
	return "<redacted secret>"
}

// Bytes returns a copy of the secret's raw bytes. This is the only
// sanctioned way to obtain the plaintext; escrow.Claim uses it for the
// revelation log and the NEAR adapter uses it to encode a claim call.
func (s Secret) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, s[:])
	return out
}

// Zero overwrites the secret's bytes in place. Call this once a local copy
// of a Secret is no longer needed -- the registry does this on disposal.
func (s *Secret) Zero() {
	for i := range s {
		s[i] = 0
	}
}

// SecretFromBytes copies raw into a Secret, failing if the length is wrong.
func SecretFromBytes(raw []byte) (Secret, error) {
	if len(raw) != Size {
		return Secret{}, fmt.Errorf("htlc: secret must be %d bytes, got %d", Size, len(raw))
	}

	var s Secret
	copy(s[:], raw)
	return s, nil
}

// HashFromBytes copies raw into a Hash, failing if the length is wrong.
func HashFromBytes(raw []byte) (Hash, error) {
	if len(raw) != Size {
		return Hash{}, fmt.Errorf("htlc: hash must be %d bytes, got %d", Size, len(raw))
	}

	var h Hash
	copy(h[:], raw)
	return h, nil
}

// Equal performs a constant-time comparison of two hashes. Hashes are not
// secret, but using the same discipline everywhere in this package avoids
// having two different comparison conventions to reason about.
func (h Hash) Equal(other Hash) bool {
	return subtle.ConstantTimeCompare(h[:], other[:]) == 1
}

// String renders the hash as lowercase hex. Unlike Secret, a Hash is safe
// to log: it's the public commitment, not the preimage.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}
