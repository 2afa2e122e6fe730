package models

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// EvidenceHasher derives one-way keyed digests (BLAKE2b-256) of verification
// evidence references. The key is the server-side pepper.
type EvidenceHasher struct {
	key []byte
}

// NewEvidenceHasher accepts peppers of up to 64 bytes. An empty pepper
// yields unkeyed digests, which is only acceptable outside production.
func NewEvidenceHasher(pepper []byte) (*EvidenceHasher, error) {
	if len(pepper) > blake2b.Size {
		return nil, fmt.Errorf("identity hash pepper must be at most %d bytes", blake2b.Size)
	}
	return &EvidenceHasher{key: append([]byte(nil), pepper...)}, nil
}

// Digest hashes parts with length prefixes so ("ab","c") and ("a","bc") differ.
func (h *EvidenceHasher) Digest(parts ...string) string {
	mac, err := blake2b.New256(h.key)
	if err != nil {
		// key length is checked in NewEvidenceHasher
		panic(err)
	}
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		mac.Write(n[:])
		mac.Write([]byte(p))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// IdentityHash binds an identity to its strongest evidence.
func (h *EvidenceHasher) IdentityHash(provider, documentRef, livenessRef string) string {
	return h.Digest("identity", provider, documentRef, livenessRef)
}

// VerificationHash is the evidence digest stored on a Verification record.
func (h *EvidenceHasher) VerificationHash(method VerificationMethod, provider string, refs ...string) string {
	return h.Digest(append([]string{"verification", string(method), provider}, refs...)...)
}
