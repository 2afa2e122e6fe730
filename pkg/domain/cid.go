package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"time"

	dErrors "cidledger/pkg/domain-errors"
)

const (
	// CIDPrefix is the fixed prefix of every consent identifier.
	CIDPrefix = "CID-"
	// CIDLength is the total length of a rendered CID.
	CIDLength = len(CIDPrefix) + cidHexLength

	cidHexLength = 16
	entropyBytes = 16
)

// CID is the persistent, opaque identifier assigned to an identity.
// Format: "CID-" followed by exactly 16 lowercase hex characters.
type CID string

func (c CID) String() string { return string(c) }

// IsNil reports whether the CID is the zero value.
func (c CID) IsNil() bool { return c == "" }

// Generator produces CIDs from a seed, a clock and a random source.
// The zero value is not usable; use NewGenerator.
type Generator struct {
	now    func() time.Time
	random io.Reader
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithClock overrides the wall clock used as generation input.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// WithRandom overrides the entropy source.
func WithRandom(r io.Reader) GeneratorOption {
	return func(g *Generator) { g.random = r }
}

func NewGenerator(opts ...GeneratorOption) *Generator {
	g := &Generator{now: time.Now, random: rand.Reader}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

var defaultGenerator = NewGenerator()

// GenerateCID returns a fresh CID using the process-wide generator.
func GenerateCID(seed string) (CID, error) {
	return defaultGenerator.Generate(seed)
}

// Generate derives a CID from SHA-256(seed || unix-nanos || 16 random bytes).
// Uniqueness is probabilistic; callers detect collisions at insert time.
func (g *Generator) Generate(seed string) (CID, error) {
	entropy := make([]byte, entropyBytes)
	if _, err := io.ReadFull(g.random, entropy); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "read CID entropy")
	}

	var nanos [8]byte
	binary.BigEndian.PutUint64(nanos[:], uint64(g.now().UnixNano()))

	h := sha256.New()
	h.Write([]byte(seed))
	h.Write(nanos[:])
	h.Write(entropy)
	sum := h.Sum(nil)

	return CID(CIDPrefix + hex.EncodeToString(sum)[:cidHexLength]), nil
}

// ValidCID checks format only; it does not consult any registry.
func ValidCID(s string) bool {
	if len(s) != CIDLength || s[:len(CIDPrefix)] != CIDPrefix {
		return false
	}
	for i := len(CIDPrefix); i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// ParseCID validates s at a trust boundary.
func ParseCID(s string) (CID, error) {
	if s == "" {
		return "", dErrors.Invalid("cid", "cannot be empty")
	}
	if !ValidCID(s) {
		return "", dErrors.Invalid("cid", "must match CID-<16 lowercase hex>")
	}
	return CID(s), nil
}
