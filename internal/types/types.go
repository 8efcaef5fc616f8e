// Package types defines small shared value types for beamdis.
package types

import (
	"encoding/hex"
	"errors"

	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
)

// FingerprintSize is the size of a module fingerprint in bytes.
const FingerprintSize = 32

// ErrInvalidFingerprint is returned when a fingerprint has invalid length.
var ErrInvalidFingerprint = errors.New("invalid fingerprint: must be 32 bytes")

// Fingerprint identifies a module by the blake3-256 digest of its raw
// bytes. Two inputs with equal fingerprints decode to identical output.
type Fingerprint [FingerprintSize]byte

// FingerprintOf computes the fingerprint of a byte buffer.
func FingerprintOf(data []byte) Fingerprint {
	return Fingerprint(blake3.Sum256(data))
}

// FingerprintFromBytes creates a Fingerprint from a byte slice.
func FingerprintFromBytes(b []byte) (Fingerprint, error) {
	var f Fingerprint
	if len(b) != FingerprintSize {
		return f, ErrInvalidFingerprint
	}
	copy(f[:], b)
	return f, nil
}

// FingerprintFromBase58 parses a base58-encoded fingerprint.
func FingerprintFromBase58(s string) (Fingerprint, error) {
	var f Fingerprint
	data, err := base58.Decode(s)
	if err != nil {
		return f, err
	}
	return FingerprintFromBytes(data)
}

// String returns the base58-encoded representation.
func (f Fingerprint) String() string {
	return base58.Encode(f[:])
}

// Hex returns the lowercase hex representation.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

// IsZero returns true if the fingerprint is all zeros.
func (f Fingerprint) IsZero() bool {
	for _, b := range f {
		if b != 0 {
			return false
		}
	}
	return true
}

// Equals returns true if two fingerprints are equal.
func (f Fingerprint) Equals(other Fingerprint) bool {
	return f == other
}
