package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// Fingerprint is a content address in "algo:hex" form. It identifies
// layers by the inputs that produced them and files by their bytes.
//
// The zero Fingerprint is valid only as the parent of a base layer;
// everywhere else a Fingerprint must come from NewFingerprint or
// ParseFingerprint.
type Fingerprint struct {
	algo     string
	checksum []byte
	repr     string
}

// NewFingerprint constructs a Fingerprint from an algorithm name and a
// raw checksum.
func NewFingerprint(algo string, sum []byte) (Fingerprint, error) {
	switch algo {
	case "sha256":
		if len(sum) != sha256.Size {
			return Fingerprint{}, fmt.Errorf("bad checksum length for %s: %d", algo, len(sum))
		}
	default:
		return Fingerprint{}, fmt.Errorf("unknown fingerprint algorithm %q", algo)
	}
	fp := Fingerprint{
		algo:     algo,
		checksum: sum,
	}
	fp.repr = algo + ":" + hex.EncodeToString(sum)
	return fp, nil
}

// ParseFingerprint parses the "algo:hex" textual form
func ParseFingerprint(s string) (Fingerprint, error) {
	algo, checksum, ok := strings.Cut(s, ":")
	if !ok {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint %q: missing algorithm separator", s)
	}
	sum, err := hex.DecodeString(checksum)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	return NewFingerprint(algo, sum)
}

// MustFingerprint is ParseFingerprint that panics on malformed input.
// Use only with fixed strings.
func MustFingerprint(s string) Fingerprint {
	fp, err := ParseFingerprint(s)
	if err != nil {
		panic(err)
	}
	return fp
}

// Algorithm reports the hash algorithm name
func (f Fingerprint) Algorithm() string { return f.algo }

// Checksum returns the raw checksum bytes
func (f Fingerprint) Checksum() []byte { return f.checksum }

// IsZero reports whether f is the zero Fingerprint
func (f Fingerprint) IsZero() bool { return f.repr == "" }

// Equal reports whether two fingerprints address the same content.
// Fingerprints hold a checksum slice, so == does not compile; use this.
func (f Fingerprint) Equal(other Fingerprint) bool { return f.repr == other.repr }

func (f Fingerprint) String() string { return f.repr }

// Hash returns a new instance of the hash this Fingerprint was computed
// with. Panics if called on the zero Fingerprint.
func (f Fingerprint) Hash() hash.Hash {
	switch f.algo {
	case "sha256":
		return sha256.New()
	default:
		panic("Hash called on invalid fingerprint")
	}
}

// MarshalText implements encoding.TextMarshaler
func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.repr), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (f *Fingerprint) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*f = Fingerprint{}
		return nil
	}
	fp, err := ParseFingerprint(string(b))
	if err != nil {
		return err
	}
	*f = fp
	return nil
}
