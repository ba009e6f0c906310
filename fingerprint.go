package lookbook

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"strconv"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/webp"
)

// Fingerprint is a 64-bit difference hash of a downsampled grayscale image.
type Fingerprint uint64

// Distance returns the Hamming distance between two fingerprints.
func (f Fingerprint) Distance(other Fingerprint) int {
	return bits.OnesCount64(uint64(f ^ other))
}

// String renders the fingerprint as 16 hex digits.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// ParseFingerprint reverses Fingerprint.String.
func ParseFingerprint(s string) (Fingerprint, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint %q: %w", s, err)
	}
	return Fingerprint(v), nil
}

// ComputeFingerprint decodes data (jpeg, png, gif or webp) and hashes it.
// Undecodable input fails with ErrImageUnreadable.
func ComputeFingerprint(data []byte) (Fingerprint, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: decode: %w", ErrImageUnreadable, err)
	}
	return FingerprintImage(img)
}

// FingerprintImage hashes an already decoded image.
func FingerprintImage(img image.Image) (Fingerprint, error) {
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return 0, fmt.Errorf("%w: hash: %w", ErrImageUnreadable, err)
	}
	return Fingerprint(hash.GetHash()), nil
}
