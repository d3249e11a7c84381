/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package analysis

import (
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"github.com/corona10/goimagehash"
)

// FingerprintBits is the width of a fingerprint.
const FingerprintBits = 64

// Fingerprint is a 64-bit perceptual hash.
type Fingerprint uint64

// ComputeFingerprint returns the DCT perceptual hash of img.
func ComputeFingerprint(img image.Image) (Fingerprint, error) {
	h, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("compute pHash: %w", err)
	}
	return Fingerprint(h.GetHash()), nil
}

// Distance is the Hamming distance between two fingerprints.
func (f Fingerprint) Distance(other Fingerprint) int {
	return bits.OnesCount64(uint64(f) ^ uint64(other))
}

// Similarity maps Hamming distance to [0,1], 1 meaning identical.
func (f Fingerprint) Similarity(other Fingerprint) float64 {
	return 1 - float64(f.Distance(other))/FingerprintBits
}

func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// ParseFingerprint parses the hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fingerprint: %w", err)
	}
	return Fingerprint(v), nil
}

func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Fingerprint) UnmarshalText(b []byte) error {
	v, err := ParseFingerprint(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}
