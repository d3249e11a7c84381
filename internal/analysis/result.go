/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package analysis scores media items for quality and computes similarity fingerprints.
package analysis

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Predicate thresholds.
const (
	BlurryThreshold       = 0.4
	HighQualityThreshold  = 0.7
	LowQualityThreshold   = 0.4
	OverexposedThreshold  = 0.8
	UnderexposedThreshold = 0.2
)

// Clamp limits v to [0,1]. NaN maps to 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Face is one detected face.
type Face struct {
	Quality  float64 `json:"quality"`
	Coverage float64 `json:"coverage"` // fraction of the frame covered by the face box
	Yaw      float64 `json:"yaw"`
	Pitch    float64 `json:"pitch"`
	Roll     float64 `json:"roll"`
}

// Scores are the raw analyzer outputs before normalization.
type Scores struct {
	Quality     float64
	Blur        float64
	Brightness  float64
	Contrast    float64
	Saturation  float64
	FaceCount   int
	Faces       []Face
	Screenshot  bool
	Selfie      bool
	Fingerprint *Fingerprint
}

// Result is the normalized analysis of one item. Build it with NewResult.
type Result struct {
	ID           string       `json:"id"`
	ItemID       string       `json:"item_id"`
	AnalyzedAt   time.Time    `json:"analyzed_at"`
	QualityScore float64      `json:"quality_score"`
	BlurScore    float64      `json:"blur_score"`
	Brightness   float64      `json:"brightness"`
	Contrast     float64      `json:"contrast"`
	Saturation   float64      `json:"saturation"`
	FaceCount    int          `json:"face_count"`
	Faces        []Face       `json:"faces,omitempty"`
	IsScreenshot bool         `json:"is_screenshot"`
	IsSelfie     bool         `json:"is_selfie"`
	Fingerprint  *Fingerprint `json:"fingerprint,omitempty"`
}

// NewResult clamps every score into range and assigns a fresh id.
func NewResult(itemID string, analyzedAt time.Time, s Scores) Result {
	faceCount := s.FaceCount
	if faceCount < len(s.Faces) {
		faceCount = len(s.Faces)
	}
	if faceCount < 0 {
		faceCount = 0
	}
	var faces []Face
	if len(s.Faces) > 0 {
		faces = make([]Face, len(s.Faces))
		for i, f := range s.Faces {
			f.Quality = Clamp(f.Quality)
			f.Coverage = Clamp(f.Coverage)
			faces[i] = f
		}
	}
	return Result{
		ID:           uuid.NewString(),
		ItemID:       itemID,
		AnalyzedAt:   analyzedAt,
		QualityScore: Clamp(s.Quality),
		BlurScore:    Clamp(s.Blur),
		Brightness:   Clamp(s.Brightness),
		Contrast:     Clamp(s.Contrast),
		Saturation:   Clamp(s.Saturation),
		FaceCount:    faceCount,
		Faces:        faces,
		IsScreenshot: s.Screenshot,
		IsSelfie:     s.Selfie,
		Fingerprint:  s.Fingerprint,
	}
}

func (r Result) IsBlurry() bool       { return r.BlurScore >= BlurryThreshold }
func (r Result) IsHighQuality() bool  { return r.QualityScore >= HighQualityThreshold }
func (r Result) IsLowQuality() bool   { return r.QualityScore < LowQualityThreshold }
func (r Result) IsOverexposed() bool  { return r.Brightness >= OverexposedThreshold }
func (r Result) IsUnderexposed() bool { return r.Brightness <= UnderexposedThreshold }

// IsDeletionCandidate reports blurry, low quality, or badly exposed results.
func (r Result) IsDeletionCandidate() bool {
	return r.IsBlurry() || r.IsLowQuality() || r.IsOverexposed() || r.IsUnderexposed()
}

// IsBlurryAt applies a configured blur threshold instead of the default.
func (r Result) IsBlurryAt(threshold float64) bool {
	return r.BlurScore >= threshold
}

// SameEntity compares identity only. Scores are ignored.
func (r Result) SameEntity(other Result) bool {
	return r.ID == other.ID && r.ItemID == other.ItemID
}
