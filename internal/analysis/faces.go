/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package analysis

import (
	"context"
	"image"
)

// SelfieCoverage is the minimum frame fraction a lone face must cover to count as a selfie.
const SelfieCoverage = 0.15

// FaceDetector finds faces in a decoded image.
type FaceDetector interface {
	Detect(ctx context.Context, img image.Image) ([]Face, error)
}

// NoFaceDetector never finds faces.
type NoFaceDetector struct{}

func (NoFaceDetector) Detect(context.Context, image.Image) ([]Face, error) {
	return nil, nil
}

// IsSelfie reports exactly one face covering at least SelfieCoverage of the frame.
func IsSelfie(faces []Face) bool {
	return len(faces) == 1 && faces[0].Coverage >= SelfieCoverage
}
