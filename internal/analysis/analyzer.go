/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package analysis

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/friendsincode/snapsweep/internal/library"
	"github.com/rs/zerolog"
	"github.com/rwcarlsen/goexif/exif"
)

// Analyzer produces an analysis Result for one item. Implementations must be
// safe for concurrent use.
type Analyzer interface {
	Analyze(ctx context.Context, item library.MediaItem, data []byte) (Result, error)
}

const (
	// Longest side of the working copy used for scoring.
	workingSize = 256
	// Laplacian variance at or above which an image is treated as fully sharp.
	sharpVariance = 400.0
	// Neutral quality given to media that is not decoded.
	neutralQuality = 0.5
	// Smallest side for the screenshot aspect heuristic.
	minScreenshotSide = 320
	aspectTolerance   = 0.02
)

// Width/height ratios of common phone, tablet and desktop displays.
var displayAspects = []float64{
	16.0 / 9.0, 16.0 / 10.0, 4.0 / 3.0, 3.0 / 2.0,
	19.5 / 9.0, 19.0 / 9.0, 20.0 / 9.0, 2436.0 / 1125.0,
}

// ImageAnalyzer scores still images from pixel statistics. Videos receive a
// neutral result.
type ImageAnalyzer struct {
	faces  FaceDetector
	logger zerolog.Logger
	now    func() time.Time
}

// NewImageAnalyzer creates an analyzer. A nil detector disables face detection.
func NewImageAnalyzer(faces FaceDetector, logger zerolog.Logger) *ImageAnalyzer {
	if faces == nil {
		faces = NoFaceDetector{}
	}
	return &ImageAnalyzer{
		faces:  faces,
		logger: logger.With().Str("component", "analyzer").Logger(),
		now:    time.Now,
	}
}

// Analyze implements Analyzer.
func (a *ImageAnalyzer) Analyze(ctx context.Context, item library.MediaItem, data []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if item.Kind == library.KindVideo {
		return NewResult(item.ID, a.now(), Scores{
			Quality:    neutralQuality,
			Brightness: 0.5,
			Contrast:   0.5,
			Saturation: 0.5,
			Screenshot: item.IsScreenshot(),
		}), nil
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("decode config %s: %w", item.ID, err)
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Result{}, fmt.Errorf("decode %s: %w", item.ID, err)
	}
	bounds := img.Bounds()
	small := imaging.Fit(img, workingSize, workingSize, imaging.Box)

	stats := measure(small)

	faces, err := a.faces.Detect(ctx, small)
	if err != nil {
		a.logger.Warn().Err(err).Str("item_id", item.ID).Msg("face detection failed")
		faces = nil
	}

	var fp *Fingerprint
	if h, err := ComputeFingerprint(small); err == nil {
		fp = &h
	} else {
		a.logger.Debug().Err(err).Str("item_id", item.ID).Msg("fingerprint unavailable")
	}

	sharpness := Clamp(stats.laplacianVariance / sharpVariance)
	exposure := 1 - math.Abs(stats.brightness-0.5)*2
	faceQuality := sharpness
	if len(faces) > 0 {
		var sum float64
		for _, f := range faces {
			sum += Clamp(f.Quality)
		}
		faceQuality = sum / float64(len(faces))
	}
	quality := 0.5*sharpness + 0.25*exposure + 0.15*Clamp(stats.contrast) + 0.10*faceQuality

	screenshot := item.IsScreenshot() ||
		(format == "png" && !hasCameraMake(data) && matchesDisplayAspect(bounds.Dx(), bounds.Dy()))

	return NewResult(item.ID, a.now(), Scores{
		Quality:     quality,
		Blur:        1 - sharpness,
		Brightness:  stats.brightness,
		Contrast:    stats.contrast,
		Saturation:  stats.saturation,
		FaceCount:   len(faces),
		Faces:       faces,
		Screenshot:  screenshot,
		Selfie:      IsSelfie(faces),
		Fingerprint: fp,
	}), nil
}

type pixelStats struct {
	brightness        float64
	contrast          float64
	saturation        float64
	laplacianVariance float64
}

// measure computes luminance, saturation and Laplacian statistics in one pass
// over the working copy.
func measure(img *image.NRGBA) pixelStats {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return pixelStats{}
	}

	lum := make([]float64, w*h)
	var lumSum, satSum float64
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			r := float64(row[x*4])
			g := float64(row[x*4+1])
			bl := float64(row[x*4+2])
			l := 0.299*r + 0.587*g + 0.114*bl
			lum[y*w+x] = l
			lumSum += l

			maxC := math.Max(r, math.Max(g, bl))
			minC := math.Min(r, math.Min(g, bl))
			if maxC > 0 {
				satSum += (maxC - minC) / maxC
			}
		}
	}
	n := float64(w * h)
	mean := lumSum / n

	var sq float64
	for _, l := range lum {
		d := l - mean
		sq += d * d
	}
	std := math.Sqrt(sq / n)

	var lapSum, lapSq float64
	var lapN int
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			c := lum[y*w+x]
			v := 4*c - lum[(y-1)*w+x] - lum[(y+1)*w+x] - lum[y*w+x-1] - lum[y*w+x+1]
			lapSum += v
			lapSq += v * v
			lapN++
		}
	}
	var lapVar float64
	if lapN > 0 {
		m := lapSum / float64(lapN)
		lapVar = lapSq/float64(lapN) - m*m
	}

	return pixelStats{
		brightness:        mean / 255,
		contrast:          Clamp(std / 255 * 2),
		saturation:        satSum / n,
		laplacianVariance: lapVar,
	}
}

func hasCameraMake(data []byte) bool {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return false
	}
	tag, err := x.Get(exif.Make)
	if err != nil || tag == nil {
		return false
	}
	return strings.Trim(tag.String(), "\x00\" ") != ""
}

func matchesDisplayAspect(w, h int) bool {
	if w <= 0 || h <= 0 {
		return false
	}
	long, short := float64(w), float64(h)
	if short > long {
		long, short = short, long
	}
	if short < minScreenshotSide {
		return false
	}
	ratio := long / short
	for _, a := range displayAspects {
		if math.Abs(ratio-a) <= aspectTolerance {
			return true
		}
	}
	return false
}
