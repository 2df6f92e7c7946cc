package hasher

import (
	"fmt"
	"image"
	"sort"

	"github.com/nfnt/resize"
)

const whashSize = 16

// waveletHash computes a 64-bit wavelet hash. The image is reduced to a
// 16x16 grayscale grid, a single Haar decomposition level keeps the 8x8
// low-frequency band, and each bit records whether its coefficient sits
// above the band median.
func waveletHash(img image.Image) (string, error) {
	scaled := resize.Resize(whashSize, whashSize, img, resize.Bilinear)

	var gray [whashSize][whashSize]float64

	for y := range whashSize {
		for x := range whashSize {
			r, g, b, _ := scaled.At(x, y).RGBA()
			gray[y][x] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}

	// One Haar level: each low-frequency coefficient is the mean of a 2x2
	// block.
	const half = whashSize / 2

	coeffs := make([]float64, 0, half*half)

	for y := 0; y < whashSize; y += 2 {
		for x := 0; x < whashSize; x += 2 {
			sum := gray[y][x] + gray[y][x+1] + gray[y+1][x] + gray[y+1][x+1]
			coeffs = append(coeffs, sum/4)
		}
	}

	sorted := make([]float64, len(coeffs))
	copy(sorted, coeffs)
	sort.Float64s(sorted)

	median := (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2

	var bits uint64

	for _, c := range coeffs {
		bits <<= 1

		if c > median {
			bits |= 1
		}
	}

	return fmt.Sprintf("w:%016x", bits), nil
}
