// Package hasher computes avatar fingerprints. Each avatar carries a sha512
// digest plus several perceptual hashes so near-identical spam avatars can
// be matched even after re-encoding.
package hasher

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"runtime"

	// Decoders for the avatar formats seen in the wild.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/corona10/goimagehash"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Algorithm names a supported avatar hash.
type Algorithm string

const (
	AlgoSHA512  Algorithm = "sha512"
	AlgoAverage Algorithm = "avghash"
	AlgoPHash   Algorithm = "phash"
	AlgoDHash   Algorithm = "dhash"
	AlgoWHash   Algorithm = "whash"
)

// Algorithms lists every supported algorithm in the order hashes are
// computed.
var Algorithms = []Algorithm{AlgoSHA512, AlgoAverage, AlgoPHash, AlgoDHash, AlgoWHash}

// ErrUnknownAlgorithm indicates a hash was requested with an algorithm name
// this package does not implement.
var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

// Hasher computes avatar hashes with bounded CPU parallelism.
type Hasher struct {
	slots  *semaphore.Weighted
	logger *zap.Logger
}

// New creates a hasher. workers bounds the number of concurrent hash
// computations; zero or negative selects the CPU count.
func New(workers int, logger *zap.Logger) *Hasher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Hasher{
		slots:  semaphore.NewWeighted(int64(workers)),
		logger: logger.Named("hasher"),
	}
}

// Hash computes the named hash of the given image data. Perceptual hashes
// decode the image first; sha512 operates on the raw bytes.
func (h *Hasher) Hash(ctx context.Context, data []byte, algo Algorithm) (string, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.slots.Release(1)

	if algo == AlgoSHA512 {
		sum := sha512.Sum512(data)
		return hex.EncodeToString(sum[:]), nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode avatar: %w", err)
	}

	h.logger.Debug("Hashing avatar",
		zap.String("algorithm", string(algo)),
		zap.String("format", format))

	switch algo {
	case AlgoAverage:
		hash, err := goimagehash.AverageHash(img)
		if err != nil {
			return "", err
		}

		return hash.ToString(), nil
	case AlgoPHash:
		hash, err := goimagehash.PerceptionHash(img)
		if err != nil {
			return "", err
		}

		return hash.ToString(), nil
	case AlgoDHash:
		hash, err := goimagehash.DifferenceHash(img)
		if err != nil {
			return "", err
		}

		return hash.ToString(), nil
	case AlgoWHash:
		return waveletHash(img)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algo)
	}
}

// HashAll computes every supported hash of the given image data
// concurrently and returns them keyed by algorithm. A decode failure on one
// perceptual hash fails the whole set.
func (h *Hasher) HashAll(ctx context.Context, data []byte) (map[Algorithm]string, error) {
	results := make([]string, len(Algorithms))

	p := pool.New().WithContext(ctx).WithCancelOnError()

	for i, algo := range Algorithms {
		p.Go(func(ctx context.Context) error {
			hash, err := h.Hash(ctx, data, algo)
			if err != nil {
				return fmt.Errorf("%s: %w", algo, err)
			}

			results[i] = hash

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, err
	}

	hashes := make(map[Algorithm]string, len(Algorithms))
	for i, algo := range Algorithms {
		hashes[algo] = results[i]
	}

	return hashes, nil
}
