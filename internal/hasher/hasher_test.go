package hasher_test

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/hasher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// encodeTestImage renders a small two-tone PNG so the perceptual hashes have
// structure to latch onto.
func encodeTestImage(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := range h {
		for x := range w {
			c := color.RGBA{R: 32, G: 32, B: 32, A: 255}
			if x < w/2 {
				c = color.RGBA{R: 224, G: 224, B: 224, A: 255}
			}

			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return buf.Bytes()
}

func TestHashSHA512(t *testing.T) {
	t.Parallel()

	data := []byte("not even an image")
	h := hasher.New(2, zap.NewNop())

	got, err := h.Hash(context.Background(), data, hasher.AlgoSHA512)
	require.NoError(t, err)

	sum := sha512.Sum512(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestHashPerceptual(t *testing.T) {
	t.Parallel()

	data := encodeTestImage(t, 64, 64)
	h := hasher.New(2, zap.NewNop())

	tests := []struct {
		algo   hasher.Algorithm
		prefix string
	}{
		{hasher.AlgoAverage, "a:"},
		{hasher.AlgoPHash, "p:"},
		{hasher.AlgoDHash, "d:"},
		{hasher.AlgoWHash, "w:"},
	}

	for _, tt := range tests {
		t.Run(string(tt.algo), func(t *testing.T) {
			t.Parallel()

			got, err := h.Hash(context.Background(), data, tt.algo)
			require.NoError(t, err)
			assert.True(t, len(got) > 2 && got[:2] == tt.prefix,
				"hash %q should carry prefix %q", got, tt.prefix)

			// The hash must be stable for identical input.
			again, err := h.Hash(context.Background(), data, tt.algo)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestHashScaleInvariance(t *testing.T) {
	t.Parallel()

	// The same picture at two sizes should produce the same wavelet hash.
	h := hasher.New(2, zap.NewNop())

	small, err := h.Hash(context.Background(), encodeTestImage(t, 32, 32), hasher.AlgoWHash)
	require.NoError(t, err)

	large, err := h.Hash(context.Background(), encodeTestImage(t, 128, 128), hasher.AlgoWHash)
	require.NoError(t, err)

	assert.Equal(t, small, large)
}

func TestHashUnknownAlgorithm(t *testing.T) {
	t.Parallel()

	h := hasher.New(2, zap.NewNop())

	_, err := h.Hash(context.Background(), encodeTestImage(t, 8, 8), "md5")
	require.ErrorIs(t, err, hasher.ErrUnknownAlgorithm)
}

func TestHashNotAnImage(t *testing.T) {
	t.Parallel()

	h := hasher.New(2, zap.NewNop())

	_, err := h.Hash(context.Background(), []byte("plain text"), hasher.AlgoAverage)
	require.Error(t, err)
}

func TestHashAll(t *testing.T) {
	t.Parallel()

	data := encodeTestImage(t, 64, 64)
	h := hasher.New(4, zap.NewNop())

	hashes, err := h.HashAll(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, hashes, len(hasher.Algorithms))

	for _, algo := range hasher.Algorithms {
		assert.NotEmpty(t, hashes[algo], "missing %s", algo)
	}
}

func TestHashAllNotAnImage(t *testing.T) {
	t.Parallel()

	h := hasher.New(4, zap.NewNop())

	_, err := h.HashAll(context.Background(), []byte("plain text"))
	require.Error(t, err)
}
