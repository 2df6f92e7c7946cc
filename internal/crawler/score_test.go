package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumLowest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		contributions []float64
		expected      float64
	}{
		{
			name:          "empty evidence scores zero",
			contributions: nil,
			expected:      0,
		},
		{
			name:          "fewer than the cap sums everything",
			contributions: []float64{1, -2, 0.5},
			expected:      -0.5,
		},
		{
			name: "only the ten lowest count",
			contributions: []float64{
				5, 5, 5, 5, 5,
				-1, -1, -1, -1, -1,
				-1, -1, -1, -1, -1,
			},
			expected: -10,
		},
		{
			name: "positive evidence past the cap is ignored",
			contributions: []float64{
				-3,
				1, 1, 1, 1, 1, 1, 1, 1, 1,
				100, 100,
			},
			expected: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.InDelta(t, tt.expected, sumLowest(tt.contributions), 1e-9)
		})
	}
}

func TestScoreUndecided(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		score    float64
		expected bool
	}{
		{"zero is undecided", 0, true},
		{"just below the band", 0.49, true},
		{"negative inside the band", -0.49, true},
		{"at the band", 0.5, false},
		{"clearly legitimate", 3, false},
		{"clearly suspect", -3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, scoreUndecided(tt.score))
		})
	}
}
