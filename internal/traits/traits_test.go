package traits

import (
	"testing"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/models"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesSpamName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		screenName string
		expected   bool
	}{
		{"letter digit three letters", "a1bbb", true},
		{"call-sign shape", "K2ABC", true},
		{"digit letter digits letter suffix", "xx1a222b", true},
		{"plain name", "alice", false},
		{"too long for first pattern", "a1bbbb", false},
		{"digits only", "123456", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, MatchesSpamName(tt.screenName))
		})
	}
}

func TestBuildStoredObservations(t *testing.T) {
	t.Parallel()

	t.Run("rebuilds observations from stored links", func(t *testing.T) {
		t.Parallel()

		hashID := int64(42)
		spamName := types.Trait{ID: 1, Class: "spamname", Type: types.TraitSingleton, Weight: 1}
		avatar := types.Trait{ID: 2, Class: "avatar.phash", Type: types.TraitImageHash, Weight: 1}
		instance := types.TraitInstance{ID: 7, TraitID: 2, HashID: &hashID}

		observations := buildStoredObservations(
			[]models.StoredUserTrait{{Trait: spamName, Count: 1}},
			[]models.StoredUserInstance{{Trait: avatar, Instance: instance, Count: 3}},
		)

		require.Len(t, observations, 2)

		assert.Equal(t, int64(1), observations[0].Trait.ID)
		assert.Nil(t, observations[0].Instance)
		assert.Equal(t, int64(1), observations[0].Count)

		assert.Equal(t, int64(2), observations[1].Trait.ID)
		require.NotNil(t, observations[1].Instance)
		assert.Equal(t, int64(7), observations[1].Instance.ID)
		assert.Equal(t, int64(3), observations[1].Count)
	})

	// After a verdict discards the user's links, a repeated verdict must
	// see no observations and so train nothing a second time.
	t.Run("no links yields no observations", func(t *testing.T) {
		t.Parallel()

		observations := buildStoredObservations(nil, nil)

		assert.Empty(t, observations)
	})
}

func TestObservationWeightedScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		obs      Observation
		expected float64
	}{
		{
			name: "untrained trait scores zero",
			obs: Observation{
				Trait: &types.Trait{Score: 0, Count: 0, Weight: 1},
				Count: 1,
			},
			expected: 0,
		},
		{
			name: "singleton uses trait stats",
			obs: Observation{
				Trait: &types.Trait{Score: -6, Count: 3, Weight: 1},
				Count: 1,
			},
			expected: -2,
		},
		{
			name: "instance stats override trait stats",
			obs: Observation{
				Trait:    &types.Trait{Score: 100, Count: 1, Weight: 2},
				Instance: &types.TraitInstance{Score: 5, Count: 2},
				Count:    1,
			},
			expected: 5,
		},
		{
			name: "weight scales the score",
			obs: Observation{
				Trait:    &types.Trait{Weight: 0.5},
				Instance: &types.TraitInstance{Score: 8, Count: 2},
				Count:    1,
			},
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.InDelta(t, tt.expected, tt.obs.WeightedScore(), 1e-9)
		})
	}
}
