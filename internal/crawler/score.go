package crawler

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/models"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/traits"
)

const (
	// scoreContributions caps how many evidence values feed the score.
	// Only the most negative contributions count, so one spammy word
	// cannot be buried under hundreds of neutral ones.
	scoreContributions = 10

	// undecidedBand is the score magnitude below which the classifier
	// considers the evidence inconclusive and defers the user for
	// another look.
	undecidedBand = 0.5
)

// userScore computes the user's heuristic score from the corpus evidence
// already persisted for them plus any trait observations. Each corpus row
// contributes its global score divided by its global count; untrained rows
// are excluded by the evidence queries. The final score is the sum of the
// lowest contributions.
func (c *Crawler) userScore(
	ctx context.Context, userID uint64, observations []traits.Observation,
) (float64, error) {
	corpus := c.db.Model().Corpus()

	var contributions []float64

	for _, query := range []func(context.Context, uint64) ([]models.Evidence, error){
		corpus.UserWordEvidence,
		corpus.UserHostnameEvidence,
		corpus.UserAdjacentEvidence,
	} {
		rows, err := query(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("failed to gather score evidence: %w", err)
		}

		for _, row := range rows {
			contributions = append(contributions,
				float64(row.Score)/float64(row.Count))
		}
	}

	for i := range observations {
		contributions = append(contributions, observations[i].WeightedScore())
	}

	return sumLowest(contributions), nil
}

// sumLowest sums the scoreContributions lowest values, modifying the
// slice order.
func sumLowest(contributions []float64) float64 {
	sort.Float64s(contributions)

	if len(contributions) > scoreContributions {
		contributions = contributions[:scoreContributions]
	}

	var score float64
	for _, value := range contributions {
		score += value
	}

	return score
}

// scoreUndecided reports whether a score is too close to neutral to
// classify on.
func scoreUndecided(score float64) bool {
	return math.Abs(score) < undecidedBand
}
