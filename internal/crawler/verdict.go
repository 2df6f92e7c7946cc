package crawler

import (
	"context"
	"fmt"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/types"
	"go.uber.org/zap"
)

// Verdict is a moderator's ruling on a user.
type Verdict string

const (
	VerdictLegit   Verdict = "legit"
	VerdictSuspect Verdict = "suspect"
)

// ApplyVerdict records a moderator's ruling: it moves the user into the
// matching group, folds the user's evidence into the global corpus and
// trait statistics with the ruling's sign, and clears state that no
// longer applies. Verdicts are how the classifier learns, every ruling
// shifts the scores future inspections will see.
func (c *Crawler) ApplyVerdict(ctx context.Context, userID uint64, verdict Verdict) error {
	var (
		group     types.GroupName
		direction int64
	)

	switch verdict {
	case VerdictLegit:
		group, direction = types.GroupLegit, 1
	case VerdictSuspect:
		group, direction = types.GroupSuspect, -1
	default:
		return fmt.Errorf("unknown verdict %q", verdict)
	}

	model := c.db.Model()

	user, err := model.User().GetUser(ctx, userID)
	if err != nil {
		return err
	}

	if user == nil {
		return fmt.Errorf("user %d does not exist", userID)
	}

	c.logger.Info("Applying verdict",
		zap.Uint64("userID", userID),
		zap.String("screenName", user.ScreenName),
		zap.String("verdict", string(verdict)))

	// Assigning the verdict group also removes the auto groups and the
	// opposing verdict group.
	if err := model.Group().Assign(ctx, userID, group); err != nil {
		return err
	}

	if err := model.Corpus().ApplyVerdict(ctx, userID, direction); err != nil {
		return err
	}

	// Train the traits from the links persisted at inspection time, not by
	// re-running the detectors. Once the links are discarded below, a
	// repeated verdict finds nothing left to fold in.
	observations, err := c.registry.StoredObservations(ctx, userID)
	if err != nil {
		return err
	}

	for i := range observations {
		if err := c.registry.Increment(ctx, &observations[i], direction); err != nil {
			return err
		}
	}

	if err := c.registry.DiscardUserLinks(ctx, userID); err != nil {
		return err
	}

	// A legitimate user's text is no longer evidence of anything; keep
	// only the account row so the ruling sticks.
	if verdict == VerdictLegit {
		if err := model.User().DeleteEvidence(ctx, userID); err != nil {
			return err
		}
	}

	return model.Queue().Undefer(ctx, userID)
}
