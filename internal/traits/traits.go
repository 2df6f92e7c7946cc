// Package traits assesses users against named, weighted predicates whose
// aggregate scores are trained by moderator verdicts.
package traits

import (
	"context"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/models"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/types"
	"go.uber.org/zap"
)

// UserData is the materialised view of a user a detector examines.
type UserData struct {
	User         *types.User
	Detail       *types.UserDetail
	Links        []types.UserLink
	AvatarHashes map[string]types.AvatarHash
}

// Observation records one trait firing on a user. Instance is nil for
// singleton traits, whose stats live on the trait row itself.
type Observation struct {
	Trait    *types.Trait
	Instance *types.TraitInstance
	Count    int64
}

// stats returns the aggregate (score, count) backing this observation.
func (o *Observation) stats() (int64, int64) {
	if o.Instance != nil {
		return o.Instance.Score, o.Instance.Count
	}

	return o.Trait.Score, o.Trait.Count
}

// WeightedScore is the observation's contribution to the user's heuristic
// score: (score x weight) / count, or 0 while the trait has never been
// trained.
func (o *Observation) WeightedScore() float64 {
	score, count := o.stats()
	if count == 0 {
		return 0
	}

	return float64(score) * o.Trait.Weight / float64(count)
}

// Detector is one trait's assessment logic. A nil observation means the
// trait did not fire.
type Detector interface {
	Class() string
	Assess(ctx context.Context, data *UserData) (*Observation, error)
}

// Registry holds every registered detector and the persistence for their
// rows.
type Registry struct {
	model     *models.TraitModel
	detectors []Detector
	logger    *zap.Logger
}

// NewRegistry creates a registry with the standard detector set.
func NewRegistry(model *models.TraitModel, logger *zap.Logger) *Registry {
	r := &Registry{
		model:  model,
		logger: logger.Named("traits"),
	}

	r.detectors = append(r.detectors,
		newSpamNameDetector(model),
		newAboutMeLinkDetector(model),
	)

	for _, algo := range avatarAlgorithms {
		r.detectors = append(r.detectors, newAvatarHashDetector(model, algo))
	}

	return r
}

// Assess runs every detector over the user. A failing detector is logged
// and skipped so the others still get their say.
func (r *Registry) Assess(ctx context.Context, data *UserData) []Observation {
	observations := make([]Observation, 0, len(r.detectors))

	for _, detector := range r.detectors {
		obs, err := detector.Assess(ctx, data)
		if err != nil {
			r.logger.Warn("Trait assessment failed",
				zap.String("trait", detector.Class()),
				zap.Uint64("userID", data.User.ID),
				zap.Error(err))

			continue
		}

		if obs != nil {
			observations = append(observations, *obs)
		}
	}

	return observations
}

// StoredObservations rebuilds the observations whose per-user links are
// persisted in the store. After a verdict discards the links this returns
// nothing, so applying the same verdict twice trains the traits once.
func (r *Registry) StoredObservations(ctx context.Context, userID uint64) ([]Observation, error) {
	traitLinks, err := r.model.GetUserTraits(ctx, userID)
	if err != nil {
		return nil, err
	}

	instanceLinks, err := r.model.GetUserInstances(ctx, userID)
	if err != nil {
		return nil, err
	}

	return buildStoredObservations(traitLinks, instanceLinks), nil
}

func buildStoredObservations(
	traitLinks []models.StoredUserTrait, instanceLinks []models.StoredUserInstance,
) []Observation {
	observations := make([]Observation, 0, len(traitLinks)+len(instanceLinks))

	for i := range traitLinks {
		observations = append(observations, Observation{
			Trait: &traitLinks[i].Trait,
			Count: traitLinks[i].Count,
		})
	}

	for i := range instanceLinks {
		observations = append(observations, Observation{
			Trait:    &instanceLinks[i].Trait,
			Instance: &instanceLinks[i].Instance,
			Count:    instanceLinks[i].Count,
		})
	}

	return observations
}

// Persist stores the per-user links for the given observations.
func (r *Registry) Persist(ctx context.Context, userID uint64, observations []Observation) error {
	for _, obs := range observations {
		var err error

		if obs.Instance != nil {
			err = r.model.SetUserInstance(ctx, userID, obs.Instance.ID, obs.Count)
		} else {
			err = r.model.SetUserTrait(ctx, userID, obs.Trait.ID, obs.Count)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// Increment folds an observation into its trait's aggregate stats with the
// given direction (+1 legitimate, -1 suspect).
func (r *Registry) Increment(ctx context.Context, obs *Observation, direction int64) error {
	if obs.Count == 0 {
		return nil
	}

	if obs.Instance != nil {
		return r.model.IncrementInstance(ctx, obs.Instance.ID, obs.Count, direction)
	}

	return r.model.IncrementTrait(ctx, obs.Trait.ID, obs.Count, direction)
}

// DiscardUserLinks removes the user's per-trait links after a verdict has
// been folded in.
func (r *Registry) DiscardUserLinks(ctx context.Context, userID uint64) error {
	return r.model.DeleteUserLinks(ctx, userID)
}
