package traits

import (
	"context"
	"regexp"
	"sync"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/models"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/types"
)

// spamNamePatterns match screen names that spam accounts generate. The
// first could also be an amateur radio call-sign, so matches deserve
// manual review rather than outright rejection.
var spamNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[a-zA-Z][0-9][a-zA-Z][a-zA-Z][a-zA-Z]$`),
	regexp.MustCompile(`[0-9][a-zA-Z][0-9][0-9][0-9][a-zA-Z]$`),
}

// avatarAlgorithms lists the hash algorithms that get their own avatar
// trait.
var avatarAlgorithms = []string{"sha512", "avghash", "phash", "dhash", "whash"}

// singletonBase lazily ensures the trait row exists and caches it.
type singletonBase struct {
	model *models.TraitModel
	class string

	once  sync.Once
	trait *types.Trait
	err   error
}

func (b *singletonBase) Class() string {
	return b.class
}

func (b *singletonBase) ensure(ctx context.Context, traitType types.TraitType) (*types.Trait, error) {
	b.once.Do(func() {
		b.trait, b.err = b.model.EnsureTrait(ctx, b.class, traitType, 1.0)
	})

	return b.trait, b.err
}

// spamNameDetector fires when the screen name matches a known spammer
// pattern.
type spamNameDetector struct {
	singletonBase
}

func newSpamNameDetector(model *models.TraitModel) *spamNameDetector {
	return &spamNameDetector{singletonBase{model: model, class: "spamname"}}
}

func (d *spamNameDetector) Assess(ctx context.Context, data *UserData) (*Observation, error) {
	if !MatchesSpamName(data.User.ScreenName) {
		return nil, nil
	}

	trait, err := d.ensure(ctx, types.TraitSingleton)
	if err != nil {
		return nil, err
	}

	return &Observation{Trait: trait, Count: 1}, nil
}

// MatchesSpamName reports whether a screen name matches either spammer
// pattern.
func MatchesSpamName(screenName string) bool {
	for _, pattern := range spamNamePatterns {
		if pattern.MatchString(screenName) {
			return true
		}
	}

	return false
}

// aboutMeLinkDetector fires when any link title equals the user's About-me
// text verbatim, a tell of template-generated profiles.
type aboutMeLinkDetector struct {
	singletonBase
}

func newAboutMeLinkDetector(model *models.TraitModel) *aboutMeLinkDetector {
	return &aboutMeLinkDetector{singletonBase{model: model, class: "aboutmelink"}}
}

func (d *aboutMeLinkDetector) Assess(ctx context.Context, data *UserData) (*Observation, error) {
	if data.Detail == nil || data.Detail.AboutMe == "" {
		return nil, nil
	}

	for _, link := range data.Links {
		if link.Title == data.Detail.AboutMe {
			trait, err := d.ensure(ctx, types.TraitSingleton)
			if err != nil {
				return nil, err
			}

			return &Observation{Trait: trait, Count: 1}, nil
		}
	}

	return nil, nil
}

// avatarHashDetector fires with the user's avatar hash for one algorithm,
// so accounts sharing an avatar share a trait instance.
type avatarHashDetector struct {
	singletonBase

	algorithm string
}

func newAvatarHashDetector(model *models.TraitModel, algorithm string) *avatarHashDetector {
	return &avatarHashDetector{
		singletonBase: singletonBase{model: model, class: "avatar." + algorithm},
		algorithm:     algorithm,
	}
}

func (d *avatarHashDetector) Assess(ctx context.Context, data *UserData) (*Observation, error) {
	hash, ok := data.AvatarHashes[d.algorithm]
	if !ok {
		return nil, nil
	}

	trait, err := d.ensure(ctx, types.TraitImageHash)
	if err != nil {
		return nil, err
	}

	instance, err := d.model.EnsureHashInstance(ctx, trait.ID, hash.ID)
	if err != nil {
		return nil, err
	}

	return &Observation{Trait: trait, Instance: instance, Count: 1}, nil
}
