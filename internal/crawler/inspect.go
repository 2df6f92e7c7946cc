package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/models"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/types"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/platform"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/traits"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/wordstat"
	"go.uber.org/zap"
)

const (
	// inspectionWindow is how soon after an inspection a repeat request
	// becomes a no-op, so overlapping loops do not double-count.
	inspectionWindow = 5 * time.Minute

	// youngAccountAge is the minimum account age before the project
	// creation rate is judged at all.
	youngAccountAge = 300 * time.Second

	// projectsPerMinuteLimit is the average project creation rate above
	// which an account is marked for review. No human sustains it.
	projectsPerMinuteLimit = 5.0
)

// UpdateUserFromData stores or refreshes a user from an API user record
// and, unless inspectAll is false and the user has been inspected before,
// runs a full inspection. It reports whether the user was previously
// unseen. deferOK permits scheduling a re-inspection when the evidence is
// inconclusive.
func (c *Crawler) UpdateUserFromData(
	ctx context.Context, data *platform.User, inspectAll, deferOK bool,
) (*types.User, bool, error) {
	avatar, err := c.GetAvatar(ctx, data.ImageURL)
	if err != nil {
		return nil, false, err
	}

	users := c.db.Model().User()

	user, err := users.GetUser(ctx, data.ID)
	if err != nil {
		return nil, false, err
	}

	isNew := user == nil
	if isNew {
		c.logger.Info("New user",
			zap.String("screenName", data.ScreenName),
			zap.Uint64("userID", data.ID))

		user = &types.User{ID: data.ID, CreatedAt: time.Now().UTC()}
	}

	user.ScreenName = data.ScreenName
	user.URL = data.URL
	user.AvatarID = avatar.ID
	user.RemoteCreatedAt = time.Unix(data.Created, 0).UTC()

	if err := users.UpsertUser(ctx, user); err != nil {
		return nil, isNew, err
	}

	if inspectAll || user.LastInspectedAt == nil {
		if err := c.inspectUser(ctx, data, user, deferOK); err != nil {
			return nil, isNew, err
		}

		now := time.Now().UTC()
		if err := users.SetLastInspected(ctx, user.ID, now); err != nil {
			return nil, isNew, err
		}

		user.LastInspectedAt = &now
	}

	if isNew {
		c.NewUserEvent.Set()
	}

	return user, isNew, nil
}

// inspectUser runs the classification pipeline over one user: it verifies
// the account still exists, tokenises the profile text, links, projects
// and pages, persists the evidence, scores it and auto-classifies the
// user unless a moderator has already ruled.
func (c *Crawler) inspectUser(
	ctx context.Context, data *platform.User, user *types.User, deferOK bool,
) error {
	if c.isDeleted(user.ID) {
		return ErrInvalidUser
	}

	model := c.db.Model()

	groups, err := model.Group().UserGroups(ctx, user.ID)
	if err != nil {
		return err
	}

	_, isLegit := groups[types.GroupLegit]
	_, isSuspect := groups[types.GroupSuspect]
	classified := isLegit || isSuspect

	// The profile page answers 404 or 410 once the platform purges an
	// account, while the API keeps returning stale records for a while.
	if _, err := c.api.Fetch(ctx, http.MethodHead, data.URL); err != nil {
		if !platform.IsGone(err) {
			return fmt.Errorf("failed to check profile page: %w", err)
		}

		c.logger.Info("User deleted on platform, purging",
			zap.Uint64("userID", user.ID),
			zap.String("screenName", user.ScreenName))

		if err := model.User().DeleteUser(ctx, user.ID); err != nil {
			return err
		}

		if err := model.Queue().DeleteNew(ctx, []uint64{user.ID}); err != nil {
			c.logger.Warn("Failed to dequeue deleted user",
				zap.Uint64("userID", user.ID),
				zap.Error(err))
		}

		c.markDeleted(user.ID)

		return ErrInvalidUser
	}

	if user.LastInspectedAt != nil &&
		time.Since(*user.LastInspectedAt) < inspectionWindow {
		return nil
	}

	match := false

	if !classified {
		match, err = c.gatherEvidence(ctx, data, user, deferOK)
		if err != nil {
			return err
		}
	}

	if classified {
		return nil
	}

	group := types.GroupAutoLegit
	if match {
		group = types.GroupAutoSuspect
	}

	c.logger.Debug("Auto-classifying user",
		zap.Uint64("userID", user.ID),
		zap.String("screenName", user.ScreenName),
		zap.String("group", string(group)))

	return model.Group().Assign(ctx, user.ID, group)
}

// gatherEvidence tokenises everything the user has published, persists
// the corpus counters and trait observations, scores the user and decides
// deferral. It reports whether any hard spam indicator fired.
func (c *Crawler) gatherEvidence(
	ctx context.Context, data *platform.User, user *types.User, deferOK bool,
) (bool, error) {
	model := c.db.Model()

	match := false
	tokens := make(map[string]int64)
	wordFreq := make(map[string]int)
	adjFreq := make(map[wordstat.WordPair]int)
	hostFreq := make(map[string]int64)

	// Word pairs from one- and two-word fragments are noise, so
	// adjacency only counts on longer runs of text.
	tally := func(text string) {
		words := wordstat.Tokenise(text)
		wordstat.Frequency(words, wordFreq)

		if len(words) > 2 {
			wordstat.Adjacency(words, adjFreq)
		}
	}

	for _, field := range []string{
		data.AboutMe, data.WhoAmI, data.Location, data.WhatIWouldLikeToDo,
	} {
		tally(field)

		if found := matchCheckPatterns(field); found != "" {
			c.logger.Info("Found suspicious token",
				zap.Uint64("userID", user.ID),
				zap.String("token", found))

			tokens[found]++

			match = true
		}
	}

	linkMatch, err := c.inspectLinks(ctx, user, tally, hostFreq)
	if err != nil {
		return false, err
	}

	match = match || linkMatch

	// Project and page fetch failures degrade the evidence but should
	// not abort the inspection.
	if data.Projects > 0 {
		if err := c.tallyProjects(ctx, user.ID, tally); err != nil {
			c.logger.Error("Failed to process user projects",
				zap.Uint64("userID", user.ID),
				zap.Error(err))
		}
	}

	if err := c.tallyPages(ctx, user.ID, tally); err != nil {
		c.logger.Error("Failed to process user pages",
			zap.Uint64("userID", user.ID),
			zap.Error(err))
	}

	if err := c.recordTags(ctx, user.ID); err != nil {
		c.logger.Error("Failed to process user tags",
			zap.Uint64("userID", user.ID),
			zap.Error(err))
	}

	age := time.Since(user.RemoteCreatedAt)
	if age > youngAccountAge &&
		float64(data.Projects) > projectsPerMinuteLimit*age.Minutes() {
		c.logger.Debug("User creating projects implausibly fast",
			zap.Uint64("userID", user.ID),
			zap.Int("projects", data.Projects),
			zap.Duration("age", age))

		match = true
	}

	if err := model.User().SetTokens(ctx, user.ID, tokens); err != nil {
		return false, err
	}

	observations, err := c.persistEvidence(ctx, data, user, wordFreq, adjFreq, hostFreq)
	if err != nil {
		return false, err
	}

	score, err := c.userScore(ctx, user.ID, observations)
	if err != nil {
		return false, err
	}

	if err := c.decideDeferral(ctx, user, score, age, deferOK); err != nil {
		return false, err
	}

	c.logger.Debug("User scored",
		zap.Uint64("userID", user.ID),
		zap.String("screenName", user.ScreenName),
		zap.Float64("score", score))

	if score < -undecidedBand {
		match = true
	}

	return match, nil
}

// inspectLinks paginates the user's outbound links, tallying the titles,
// counting the hostname hierarchy and recording each link. A link outside
// the whitelist marks the user.
func (c *Crawler) inspectLinks(
	ctx context.Context, user *types.User,
	tally func(string), hostFreq map[string]int64,
) (bool, error) {
	users := c.db.Model().User()

	match := false
	page, lastPage := 1, 1

	for page <= lastPage {
		list, err := c.api.GetUserLinks(ctx, user.ID, page, batchSize)
		if err != nil {
			return false, fmt.Errorf("failed to fetch links for user %d: %w", user.ID, err)
		}

		for _, link := range list.Links {
			if link.Title == "" || link.URL == "" {
				continue
			}

			tally(link.Title)
			c.countLinkHostnames(ctx, link.URL, hostFreq)

			if err := users.UpsertLink(ctx, user.ID, link.URL, link.Title); err != nil {
				return false, err
			}

			if !match && !isWhitelistedURI(link.URL) {
				c.logger.Info("User has non-whitelisted link",
					zap.Uint64("userID", user.ID),
					zap.String("url", link.URL))

				match = true
			}
		}

		if list.LastPage > 0 {
			lastPage = list.LastPage
		}

		page = max(list.Page+1, page+1)
	}

	return match, nil
}

// countLinkHostnames counts every parent domain of the link's hostname.
// Unparseable or unsplittable hosts are skipped, one bad link must not
// fail the whole inspection.
func (c *Crawler) countLinkHostnames(
	ctx context.Context, rawURL string, hostFreq map[string]int64,
) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		c.logger.Warn("Could not parse link URL", zap.String("url", rawURL))

		return
	}

	parts, err := c.tld.SplitDomain(ctx, parsed.Hostname())
	if err != nil {
		c.logger.Warn("Could not split link hostname",
			zap.String("hostname", parsed.Hostname()),
			zap.Error(err))

		return
	}

	for _, part := range parts {
		hostFreq[part]++
	}
}

func (c *Crawler) tallyProjects(ctx context.Context, userID uint64, tally func(string)) error {
	page, lastPage := 1, 1

	for page <= lastPage {
		list, err := c.api.GetUserProjects(ctx, userID, page, batchSize)
		if err != nil {
			return err
		}

		for _, project := range list.Projects {
			tally(project.Name)
			tally(project.Summary)
			tally(project.Description)
		}

		if list.LastPage > 0 {
			lastPage = list.LastPage
		}

		page = max(list.Page+1, page+1)
	}

	return nil
}

// recordTags stores the user's profile tags for moderator display.
func (c *Crawler) recordTags(ctx context.Context, userID uint64) error {
	page, lastPage := 1, 1

	var names []string

	for page <= lastPage {
		list, err := c.api.GetUserTags(ctx, userID, page, batchSize)
		if err != nil {
			return err
		}

		for _, tag := range list.Tags {
			if tag.Name != "" {
				names = append(names, tag.Name)
			}
		}

		if list.LastPage > 0 {
			lastPage = list.LastPage
		}

		page = max(list.Page+1, page+1)
	}

	return c.db.Model().User().UpsertTags(ctx, userID, names)
}

func (c *Crawler) tallyPages(ctx context.Context, userID uint64, tally func(string)) error {
	page, lastPage := 1, 1

	for page <= lastPage {
		list, err := c.api.GetUserPages(ctx, userID, page, batchSize)
		if err != nil {
			return err
		}

		for _, userPage := range list.Pages {
			tally(userPage.Title)
			tally(userPage.Body)
		}

		if list.LastPage > 0 {
			lastPage = list.LastPage
		}

		page = max(list.Page+1, page+1)
	}

	return nil
}

// persistEvidence upserts the global corpus rows for everything observed,
// replaces the user's counters pointing into them, stores the profile
// detail and runs the trait detectors. It returns the trait observations
// for scoring.
func (c *Crawler) persistEvidence(
	ctx context.Context, data *platform.User, user *types.User,
	wordFreq map[string]int, adjFreq map[wordstat.WordPair]int,
	hostFreq map[string]int64,
) ([]traits.Observation, error) {
	model := c.db.Model()
	corpus := model.Corpus()

	texts := make([]string, 0, len(wordFreq))
	for word := range wordFreq {
		texts = append(texts, word)
	}

	words, err := corpus.UpsertWords(ctx, texts)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(hostFreq))
	for name := range hostFreq {
		names = append(names, name)
	}

	hostnames, err := corpus.UpsertHostnames(ctx, names)
	if err != nil {
		return nil, err
	}

	wordCounts := make(map[int64]int64, len(wordFreq))
	for word, count := range wordFreq {
		wordCounts[words[word].ID] = int64(count)
	}

	hostCounts := make(map[int64]int64, len(hostFreq))
	for name, count := range hostFreq {
		hostCounts[hostnames[name].ID] = count
	}

	pairKeys := make([]models.PairKey, 0, len(adjFreq))
	pairCounts := make(map[models.PairKey]int64, len(adjFreq))

	for pair, count := range adjFreq {
		key := models.PairKey{
			ProceedingID: words[pair.Proceeding].ID,
			FollowingID:  words[pair.Following].ID,
		}
		pairKeys = append(pairKeys, key)
		pairCounts[key] = int64(count)
	}

	if err := corpus.UpsertAdjacent(ctx, pairKeys); err != nil {
		return nil, err
	}

	if err := corpus.SetUserWords(ctx, user.ID, wordCounts); err != nil {
		return nil, err
	}

	if err := corpus.SetUserHostnames(ctx, user.ID, hostCounts); err != nil {
		return nil, err
	}

	if err := corpus.SetUserAdjacent(ctx, user.ID, pairCounts); err != nil {
		return nil, err
	}

	detail := &types.UserDetail{
		UserID:             user.ID,
		AboutMe:            data.AboutMe,
		WhoAmI:             data.WhoAmI,
		Location:           data.Location,
		WhatIWouldLikeToDo: data.WhatIWouldLikeToDo,
		ProjectCount:       data.Projects,
	}

	if err := model.User().UpsertDetail(ctx, detail); err != nil {
		return nil, err
	}

	links, err := model.User().GetLinks(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	hashes, err := c.avatarHashes(ctx, user.AvatarID)
	if err != nil {
		c.logger.Warn("Could not hash avatar for traits",
			zap.Uint64("userID", user.ID),
			zap.Error(err))

		hashes = map[string]types.AvatarHash{}
	}

	observations := c.registry.Assess(ctx, &traits.UserData{
		User:         user,
		Detail:       detail,
		Links:        links,
		AvatarHashes: hashes,
	})

	if err := c.registry.Persist(ctx, user.ID, observations); err != nil {
		return nil, err
	}

	return observations, nil
}

// decideDeferral schedules a re-inspection when the evidence is still
// inconclusive or the account is too young to judge, with a back-off that
// grows linearly with each attempt. A decisive score on a mature account
// cancels any pending re-inspection.
func (c *Crawler) decideDeferral(
	ctx context.Context, user *types.User, score float64, age time.Duration, deferOK bool,
) error {
	queue := c.db.Model().Queue()

	deferred, err := queue.GetDeferred(ctx, user.ID)
	if err != nil {
		return err
	}

	minAge := time.Duration(c.cfg.DeferMinAge) * time.Second
	maxAge := time.Duration(c.cfg.DeferMaxAge) * time.Second

	if deferOK && (scoreUndecided(score) || age < minAge) && age < maxAge {
		inspections := 1
		if deferred != nil {
			inspections = deferred.Inspections + 1
		}

		delay := time.Duration(c.cfg.DeferDelay) * time.Second
		inspectAt := time.Now().UTC().Add(delay * time.Duration(inspections))

		c.logger.Info("Deferring inconclusive user",
			zap.Uint64("userID", user.ID),
			zap.Float64("score", score),
			zap.Duration("age", age),
			zap.Time("inspectAt", inspectAt),
			zap.Int("inspections", inspections))

		return queue.Defer(ctx, user.ID, inspectAt, inspections)
	}

	if deferred != nil {
		c.logger.Info("Cancelling deferred inspection",
			zap.Uint64("userID", user.ID))

		return queue.Undefer(ctx, user.ID)
	}

	return nil
}
