// Package crawler drives the background discovery and classification
// pipeline: it scrapes newly-registered account IDs off the platform,
// inspects each account's profile, links, projects and pages, scores the
// evidence against the trained corpus and auto-classifies the account as
// legitimate or suspect pending a moderator verdict.
package crawler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/types"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/hasher"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/platform"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/setup/config"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/tld"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/traits"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// batchSize is the page size used for user batches and paginated listings.
const batchSize = 50

// Crawler owns the background loops. All loops share one rate-limited API
// client, so at most one platform request is in flight at any time.
type Crawler struct {
	db       database.Client
	api      *platform.API
	tld      *tld.Cache
	hasher   *hasher.Hasher
	registry *traits.Registry
	cfg      *config.Crawler
	logger   *zap.Logger

	// NewUserEvent is set whenever a previously unseen user is stored,
	// so a front-end can long-poll for arrivals.
	NewUserEvent *Event

	mu           sync.Mutex
	deletedIDs   map[uint64]struct{}
	histPage     int
	adminScanned bool
}

// New creates a crawler over the given dependencies.
func New(
	db database.Client, api *platform.API, tldCache *tld.Cache,
	imageHasher *hasher.Hasher, cfg *config.Crawler, logger *zap.Logger,
) *Crawler {
	return &Crawler{
		db:           db,
		api:          api,
		tld:          tldCache,
		hasher:       imageHasher,
		registry:     traits.NewRegistry(db.Model().Trait(), logger),
		cfg:          cfg,
		logger:       logger.Named("crawler"),
		NewUserEvent: NewEvent(),
		deletedIDs:   make(map[uint64]struct{}),
		histPage:     1,
	}
}

// Registry exposes the trait registry, for front-ends that need to show
// which traits fired.
func (c *Crawler) Registry() *traits.Registry {
	return c.registry
}

// Start runs every background loop until the context is cancelled. The
// historical cursor resumes from the highest discovery page recorded in a
// previous run.
func (c *Crawler) Start(ctx context.Context) error {
	page, err := c.db.Model().Queue().MaxPageRefresh(ctx)
	if err != nil {
		return err
	}

	if page > 1 {
		c.histPage = page
	}

	c.logger.Info("Starting crawler",
		zap.Int("histPage", c.histPage),
		zap.Int("initDelay", c.cfg.InitDelay))

	if !sleepCtx(ctx, time.Duration(c.cfg.InitDelay)*time.Second) {
		return ctx.Err()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.runLoop(ctx, "fetch_new_users", c.scanNewUsers) })
	g.Go(func() error { return c.runLoop(ctx, "inspect_new", c.inspectNewUsers) })
	g.Go(func() error { return c.runLoop(ctx, "inspect_deferred", c.inspectDeferredUsers) })
	g.Go(func() error { return c.runLoop(ctx, "fetch_historical", c.scanHistoricalUsers) })
	g.Go(func() error { return c.runLoop(ctx, "refresh_admins", c.refreshAdmins) })

	return g.Wait()
}

// runLoop invokes step immediately and then after each delay it returns,
// until the context is cancelled. Steps handle their own errors so one
// bad scan never stops the loop.
func (c *Crawler) runLoop(
	ctx context.Context, name string, step func(context.Context) time.Duration,
) error {
	for {
		delay := step(ctx)

		if err := ctx.Err(); err != nil {
			return err
		}

		c.logger.Info("Next scan scheduled",
			zap.String("loop", name),
			zap.Duration("delay", delay))

		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
	}
}

// scanNewUsers walks the newest-user listing from page 1 up to where the
// historical scan has reached, queueing unseen IDs.
func (c *Crawler) scanNewUsers(ctx context.Context) time.Duration {
	if c.api.IsForbidden() {
		c.logger.Warn("API blocked, cannot scan for new users")

		return time.Duration(c.cfg.APIBlockedDelay) * time.Second
	}

	limit := max(c.histPageValue(), 2)

	page := 1
	for pages := 0; page < limit && pages < 10; pages++ {
		c.logger.Info("Scanning for new users", zap.Int("page", page))

		next, err := c.fetchNewUserIDs(ctx, page)
		if err != nil {
			if !errors.Is(err, ErrNoUsersReturned) {
				c.logger.Error("Failed to retrieve newer users", zap.Error(err))
			}

			break
		}

		page = next
	}

	return alignedDelay(time.Duration(c.cfg.NewUserFetchInterval) * time.Second)
}

// scanHistoricalUsers advances the historical cursor one step per run.
// Once the last page is reached the loop slows right down, only checking
// again in case the site has grown another page.
func (c *Crawler) scanHistoricalUsers(ctx context.Context) time.Duration {
	if c.api.IsForbidden() {
		c.logger.Warn("API blocked, cannot scan for older users")

		return time.Duration(c.cfg.APIBlockedDelay) * time.Second
	}

	page := c.histPageValue()

	c.logger.Info("Beginning historical user retrieval", zap.Int("page", page))

	delay := time.Duration(c.cfg.OldUserFetchInterval) * time.Second

	next, err := c.fetchNewUserIDs(ctx, page)

	switch {
	case errors.Is(err, ErrNoUsersReturned):
		c.logger.Info("Last user page reached")

		delay = time.Duration(c.cfg.OldUserFetchIntervalLastPage) * time.Second
	case err != nil:
		c.logger.Error("Failed to retrieve older users", zap.Error(err))
	default:
		c.setHistPage(next)
	}

	return delay
}

func (c *Crawler) histPageValue() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.histPage
}

func (c *Crawler) setHistPage(page int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.histPage = page
}

// markDeleted remembers a purged account so later inspections in the same
// process can fail fast without another round trip.
func (c *Crawler) markDeleted(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deletedIDs[id] = struct{}{}
}

func (c *Crawler) isDeleted(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.deletedIDs[id]

	return ok
}

// inspectNewUsers drains a batch of queued user IDs, newest first.
func (c *Crawler) inspectNewUsers(ctx context.Context) time.Duration {
	interval := time.Duration(c.cfg.NewCheckInterval) * time.Second

	if c.api.IsForbidden() {
		c.logger.Warn("API blocked, cannot inspect new users")

		return time.Duration(c.cfg.APIBlockedDelay) * time.Second
	}

	queue := c.db.Model().Queue()

	ids, err := queue.ListNew(ctx, batchSize)
	if err != nil {
		c.logger.Error("Failed to list queued users", zap.Error(err))

		return interval
	}

	if len(ids) == 0 {
		return interval
	}

	c.logger.Info("Scanning new users", zap.Uint64s("ids", ids))

	list, err := c.api.GetUsers(ctx, platform.UsersQuery{IDs: ids, PerPage: batchSize})
	if err != nil {
		c.logger.Error("Failed to retrieve new users", zap.Error(err))

		return interval
	}

	users := list.Users
	sort.Slice(users, func(i, j int) bool { return users[i].ID > users[j].ID })

	for i := range users {
		data := &users[i]

		_, _, err := c.UpdateUserFromData(ctx, data, true, true)
		if err != nil && !errors.Is(err, ErrInvalidUser) {
			c.logger.Error("Failed to process new user",
				zap.Uint64("userID", data.ID),
				zap.Error(err))

			continue
		}

		if err := queue.DeleteNew(ctx, []uint64{data.ID}); err != nil {
			c.logger.Error("Failed to dequeue user",
				zap.Uint64("userID", data.ID),
				zap.Error(err))
		}
	}

	return interval
}

// inspectDeferredUsers re-inspects a batch of users whose earlier
// inspections were inconclusive and whose re-check time has come.
func (c *Crawler) inspectDeferredUsers(ctx context.Context) time.Duration {
	interval := time.Duration(c.cfg.DeferredCheckInterval) * time.Second

	if c.api.IsForbidden() {
		c.logger.Warn("API blocked, cannot inspect deferred users")

		return time.Duration(c.cfg.APIBlockedDelay) * time.Second
	}

	c.logger.Info("Scanning deferred users")

	queue := c.db.Model().Queue()

	rows, err := queue.ListDeferred(ctx, c.cfg.DeferMaxCount, batchSize)
	if err != nil {
		c.logger.Error("Failed to list deferred users", zap.Error(err))

		return interval
	}

	if len(rows) == 0 {
		return interval
	}

	ids := make([]uint64, len(rows))
	for i, row := range rows {
		ids[i] = row.UserID
	}

	list, err := c.api.GetUsers(ctx, platform.UsersQuery{IDs: ids, PerPage: batchSize})
	if err != nil {
		c.logger.Error("Failed to retrieve deferred users", zap.Error(err))

		return interval
	}

	if len(list.Users) == 0 {
		// The batch endpoint returned nothing usable. Push the whole
		// batch out so it is not retried on every scan.
		delay := time.Duration(c.cfg.DeferDelay) * time.Second
		if err := queue.AdvanceDeferred(ctx, rows, delay); err != nil {
			c.logger.Error("Failed to advance deferred users", zap.Error(err))
		}

		return interval
	}

	for i := range list.Users {
		data := &list.Users[i]

		_, _, err := c.UpdateUserFromData(ctx, data, true, true)
		if err != nil && !errors.Is(err, ErrInvalidUser) {
			c.logger.Error("Failed to process deferred user",
				zap.Uint64("userID", data.ID),
				zap.Error(err))
		}
	}

	return interval
}

// refreshAdmins rebuilds the admin group from the moderation project's
// team plus the explicitly configured IDs. Explicit IDs stay members even
// when the team listing drops them, and their profiles are only fetched
// once per process since they rarely change.
func (c *Crawler) refreshAdmins(ctx context.Context) time.Duration {
	interval := time.Duration(c.cfg.AdminUserFetchInterval) * time.Second

	if c.api.IsForbidden() {
		c.logger.Warn("API blocked, cannot refresh admin group")

		return time.Duration(c.cfg.APIBlockedDelay) * time.Second
	}

	if c.cfg.ProjectID == 0 && len(c.cfg.AdminUserIDs) == 0 {
		return interval
	}

	members := make(map[uint64]struct{})

	if c.cfg.ProjectID != 0 {
		if err := c.collectProjectTeam(ctx, members); err != nil {
			c.logger.Error("Failed to refresh project team", zap.Error(err))

			return interval
		}
	}

	for _, id := range c.cfg.AdminUserIDs {
		members[id] = struct{}{}
	}

	if !c.adminScanned && len(c.cfg.AdminUserIDs) > 0 {
		if err := c.fetchAdminProfiles(ctx); err != nil {
			c.logger.Error("Failed to fetch admin profiles", zap.Error(err))
		} else {
			c.adminScanned = true
		}
	}

	ids := make([]uint64, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}

	if err := c.db.Model().Group().SetMembers(ctx, types.GroupAdmin, ids); err != nil {
		c.logger.Error("Failed to update admin group", zap.Error(err))
	}

	return interval
}

func (c *Crawler) collectProjectTeam(ctx context.Context, members map[uint64]struct{}) error {
	page, lastPage := 1, 1

	for page <= lastPage {
		team, err := c.api.GetProjectTeam(
			ctx, c.cfg.ProjectID, platform.UserSortInfluence, page, batchSize)
		if err != nil {
			return err
		}

		for i := range team.Team {
			member := &team.Team[i].User

			_, _, err := c.UpdateUserFromData(ctx, member, false, false)
			if err != nil && !errors.Is(err, ErrInvalidUser) {
				c.logger.Warn("Failed to update team member",
					zap.Uint64("userID", member.ID),
					zap.Error(err))

				continue
			}

			members[member.ID] = struct{}{}
		}

		if team.LastPage > 0 {
			lastPage = team.LastPage
		}

		page = max(team.Page+1, page+1)
	}

	return nil
}

func (c *Crawler) fetchAdminProfiles(ctx context.Context) error {
	ids := c.cfg.AdminUserIDs

	for start := 0; start < len(ids); start += platform.BatchLimit {
		end := min(start+platform.BatchLimit, len(ids))

		list, err := c.api.GetUsers(ctx, platform.UsersQuery{
			IDs:     ids[start:end],
			PerPage: batchSize,
		})
		if err != nil {
			return err
		}

		for i := range list.Users {
			data := &list.Users[i]

			_, _, err := c.UpdateUserFromData(ctx, data, false, false)
			if err != nil && !errors.Is(err, ErrInvalidUser) {
				c.logger.Warn("Failed to update admin user",
					zap.Uint64("userID", data.ID),
					zap.Error(err))
			}
		}
	}

	return nil
}

// alignedDelay returns the time until the next multiple of interval, so
// repeated scans tick at predictable wall-clock times.
func alignedDelay(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}

	elapsed := time.Duration(time.Now().UnixNano()) % interval

	return interval - elapsed
}

// sleepCtx sleeps for the given duration, reporting false if the context
// was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
