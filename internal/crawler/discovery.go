package crawler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// pageRevisitInterval is how long a discovery page beyond the first is
// considered fresh. Older users only move between pages when accounts
// ahead of them are purged, so re-scraping sooner is wasted quota.
const pageRevisitInterval = 30 * 24 * time.Hour

// fetchNewUserIDs scrapes newest-user listing pages starting at page,
// queueing IDs not yet known to the store. It keeps going until it has
// found at least 10 unseen IDs or consumed 10 pages, and returns the next
// page to resume from. An empty listing page returns ErrNoUsersReturned.
func (c *Crawler) fetchNewUserIDs(ctx context.Context, page int) (int, error) {
	queue := c.db.Model().Queue()
	users := c.db.Model().User()
	now := time.Now().UTC()

	newIDs := 0

	for pages := 0; newIDs < 10 && pages < 10; {
		if err := ctx.Err(); err != nil {
			return page, err
		}

		if page > 1 {
			refresh, err := queue.GetPageRefresh(ctx, page)
			if err != nil {
				return page, err
			}

			if refresh != nil && now.Sub(refresh.RefreshedAt) < pageRevisitInterval {
				c.logger.Debug("Skipping recently scraped page",
					zap.Int("page", page),
					zap.Time("lastRefresh", refresh.RefreshedAt))

				page++

				continue
			}
		}

		ids, err := c.api.GetNewUserIDs(ctx, page)
		if err != nil {
			return page, fmt.Errorf("failed to scrape user page %d: %w", page, err)
		}

		if len(ids) == 0 {
			return page, ErrNoUsersReturned
		}

		if page > 1 {
			if err := queue.UpsertPageRefresh(ctx, page, now); err != nil {
				return page, err
			}
		}

		known, err := users.KnownIDs(ctx, ids)
		if err != nil {
			return page, err
		}

		fresh := make([]uint64, 0, len(ids))

		for _, id := range ids {
			if _, ok := known[id]; !ok {
				fresh = append(fresh, id)
			}
		}

		if len(fresh) > 0 {
			c.logger.Info("Queueing unseen users",
				zap.Int("page", page),
				zap.Uint64s("ids", fresh))

			if err := queue.EnqueueNew(ctx, fresh); err != nil {
				return page, err
			}

			newIDs += len(fresh)
		}

		page++
		pages++
	}

	return page, nil
}
