package platform

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"go.uber.org/zap"
)

// hackerAnchorRe picks user IDs out of the avatar anchors on the public
// hackers listing. The API's sortby=newest is unreliable, so the newest-user
// feed is scraped from the site instead.
var hackerAnchorRe = regexp.MustCompile(`<a href="/hacker/(\d+)" class="hacker-image">`)

// GetNewUserIDs scrapes the given page of the public hackers listing, sorted
// newest first, and returns the user IDs found on it in page order.
func (a *API) GetNewUserIDs(ctx context.Context, page int) ([]uint64, error) {
	uri := fmt.Sprintf("%s/hackers?sort=newest&page=%d", a.siteURL, page)

	resp, err := a.client.Fetch(ctx, http.MethodGet, uri, nil, nil)
	if err != nil {
		return nil, err
	}

	matches := hackerAnchorRe.FindAllSubmatch(resp.Body, -1)
	ids := make([]uint64, 0, len(matches))

	for _, match := range matches {
		id, err := strconv.ParseUint(string(match[1]), 10, 64)
		if err != nil {
			continue
		}

		ids = append(ids, id)
	}

	a.logger.Debug("Scraped newest user listing",
		zap.Int("page", page),
		zap.Int("found", len(ids)))

	return ids, nil
}
