package crawler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sjlongland/hackaday.io-spam-hunter/internal/database/types"
	"github.com/sjlongland/hackaday.io-spam-hunter/internal/hasher"
	"go.uber.org/zap"
)

// GetAvatar returns the avatar row for the given image URL, creating an
// unfetched placeholder if it has not been seen before. The image body is
// only retrieved when a hash is first needed.
func (c *Crawler) GetAvatar(ctx context.Context, url string) (*types.Avatar, error) {
	return c.db.Model().Avatar().UpsertAvatar(ctx, url)
}

// FetchAvatar retrieves the avatar image body if it has not been fetched
// yet, storing the content type reported by the platform.
func (c *Crawler) FetchAvatar(ctx context.Context, avatar *types.Avatar) error {
	if avatar.Fetched() {
		return nil
	}

	resp, err := c.api.Fetch(ctx, http.MethodGet, avatar.URL)
	if err != nil {
		return fmt.Errorf("failed to fetch avatar %q: %w", avatar.URL, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := c.db.Model().Avatar().SetAvatarData(
		ctx, avatar.ID, contentType, resp.Body); err != nil {
		return err
	}

	avatar.ContentType = contentType
	avatar.Data = resp.Body

	return nil
}

// GetAvatarHash returns the avatar's digest for one algorithm, computing
// and storing it on first use.
func (c *Crawler) GetAvatarHash(
	ctx context.Context, avatarID int64, algorithm string,
) (*types.AvatarHash, error) {
	avatars := c.db.Model().Avatar()

	hash, err := avatars.GetHash(ctx, avatarID, algorithm)
	if err != nil || hash != nil {
		return hash, err
	}

	avatar, err := avatars.GetAvatar(ctx, avatarID)
	if err != nil {
		return nil, err
	}

	if avatar == nil {
		return nil, fmt.Errorf("avatar %d does not exist", avatarID)
	}

	if err := c.FetchAvatar(ctx, avatar); err != nil {
		return nil, err
	}

	digest, err := c.hasher.Hash(ctx, avatar.Data, hasher.Algorithm(algorithm))
	if err != nil {
		return nil, err
	}

	return avatars.UpsertHash(ctx, avatarID, algorithm, digest)
}

// avatarHashes returns every computable digest for the avatar, computing
// and storing the ones not already on record. Algorithms that cannot hash
// the image, such as perceptual hashes over an undecodable body, are
// skipped.
func (c *Crawler) avatarHashes(
	ctx context.Context, avatarID int64,
) (map[string]types.AvatarHash, error) {
	if avatarID == 0 {
		return map[string]types.AvatarHash{}, nil
	}

	avatars := c.db.Model().Avatar()

	hashes, err := avatars.GetHashes(ctx, avatarID)
	if err != nil {
		return nil, err
	}

	var missing []hasher.Algorithm

	for _, algo := range hasher.Algorithms {
		if _, ok := hashes[string(algo)]; !ok {
			missing = append(missing, algo)
		}
	}

	if len(missing) == 0 {
		return hashes, nil
	}

	avatar, err := avatars.GetAvatar(ctx, avatarID)
	if err != nil || avatar == nil {
		return hashes, err
	}

	if err := c.FetchAvatar(ctx, avatar); err != nil {
		return nil, err
	}

	for _, algo := range missing {
		digest, err := c.hasher.Hash(ctx, avatar.Data, algo)
		if err != nil {
			c.logger.Debug("Could not hash avatar",
				zap.Int64("avatarID", avatarID),
				zap.String("algorithm", string(algo)),
				zap.Error(err))

			continue
		}

		row, err := avatars.UpsertHash(ctx, avatarID, string(algo), digest)
		if err != nil {
			return nil, err
		}

		hashes[string(algo)] = *row
	}

	return hashes, nil
}
