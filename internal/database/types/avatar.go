package types

import "github.com/uptrace/bun"

// Avatar is a cached profile image, content-addressed by URL. ContentType
// is empty until the body has been fetched.
type Avatar struct {
	bun.BaseModel `bun:"table:avatar,alias:av"`

	ID          int64  `bun:"avatar_id,pk,autoincrement"`
	URL         string `bun:"url,notnull,unique"`
	ContentType string `bun:"avatar_type"`
	Data        []byte `bun:"avatar"`
}

// Fetched reports whether the avatar body has been retrieved.
func (a *Avatar) Fetched() bool {
	return a.ContentType != ""
}

// AvatarHash is one digest of an avatar image. The (algorithm, digest) pair
// is unique; many avatars may share a hash.
type AvatarHash struct {
	bun.BaseModel `bun:"table:avatar_hash,alias:ah"`

	ID        int64  `bun:"hash_id,pk,autoincrement"`
	Algorithm string `bun:"hash_algo,notnull,unique:avatar_hash_algo_digest"`
	Digest    string `bun:"hash_data,notnull,unique:avatar_hash_algo_digest"`
}

// AvatarHashAssoc joins avatars to their hashes.
type AvatarHashAssoc struct {
	bun.BaseModel `bun:"table:avatar_hash_assoc,alias:aha"`

	AvatarID int64 `bun:"avatar_id,pk"`
	HashID   int64 `bun:"hash_id,pk"`
}
