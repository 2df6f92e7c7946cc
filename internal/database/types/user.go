package types

import (
	"time"

	"github.com/uptrace/bun"
)

// User is a platform user known to the crawler. The ID is the platform's
// stable identifier, never locally generated.
type User struct {
	bun.BaseModel `bun:"table:user,alias:u"`

	ID              uint64     `bun:"user_id,pk"`
	ScreenName      string     `bun:"screen_name,notnull"`
	URL             string     `bun:"url,notnull"`
	AvatarID        int64      `bun:"avatar_id,nullzero"`
	CreatedAt       time.Time  `bun:"created_at,notnull"`
	RemoteCreatedAt time.Time  `bun:"remote_created_at,notnull"`
	LastInspectedAt *time.Time `bun:"last_inspected_at"`
}

// UserDetail carries the free-text profile fields used by the classifier.
// One row per user, absent until first inspection.
type UserDetail struct {
	bun.BaseModel `bun:"table:user_detail,alias:ud"`

	UserID             uint64 `bun:"user_id,pk"`
	AboutMe            string `bun:"about_me"`
	WhoAmI             string `bun:"who_am_i"`
	Location           string `bun:"location"`
	WhatIWouldLikeToDo string `bun:"what_i_would_like_to_do"`
	ProjectCount       int    `bun:"project_count,notnull"`
}

// UserLink is an outbound link on a user's profile.
type UserLink struct {
	bun.BaseModel `bun:"table:user_link,alias:ul"`

	UserID uint64 `bun:"user_id,pk"`
	URL    string `bun:"url,pk"`
	Title  string `bun:"title"`
}

// UserToken counts suspicious literal substrings matched on a user's
// profile text.
type UserToken struct {
	bun.BaseModel `bun:"table:user_token,alias:utk"`

	UserID uint64 `bun:"user_id,pk"`
	Token  string `bun:"token,pk"`
	Count  int64  `bun:"count,notnull"`
}

// Session is a front-end session token. The ID is a UUID so the value
// emitted to the browser is unguessable.
type Session struct {
	bun.BaseModel `bun:"table:session,alias:s"`

	ID     string    `bun:"session_id,pk,type:uuid"`
	UserID uint64    `bun:"user_id,notnull"`
	Expiry time.Time `bun:"expiry_date,notnull"`
}

// Account is a local login bound to a platform user, for operators who
// authenticate with a password rather than OAuth.
type Account struct {
	bun.BaseModel `bun:"table:account,alias:a"`

	UserID          uint64 `bun:"user_id,pk"`
	Name            string `bun:"name,notnull,unique"`
	HashedPassword  string `bun:"hashed_password,notnull"`
	ChangeNextLogin bool   `bun:"change_next_login,notnull"`
}

// Tag is a profile tag seen on at least one user.
type Tag struct {
	bun.BaseModel `bun:"table:tag,alias:t"`

	ID   int64  `bun:"tag_id,pk,autoincrement"`
	Name string `bun:"tag,notnull,unique"`
}

// UserTag links a user to a tag.
type UserTag struct {
	bun.BaseModel `bun:"table:user_tag,alias:utg"`

	UserID uint64 `bun:"user_id,pk"`
	TagID  int64  `bun:"tag_id,pk"`
}
