package types

import "github.com/uptrace/bun"

// Word is a corpus entry for a single token. Count is the total number of
// observations across classified users; Score is the signed sum of those
// observations, positive meaning legitimate.
type Word struct {
	bun.BaseModel `bun:"table:word,alias:w"`

	ID    int64  `bun:"word_id,pk,autoincrement"`
	Text  string `bun:"word,notnull,unique"`
	Score int64  `bun:"score,notnull"`
	Count int64  `bun:"count,notnull"`
}

// WordAdjacent is a corpus entry for an ordered pair of adjacent words.
type WordAdjacent struct {
	bun.BaseModel `bun:"table:word_adjacent,alias:wa"`

	ProceedingID int64 `bun:"proceeding_id,pk"`
	FollowingID  int64 `bun:"following_id,pk"`
	Score        int64 `bun:"score,notnull"`
	Count        int64 `bun:"count,notnull"`
}

// Hostname is a corpus entry for a link hostname or one of its parent
// domains.
type Hostname struct {
	bun.BaseModel `bun:"table:hostname,alias:h"`

	ID    int64  `bun:"hostname_id,pk,autoincrement"`
	Name  string `bun:"hostname,notnull,unique"`
	Score int64  `bun:"score,notnull"`
	Count int64  `bun:"count,notnull"`
}

// UserWord counts how often a user's profile text used a word. Rows with a
// count of zero are deleted, never kept.
type UserWord struct {
	bun.BaseModel `bun:"table:user_word,alias:uw"`

	UserID uint64 `bun:"user_id,pk"`
	WordID int64  `bun:"word_id,pk"`
	Count  int64  `bun:"count,notnull"`
}

// UserWordAdjacent counts a user's uses of an adjacent word pair.
type UserWordAdjacent struct {
	bun.BaseModel `bun:"table:user_word_adjacent,alias:uwa"`

	UserID       uint64 `bun:"user_id,pk"`
	ProceedingID int64  `bun:"proceeding_id,pk"`
	FollowingID  int64  `bun:"following_id,pk"`
	Count        int64  `bun:"count,notnull"`
}

// UserHostname counts a user's links under a hostname.
type UserHostname struct {
	bun.BaseModel `bun:"table:user_hostname,alias:uh"`

	UserID     uint64 `bun:"user_id,pk"`
	HostnameID int64  `bun:"hostname_id,pk"`
	Count      int64  `bun:"count,notnull"`
}
