package types

import "github.com/uptrace/bun"

// TraitType distinguishes how a trait instance is keyed.
type TraitType string

const (
	// TraitSingleton traits either fire or not; their aggregate stats live
	// on the trait row itself.
	TraitSingleton TraitType = "singleton"
	// TraitString traits fire with a string value.
	TraitString TraitType = "string"
	// TraitImageHash traits fire with an avatar hash.
	TraitImageHash TraitType = "image_hash"
	// TraitPair traits fire with two other trait instances.
	TraitPair TraitType = "pair"
)

// Trait is a named, weighted predicate over a user with aggregate corpus
// stats.
type Trait struct {
	bun.BaseModel `bun:"table:trait,alias:tr"`

	ID     int64     `bun:"trait_id,pk,autoincrement"`
	Class  string    `bun:"trait_class,notnull,unique"`
	Type   TraitType `bun:"trait_type,notnull"`
	Score  int64     `bun:"score,notnull"`
	Count  int64     `bun:"count,notnull"`
	Weight float64   `bun:"weight,notnull"`
}

// TraitInstance is one keyed occurrence of a trait. Exactly one of Value,
// HashID or the pair columns is set, according to the trait's type;
// singleton traits have no instances.
type TraitInstance struct {
	bun.BaseModel `bun:"table:trait_instance,alias:ti"`

	ID      int64   `bun:"trait_inst_id,pk,autoincrement"`
	TraitID int64   `bun:"trait_id,notnull"`
	Value   *string `bun:"trait_string"`
	HashID  *int64  `bun:"trait_hash_id"`
	PrevID  *int64  `bun:"prev_id"`
	NextID  *int64  `bun:"next_id"`
	Score   int64   `bun:"score,notnull"`
	Count   int64   `bun:"count,notnull"`
}

// UserTrait counts a singleton trait's firings for a user.
type UserTrait struct {
	bun.BaseModel `bun:"table:user_trait,alias:utr"`

	UserID  uint64 `bun:"user_id,pk"`
	TraitID int64  `bun:"trait_id,pk"`
	Count   int64  `bun:"count,notnull"`
}

// UserTraitInstance counts a keyed trait instance's firings for a user.
type UserTraitInstance struct {
	bun.BaseModel `bun:"table:user_trait_instance,alias:uti"`

	UserID     uint64 `bun:"user_id,pk"`
	InstanceID int64  `bun:"trait_inst_id,pk"`
	Count      int64  `bun:"count,notnull"`
}
