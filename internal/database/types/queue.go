package types

import (
	"time"

	"github.com/uptrace/bun"
)

// NewUser is the inbox of user IDs discovered but not yet inspected.
type NewUser struct {
	bun.BaseModel `bun:"table:new_user,alias:nu"`

	UserID uint64 `bun:"user_id,pk"`
}

// DeferredUser records a user whose inspection was postponed because the
// account was young and its score indecisive.
type DeferredUser struct {
	bun.BaseModel `bun:"table:deferred_user,alias:du"`

	UserID      uint64    `bun:"user_id,pk"`
	InspectAt   time.Time `bun:"inspect_time,notnull"`
	Inspections int       `bun:"inspections,notnull"`
}

// NewestUserPageRefresh remembers when each discovery page was last
// scanned so recently visited pages are skipped.
type NewestUserPageRefresh struct {
	bun.BaseModel `bun:"table:newest_user_page_refresh,alias:npr"`

	PageNum     int       `bun:"page_num,pk"`
	RefreshedAt time.Time `bun:"refresh_date,notnull"`
}
