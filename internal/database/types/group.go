package types

import "github.com/uptrace/bun"

// GroupName names one of the classification groups.
type GroupName string

const (
	GroupAdmin       GroupName = "admin"
	GroupAutoLegit   GroupName = "auto_legit"
	GroupAutoSuspect GroupName = "auto_suspect"
	GroupLegit       GroupName = "legit"
	GroupSuspect     GroupName = "suspect"
)

// RequiredGroups lists the groups the schema seeds at migration time.
var RequiredGroups = []GroupName{
	GroupAdmin, GroupAutoLegit, GroupAutoSuspect, GroupLegit, GroupSuspect,
}

// Group is a classification bucket users are assigned to.
type Group struct {
	bun.BaseModel `bun:"table:group,alias:g"`

	ID   int64     `bun:"group_id,pk,autoincrement"`
	Name GroupName `bun:"name,notnull,unique"`
}

// UserGroupAssoc links a user to a group.
type UserGroupAssoc struct {
	bun.BaseModel `bun:"table:user_group_assoc,alias:uga"`

	UserID  uint64 `bun:"user_id,pk"`
	GroupID int64  `bun:"group_id,pk"`
}
