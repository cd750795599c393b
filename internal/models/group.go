package models

import "time"

// Group is a named chat group. The creator is its implicit administrator.
type Group struct {
	ID        int64     `db:"id" json:"group_id"`
	GroupName string    `db:"group_name" json:"group_name"`
	CreatedBy int64     `db:"created_by" json:"created_by"`
	IsDeleted bool      `db:"is_deleted" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// GroupMember ties one user to one group; soft-deletable.
type GroupMember struct {
	ID        int64     `db:"id" json:"id"`
	GroupID   int64     `db:"group_id" json:"group_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	IsDeleted bool      `db:"is_deleted" json:"-"`
	JoinedAt  time.Time `db:"joined_at" json:"joined_at"`
}
