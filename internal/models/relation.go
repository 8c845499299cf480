package models

import (
	"time"

	"gorm.io/gorm"
)

// RelationType separates plain follows from the close-friend and block layers.
type RelationType string

const (
	RelationFollow RelationType = "follow"
	RelationClose  RelationType = "close"
	RelationBlock  RelationType = "block"
)

// RelationStatus is the persisted status of a relation row.
type RelationStatus string

const (
	StatusPending          RelationStatus = "pending"
	StatusAccepted         RelationStatus = "accepted"
	StatusRejected         RelationStatus = "rejected"
	StatusFollowed         RelationStatus = "followed"
	StatusUnfollowed       RelationStatus = "unfollowed"
	StatusRequestRescinded RelationStatus = "request_rescinded"
	StatusFollowerDeleted  RelationStatus = "follower_deleted"
)

// ActiveFollowStatuses are the statuses counted in follower_count / following_count.
var ActiveFollowStatuses = []RelationStatus{StatusFollowed, StatusAccepted}

// IsActiveFollow reports whether s counts as a live follow.
func (s RelationStatus) IsActiveFollow() bool {
	return s == StatusFollowed || s == StatusAccepted
}

// FollowStatus is the externally visible state of a directed follow edge.
type FollowStatus string

const (
	FollowStatusNotFollowed      FollowStatus = "not_followed"
	FollowStatusRequestPending   FollowStatus = "request_pending"
	FollowStatusRequestAccepted  FollowStatus = "request_accepted"
	FollowStatusRequestRejected  FollowStatus = "request_rejected"
	FollowStatusFollowed         FollowStatus = "followed"
	FollowStatusUnfollowed       FollowStatus = "unfollowed"
	FollowStatusRequestRescinded FollowStatus = "request_rescinded"
	FollowStatusFollowerDeleted  FollowStatus = "follower_deleted"
	FollowStatusBlocked          FollowStatus = "blocked"
)

// FollowStatus maps a stored status onto the follow state machine.
func (s RelationStatus) FollowStatus() FollowStatus {
	switch s {
	case StatusPending:
		return FollowStatusRequestPending
	case StatusAccepted:
		return FollowStatusRequestAccepted
	case StatusRejected:
		return FollowStatusRequestRejected
	case StatusFollowed:
		return FollowStatusFollowed
	case StatusUnfollowed:
		return FollowStatusUnfollowed
	case StatusRequestRescinded:
		return FollowStatusRequestRescinded
	case StatusFollowerDeleted:
		return FollowStatusFollowerDeleted
	}
	return FollowStatusNotFollowed
}

// UserRelation is one entry of the append-only history of a directed edge. At most one
// row per (follower, following, type) is not soft-deleted; that row is the current state.
type UserRelation struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	FollowerID  uint           `json:"follower_id" gorm:"not null;index;uniqueIndex:idx_user_relations_active,where:deleted_at IS NULL"`
	FollowingID uint           `json:"following_id" gorm:"not null;index;uniqueIndex:idx_user_relations_active,where:deleted_at IS NULL"`
	Type        RelationType   `json:"type" gorm:"column:relation_type;type:varchar(10);not null;uniqueIndex:idx_user_relations_active,where:deleted_at IS NULL"`
	Status      RelationStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	CreatedAt   time.Time      `json:"created_at"`
	DeletedAt   gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
