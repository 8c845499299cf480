package models

import "time"

// NotificationType names the social event a notification was created for.
type NotificationType string

const (
	NotificationTags          NotificationType = "tags"
	NotificationLikePost      NotificationType = "likePost"
	NotificationFollowAccept  NotificationType = "followAccept"
	NotificationFollowRequest NotificationType = "followRequest"
	NotificationFollowed      NotificationType = "followed"
	NotificationFollowBack    NotificationType = "followBack"
	NotificationComment       NotificationType = "comment"
)

// FansOut reports whether the event is also delivered to the sender's followers.
func (t NotificationType) FansOut() bool {
	switch t {
	case NotificationTags, NotificationLikePost, NotificationComment:
		return true
	}
	return false
}

// Notification is created once per originating event.
type Notification struct {
	ID          uint             `json:"id" gorm:"primaryKey"`
	RecipientID uint             `json:"recipient_id" gorm:"not null;index"`
	SenderID    uint             `json:"sender_id" gorm:"not null;index"`
	Type        NotificationType `json:"type" gorm:"size:20;not null;index"`
	PostID      string           `json:"post_id,omitempty" gorm:"size:24;index"`
	CommentID   *uint            `json:"comment_id,omitempty" gorm:"index"`
	Message     string           `json:"message"`
	CreatedAt   time.Time        `json:"created_at" gorm:"index"`

	// Recipients holds the users a delivery row was written for; set by the fan-out.
	Recipients []uint `json:"-" gorm:"-"`
}

// UserNotification is the per-recipient delivery of a Notification.
type UserNotification struct {
	ID             uint         `json:"id" gorm:"primaryKey"`
	UserID         uint         `json:"user_id" gorm:"not null;uniqueIndex:idx_user_notification"`
	NotificationID uint         `json:"notification_id" gorm:"not null;index;uniqueIndex:idx_user_notification"`
	Notification   Notification `json:"notification" gorm:"foreignKey:NotificationID;constraint:OnDelete:CASCADE"`
	IsRead         bool         `json:"is_read" gorm:"default:false;index"`
	ReadAt         *time.Time   `json:"read_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at" gorm:"index"`
}
