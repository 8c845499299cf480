package models

import "gorm.io/gorm"

// Comment represents a comment on a post. Replies carry the parent comment id.
type Comment struct {
	gorm.Model
	PostID   string `json:"post_id" gorm:"size:24;index;not null"`
	UserID   uint   `json:"user_id" gorm:"index;not null"`
	ParentID *uint  `json:"parent_id,omitempty" gorm:"index"`
	Content  string `json:"content"`
}

// CreateCommentRequest defines the request body for creating a new comment
type CreateCommentRequest struct {
	Content   string `json:"content" validate:"required,min=1,max=500"`
	CommentID *uint  `json:"commentId,omitempty"`
}

// UpdateCommentRequest defines the request body for updating an existing comment
type UpdateCommentRequest struct {
	Content string `json:"content" validate:"required,min=1,max=500"`
}
