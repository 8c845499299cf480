package models

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

// User is an account in the user directory. FollowerCount and FollowingCount are
// denormalized and only ever written by relation transitions.
type User struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	Username       string         `json:"username" gorm:"size:30;uniqueIndex;not null"`
	Email          string         `json:"email" gorm:"uniqueIndex;not null"`
	Name           string         `json:"name"`
	Bio            string         `json:"bio" gorm:"size:300"`
	Password       string         `json:"-"`
	FirebaseUID    *string        `json:"firebase_uid,omitempty" gorm:"uniqueIndex"`
	FCMToken       string         `json:"-" gorm:"column:fcm_token"`
	IsPrivate      bool           `json:"is_private" gorm:"default:false"`
	FollowerCount  int            `json:"follower_count" gorm:"default:0;not null"`
	FollowingCount int            `json:"following_count" gorm:"default:0;not null"`
	PostCount      int            `json:"post_count" gorm:"default:0;not null"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}

// UserCompact is the embedded author/actor shape used in feeds and notification lists.
type UserCompact struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
}

// ToCompact returns the compact representation of u.
func (u *User) ToCompact() UserCompact {
	return UserCompact{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		IsPrivate: u.IsPrivate,
	}
}

type CreateLocalUserRequest struct {
	Username string `json:"username" validate:"required,username"`
	Name     string `json:"name" validate:"omitempty,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type SignInRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type UpdateUserRequest struct {
	Name      string `json:"name,omitempty" validate:"omitempty,min=2,max=50"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Bio       string `json:"bio,omitempty" validate:"omitempty,max=300"`
	IsPrivate *bool  `json:"is_private,omitempty"`
}

type DeviceTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// JwtCustomClaims are custom claims extending standard jwt.RegisteredClaims
type JwtCustomClaims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}
