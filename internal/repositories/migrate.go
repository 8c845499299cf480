package repositories

import (
	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates the relational schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.UserRelation{},
		&models.Notification{},
		&models.UserNotification{},
		&models.Like{},
		&models.Comment{},
		&models.CommentLike{},
	)
}
