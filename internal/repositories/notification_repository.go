package repositories

import (
	"context"
	"time"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const deliveryBatchSize = 100

// NotificationQuery selects notifications by their originating event. Zero fields are ignored.
type NotificationQuery struct {
	Type        models.NotificationType
	SenderID    uint
	RecipientID uint
	PostID      string
	CommentID   *uint
}

// NotificationRepository defines the interface for notification operations
type NotificationRepository interface {
	WithTx(tx *gorm.DB) NotificationRepository
	CreateNotification(ctx context.Context, notification *models.Notification) error
	CreateDeliveries(ctx context.Context, deliveries []models.UserNotification) error
	DeleteMatching(ctx context.Context, q NotificationQuery) ([]uint, error)
	GetByUserID(ctx context.Context, userID uint, offset, limit int) ([]models.UserNotification, int64, error)
	GetGrouped(ctx context.Context, userID uint, now time.Time) (today, yesterday, thisWeek, older []models.UserNotification, err error)
	GetDelivery(ctx context.Context, userID, notificationID uint) (*models.UserNotification, error)
	GetUnreadCount(ctx context.Context, userID uint) (int64, error)
	MarkAsRead(ctx context.Context, userID uint, notificationIDs []uint) error
	MarkAllAsRead(ctx context.Context, userID uint) (int64, error)
}

type postgresNotificationRepository struct {
	db *gorm.DB
}

func NewPostgresNotificationRepository(db *gorm.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db}
}

func (r *postgresNotificationRepository) WithTx(tx *gorm.DB) NotificationRepository {
	return &postgresNotificationRepository{db: tx}
}

func (r *postgresNotificationRepository) CreateNotification(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

// CreateDeliveries inserts delivery rows in batches; rows that already exist are skipped.
func (r *postgresNotificationRepository) CreateDeliveries(ctx context.Context, deliveries []models.UserNotification) error {
	if len(deliveries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&deliveries, deliveryBatchSize).Error
}

func (r *postgresNotificationRepository) matching(ctx context.Context, q NotificationQuery) *gorm.DB {
	scope := r.db.WithContext(ctx).Model(&models.Notification{})
	if q.Type != "" {
		scope = scope.Where("type = ?", q.Type)
	}
	if q.SenderID != 0 {
		scope = scope.Where("sender_id = ?", q.SenderID)
	}
	if q.RecipientID != 0 {
		scope = scope.Where("recipient_id = ?", q.RecipientID)
	}
	if q.PostID != "" {
		scope = scope.Where("post_id = ?", q.PostID)
	}
	if q.CommentID != nil {
		scope = scope.Where("comment_id = ?", *q.CommentID)
	}
	return scope
}

// DeleteMatching removes the matching notifications together with their deliveries and
// returns the users that had a delivery.
func (r *postgresNotificationRepository) DeleteMatching(ctx context.Context, q NotificationQuery) ([]uint, error) {
	var ids []uint
	if err := r.matching(ctx, q).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	db := r.db.WithContext(ctx)
	var userIDs []uint
	if err := db.Model(&models.UserNotification{}).
		Where("notification_id IN ?", ids).
		Distinct().
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, err
	}
	if err := db.Where("notification_id IN ?", ids).Delete(&models.UserNotification{}).Error; err != nil {
		return nil, err
	}
	if err := db.Where("id IN ?", ids).Delete(&models.Notification{}).Error; err != nil {
		return nil, err
	}
	return userIDs, nil
}

func (r *postgresNotificationRepository) deliveries(ctx context.Context, userID uint) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.UserNotification{}).
		Where("user_id = ?", userID)
}

func (r *postgresNotificationRepository) GetByUserID(ctx context.Context, userID uint, offset, limit int) ([]models.UserNotification, int64, error) {
	var rows []models.UserNotification
	var total int64

	if err := r.deliveries(ctx, userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := r.deliveries(ctx, userID).
		Preload("Notification").
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&rows).Error
	return rows, total, err
}

func (r *postgresNotificationRepository) GetGrouped(ctx context.Context, userID uint, now time.Time) (today, yesterday, thisWeek, older []models.UserNotification, retErr error) {
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterdayStart := todayStart.AddDate(0, 0, -1)
	weekStart := todayStart.AddDate(0, 0, -7)

	find := func(dest *[]models.UserNotification, limit int, cond string, args ...interface{}) error {
		q := r.deliveries(ctx, userID).Preload("Notification").Where(cond, args...).Order("created_at DESC, id DESC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q.Find(dest).Error
	}

	if err := find(&today, 0, "created_at >= ?", todayStart); err != nil {
		return nil, nil, nil, nil, err
	}
	if err := find(&yesterday, 0, "created_at >= ? AND created_at < ?", yesterdayStart, todayStart); err != nil {
		return nil, nil, nil, nil, err
	}
	// This week, excluding today and yesterday
	if err := find(&thisWeek, 0, "created_at >= ? AND created_at < ?", weekStart, yesterdayStart); err != nil {
		return nil, nil, nil, nil, err
	}
	if err := find(&older, 50, "created_at < ?", weekStart); err != nil {
		return nil, nil, nil, nil, err
	}
	return today, yesterday, thisWeek, older, nil
}

// GetDelivery returns gorm.ErrRecordNotFound when userID never received notificationID.
func (r *postgresNotificationRepository) GetDelivery(ctx context.Context, userID, notificationID uint) (*models.UserNotification, error) {
	var row models.UserNotification
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND notification_id = ?", userID, notificationID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *postgresNotificationRepository) GetUnreadCount(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.deliveries(ctx, userID).Where("is_read = ?", false).Count(&count).Error
	return count, err
}

func (r *postgresNotificationRepository) MarkAsRead(ctx context.Context, userID uint, notificationIDs []uint) error {
	if len(notificationIDs) == 0 {
		return nil
	}
	return r.deliveries(ctx, userID).
		Where("notification_id IN ? AND is_read = ?", notificationIDs, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now()}).Error
}

func (r *postgresNotificationRepository) MarkAllAsRead(ctx context.Context, userID uint) (int64, error) {
	res := r.deliveries(ctx, userID).
		Where("is_read = ?", false).
		Updates(map[string]interface{}{"is_read": true, "read_at": time.Now()})
	return res.RowsAffected, res.Error
}
