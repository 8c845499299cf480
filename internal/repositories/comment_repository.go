package repositories

import (
	"context"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"gorm.io/gorm"
)

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	WithTx(tx *gorm.DB) CommentRepository
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetCommentByID(ctx context.Context, id uint) (*models.Comment, error)
	GetCommentsByPostID(ctx context.Context, postID string, offset, limit int) ([]models.Comment, int64, error)
	GetReplies(ctx context.Context, parentID uint) ([]models.Comment, error)
	UpdateComment(ctx context.Context, comment *models.Comment) error
	DeleteComment(ctx context.Context, id uint) (int64, error)
	DeleteCommentsByPostID(ctx context.Context, postID string) error
}

// PostgresCommentRepository implements CommentRepository for PostgreSQL
type PostgresCommentRepository struct {
	db *gorm.DB
}

// NewPostgresCommentRepository creates a new PostgresCommentRepository
func NewPostgresCommentRepository(db *gorm.DB) *PostgresCommentRepository {
	return &PostgresCommentRepository{db: db}
}

func (r *PostgresCommentRepository) WithTx(tx *gorm.DB) CommentRepository {
	return &PostgresCommentRepository{db: tx}
}

// CreateComment creates a new comment in PostgreSQL
func (r *PostgresCommentRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

// GetCommentByID retrieves a comment by ID from PostgreSQL
func (r *PostgresCommentRepository) GetCommentByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		return nil, err
	}
	return &comment, nil
}

// GetCommentsByPostID pages through the top-level comments of a post, oldest first
func (r *PostgresCommentRepository) GetCommentsByPostID(ctx context.Context, postID string, offset, limit int) ([]models.Comment, int64, error) {
	var comments []models.Comment
	var total int64
	scope := r.db.WithContext(ctx).Model(&models.Comment{}).
		Where("post_id = ? AND parent_id IS NULL", postID).
		Session(&gorm.Session{})
	if err := scope.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := scope.Order("created_at, id").Offset(offset).Limit(limit).Find(&comments).Error; err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

func (r *PostgresCommentRepository) GetReplies(ctx context.Context, parentID uint) ([]models.Comment, error) {
	var comments []models.Comment
	err := r.db.WithContext(ctx).Where("parent_id = ?", parentID).Order("created_at, id").Find(&comments).Error
	return comments, err
}

// UpdateComment writes the content of an existing comment
func (r *PostgresCommentRepository) UpdateComment(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Model(comment).Select("content").Updates(comment).Error
}

// DeleteComment soft-deletes a comment and its replies, returning how many rows went
func (r *PostgresCommentRepository) DeleteComment(ctx context.Context, id uint) (int64, error) {
	db := r.db.WithContext(ctx)
	ids := db.Model(&models.Comment{}).Select("id").Where("id = ? OR parent_id = ?", id, id)
	if err := db.Where("comment_id IN (?)", ids).Delete(&models.CommentLike{}).Error; err != nil {
		return 0, err
	}
	res := db.Where("id = ? OR parent_id = ?", id, id).Delete(&models.Comment{})
	return res.RowsAffected, res.Error
}

func (r *PostgresCommentRepository) DeleteCommentsByPostID(ctx context.Context, postID string) error {
	db := r.db.WithContext(ctx)
	ids := db.Model(&models.Comment{}).Select("id").Where("post_id = ?", postID)
	if err := db.Where("comment_id IN (?)", ids).Delete(&models.CommentLike{}).Error; err != nil {
		return err
	}
	return db.Where("post_id = ?", postID).Delete(&models.Comment{}).Error
}
