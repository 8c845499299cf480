package repositories

import (
	"context"
	"errors"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"gorm.io/gorm"
)

var ErrCommentLikeNotFound = errors.New("comment like not found")

// CommentLikeRepository stores likes on comments. One row per (comment, user).
type CommentLikeRepository interface {
	CreateCommentLike(ctx context.Context, like *models.CommentLike) error
	DeleteCommentLike(ctx context.Context, commentID, userID uint) error
	HasUserLikedComment(ctx context.Context, commentID, userID uint) (bool, error)
	GetLikesCount(ctx context.Context, commentID uint) (int64, error)
	LikesCounts(ctx context.Context, commentIDs []uint) (map[uint]int64, error)
}

type PostgresCommentLikeRepository struct {
	db *gorm.DB
}

func NewPostgresCommentLikeRepository(db *gorm.DB) *PostgresCommentLikeRepository {
	return &PostgresCommentLikeRepository{db: db}
}

// CreateCommentLike returns gorm.ErrDuplicatedKey when the user already liked the comment.
func (r *PostgresCommentLikeRepository) CreateCommentLike(ctx context.Context, like *models.CommentLike) error {
	return r.db.WithContext(ctx).Create(like).Error
}

func (r *PostgresCommentLikeRepository) DeleteCommentLike(ctx context.Context, commentID, userID uint) error {
	res := r.db.WithContext(ctx).
		Where("comment_id = ? AND user_id = ?", commentID, userID).
		Delete(&models.CommentLike{})
	switch {
	case res.Error != nil:
		return res.Error
	case res.RowsAffected == 0:
		return ErrCommentLikeNotFound
	}
	return nil
}

func (r *PostgresCommentLikeRepository) HasUserLikedComment(ctx context.Context, commentID, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CommentLike{}).
		Where("comment_id = ? AND user_id = ?", commentID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *PostgresCommentLikeRepository) GetLikesCount(ctx context.Context, commentID uint) (int64, error) {
	counts, err := r.LikesCounts(ctx, []uint{commentID})
	return counts[commentID], err
}

// LikesCounts returns the like count of each comment; comments without likes are absent.
func (r *PostgresCommentLikeRepository) LikesCounts(ctx context.Context, commentIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(commentIDs))
	if len(commentIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		CommentID uint
		Total     int64
	}
	err := r.db.WithContext(ctx).Model(&models.CommentLike{}).
		Select("comment_id, COUNT(*) AS total").
		Where("comment_id IN ?", commentIDs).
		Group("comment_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.CommentID] = row.Total
	}
	return counts, nil
}
