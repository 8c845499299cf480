package repositories

import (
	"context"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"gorm.io/gorm"
)

// RelationDirection selects which side of an edge a listing is about.
type RelationDirection int

const (
	// Incoming lists the followers of UserID.
	Incoming RelationDirection = iota
	// Outgoing lists the users UserID follows.
	Outgoing
)

// RelationQuery filters the active relation rows of one user.
type RelationQuery struct {
	UserID    uint
	Direction RelationDirection
	Type      models.RelationType
	Statuses  []models.RelationStatus
}

// RelationRepository stores the append-only history of follow, close-friend and block edges.
type RelationRepository interface {
	WithTx(tx *gorm.DB) RelationRepository
	FindActive(ctx context.Context, followerID, followingID uint, typ models.RelationType) (*models.UserRelation, error)
	Create(ctx context.Context, rel *models.UserRelation) error
	Retire(ctx context.Context, rel *models.UserRelation) error
	Replace(ctx context.Context, current, next *models.UserRelation) error
	History(ctx context.Context, a, b uint) ([]models.UserRelation, error)
	ListUsers(ctx context.Context, q RelationQuery, offset, limit int) ([]models.User, int64, error)
	CounterpartIDs(ctx context.Context, q RelationQuery) ([]uint, error)
	IsBlockedEitherWay(ctx context.Context, a, b uint) (bool, error)
	ActiveTouching(ctx context.Context, userID uint) ([]models.UserRelation, error)
}

// PostgresRelationRepository implements RelationRepository for PostgreSQL
type PostgresRelationRepository struct {
	db *gorm.DB
}

// NewPostgresRelationRepository creates a new PostgresRelationRepository
func NewPostgresRelationRepository(db *gorm.DB) *PostgresRelationRepository {
	return &PostgresRelationRepository{db: db}
}

func (r *PostgresRelationRepository) WithTx(tx *gorm.DB) RelationRepository {
	return &PostgresRelationRepository{db: tx}
}

// FindActive returns the current row of the edge, or nil when the edge has none.
func (r *PostgresRelationRepository) FindActive(ctx context.Context, followerID, followingID uint, typ models.RelationType) (*models.UserRelation, error) {
	var rels []models.UserRelation
	err := r.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ? AND relation_type = ?", followerID, followingID, typ).
		Order("id DESC").
		Limit(1).
		Find(&rels).Error
	if err != nil {
		return nil, err
	}
	if len(rels) == 0 {
		return nil, nil
	}
	return &rels[0], nil
}

func (r *PostgresRelationRepository) Create(ctx context.Context, rel *models.UserRelation) error {
	return r.db.WithContext(ctx).Create(rel).Error
}

// Retire soft-deletes rel, ending it as the current state of its edge.
func (r *PostgresRelationRepository) Retire(ctx context.Context, rel *models.UserRelation) error {
	return r.db.WithContext(ctx).Delete(rel).Error
}

// Replace retires current (when set) and appends next as the new current row.
func (r *PostgresRelationRepository) Replace(ctx context.Context, current, next *models.UserRelation) error {
	if current != nil {
		if err := r.Retire(ctx, current); err != nil {
			return err
		}
	}
	return r.Create(ctx, next)
}

// History returns every row ever written between a and b, in both directions, oldest first.
func (r *PostgresRelationRepository) History(ctx context.Context, a, b uint) ([]models.UserRelation, error) {
	var rels []models.UserRelation
	err := r.db.WithContext(ctx).Unscoped().
		Where("(follower_id = ? AND following_id = ?) OR (follower_id = ? AND following_id = ?)", a, b, b, a).
		Order("id").
		Find(&rels).Error
	return rels, err
}

func (r *PostgresRelationRepository) edges(ctx context.Context, q RelationQuery) *gorm.DB {
	own, other := "following_id", "follower_id"
	if q.Direction == Outgoing {
		own, other = "follower_id", "following_id"
	}
	scope := r.db.WithContext(ctx).Model(&models.UserRelation{}).
		Select(other).
		Where(own+" = ? AND relation_type = ?", q.UserID, q.Type)
	if len(q.Statuses) > 0 {
		scope = scope.Where("status IN ?", q.Statuses)
	}
	return scope
}

// ListUsers pages through the users on the other side of the matching edges, by username.
func (r *PostgresRelationRepository) ListUsers(ctx context.Context, q RelationQuery, offset, limit int) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	scope := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN (?)", r.edges(ctx, q)).
		Session(&gorm.Session{})
	if err := scope.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := scope.Order("username").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// CounterpartIDs returns the IDs on the other side of every matching edge.
func (r *PostgresRelationRepository) CounterpartIDs(ctx context.Context, q RelationQuery) ([]uint, error) {
	var ids []uint
	err := r.edges(ctx, q).Pluck(otherColumn(q.Direction), &ids).Error
	return ids, err
}

func otherColumn(d RelationDirection) string {
	if d == Outgoing {
		return "following_id"
	}
	return "follower_id"
}

func (r *PostgresRelationRepository) IsBlockedEitherWay(ctx context.Context, a, b uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserRelation{}).
		Where("relation_type = ?", models.RelationBlock).
		Where("(follower_id = ? AND following_id = ?) OR (follower_id = ? AND following_id = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// ActiveTouching returns the current rows of every edge that starts or ends at userID.
func (r *PostgresRelationRepository) ActiveTouching(ctx context.Context, userID uint) ([]models.UserRelation, error) {
	var rels []models.UserRelation
	err := r.db.WithContext(ctx).
		Where("follower_id = ? OR following_id = ?", userID, userID).
		Order("id").
		Find(&rels).Error
	return rels, err
}
