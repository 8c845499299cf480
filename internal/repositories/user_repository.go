package repositories

import (
	"context"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// profileColumns are the only columns a profile update may write. Counters are owned by
// relation transitions and post writes.
var profileColumns = []string{"name", "email", "bio", "is_private"}

// UserRepository defines the interface for user data operations
type UserRepository interface {
	WithTx(tx *gorm.DB) UserRepository
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*models.User, error)
	GetUsersByIDs(ctx context.Context, ids []uint) ([]models.User, error)
	GetUsersByUsernames(ctx context.Context, usernames []string) ([]models.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	LockUsers(ctx context.Context, ids ...uint) ([]models.User, error)
	UpdateProfile(ctx context.Context, user *models.User) error
	UpdateDeviceToken(ctx context.Context, id uint, token string) error
	AdjustFollowCounts(ctx context.Context, followerID, followingID uint, delta int) error
	AdjustPostCount(ctx context.Context, id uint, delta int) error
	DeleteUser(ctx context.Context, id uint) error
	SearchUsers(ctx context.Context, query string, offset, limit int) ([]models.User, int64, error)
}

// PostgresUserRepository implements UserRepository for PostgreSQL
type PostgresUserRepository struct {
	db *gorm.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository
func NewPostgresUserRepository(db *gorm.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *PostgresUserRepository) WithTx(tx *gorm.DB) UserRepository {
	return &PostgresUserRepository{db: tx}
}

// CreateUser creates a new user in PostgreSQL
func (r *PostgresUserRepository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetUserByID retrieves a user by ID from PostgreSQL
func (r *PostgresUserRepository) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *PostgresUserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByIdentifier matches either the username or the email.
func (r *PostgresUserRepository) GetUserByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("username = ? OR LOWER(email) = LOWER(?)", identifier, identifier).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByFirebaseUID retrieves a user by Firebase UID from PostgreSQL
func (r *PostgresUserRepository) GetUserByFirebaseUID(ctx context.Context, firebaseUID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("firebase_uid = ?", firebaseUID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *PostgresUserRepository) GetUsersByIDs(ctx context.Context, ids []uint) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *PostgresUserRepository) GetUsersByUsernames(ctx context.Context, usernames []string) ([]models.User, error) {
	var users []models.User
	if len(usernames) == 0 {
		return users, nil
	}
	err := r.db.WithContext(ctx).Where("username IN ?", usernames).Find(&users).Error
	return users, err
}

// ExistsByUsernameOrEmail also sees soft-deleted accounts, whose unique keys are still taken.
func (r *PostgresUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Unscoped().Model(&models.User{}).
		Where("username = ? OR LOWER(email) = LOWER(?)", username, email).
		Count(&count).Error
	return count > 0, err
}

// LockUsers selects the given users FOR UPDATE in ascending ID order, so two
// transitions on the same pair always acquire the locks in the same sequence.
func (r *PostgresUserRepository) LockUsers(ctx context.Context, ids ...uint) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&users).Error
	return users, err
}

// UpdateProfile writes the profile columns of user.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Model(user).Select(profileColumns).Updates(user).Error
}

func (r *PostgresUserRepository) UpdateDeviceToken(ctx context.Context, id uint, token string) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("fcm_token", token).Error
}

// AdjustFollowCounts moves following_count of followerID and follower_count of
// followingID by delta.
func (r *PostgresUserRepository) AdjustFollowCounts(ctx context.Context, followerID, followingID uint, delta int) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Where("id = ?", followerID).
		UpdateColumn("following_count", gorm.Expr("following_count + ?", delta)).Error; err != nil {
		return err
	}
	return db.Model(&models.User{}).Where("id = ?", followingID).
		UpdateColumn("follower_count", gorm.Expr("follower_count + ?", delta)).Error
}

func (r *PostgresUserRepository) AdjustPostCount(ctx context.Context, id uint, delta int) error {
	return r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		UpdateColumn("post_count", gorm.Expr("post_count + ?", delta)).Error
}

// DeleteUser soft-deletes a user by ID
func (r *PostgresUserRepository) DeleteUser(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.User{}, id).Error
}

// SearchUsers searches for users by username or name
func (r *PostgresUserRepository) SearchUsers(ctx context.Context, query string, offset, limit int) ([]models.User, int64, error) {
	var users []models.User
	var total int64
	pattern := "%" + query + "%"
	scope := r.db.WithContext(ctx).Model(&models.User{}).
		Where("LOWER(username) LIKE LOWER(?) OR LOWER(name) LIKE LOWER(?)", pattern, pattern).
		Session(&gorm.Session{})
	if err := scope.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := scope.Order("follower_count DESC, id").Offset(offset).Limit(limit).Find(&users).Error
	return users, total, err
}
