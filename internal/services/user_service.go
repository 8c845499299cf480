package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/monitoring"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Profile is a user as seen by another user.
type Profile struct {
	*models.User
	FollowStatus models.FollowStatus `json:"follow_status,omitempty"`
}

// FirebaseIdentity is the verified subset of a Firebase ID token.
type FirebaseIdentity struct {
	UID   string
	Email string
	Name  string
}

// UserService is the user directory: accounts, credentials and profiles.
type UserService struct {
	db            *gorm.DB
	users         repositories.UserRepository
	relations     *RelationService
	relationRepo  repositories.RelationRepository
	notifications *NotificationService
}

func NewUserService(db *gorm.DB, users repositories.UserRepository, relationRepo repositories.RelationRepository, relations *RelationService, notifications *NotificationService) *UserService {
	return &UserService{
		db:            db,
		users:         users,
		relations:     relations,
		relationRepo:  relationRepo,
		notifications: notifications,
	}
}

// Register creates a local account with a bcrypt password hash.
func (s *UserService) Register(ctx context.Context, req models.CreateLocalUserRequest) (*models.User, error) {
	username := NormalizeUsername(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))

	taken, err := s.users.ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, duplicate("username or email already in use")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		Username: username,
		Email:    email,
		Name:     req.Name,
		Password: string(hashed),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, duplicate("username or email already in use")
		}
		return nil, err
	}
	return user, nil
}

// Authenticate checks a username or email against its password.
func (s *UserService) Authenticate(ctx context.Context, identifier, password string) (*models.User, error) {
	user, err := s.users.GetUserByIdentifier(ctx, NormalizeUsername(identifier))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			monitoring.LoginFailure.WithLabelValues("unknown_user").Inc()
			return nil, unauthorized("invalid credentials")
		}
		return nil, err
	}
	if user.Password == "" {
		monitoring.LoginFailure.WithLabelValues("no_password").Inc()
		return nil, unauthorized("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		monitoring.LoginFailure.WithLabelValues("wrong_password").Inc()
		return nil, unauthorized("invalid credentials")
	}
	return user, nil
}

var usernameCleaner = regexp.MustCompile(`[^a-z0-9_.]`)

// FirebaseLogin finds the account of a verified Firebase identity, linking it by email or
// creating it on first sight.
func (s *UserService) FirebaseLogin(ctx context.Context, id FirebaseIdentity) (*models.User, error) {
	user, err := s.users.GetUserByFirebaseUID(ctx, id.UID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(id.Email))
	if email == "" {
		return nil, unauthorized("firebase account has no email")
	}
	uid := id.UID

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)
		existing, err := users.GetUserByIdentifier(ctx, email)
		switch {
		case err == nil:
			existing.FirebaseUID = &uid
			if err := tx.Model(existing).Update("firebase_uid", uid).Error; err != nil {
				return err
			}
			user = existing
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		username, err := s.freeUsername(ctx, users, email, uid)
		if err != nil {
			return err
		}
		user = &models.User{Username: username, Email: email, Name: id.Name, FirebaseUID: &uid}
		return users.CreateUser(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// freeUsername derives an unused username from the email's local part.
func (s *UserService) freeUsername(ctx context.Context, users repositories.UserRepository, email, uid string) (string, error) {
	base := usernameCleaner.ReplaceAllString(strings.ToLower(strings.SplitN(email, "@", 2)[0]), "")
	if len(base) < 3 {
		base += "user"
	}
	if len(base) > 20 {
		base = base[:20]
	}
	suffix := strings.ToLower(usernameCleaner.ReplaceAllString(strings.ToLower(uid), ""))
	candidates := []string{base}
	for n := 4; n <= len(suffix) && n <= 9; n++ {
		candidates = append(candidates, base+"_"+suffix[:n])
	}
	for _, name := range candidates {
		taken, err := users.ExistsByUsernameOrEmail(ctx, name, "")
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
	}
	return "", duplicate("could not derive a free username")
}

func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user not found")
		}
		return nil, err
	}
	return user, nil
}

// GetProfile returns username's profile with the viewer's follow status towards it.
func (s *UserService) GetProfile(ctx context.Context, viewerID uint, username string) (*Profile, error) {
	user, err := findUser(ctx, s.users, username)
	if err != nil {
		return nil, err
	}
	profile := &Profile{User: user}
	if user.ID == viewerID {
		return profile, nil
	}
	status, err := s.relations.GetFollowStatus(ctx, viewerID, user.Username)
	if err != nil {
		return nil, err
	}
	profile.FollowStatus = status
	return profile, nil
}

// UpdateProfile writes the non-empty fields of req to the user's profile.
func (s *UserService) UpdateProfile(ctx context.Context, id uint, req models.UpdateUserRequest) (*models.User, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Email != "" {
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if email != user.Email {
			taken, err := s.users.ExistsByUsernameOrEmail(ctx, "", email)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, duplicate("email already in use")
			}
			user.Email = email
		}
	}
	if req.Name != "" {
		user.Name = req.Name
	}
	if req.Bio != "" {
		user.Bio = req.Bio
	}
	if req.IsPrivate != nil {
		user.IsPrivate = *req.IsPrivate
	}
	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) SetDeviceToken(ctx context.Context, id uint, token string) error {
	return s.users.UpdateDeviceToken(ctx, id, token)
}

// DeleteAccount soft-deletes the user. Every live relation row touching the user is retired,
// the counters of the other side are repaired and the user's sent notifications are removed.
func (s *UserService) DeleteAccount(ctx context.Context, id uint) error {
	return runInTx(ctx, s.db, s.notifications, func(u *unitOfWork) error {
		users := s.users.WithTx(u.tx)
		locked, err := users.LockUsers(u.ctx, id)
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return notFound("user not found")
		}

		rels := s.relationRepo.WithTx(u.tx)
		touching, err := rels.ActiveTouching(u.ctx, id)
		if err != nil {
			return err
		}
		for i := range touching {
			rel := &touching[i]
			if rel.Type == models.RelationFollow && rel.Status.IsActiveFollow() {
				if err := users.AdjustFollowCounts(u.ctx, rel.FollowerID, rel.FollowingID, -1); err != nil {
					return err
				}
			}
			if err := rels.Retire(u.ctx, rel); err != nil {
				return err
			}
		}

		u.retract(repositories.NotificationQuery{SenderID: id})
		return users.DeleteUser(u.ctx, id)
	})
}

// Search pages through users whose username or name contains query.
func (s *UserService) Search(ctx context.Context, query string, page, limit int) ([]models.UserCompact, int64, error) {
	query = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(query), "@"))
	if query == "" {
		return nil, 0, badRequest("search query is required")
	}
	users, total, err := s.users.SearchUsers(ctx, query, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.UserCompact, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToCompact())
	}
	return out, total, nil
}
