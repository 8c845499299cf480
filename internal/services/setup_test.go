package services

import (
	"context"
	"errors"
	"testing"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/internal/testdb"
	"gorm.io/gorm"
)

type testEnv struct {
	db            *gorm.DB
	posts         *testdb.PostStore
	notifications *NotificationService
	relations     *RelationService
	users         *UserService
	postSvc       *PostService
	commentSvc    *CommentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testdb.New(t)
	posts := testdb.NewPostStore()

	userRepo := repositories.NewPostgresUserRepository(db)
	relationRepo := repositories.NewPostgresRelationRepository(db)
	notificationRepo := repositories.NewPostgresNotificationRepository(db)
	likeRepo := repositories.NewPostgresLikeRepository(db)
	commentRepo := repositories.NewPostgresCommentRepository(db)
	commentLikeRepo := repositories.NewPostgresCommentLikeRepository(db)

	notifications := NewNotificationService(notificationRepo, relationRepo, userRepo, nil, nil)
	relations := NewRelationService(db, userRepo, relationRepo, notifications)
	return &testEnv{
		db:            db,
		posts:         posts,
		notifications: notifications,
		relations:     relations,
		users:         NewUserService(db, userRepo, relationRepo, relations, notifications),
		postSvc:       NewPostService(db, posts, userRepo, likeRepo, commentRepo, relations, notifications),
		commentSvc:    NewCommentService(db, commentRepo, commentLikeRepo, posts, userRepo, notifications),
	}
}

func (e *testEnv) user(t *testing.T, username string, private bool) *models.User {
	t.Helper()
	return testdb.CreateUser(t, e.db, username, private)
}

func (e *testEnv) reload(t *testing.T, id uint) *models.User {
	t.Helper()
	return testdb.ReloadUser(t, e.db, id)
}

// feed returns every notification delivered to userID without acknowledging it.
func (e *testEnv) feed(t *testing.T, userID uint) []NotificationItem {
	t.Helper()
	items, _, err := e.notifications.List(context.Background(), userID, 1, 100)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	return items
}

func countType(items []NotificationItem, typ models.NotificationType) int {
	n := 0
	for _, item := range items {
		if item.Type == typ {
			n++
		}
	}
	return n
}

func assertKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v error, got %v", kind, err)
	}
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
