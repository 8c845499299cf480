package repositories_test

import (
	"context"
	"reflect"
	"sort"
	"testing"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/internal/testdb"
)

func TestNotificationDeliveriesAndRetraction(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	repo := repositories.NewPostgresNotificationRepository(db)

	n := &models.Notification{RecipientID: 2, SenderID: 1, Type: models.NotificationLikePost, PostID: "p1", Message: "liked"}
	if err := repo.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create notification: %v", err)
	}
	deliveries := []models.UserNotification{{UserID: 2, NotificationID: n.ID}, {UserID: 3, NotificationID: n.ID}}
	if err := repo.CreateDeliveries(ctx, deliveries); err != nil {
		t.Fatalf("create deliveries: %v", err)
	}
	// re-delivering is a no-op
	if err := repo.CreateDeliveries(ctx, []models.UserNotification{{UserID: 2, NotificationID: n.ID}}); err != nil {
		t.Fatalf("duplicate delivery: %v", err)
	}

	rows, total, err := repo.GetByUserID(ctx, 2, 0, 10)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if total != 1 || rows[0].Notification.Message != "liked" {
		t.Fatalf("expected one preloaded delivery, got %+v", rows)
	}

	if err := repo.MarkAsRead(ctx, 2, []uint{n.ID}); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	for user, want := range map[uint]int64{2: 0, 3: 1} {
		got, err := repo.GetUnreadCount(ctx, user)
		if err != nil {
			t.Fatalf("unread: %v", err)
		}
		if got != want {
			t.Errorf("user %d: expected %d unread, got %d", user, want, got)
		}
	}

	// a query for a different post matches nothing
	touched, err := repo.DeleteMatching(ctx, repositories.NotificationQuery{Type: models.NotificationLikePost, SenderID: 1, PostID: "p2"})
	if err != nil || touched != nil {
		t.Fatalf("expected no match, got %v, %v", touched, err)
	}

	touched, err = repo.DeleteMatching(ctx, repositories.NotificationQuery{Type: models.NotificationLikePost, SenderID: 1, PostID: "p1"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	sort.Slice(touched, func(i, j int) bool { return touched[i] < touched[j] })
	if !reflect.DeepEqual(touched, []uint{2, 3}) {
		t.Errorf("expected users 2 and 3 touched, got %v", touched)
	}
	if _, err := repo.GetDelivery(ctx, 3, n.ID); err == nil {
		t.Error("expected delivery to be gone")
	}
}
