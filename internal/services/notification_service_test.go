package services

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
)

func TestLikeFansOutToSenderFollowers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)
	carol := env.user(t, "carol", false)
	dave := env.user(t, "dave", false)

	_, err := env.relations.Follow(ctx, carol.ID, "bob")
	mustNoErr(t, err)
	// alice is both the direct recipient and a follower of bob
	_, err = env.relations.Follow(ctx, alice.ID, "bob")
	mustNoErr(t, err)

	post, err := env.postSvc.CreatePost(ctx, alice.ID, models.CreatePostRequest{Content: "sunset"})
	mustNoErr(t, err)
	_, err = env.postSvc.LikePost(ctx, bob.ID, post.ID.Hex())
	mustNoErr(t, err)

	tests := []struct {
		name string
		user *models.User
		want int
	}{
		{"recipient", alice, 1},
		{"follower of sender", carol, 1},
		{"sender", bob, 0},
		{"unrelated", dave, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countType(env.feed(t, tt.user.ID), models.NotificationLikePost); got != tt.want {
				t.Errorf("expected %d likePost deliveries, got %d", tt.want, got)
			}
		})
	}
}

func TestBlockSuppressesNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	post, err := env.postSvc.CreatePost(ctx, alice.ID, models.CreatePostRequest{Content: "hi"})
	mustNoErr(t, err)
	_, err = env.relations.Block(ctx, alice.ID, "bob")
	mustNoErr(t, err)

	_, err = env.postSvc.LikePost(ctx, bob.ID, post.ID.Hex())
	mustNoErr(t, err)
	if items := env.feed(t, alice.ID); len(items) != 0 {
		t.Errorf("expected no notifications from a blocked user, got %+v", items)
	}
}

func TestFetchAndAcknowledgeMarksReturnedPage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)
	carol := env.user(t, "carol", false)

	_, err := env.relations.Follow(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	_, err = env.relations.Follow(ctx, carol.ID, "alice")
	mustNoErr(t, err)

	// List is a pure read
	for i := 0; i < 2; i++ {
		items, total, err := env.notifications.List(ctx, alice.ID, 1, 10)
		mustNoErr(t, err)
		if total != 2 || len(items) != 2 {
			t.Fatalf("expected 2 notifications, got %d (total %d)", len(items), total)
		}
		for _, item := range items {
			if item.IsRead {
				t.Fatalf("List must not mark notifications read")
			}
		}
	}

	items, _, err := env.notifications.FetchAndAcknowledge(ctx, alice.ID, 1, 1)
	mustNoErr(t, err)
	if len(items) != 1 || items[0].IsRead {
		t.Fatalf("expected one entry reported unread, got %+v", items)
	}
	if items[0].Sender == nil || items[0].Sender.Username != "carol" {
		t.Errorf("expected newest entry from carol, got %+v", items[0].Sender)
	}

	unread, err := env.notifications.UnreadCount(ctx, alice.ID)
	mustNoErr(t, err)
	if unread != 1 {
		t.Errorf("expected 1 unread after acknowledging one, got %d", unread)
	}

	items, _, err = env.notifications.FetchAndAcknowledge(ctx, alice.ID, 1, 1)
	mustNoErr(t, err)
	if !items[0].IsRead || items[0].ReadAt == nil {
		t.Errorf("expected the acknowledged entry to come back read, got %+v", items[0])
	}
}

func TestMarkReadIsPerRecipient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)
	carol := env.user(t, "carol", false)

	_, err := env.relations.Follow(ctx, carol.ID, "bob")
	mustNoErr(t, err)
	post, err := env.postSvc.CreatePost(ctx, alice.ID, models.CreatePostRequest{Content: "hi"})
	mustNoErr(t, err)
	_, err = env.postSvc.LikePost(ctx, bob.ID, post.ID.Hex())
	mustNoErr(t, err)

	aliceFeed := env.feed(t, alice.ID)
	if len(aliceFeed) != 1 {
		t.Fatalf("expected 1 notification for alice, got %d", len(aliceFeed))
	}
	id := aliceFeed[0].ID

	assertKind(t, env.notifications.MarkRead(ctx, bob.ID, id), ErrNotFound)
	mustNoErr(t, env.notifications.MarkRead(ctx, alice.ID, id))

	if !env.feed(t, alice.ID)[0].IsRead {
		t.Errorf("expected alice's delivery read")
	}
	var carolLike *NotificationItem
	for _, item := range env.feed(t, carol.ID) {
		if item.ID == id {
			item := item
			carolLike = &item
		}
	}
	if carolLike == nil || carolLike.IsRead {
		t.Errorf("expected carol's delivery of the same notification to stay unread, got %+v", carolLike)
	}

	n, err := env.notifications.MarkAllRead(ctx, carol.ID)
	mustNoErr(t, err)
	if n != 1 {
		t.Errorf("expected 1 delivery marked read for carol, got %d", n)
	}
	unread, err := env.notifications.UnreadCount(ctx, carol.ID)
	mustNoErr(t, err)
	if unread != 0 {
		t.Errorf("expected 0 unread for carol, got %d", unread)
	}
}

func TestGroupedBucketsByAge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	_, err := env.relations.Follow(ctx, bob.ID, "alice")
	mustNoErr(t, err)

	env.notifications.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	grouped, err := env.notifications.Grouped(ctx, alice.ID)
	mustNoErr(t, err)
	if len(grouped.Today) != 0 || len(grouped.Yesterday) != 0 || len(grouped.Older) != 0 {
		t.Errorf("expected only this-week entries, got %+v", grouped)
	}
	if len(grouped.ThisWeek) != 1 || grouped.ThisWeek[0].Type != models.NotificationFollowed {
		t.Errorf("expected the follow in this week, got %+v", grouped.ThisWeek)
	}
}

type recordingPusher struct {
	pushed chan map[string]string
}

func (p *recordingPusher) Push(_ context.Context, token, _, _ string, data map[string]string) error {
	data["token"] = token
	p.pushed <- data
	return nil
}

func TestDeliverPushesAfterCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)
	mustNoErr(t, env.users.SetDeviceToken(ctx, alice.ID, "device-1"))

	pusher := &recordingPusher{pushed: make(chan map[string]string, 1)}
	env.notifications.pusher = pusher

	_, err := env.relations.Follow(ctx, bob.ID, "alice")
	mustNoErr(t, err)

	select {
	case data := <-pusher.pushed:
		if data["token"] != "device-1" || data["type"] != string(models.NotificationFollowed) {
			t.Errorf("unexpected push payload %v", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for push")
	}
}

func TestEmitSkipsSelfAndMissingRecipients(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", false)

	ctx := context.Background()
	if n := env.notifications.Emit(ctx, env.db, Event{Type: models.NotificationLikePost, Sender: alice, RecipientID: alice.ID}); n != nil {
		t.Errorf("expected no notification to self, got %+v", n)
	}
	if n := env.notifications.Emit(ctx, env.db, Event{Type: models.NotificationLikePost, Sender: alice}); n != nil {
		t.Errorf("expected no notification without recipient, got %+v", n)
	}
}

func TestUniqueIDs(t *testing.T) {
	got := uniqueIDs([]uint{3, 1, 3, 2, 1, 5}, 2)
	want := []uint{3, 1, 5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("uniqueIDs = %v, want %v", got, want)
	}
}

func TestFanoutFailureDoesNotFailFollow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	mustNoErr(t, env.db.Exec("DROP TABLE user_notifications").Error)

	res, err := env.relations.Follow(ctx, alice.ID, "bob")
	mustNoErr(t, err)
	if res.Status != models.FollowStatusFollowed {
		t.Fatalf("expected followed, got %s", res.Status)
	}
	if got := env.reload(t, bob.ID).FollowerCount; got != 1 {
		t.Errorf("expected bob follower_count 1, got %d", got)
	}
	if got := env.reload(t, alice.ID).FollowingCount; got != 1 {
		t.Errorf("expected alice following_count 1, got %d", got)
	}

	// the savepoint takes the half-written notification with it
	var notifications int64
	mustNoErr(t, env.db.Model(&models.Notification{}).Count(&notifications).Error)
	if notifications != 0 {
		t.Errorf("expected no notification rows, got %d", notifications)
	}
}
