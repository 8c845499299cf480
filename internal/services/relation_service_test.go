package services

import (
	"context"
	"testing"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
)

func TestFollowPublicAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	res, err := env.relations.Follow(ctx, alice.ID, "bob")
	mustNoErr(t, err)
	if res.Status != models.FollowStatusFollowed {
		t.Fatalf("expected status followed, got %s", res.Status)
	}

	status, err := env.relations.GetFollowStatus(ctx, alice.ID, "@Bob")
	mustNoErr(t, err)
	if status != models.FollowStatusFollowed {
		t.Errorf("expected follow status followed, got %s", status)
	}
	if got := env.reload(t, bob.ID).FollowerCount; got != 1 {
		t.Errorf("expected bob follower_count 1, got %d", got)
	}
	if got := env.reload(t, alice.ID).FollowingCount; got != 1 {
		t.Errorf("expected alice following_count 1, got %d", got)
	}
	if got := countType(env.feed(t, bob.ID), models.NotificationFollowed); got != 1 {
		t.Errorf("expected 1 followed notification for bob, got %d", got)
	}
}

func TestFollowTwiceIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	_, err := env.relations.Follow(ctx, alice.ID, "bob")
	mustNoErr(t, err)
	_, err = env.relations.Follow(ctx, alice.ID, "bob")
	assertKind(t, err, ErrBadRequest)

	if got := env.reload(t, bob.ID).FollowerCount; got != 1 {
		t.Errorf("expected follower_count to stay at 1, got %d", got)
	}
}

func TestFollowSelfAndUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)

	_, err := env.relations.Follow(ctx, alice.ID, "alice")
	assertKind(t, err, ErrBadRequest)

	_, err = env.relations.Follow(ctx, alice.ID, "nobody")
	assertKind(t, err, ErrNotFound)
}

func TestUnfollowNeverFollowed(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice", false)
	env.user(t, "bob", false)

	_, err := env.relations.Unfollow(context.Background(), alice.ID, "bob")
	assertKind(t, err, ErrBadRequest)
}

func TestFollowThenUnfollowRestoresCounters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	_, err := env.relations.Follow(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	res, err := env.relations.Unfollow(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	if res.Status != models.FollowStatusUnfollowed {
		t.Errorf("expected unfollowed, got %s", res.Status)
	}

	status, err := env.relations.GetFollowStatus(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	if status != models.FollowStatusUnfollowed {
		t.Errorf("expected follow status unfollowed, got %s", status)
	}
	if got := env.reload(t, alice.ID).FollowerCount; got != 0 {
		t.Errorf("expected alice follower_count 0, got %d", got)
	}
	if got := env.reload(t, bob.ID).FollowingCount; got != 0 {
		t.Errorf("expected bob following_count 0, got %d", got)
	}

	history, err := env.relations.History(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	if len(history) != 2 {
		t.Fatalf("expected 2 history rows, got %d", len(history))
	}
	if history[0].Status != models.StatusFollowed || !history[0].DeletedAt.Valid {
		t.Errorf("expected retired followed row first, got %+v", history[0])
	}
	if history[1].Status != models.StatusUnfollowed || history[1].DeletedAt.Valid {
		t.Errorf("expected current unfollowed row last, got %+v", history[1])
	}

	// following again is allowed from unfollowed
	_, err = env.relations.Follow(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	if got := env.reload(t, alice.ID).FollowerCount; got != 1 {
		t.Errorf("expected alice follower_count 1 after refollow, got %d", got)
	}
}

func TestPrivateFollowRequestAccepted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", true)

	res, err := env.relations.Follow(ctx, alice.ID, "bob")
	mustNoErr(t, err)
	if res.Status != models.FollowStatusRequestPending {
		t.Fatalf("expected request_pending, got %s", res.Status)
	}
	if got := env.reload(t, bob.ID).FollowerCount; got != 0 {
		t.Errorf("pending request must not count, got follower_count %d", got)
	}
	if got := countType(env.feed(t, bob.ID), models.NotificationFollowRequest); got != 1 {
		t.Errorf("expected 1 followRequest for bob, got %d", got)
	}

	_, err = env.relations.Follow(ctx, alice.ID, "bob")
	assertKind(t, err, ErrBadRequest)

	requests, total, err := env.relations.FollowRequests(ctx, bob.ID, 1, 10)
	mustNoErr(t, err)
	if total != 1 || len(requests) != 1 || requests[0].ID != alice.ID {
		t.Fatalf("expected alice as the only request, got %+v (total %d)", requests, total)
	}

	res, err = env.relations.AcceptFollowRequest(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	if res.Status != models.FollowStatusRequestAccepted {
		t.Errorf("expected request_accepted, got %s", res.Status)
	}

	status, err := env.relations.GetFollowStatus(ctx, alice.ID, "bob")
	mustNoErr(t, err)
	if status != models.FollowStatusRequestAccepted {
		t.Errorf("expected follow status request_accepted, got %s", status)
	}
	if got := countType(env.feed(t, alice.ID), models.NotificationFollowAccept); got != 1 {
		t.Errorf("expected exactly 1 followAccept for alice, got %d", got)
	}
	bobFeed := env.feed(t, bob.ID)
	if got := countType(bobFeed, models.NotificationFollowRequest); got != 0 {
		t.Errorf("expected the followRequest to be retracted, got %d", got)
	}
	if got := countType(bobFeed, models.NotificationFollowed); got != 1 {
		t.Errorf("expected 1 followed notification for bob, got %d", got)
	}
	if got := env.reload(t, bob.ID).FollowerCount; got != 1 {
		t.Errorf("expected bob follower_count 1, got %d", got)
	}

	_, err = env.relations.AcceptFollowRequest(ctx, bob.ID, "alice")
	assertKind(t, err, ErrBadRequest)
}

func TestRejectAndRescindFollowRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", true)

	_, err := env.relations.Follow(ctx, alice.ID, "bob")
	mustNoErr(t, err)
	res, err := env.relations.RejectFollowRequest(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	if res.Status != models.FollowStatusRequestRejected {
		t.Errorf("expected request_rejected, got %s", res.Status)
	}
	if got := countType(env.feed(t, bob.ID), models.NotificationFollowRequest); got != 0 {
		t.Errorf("expected the rejected request notification gone, got %d", got)
	}

	// a rejected requester may ask again, and then withdraw
	_, err = env.relations.Follow(ctx, alice.ID, "bob")
	mustNoErr(t, err)
	res, err = env.relations.Unfollow(ctx, alice.ID, "bob")
	mustNoErr(t, err)
	if res.Status != models.FollowStatusRequestRescinded {
		t.Errorf("expected request_rescinded, got %s", res.Status)
	}
	if got := countType(env.feed(t, bob.ID), models.NotificationFollowRequest); got != 0 {
		t.Errorf("expected the rescinded request notification gone, got %d", got)
	}
	if got := env.reload(t, bob.ID).FollowerCount; got != 0 {
		t.Errorf("expected follower_count 0, got %d", got)
	}
}

func TestFollowBackNotification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	_, err := env.relations.Follow(ctx, alice.ID, "bob")
	mustNoErr(t, err)
	_, err = env.relations.Follow(ctx, bob.ID, "alice")
	mustNoErr(t, err)

	feed := env.feed(t, alice.ID)
	if got := countType(feed, models.NotificationFollowBack); got != 1 {
		t.Errorf("expected 1 followBack for alice, got %d", got)
	}
	if got := countType(feed, models.NotificationFollowed); got != 0 {
		t.Errorf("expected no plain followed for alice, got %d", got)
	}
}

func TestDeleteFollower(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	_, err := env.relations.DeleteFollower(ctx, alice.ID, "bob")
	assertKind(t, err, ErrBadRequest)

	_, err = env.relations.Follow(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	_, err = env.relations.DeleteFollower(ctx, alice.ID, "bob")
	mustNoErr(t, err)

	status, err := env.relations.GetFollowStatus(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	if status != models.FollowStatusFollowerDeleted {
		t.Errorf("expected follower_deleted, got %s", status)
	}
	if got := env.reload(t, alice.ID).FollowerCount; got != 0 {
		t.Errorf("expected alice follower_count 0, got %d", got)
	}
}

func TestBlockTerminatesFollowsAndPreventsFollowing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	_, err := env.relations.Follow(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	_, err = env.relations.Follow(ctx, alice.ID, "bob")
	mustNoErr(t, err)

	res, err := env.relations.Block(ctx, alice.ID, "bob")
	mustNoErr(t, err)
	if res.Status != models.FollowStatusBlocked {
		t.Errorf("expected blocked, got %s", res.Status)
	}
	for _, id := range []uint{alice.ID, bob.ID} {
		u := env.reload(t, id)
		if u.FollowerCount != 0 || u.FollowingCount != 0 {
			t.Errorf("expected counters reset for %s, got %d/%d", u.Username, u.FollowerCount, u.FollowingCount)
		}
	}

	_, err = env.relations.Follow(ctx, bob.ID, "alice")
	assertKind(t, err, ErrBadRequest)
	_, err = env.relations.Block(ctx, alice.ID, "bob")
	assertKind(t, err, ErrBadRequest)

	status, err := env.relations.GetFollowStatus(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	if status != models.FollowStatusBlocked {
		t.Errorf("expected blocked status from the blocked side, got %s", status)
	}
	_, _, err = env.relations.Followers(ctx, bob.ID, "alice", 1, 10)
	assertKind(t, err, ErrForbidden)

	blocked, _, err := env.relations.Blocked(ctx, alice.ID, 1, 10)
	mustNoErr(t, err)
	if len(blocked) != 1 || blocked[0].ID != bob.ID {
		t.Errorf("expected bob in alice's block list, got %+v", blocked)
	}

	_, err = env.relations.Unblock(ctx, alice.ID, "bob")
	mustNoErr(t, err)
	_, err = env.relations.Follow(ctx, bob.ID, "alice")
	mustNoErr(t, err)
}

func TestCloseFriends(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	_, err := env.relations.AddCloseFriend(ctx, alice.ID, "bob")
	assertKind(t, err, ErrBadRequest)

	_, err = env.relations.Follow(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	_, err = env.relations.AddCloseFriend(ctx, alice.ID, "bob")
	mustNoErr(t, err)
	_, err = env.relations.AddCloseFriend(ctx, alice.ID, "bob")
	assertKind(t, err, ErrBadRequest)

	friends, total, err := env.relations.CloseFriends(ctx, alice.ID, 1, 10)
	mustNoErr(t, err)
	if total != 1 || friends[0].ID != bob.ID {
		t.Fatalf("expected bob as close friend, got %+v", friends)
	}

	// unfollowing drops bob from alice's close friends
	_, err = env.relations.Unfollow(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	_, total, err = env.relations.CloseFriends(ctx, alice.ID, 1, 10)
	mustNoErr(t, err)
	if total != 0 {
		t.Errorf("expected no close friends after unfollow, got %d", total)
	}
	_, err = env.relations.RemoveCloseFriend(ctx, alice.ID, "bob")
	assertKind(t, err, ErrBadRequest)
}

func TestPrivateListsNeedAnActiveFollow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", true)
	bob := env.user(t, "bob", false)
	carol := env.user(t, "carol", false)

	_, _, err := env.relations.Followers(ctx, carol.ID, "alice", 1, 10)
	assertKind(t, err, ErrForbidden)

	_, err = env.relations.Follow(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	_, err = env.relations.AcceptFollowRequest(ctx, alice.ID, "bob")
	mustNoErr(t, err)

	followers, total, err := env.relations.Followers(ctx, bob.ID, "alice", 1, 10)
	mustNoErr(t, err)
	if total != 1 || followers[0].ID != bob.ID {
		t.Errorf("expected bob as alice's follower, got %+v", followers)
	}
	following, _, err := env.relations.Following(ctx, alice.ID, "bob", 1, 10)
	mustNoErr(t, err)
	if len(following) != 1 || following[0].ID != alice.ID {
		t.Errorf("expected bob to follow alice, got %+v", following)
	}
}

func TestFollowRollsBackWhenCounterUpdateFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	mustNoErr(t, env.db.Exec(`CREATE TRIGGER fail_follower_count BEFORE UPDATE OF follower_count ON users
		BEGIN SELECT RAISE(ABORT, 'follower_count locked'); END`).Error)

	if _, err := env.relations.Follow(ctx, alice.ID, "bob"); err == nil {
		t.Fatal("expected follow to fail")
	}

	var rows int64
	mustNoErr(t, env.db.Unscoped().Model(&models.UserRelation{}).Count(&rows).Error)
	if rows != 0 {
		t.Errorf("expected no relation rows, got %d", rows)
	}
	var notifications int64
	mustNoErr(t, env.db.Model(&models.Notification{}).Count(&notifications).Error)
	if notifications != 0 {
		t.Errorf("expected no notifications, got %d", notifications)
	}
	if got := env.reload(t, alice.ID).FollowingCount; got != 0 {
		t.Errorf("expected alice following_count 0, got %d", got)
	}
	if got := env.reload(t, bob.ID).FollowerCount; got != 0 {
		t.Errorf("expected bob follower_count 0, got %d", got)
	}
}

func TestConcurrentEdgeWriteIsBadRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	// another writer lands an active row for the same edge just before ours
	mustNoErr(t, env.db.Exec(`CREATE TRIGGER racing_follow BEFORE INSERT ON user_relations
		WHEN NOT EXISTS (SELECT 1 FROM user_relations WHERE follower_id = NEW.follower_id
			AND following_id = NEW.following_id AND relation_type = NEW.relation_type AND deleted_at IS NULL)
		BEGIN
			INSERT INTO user_relations (follower_id, following_id, relation_type, status, created_at)
			VALUES (NEW.follower_id, NEW.following_id, NEW.relation_type, 'followed', CURRENT_TIMESTAMP);
		END`).Error)

	_, err := env.relations.Follow(ctx, alice.ID, "bob")
	assertKind(t, err, ErrBadRequest)

	if got := env.reload(t, alice.ID).FollowingCount; got != 0 {
		t.Errorf("expected alice following_count 0, got %d", got)
	}
	if got := env.reload(t, bob.ID).FollowerCount; got != 0 {
		t.Errorf("expected bob follower_count 0, got %d", got)
	}
}
