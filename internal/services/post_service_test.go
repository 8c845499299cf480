package services

import (
	"context"
	"testing"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestLikePostTwiceIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	post, err := env.postSvc.CreatePost(ctx, alice.ID, models.CreatePostRequest{Content: "first"})
	mustNoErr(t, err)

	status, err := env.postSvc.LikePost(ctx, bob.ID, post.ID.Hex())
	mustNoErr(t, err)
	if !status.Liked || status.Count != 1 {
		t.Fatalf("expected liked with count 1, got %+v", status)
	}
	_, err = env.postSvc.LikePost(ctx, bob.ID, post.ID.Hex())
	assertKind(t, err, ErrBadRequest)

	if got := countType(env.feed(t, alice.ID), models.NotificationLikePost); got != 1 {
		t.Errorf("expected a single likePost notification, got %d", got)
	}
}

func TestLikeThenUnlikeRestoresStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	post, err := env.postSvc.CreatePost(ctx, alice.ID, models.CreatePostRequest{Content: "first"})
	mustNoErr(t, err)
	id := post.ID.Hex()

	before, err := env.postSvc.LikeStatus(ctx, bob.ID, id)
	mustNoErr(t, err)

	_, err = env.postSvc.LikePost(ctx, bob.ID, id)
	mustNoErr(t, err)
	after, err := env.postSvc.UnlikePost(ctx, bob.ID, id)
	mustNoErr(t, err)

	if after.Liked {
		t.Errorf("expected like_status false after unlike")
	}
	if after.Count != before.Count {
		t.Errorf("expected like_count %d, got %d", before.Count, after.Count)
	}
	if got := countType(env.feed(t, alice.ID), models.NotificationLikePost); got != 0 {
		t.Errorf("expected the like notification retracted, got %d", got)
	}
	stored, err := env.posts.GetPostByID(ctx, id)
	mustNoErr(t, err)
	if stored.LikesCount != 0 {
		t.Errorf("expected post likes_count 0, got %d", stored.LikesCount)
	}

	_, err = env.postSvc.UnlikePost(ctx, bob.ID, id)
	assertKind(t, err, ErrBadRequest)
}

func TestLikeUnknownPost(t *testing.T) {
	env := newTestEnv(t)
	bob := env.user(t, "bob", false)

	_, err := env.postSvc.LikePost(context.Background(), bob.ID, "not-an-object-id")
	assertKind(t, err, ErrNotFound)
}

func TestPostMentionsTagExistingUsers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)
	carol := env.user(t, "carol", false)

	post, err := env.postSvc.CreatePost(ctx, alice.ID, models.CreatePostRequest{Content: "lunch with @Bob and @ghost, ask @alice"})
	mustNoErr(t, err)
	if len(post.Mentions) != 1 || post.Mentions[0] != "bob" {
		t.Errorf("expected only bob stored as mention, got %v", post.Mentions)
	}
	if got := countType(env.feed(t, bob.ID), models.NotificationTags); got != 1 {
		t.Errorf("expected bob tagged once, got %d", got)
	}
	if got := env.reload(t, alice.ID).PostCount; got != 1 {
		t.Errorf("expected post_count 1, got %d", got)
	}

	// only users mentioned for the first time are tagged on edit
	_, err = env.postSvc.UpdatePost(ctx, alice.ID, post.ID.Hex(), models.UpdatePostRequest{Content: "lunch with @bob and @carol"})
	mustNoErr(t, err)
	if got := countType(env.feed(t, bob.ID), models.NotificationTags); got != 1 {
		t.Errorf("expected bob still tagged once, got %d", got)
	}
	if got := countType(env.feed(t, carol.ID), models.NotificationTags); got != 1 {
		t.Errorf("expected carol tagged once, got %d", got)
	}

	_, err = env.postSvc.UpdatePost(ctx, bob.ID, post.ID.Hex(), models.UpdatePostRequest{Content: "mine now"})
	assertKind(t, err, ErrForbidden)
}

func TestDeletePostCleansUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	post, err := env.postSvc.CreatePost(ctx, alice.ID, models.CreatePostRequest{Content: "bye"})
	mustNoErr(t, err)
	id := post.ID.Hex()
	_, err = env.postSvc.LikePost(ctx, bob.ID, id)
	mustNoErr(t, err)
	_, err = env.commentSvc.CreateComment(ctx, bob.ID, id, models.CreateCommentRequest{Content: "nice"})
	mustNoErr(t, err)

	assertKind(t, env.postSvc.DeletePost(ctx, bob.ID, id), ErrForbidden)
	mustNoErr(t, env.postSvc.DeletePost(ctx, alice.ID, id))

	if items := env.feed(t, alice.ID); len(items) != 0 {
		t.Errorf("expected notifications about the post removed, got %+v", items)
	}
	if got := env.reload(t, alice.ID).PostCount; got != 0 {
		t.Errorf("expected post_count 0, got %d", got)
	}
	var likes int64
	mustNoErr(t, env.db.Model(&models.Like{}).Where("post_id = ?", id).Count(&likes).Error)
	if likes != 0 {
		t.Errorf("expected likes removed, got %d", likes)
	}
	_, err = env.postSvc.GetPost(ctx, alice.ID, id)
	assertKind(t, err, ErrNotFound)
}

func TestDeletePostLogsFailedCleanup(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", false)
	bob := env.user(t, "bob", false)

	post, err := env.postSvc.CreatePost(ctx, alice.ID, models.CreatePostRequest{Content: "bye"})
	mustNoErr(t, err)
	id := post.ID.Hex()
	_, err = env.postSvc.LikePost(ctx, bob.ID, id)
	mustNoErr(t, err)

	mustNoErr(t, env.db.Exec(`CREATE TRIGGER fail_post_count BEFORE UPDATE OF post_count ON users
		BEGIN SELECT RAISE(ABORT, 'post_count locked'); END`).Error)
	hook := logtest.NewGlobal()
	defer hook.Reset()

	if err := env.postSvc.DeletePost(ctx, alice.ID, id); err == nil {
		t.Fatal("expected delete to report the failed cleanup")
	}

	logged := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "failed to clean up after post delete" && entry.Data["post_id"] == id {
			logged = true
		}
	}
	if !logged {
		t.Error("expected the orphaned post to be logged")
	}

	// the relational side rolled back as a whole
	var likes int64
	mustNoErr(t, env.db.Model(&models.Like{}).Where("post_id = ?", id).Count(&likes).Error)
	if likes != 1 {
		t.Errorf("expected the like to survive the rollback, got %d", likes)
	}
	if got := env.reload(t, alice.ID).PostCount; got != 1 {
		t.Errorf("expected post_count 1, got %d", got)
	}
}

func TestFeedAndPrivatePosts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "alice", true)
	bob := env.user(t, "bob", false)
	carol := env.user(t, "carol", false)

	_, err := env.postSvc.CreatePost(ctx, alice.ID, models.CreatePostRequest{Content: "private thoughts"})
	mustNoErr(t, err)
	_, err = env.postSvc.CreatePost(ctx, carol.ID, models.CreatePostRequest{Content: "public thoughts"})
	mustNoErr(t, err)

	_, _, err = env.postSvc.UserPosts(ctx, bob.ID, "alice", 1, 10)
	assertKind(t, err, ErrForbidden)

	_, err = env.relations.Follow(ctx, bob.ID, "alice")
	mustNoErr(t, err)
	_, err = env.relations.AcceptFollowRequest(ctx, alice.ID, "bob")
	mustNoErr(t, err)

	posts, total, err := env.postSvc.UserPosts(ctx, bob.ID, "alice", 1, 10)
	mustNoErr(t, err)
	if total != 1 || posts[0].Author == nil || posts[0].Author.Username != "alice" {
		t.Errorf("expected alice's post with author, got %+v", posts)
	}

	feed, total, err := env.postSvc.Feed(ctx, bob.ID, 1, 10)
	mustNoErr(t, err)
	if total != 1 || feed[0].AuthorID != alice.ID {
		t.Errorf("expected only alice's post in bob's feed, got %d posts", total)
	}
}
