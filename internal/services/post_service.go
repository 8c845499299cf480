package services

import (
	"context"
	"errors"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PostView is a post enriched for one viewer.
type PostView struct {
	*models.Post
	Author *models.UserCompact `json:"author,omitempty"`
	Liked  bool                `json:"liked"`
}

// LikeStatus is the like state of one post for one user.
type LikeStatus struct {
	Liked bool  `json:"like_status"`
	Count int64 `json:"like_count"`
}

// PostService owns posts and post likes, and emits mention and like notifications.
type PostService struct {
	db            *gorm.DB
	posts         repositories.PostRepository
	users         repositories.UserRepository
	likes         repositories.LikeRepository
	comments      repositories.CommentRepository
	relations     *RelationService
	notifications *NotificationService
	log           *logrus.Entry
}

func NewPostService(
	db *gorm.DB,
	posts repositories.PostRepository,
	users repositories.UserRepository,
	likes repositories.LikeRepository,
	comments repositories.CommentRepository,
	relations *RelationService,
	notifications *NotificationService,
) *PostService {
	return &PostService{
		db:            db,
		posts:         posts,
		users:         users,
		likes:         likes,
		comments:      comments,
		relations:     relations,
		notifications: notifications,
		log:           logger.For("posts"),
	}
}

// loadActor reads the acting user inside the unit of work.
func loadActor(u *unitOfWork, users repositories.UserRepository, id uint) (*models.User, error) {
	actor, err := users.WithTx(u.tx).GetUserByID(u.ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, unauthorized("account no longer exists")
		}
		return nil, err
	}
	return actor, nil
}

func (s *PostService) getPost(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.posts.GetPostByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrPostNotFound) {
			return nil, notFound("post not found")
		}
		return nil, err
	}
	return post, nil
}

// CreatePost stores a post and tags every existing user it mentions.
func (s *PostService) CreatePost(ctx context.Context, authorID uint, req models.CreatePostRequest) (*models.Post, error) {
	mentioned, err := resolveMentions(ctx, s.users, ExtractMentions(req.Content), authorID)
	if err != nil {
		return nil, err
	}
	post := &models.Post{
		AuthorID:  authorID,
		Content:   req.Content,
		ImageURLs: req.ImageURLs,
		VideoURLs: req.VideoURLs,
		Mentions:  usernamesOf(mentioned),
	}
	if err := s.posts.CreatePost(ctx, post); err != nil {
		return nil, err
	}
	postID := post.ID.Hex()

	err = runInTx(ctx, s.db, s.notifications, func(u *unitOfWork) error {
		author, err := loadActor(u, s.users, authorID)
		if err != nil {
			return err
		}
		if err := s.users.WithTx(u.tx).AdjustPostCount(u.ctx, authorID, 1); err != nil {
			return err
		}
		for i := range mentioned {
			u.notify(Event{Type: models.NotificationTags, Sender: author, RecipientID: mentioned[i].ID, PostID: postID})
		}
		return nil
	})
	if err != nil {
		if delErr := s.posts.DeletePost(ctx, postID); delErr != nil {
			s.log.WithError(delErr).WithField("post_id", postID).Error("failed to remove post after rollback")
		}
		return nil, err
	}
	return post, nil
}

func (s *PostService) GetPost(ctx context.Context, viewerID uint, id string) (*PostView, error) {
	post, err := s.getPost(ctx, id)
	if err != nil {
		return nil, err
	}
	views, err := s.enrich(ctx, viewerID, []models.Post{*post})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// UpdatePost edits the actor's own post; only users mentioned for the first time are tagged.
func (s *PostService) UpdatePost(ctx context.Context, actorID uint, id string, req models.UpdatePostRequest) (*models.Post, error) {
	post, err := s.getPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if post.AuthorID != actorID {
		return nil, forbidden("you can only edit your own posts")
	}

	if req.Content != "" {
		post.Content = req.Content
	}
	if req.ImageURLs != nil {
		post.ImageURLs = req.ImageURLs
	}
	if req.VideoURLs != nil {
		post.VideoURLs = req.VideoURLs
	}

	mentioned, err := resolveMentions(ctx, s.users, ExtractMentions(post.Content), actorID)
	if err != nil {
		return nil, err
	}
	names := usernamesOf(mentioned)
	fresh := make(map[string]bool)
	for _, name := range newMentions(post.Mentions, names) {
		fresh[name] = true
	}
	post.Mentions = names

	if err := s.posts.UpdatePost(ctx, id, post); err != nil {
		if errors.Is(err, repositories.ErrPostNotFound) {
			return nil, notFound("post not found")
		}
		return nil, err
	}
	if len(fresh) == 0 {
		return post, nil
	}

	err = runInTx(ctx, s.db, s.notifications, func(u *unitOfWork) error {
		author, err := loadActor(u, s.users, actorID)
		if err != nil {
			return err
		}
		for i := range mentioned {
			if fresh[mentioned[i].Username] {
				u.notify(Event{Type: models.NotificationTags, Sender: author, RecipientID: mentioned[i].ID, PostID: id})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// DeletePost removes the actor's own post with its likes, comments and notifications.
func (s *PostService) DeletePost(ctx context.Context, actorID uint, id string) error {
	post, err := s.getPost(ctx, id)
	if err != nil {
		return err
	}
	if post.AuthorID != actorID {
		return forbidden("you can only delete your own posts")
	}
	if err := s.posts.DeletePost(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrPostNotFound) {
			return notFound("post not found")
		}
		return err
	}

	err = runInTx(ctx, s.db, s.notifications, func(u *unitOfWork) error {
		if err := s.likes.WithTx(u.tx).DeleteLikesByPostID(u.ctx, id); err != nil {
			return err
		}
		if err := s.comments.WithTx(u.tx).DeleteCommentsByPostID(u.ctx, id); err != nil {
			return err
		}
		u.retract(repositories.NotificationQuery{PostID: id})
		return s.users.WithTx(u.tx).AdjustPostCount(u.ctx, actorID, -1)
	})
	if err != nil {
		// the document is already gone; its likes, comments and notifications are orphaned
		s.log.WithError(err).WithField("post_id", id).Error("failed to clean up after post delete")
		return err
	}
	return nil
}

// ListPosts pages through every post, newest first.
func (s *PostService) ListPosts(ctx context.Context, viewerID uint, page, limit int) ([]PostView, int64, error) {
	posts, total, err := s.posts.GetAllPosts(ctx, int64((page-1)*limit), int64(limit))
	if err != nil {
		return nil, 0, err
	}
	views, err := s.enrich(ctx, viewerID, posts)
	return views, total, err
}

// UserPosts pages through the posts of username, honouring private accounts.
func (s *PostService) UserPosts(ctx context.Context, viewerID uint, username string, page, limit int) ([]PostView, int64, error) {
	owner, err := findUser(ctx, s.users, username)
	if err != nil {
		return nil, 0, err
	}
	if err := s.relations.canView(ctx, viewerID, owner); err != nil {
		return nil, 0, err
	}
	posts, total, err := s.posts.GetPostsByAuthors(ctx, []uint{owner.ID}, int64((page-1)*limit), int64(limit))
	if err != nil {
		return nil, 0, err
	}
	views, err := s.enrich(ctx, viewerID, posts)
	return views, total, err
}

// Feed returns the posts of the accounts userID follows, plus their own.
func (s *PostService) Feed(ctx context.Context, userID uint, page, limit int) ([]PostView, int64, error) {
	authors, err := s.relations.FollowingIDs(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	authors = append(authors, userID)
	posts, total, err := s.posts.GetPostsByAuthors(ctx, authors, int64((page-1)*limit), int64(limit))
	if err != nil {
		return nil, 0, err
	}
	views, err := s.enrich(ctx, userID, posts)
	return views, total, err
}

func (s *PostService) enrich(ctx context.Context, viewerID uint, posts []models.Post) ([]PostView, error) {
	authorIDs := make([]uint, 0, len(posts))
	postIDs := make([]string, 0, len(posts))
	for _, p := range posts {
		authorIDs = append(authorIDs, p.AuthorID)
		postIDs = append(postIDs, p.ID.Hex())
	}
	authors, err := s.users.GetUsersByIDs(ctx, uniqueIDs(authorIDs, 0))
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.UserCompact, len(authors))
	for i := range authors {
		byID[authors[i].ID] = authors[i].ToCompact()
	}
	liked, err := s.likes.LikedPostIDs(ctx, viewerID, postIDs)
	if err != nil {
		return nil, err
	}

	views := make([]PostView, 0, len(posts))
	for i := range posts {
		v := PostView{Post: &posts[i], Liked: liked[postIDs[i]]}
		if a, ok := byID[posts[i].AuthorID]; ok {
			v.Author = &a
		}
		views = append(views, v)
	}
	return views, nil
}

// LikePost likes a post and notifies its author.
func (s *PostService) LikePost(ctx context.Context, actorID uint, postID string) (*LikeStatus, error) {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	err = runInTx(ctx, s.db, s.notifications, func(u *unitOfWork) error {
		actor, err := loadActor(u, s.users, actorID)
		if err != nil {
			return err
		}
		likes := s.likes.WithTx(u.tx)
		liked, err := likes.HasUserLikedPost(u.ctx, postID, actorID)
		if err != nil {
			return err
		}
		if liked {
			return badRequest("post already liked")
		}
		if err := likes.CreateLike(u.ctx, &models.Like{PostID: postID, UserID: actorID}); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return badRequest("post already liked")
			}
			return err
		}
		u.notify(Event{Type: models.NotificationLikePost, Sender: actor, RecipientID: post.AuthorID, PostID: postID})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.adjustLikes(ctx, postID, 1)
	return s.LikeStatus(ctx, actorID, postID)
}

// UnlikePost removes the actor's like and the notification it produced.
func (s *PostService) UnlikePost(ctx context.Context, actorID uint, postID string) (*LikeStatus, error) {
	if _, err := s.getPost(ctx, postID); err != nil {
		return nil, err
	}

	err := runInTx(ctx, s.db, s.notifications, func(u *unitOfWork) error {
		if err := s.likes.WithTx(u.tx).DeleteLike(u.ctx, postID, actorID); err != nil {
			if errors.Is(err, repositories.ErrLikeNotFound) {
				return badRequest("post not liked")
			}
			return err
		}
		u.retract(repositories.NotificationQuery{
			Type:     models.NotificationLikePost,
			SenderID: actorID,
			PostID:   postID,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.adjustLikes(ctx, postID, -1)
	return s.LikeStatus(ctx, actorID, postID)
}

// adjustLikes keeps the denormalized count on the post document in step. The likes table
// stays the source of truth, so a failure here is only logged.
func (s *PostService) adjustLikes(ctx context.Context, postID string, delta int) {
	if err := s.posts.AdjustLikesCount(ctx, postID, delta); err != nil {
		s.log.WithError(err).WithField("post_id", postID).Warn("failed to adjust likes count")
	}
}

func (s *PostService) LikeStatus(ctx context.Context, userID uint, postID string) (*LikeStatus, error) {
	if _, err := s.getPost(ctx, postID); err != nil {
		return nil, err
	}
	liked, err := s.likes.HasUserLikedPost(ctx, postID, userID)
	if err != nil {
		return nil, err
	}
	count, err := s.likes.GetLikesCountByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}
	return &LikeStatus{Liked: liked, Count: count}, nil
}

// Likers lists the users who liked a post, most recent first.
func (s *PostService) Likers(ctx context.Context, postID string) ([]models.UserCompact, error) {
	if _, err := s.getPost(ctx, postID); err != nil {
		return nil, err
	}
	likes, err := s.likes.GetLikesByPostID(ctx, postID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(likes))
	for _, l := range likes {
		ids = append(ids, l.UserID)
	}
	users, err := s.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.UserCompact, len(users))
	for i := range users {
		byID[users[i].ID] = users[i].ToCompact()
	}
	out := make([]models.UserCompact, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}
