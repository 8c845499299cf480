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

// CommentView is a comment with its author and like count.
type CommentView struct {
	models.Comment
	Author    *models.UserCompact `json:"author,omitempty"`
	LikeCount int64               `json:"like_count"`
}

// CommentLikeStatus is the like state of one comment for one user.
type CommentLikeStatus struct {
	Liked bool  `json:"like_status"`
	Count int64 `json:"like_count"`
}

// CommentService owns comments, replies and comment likes.
type CommentService struct {
	db            *gorm.DB
	comments      repositories.CommentRepository
	commentLikes  repositories.CommentLikeRepository
	posts         repositories.PostRepository
	users         repositories.UserRepository
	notifications *NotificationService
	log           *logrus.Entry
}

func NewCommentService(
	db *gorm.DB,
	comments repositories.CommentRepository,
	commentLikes repositories.CommentLikeRepository,
	posts repositories.PostRepository,
	users repositories.UserRepository,
	notifications *NotificationService,
) *CommentService {
	return &CommentService{
		db:            db,
		comments:      comments,
		commentLikes:  commentLikes,
		posts:         posts,
		users:         users,
		notifications: notifications,
		log:           logger.For("comments"),
	}
}

func (s *CommentService) getComment(ctx context.Context, id uint) (*models.Comment, error) {
	comment, err := s.comments.GetCommentByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("comment not found")
		}
		return nil, err
	}
	return comment, nil
}

func (s *CommentService) getPost(ctx context.Context, id string) (*models.Post, error) {
	post, err := s.posts.GetPostByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrPostNotFound) {
			return nil, notFound("post not found")
		}
		return nil, err
	}
	return post, nil
}

// CreateComment adds a comment, or a reply when req.CommentID is set. The post author and,
// for replies, the parent comment's author are notified; mentioned users are tagged.
func (s *CommentService) CreateComment(ctx context.Context, actorID uint, postID string, req models.CreateCommentRequest) (*models.Comment, error) {
	post, err := s.getPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	var parent *models.Comment
	if req.CommentID != nil {
		parent, err = s.comments.GetCommentByID(ctx, *req.CommentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, notFound("parent comment not found")
			}
			return nil, err
		}
		if parent.PostID != postID {
			return nil, badRequest("parent comment belongs to another post")
		}
	}

	mentioned, err := resolveMentions(ctx, s.users, ExtractMentions(req.Content), actorID)
	if err != nil {
		return nil, err
	}

	comment := &models.Comment{PostID: postID, UserID: actorID, Content: req.Content}
	if parent != nil {
		comment.ParentID = &parent.ID
	}

	err = runInTx(ctx, s.db, s.notifications, func(u *unitOfWork) error {
		actor, err := loadActor(u, s.users, actorID)
		if err != nil {
			return err
		}
		if err := s.comments.WithTx(u.tx).CreateComment(u.ctx, comment); err != nil {
			return err
		}
		ref := comment.ID
		u.notify(Event{Type: models.NotificationComment, Sender: actor, RecipientID: post.AuthorID, PostID: postID, CommentID: &ref})
		if parent != nil && parent.UserID != post.AuthorID {
			u.notify(Event{Type: models.NotificationComment, Sender: actor, RecipientID: parent.UserID, PostID: postID, CommentID: &ref})
		}
		for i := range mentioned {
			u.notify(Event{Type: models.NotificationTags, Sender: actor, RecipientID: mentioned[i].ID, PostID: postID, CommentID: &ref})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.adjustComments(ctx, postID, 1)
	return comment, nil
}

func (s *CommentService) adjustComments(ctx context.Context, postID string, delta int) {
	if err := s.posts.AdjustCommentsCount(ctx, postID, delta); err != nil {
		s.log.WithError(err).WithField("post_id", postID).Warn("failed to adjust comments count")
	}
}

// GetComments pages through the top-level comments of a post.
func (s *CommentService) GetComments(ctx context.Context, postID string, page, limit int) ([]CommentView, int64, error) {
	if _, err := s.getPost(ctx, postID); err != nil {
		return nil, 0, err
	}
	comments, total, err := s.comments.GetCommentsByPostID(ctx, postID, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, err
	}
	views, err := s.withAuthors(ctx, comments)
	return views, total, err
}

func (s *CommentService) GetReplies(ctx context.Context, commentID uint) ([]CommentView, error) {
	if _, err := s.getComment(ctx, commentID); err != nil {
		return nil, err
	}
	replies, err := s.comments.GetReplies(ctx, commentID)
	if err != nil {
		return nil, err
	}
	return s.withAuthors(ctx, replies)
}

func (s *CommentService) withAuthors(ctx context.Context, comments []models.Comment) ([]CommentView, error) {
	ids := make([]uint, 0, len(comments))
	commentIDs := make([]uint, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.UserID)
		commentIDs = append(commentIDs, c.ID)
	}
	users, err := s.users.GetUsersByIDs(ctx, uniqueIDs(ids, 0))
	if err != nil {
		return nil, err
	}
	likes, err := s.commentLikes.LikesCounts(ctx, commentIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.UserCompact, len(users))
	for i := range users {
		byID[users[i].ID] = users[i].ToCompact()
	}
	views := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		v := CommentView{Comment: c, LikeCount: likes[c.ID]}
		if a, ok := byID[c.UserID]; ok {
			v.Author = &a
		}
		views = append(views, v)
	}
	return views, nil
}

// UpdateComment edits the actor's own comment and tags newly mentioned users.
func (s *CommentService) UpdateComment(ctx context.Context, actorID, id uint, req models.UpdateCommentRequest) (*models.Comment, error) {
	comment, err := s.getComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if comment.UserID != actorID {
		return nil, forbidden("you can only edit your own comments")
	}

	before := ExtractMentions(comment.Content)
	comment.Content = req.Content
	mentioned, err := resolveMentions(ctx, s.users, newMentions(before, ExtractMentions(req.Content)), actorID)
	if err != nil {
		return nil, err
	}

	err = runInTx(ctx, s.db, s.notifications, func(u *unitOfWork) error {
		if err := s.comments.WithTx(u.tx).UpdateComment(u.ctx, comment); err != nil {
			return err
		}
		if len(mentioned) == 0 {
			return nil
		}
		actor, err := loadActor(u, s.users, actorID)
		if err != nil {
			return err
		}
		ref := comment.ID
		for i := range mentioned {
			u.notify(Event{Type: models.NotificationTags, Sender: actor, RecipientID: mentioned[i].ID, PostID: comment.PostID, CommentID: &ref})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// DeleteComment removes the actor's own comment, its replies and their notifications.
func (s *CommentService) DeleteComment(ctx context.Context, actorID, id uint) error {
	comment, err := s.getComment(ctx, id)
	if err != nil {
		return err
	}
	if comment.UserID != actorID {
		return forbidden("you can only delete your own comments")
	}

	var removed int64
	err = runInTx(ctx, s.db, s.notifications, func(u *unitOfWork) error {
		replies, err := s.comments.WithTx(u.tx).GetReplies(u.ctx, id)
		if err != nil {
			return err
		}
		if removed, err = s.comments.WithTx(u.tx).DeleteComment(u.ctx, id); err != nil {
			return err
		}
		ref := id
		u.retract(repositories.NotificationQuery{CommentID: &ref})
		for i := range replies {
			replyID := replies[i].ID
			u.retract(repositories.NotificationQuery{CommentID: &replyID})
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.adjustComments(ctx, comment.PostID, -int(removed))
	return nil
}

func (s *CommentService) LikeComment(ctx context.Context, actorID, commentID uint) (*CommentLikeStatus, error) {
	if _, err := s.getComment(ctx, commentID); err != nil {
		return nil, err
	}
	liked, err := s.commentLikes.HasUserLikedComment(ctx, commentID, actorID)
	if err != nil {
		return nil, err
	}
	if liked {
		return nil, badRequest("comment already liked")
	}
	if err := s.commentLikes.CreateCommentLike(ctx, &models.CommentLike{CommentID: commentID, UserID: actorID}); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, badRequest("comment already liked")
		}
		return nil, err
	}
	return s.commentLikeStatus(ctx, commentID, true)
}

func (s *CommentService) UnlikeComment(ctx context.Context, actorID, commentID uint) (*CommentLikeStatus, error) {
	if _, err := s.getComment(ctx, commentID); err != nil {
		return nil, err
	}
	if err := s.commentLikes.DeleteCommentLike(ctx, commentID, actorID); err != nil {
		if errors.Is(err, repositories.ErrCommentLikeNotFound) {
			return nil, badRequest("comment not liked")
		}
		return nil, err
	}
	return s.commentLikeStatus(ctx, commentID, false)
}

func (s *CommentService) commentLikeStatus(ctx context.Context, commentID uint, liked bool) (*CommentLikeStatus, error) {
	count, err := s.commentLikes.GetLikesCount(ctx, commentID)
	if err != nil {
		return nil, err
	}
	return &CommentLikeStatus{Liked: liked, Count: count}, nil
}
