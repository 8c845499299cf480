package services

import (
	"context"
	"errors"
	"strings"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/monitoring"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"gorm.io/gorm"
)

// RelationResult is returned by every relation transition.
type RelationResult struct {
	Message string              `json:"message"`
	Status  models.FollowStatus `json:"status"`
}

// RelationService enforces the follow state machine and the close-friend and block layers.
//
// Every transition runs in one transaction that first locks both user rows in ID order,
// then reads the current edge, writes the next history row, moves the counters and emits
// notifications.
type RelationService struct {
	db            *gorm.DB
	users         repositories.UserRepository
	relations     repositories.RelationRepository
	notifications *NotificationService
}

func NewRelationService(db *gorm.DB, users repositories.UserRepository, relations repositories.RelationRepository, notifications *NotificationService) *RelationService {
	return &RelationService{db: db, users: users, relations: relations, notifications: notifications}
}

// states from which a follow may start
var canFollow = map[models.FollowStatus]bool{
	models.FollowStatusNotFollowed:      true,
	models.FollowStatusUnfollowed:       true,
	models.FollowStatusRequestRejected:  true,
	models.FollowStatusRequestRescinded: true,
	models.FollowStatusFollowerDeleted:  true,
}

func followState(rel *models.UserRelation) models.FollowStatus {
	if rel == nil {
		return models.FollowStatusNotFollowed
	}
	return rel.Status.FollowStatus()
}

func isActive(rel *models.UserRelation) bool {
	return rel != nil && rel.Status.IsActiveFollow()
}

// NormalizeUsername strips a leading @ and lowercases.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(username), "@"))
}

func findUser(ctx context.Context, users repositories.UserRepository, username string) (*models.User, error) {
	user, err := users.GetUserByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("user not found")
		}
		return nil, err
	}
	return user, nil
}

// lockPair resolves username and locks the actor and target rows.
func (s *RelationService) lockPair(u *unitOfWork, actorID uint, username, verb string) (*models.User, *models.User, error) {
	users := s.users.WithTx(u.tx)
	target, err := findUser(u.ctx, users, username)
	if err != nil {
		return nil, nil, err
	}
	if target.ID == actorID {
		return nil, nil, badRequest("you cannot %s yourself", verb)
	}

	locked, err := users.LockUsers(u.ctx, actorID, target.ID)
	if err != nil {
		return nil, nil, err
	}
	var actor *models.User
	target = nil
	for i := range locked {
		switch locked[i].ID {
		case actorID:
			actor = &locked[i]
		default:
			target = &locked[i]
		}
	}
	if actor == nil {
		return nil, nil, unauthorized("account no longer exists")
	}
	if target == nil {
		return nil, nil, notFound("user not found")
	}
	return actor, target, nil
}

func (s *RelationService) transition(ctx context.Context, action string, fn func(u *unitOfWork) (RelationResult, error)) (*RelationResult, error) {
	var result RelationResult
	err := runInTx(ctx, s.db, s.notifications, func(u *unitOfWork) error {
		r, err := fn(u)
		result = r
		return err
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// the partial unique index caught a concurrent transition on the same edge
		return nil, badRequest("relation changed concurrently, try again")
	}
	if err != nil {
		return nil, err
	}
	monitoring.RelationTransitions.WithLabelValues(action).Inc()
	return &result, nil
}

// Follow starts following username, or sends a request when the account is private.
func (s *RelationService) Follow(ctx context.Context, actorID uint, username string) (*RelationResult, error) {
	return s.transition(ctx, "follow", func(u *unitOfWork) (RelationResult, error) {
		actor, target, err := s.lockPair(u, actorID, username, "follow")
		if err != nil {
			return RelationResult{}, err
		}
		rels := s.relations.WithTx(u.tx)

		blocked, err := rels.IsBlockedEitherWay(u.ctx, actor.ID, target.ID)
		if err != nil {
			return RelationResult{}, err
		}
		if blocked {
			return RelationResult{}, badRequest("you cannot follow this user")
		}

		current, err := rels.FindActive(u.ctx, actor.ID, target.ID, models.RelationFollow)
		if err != nil {
			return RelationResult{}, err
		}
		switch state := followState(current); {
		case state == models.FollowStatusRequestPending:
			return RelationResult{}, badRequest("follow request already sent")
		case !canFollow[state]:
			return RelationResult{}, badRequest("you already follow this user")
		}

		next := &models.UserRelation{FollowerID: actor.ID, FollowingID: target.ID, Type: models.RelationFollow}
		if target.IsPrivate {
			next.Status = models.StatusPending
			if err := rels.Replace(u.ctx, current, next); err != nil {
				return RelationResult{}, err
			}
			u.notify(Event{Type: models.NotificationFollowRequest, Sender: actor, RecipientID: target.ID})
			return RelationResult{Message: "follow request sent", Status: models.FollowStatusRequestPending}, nil
		}

		next.Status = models.StatusFollowed
		if err := rels.Replace(u.ctx, current, next); err != nil {
			return RelationResult{}, err
		}
		if err := s.users.WithTx(u.tx).AdjustFollowCounts(u.ctx, actor.ID, target.ID, 1); err != nil {
			return RelationResult{}, err
		}
		kind, err := s.followKind(u, target.ID, actor.ID)
		if err != nil {
			return RelationResult{}, err
		}
		u.notify(Event{Type: kind, Sender: actor, RecipientID: target.ID})
		return RelationResult{Message: "you are now following " + target.Username, Status: models.FollowStatusFollowed}, nil
	})
}

// followKind is followBack when recipientID already follows senderID.
func (s *RelationService) followKind(u *unitOfWork, recipientID, senderID uint) (models.NotificationType, error) {
	reverse, err := s.relations.WithTx(u.tx).FindActive(u.ctx, recipientID, senderID, models.RelationFollow)
	if err != nil {
		return "", err
	}
	if isActive(reverse) {
		return models.NotificationFollowBack, nil
	}
	return models.NotificationFollowed, nil
}

// Unfollow ends a follow, or rescinds a pending request.
func (s *RelationService) Unfollow(ctx context.Context, actorID uint, username string) (*RelationResult, error) {
	return s.transition(ctx, "unfollow", func(u *unitOfWork) (RelationResult, error) {
		actor, target, err := s.lockPair(u, actorID, username, "unfollow")
		if err != nil {
			return RelationResult{}, err
		}
		rels := s.relations.WithTx(u.tx)
		current, err := rels.FindActive(u.ctx, actor.ID, target.ID, models.RelationFollow)
		if err != nil {
			return RelationResult{}, err
		}

		switch followState(current) {
		case models.FollowStatusFollowed, models.FollowStatusRequestAccepted:
			if err := s.endFollow(u, current, models.StatusUnfollowed); err != nil {
				return RelationResult{}, err
			}
			return RelationResult{Message: "you unfollowed " + target.Username, Status: models.FollowStatusUnfollowed}, nil
		case models.FollowStatusRequestPending:
			if err := s.endFollow(u, current, models.StatusRequestRescinded); err != nil {
				return RelationResult{}, err
			}
			return RelationResult{Message: "follow request cancelled", Status: models.FollowStatusRequestRescinded}, nil
		}
		return RelationResult{}, badRequest("you are not following this user")
	})
}

// endFollow moves an active or pending follow edge to a terminal status. Leaving an active
// state decrements both counters and retires the followed user's close-friend row for the
// follower; leaving pending retracts the request notification.
func (s *RelationService) endFollow(u *unitOfWork, current *models.UserRelation, status models.RelationStatus) error {
	rels := s.relations.WithTx(u.tx)
	next := &models.UserRelation{
		FollowerID:  current.FollowerID,
		FollowingID: current.FollowingID,
		Type:        models.RelationFollow,
		Status:      status,
	}
	if err := rels.Replace(u.ctx, current, next); err != nil {
		return err
	}

	if current.Status == models.StatusPending {
		u.retract(repositories.NotificationQuery{
			Type:        models.NotificationFollowRequest,
			SenderID:    current.FollowerID,
			RecipientID: current.FollowingID,
		})
		return nil
	}
	if err := s.users.WithTx(u.tx).AdjustFollowCounts(u.ctx, current.FollowerID, current.FollowingID, -1); err != nil {
		return err
	}
	return s.retireCloseFriend(u, current.FollowingID, current.FollowerID)
}

func (s *RelationService) retireCloseFriend(u *unitOfWork, ownerID, friendID uint) error {
	rels := s.relations.WithTx(u.tx)
	row, err := rels.FindActive(u.ctx, ownerID, friendID, models.RelationClose)
	if err != nil || row == nil {
		return err
	}
	return rels.Retire(u.ctx, row)
}

// pendingRequest returns the pending request of requester towards actor.
func (s *RelationService) pendingRequest(u *unitOfWork, requesterID, actorID uint) (*models.UserRelation, error) {
	current, err := s.relations.WithTx(u.tx).FindActive(u.ctx, requesterID, actorID, models.RelationFollow)
	if err != nil {
		return nil, err
	}
	if followState(current) != models.FollowStatusRequestPending {
		return nil, badRequest("no pending follow request from this user")
	}
	return current, nil
}

// AcceptFollowRequest accepts the pending request username sent to the actor.
func (s *RelationService) AcceptFollowRequest(ctx context.Context, actorID uint, username string) (*RelationResult, error) {
	return s.transition(ctx, "accept", func(u *unitOfWork) (RelationResult, error) {
		actor, requester, err := s.lockPair(u, actorID, username, "accept a request from")
		if err != nil {
			return RelationResult{}, err
		}
		current, err := s.pendingRequest(u, requester.ID, actor.ID)
		if err != nil {
			return RelationResult{}, err
		}

		next := &models.UserRelation{
			FollowerID:  requester.ID,
			FollowingID: actor.ID,
			Type:        models.RelationFollow,
			Status:      models.StatusAccepted,
		}
		if err := s.relations.WithTx(u.tx).Replace(u.ctx, current, next); err != nil {
			return RelationResult{}, err
		}
		if err := s.users.WithTx(u.tx).AdjustFollowCounts(u.ctx, requester.ID, actor.ID, 1); err != nil {
			return RelationResult{}, err
		}

		u.retract(repositories.NotificationQuery{
			Type:        models.NotificationFollowRequest,
			SenderID:    requester.ID,
			RecipientID: actor.ID,
		})
		u.notify(Event{Type: models.NotificationFollowAccept, Sender: actor, RecipientID: requester.ID})

		kind, err := s.followKind(u, actor.ID, requester.ID)
		if err != nil {
			return RelationResult{}, err
		}
		u.notify(Event{Type: kind, Sender: requester, RecipientID: actor.ID})
		return RelationResult{Message: "follow request accepted", Status: models.FollowStatusRequestAccepted}, nil
	})
}

// RejectFollowRequest rejects the pending request username sent to the actor.
func (s *RelationService) RejectFollowRequest(ctx context.Context, actorID uint, username string) (*RelationResult, error) {
	return s.transition(ctx, "reject", func(u *unitOfWork) (RelationResult, error) {
		actor, requester, err := s.lockPair(u, actorID, username, "reject a request from")
		if err != nil {
			return RelationResult{}, err
		}
		current, err := s.pendingRequest(u, requester.ID, actor.ID)
		if err != nil {
			return RelationResult{}, err
		}
		if err := s.endFollow(u, current, models.StatusRejected); err != nil {
			return RelationResult{}, err
		}
		return RelationResult{Message: "follow request rejected", Status: models.FollowStatusRequestRejected}, nil
	})
}

// DeleteFollower removes username from the actor's followers.
func (s *RelationService) DeleteFollower(ctx context.Context, actorID uint, username string) (*RelationResult, error) {
	return s.transition(ctx, "delete_follower", func(u *unitOfWork) (RelationResult, error) {
		actor, follower, err := s.lockPair(u, actorID, username, "remove")
		if err != nil {
			return RelationResult{}, err
		}
		current, err := s.relations.WithTx(u.tx).FindActive(u.ctx, follower.ID, actor.ID, models.RelationFollow)
		if err != nil {
			return RelationResult{}, err
		}
		if !isActive(current) {
			return RelationResult{}, badRequest("this user does not follow you")
		}
		if err := s.endFollow(u, current, models.StatusFollowerDeleted); err != nil {
			return RelationResult{}, err
		}
		return RelationResult{Message: follower.Username + " was removed from your followers", Status: models.FollowStatusFollowerDeleted}, nil
	})
}

// Block blocks username and terminates the follow edges between the two users.
func (s *RelationService) Block(ctx context.Context, actorID uint, username string) (*RelationResult, error) {
	return s.transition(ctx, "block", func(u *unitOfWork) (RelationResult, error) {
		actor, target, err := s.lockPair(u, actorID, username, "block")
		if err != nil {
			return RelationResult{}, err
		}
		rels := s.relations.WithTx(u.tx)
		existing, err := rels.FindActive(u.ctx, actor.ID, target.ID, models.RelationBlock)
		if err != nil {
			return RelationResult{}, err
		}
		if existing != nil {
			return RelationResult{}, badRequest("user is already blocked")
		}
		block := &models.UserRelation{
			FollowerID:  actor.ID,
			FollowingID: target.ID,
			Type:        models.RelationBlock,
			Status:      models.StatusAccepted,
		}
		if err := rels.Create(u.ctx, block); err != nil {
			return RelationResult{}, err
		}

		if err := s.terminate(u, actor.ID, target.ID, models.StatusUnfollowed, models.StatusRequestRescinded); err != nil {
			return RelationResult{}, err
		}
		if err := s.terminate(u, target.ID, actor.ID, models.StatusFollowerDeleted, models.StatusRejected); err != nil {
			return RelationResult{}, err
		}
		if err := s.retireCloseFriend(u, actor.ID, target.ID); err != nil {
			return RelationResult{}, err
		}
		if err := s.retireCloseFriend(u, target.ID, actor.ID); err != nil {
			return RelationResult{}, err
		}
		return RelationResult{Message: target.Username + " is blocked", Status: models.FollowStatusBlocked}, nil
	})
}

// terminate ends the follow edge follower -> following, whichever live state it is in.
func (s *RelationService) terminate(u *unitOfWork, followerID, followingID uint, whenActive, whenPending models.RelationStatus) error {
	current, err := s.relations.WithTx(u.tx).FindActive(u.ctx, followerID, followingID, models.RelationFollow)
	if err != nil || current == nil {
		return err
	}
	switch {
	case current.Status.IsActiveFollow():
		return s.endFollow(u, current, whenActive)
	case current.Status == models.StatusPending:
		return s.endFollow(u, current, whenPending)
	}
	return nil
}

func (s *RelationService) Unblock(ctx context.Context, actorID uint, username string) (*RelationResult, error) {
	return s.transition(ctx, "unblock", func(u *unitOfWork) (RelationResult, error) {
		actor, target, err := s.lockPair(u, actorID, username, "unblock")
		if err != nil {
			return RelationResult{}, err
		}
		rels := s.relations.WithTx(u.tx)
		existing, err := rels.FindActive(u.ctx, actor.ID, target.ID, models.RelationBlock)
		if err != nil {
			return RelationResult{}, err
		}
		if existing == nil {
			return RelationResult{}, badRequest("user is not blocked")
		}
		if err := rels.Retire(u.ctx, existing); err != nil {
			return RelationResult{}, err
		}
		return RelationResult{Message: target.Username + " is unblocked", Status: models.FollowStatusNotFollowed}, nil
	})
}

// AddCloseFriend adds one of the actor's followers to the actor's close friends.
// Close-friend rows point from the list owner to the friend.
func (s *RelationService) AddCloseFriend(ctx context.Context, actorID uint, username string) (*RelationResult, error) {
	return s.transition(ctx, "add_close_friend", func(u *unitOfWork) (RelationResult, error) {
		actor, friend, err := s.lockPair(u, actorID, username, "add")
		if err != nil {
			return RelationResult{}, err
		}
		rels := s.relations.WithTx(u.tx)
		follow, err := rels.FindActive(u.ctx, friend.ID, actor.ID, models.RelationFollow)
		if err != nil {
			return RelationResult{}, err
		}
		if !isActive(follow) {
			return RelationResult{}, badRequest("only your followers can be close friends")
		}
		existing, err := rels.FindActive(u.ctx, actor.ID, friend.ID, models.RelationClose)
		if err != nil {
			return RelationResult{}, err
		}
		if existing != nil {
			return RelationResult{}, badRequest("user is already a close friend")
		}
		row := &models.UserRelation{
			FollowerID:  actor.ID,
			FollowingID: friend.ID,
			Type:        models.RelationClose,
			Status:      models.StatusAccepted,
		}
		if err := rels.Create(u.ctx, row); err != nil {
			return RelationResult{}, err
		}
		return RelationResult{Message: friend.Username + " added to close friends", Status: follow.Status.FollowStatus()}, nil
	})
}

func (s *RelationService) RemoveCloseFriend(ctx context.Context, actorID uint, username string) (*RelationResult, error) {
	return s.transition(ctx, "remove_close_friend", func(u *unitOfWork) (RelationResult, error) {
		actor, friend, err := s.lockPair(u, actorID, username, "remove")
		if err != nil {
			return RelationResult{}, err
		}
		rels := s.relations.WithTx(u.tx)
		existing, err := rels.FindActive(u.ctx, actor.ID, friend.ID, models.RelationClose)
		if err != nil {
			return RelationResult{}, err
		}
		if existing == nil {
			return RelationResult{}, badRequest("user is not a close friend")
		}
		if err := rels.Retire(u.ctx, existing); err != nil {
			return RelationResult{}, err
		}
		follow, err := rels.FindActive(u.ctx, friend.ID, actor.ID, models.RelationFollow)
		if err != nil {
			return RelationResult{}, err
		}
		return RelationResult{Message: friend.Username + " removed from close friends", Status: followState(follow)}, nil
	})
}

// GetFollowStatus reports the state of the actor's follow edge towards username.
func (s *RelationService) GetFollowStatus(ctx context.Context, actorID uint, username string) (models.FollowStatus, error) {
	target, err := findUser(ctx, s.users, username)
	if err != nil {
		return "", err
	}
	if target.ID == actorID {
		return "", badRequest("you cannot follow yourself")
	}
	blocked, err := s.relations.IsBlockedEitherWay(ctx, actorID, target.ID)
	if err != nil {
		return "", err
	}
	if blocked {
		return models.FollowStatusBlocked, nil
	}
	current, err := s.relations.FindActive(ctx, actorID, target.ID, models.RelationFollow)
	if err != nil {
		return "", err
	}
	return followState(current), nil
}

// canView reports whether viewerID may see the relation lists of owner.
func (s *RelationService) canView(ctx context.Context, viewerID uint, owner *models.User) error {
	if viewerID == owner.ID {
		return nil
	}
	blocked, err := s.relations.IsBlockedEitherWay(ctx, viewerID, owner.ID)
	if err != nil {
		return err
	}
	if blocked {
		return forbidden("you cannot view this account")
	}
	if !owner.IsPrivate {
		return nil
	}
	current, err := s.relations.FindActive(ctx, viewerID, owner.ID, models.RelationFollow)
	if err != nil {
		return err
	}
	if !isActive(current) {
		return forbidden("this account is private")
	}
	return nil
}

func (s *RelationService) listOf(ctx context.Context, viewerID uint, username string, dir repositories.RelationDirection, page, limit int) ([]models.UserCompact, int64, error) {
	owner, err := findUser(ctx, s.users, username)
	if err != nil {
		return nil, 0, err
	}
	if err := s.canView(ctx, viewerID, owner); err != nil {
		return nil, 0, err
	}
	return s.list(ctx, repositories.RelationQuery{
		UserID:    owner.ID,
		Direction: dir,
		Type:      models.RelationFollow,
		Statuses:  models.ActiveFollowStatuses,
	}, page, limit)
}

func (s *RelationService) list(ctx context.Context, q repositories.RelationQuery, page, limit int) ([]models.UserCompact, int64, error) {
	users, total, err := s.relations.ListUsers(ctx, q, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.UserCompact, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToCompact())
	}
	return out, total, nil
}

func (s *RelationService) Followers(ctx context.Context, viewerID uint, username string, page, limit int) ([]models.UserCompact, int64, error) {
	return s.listOf(ctx, viewerID, username, repositories.Incoming, page, limit)
}

func (s *RelationService) Following(ctx context.Context, viewerID uint, username string, page, limit int) ([]models.UserCompact, int64, error) {
	return s.listOf(ctx, viewerID, username, repositories.Outgoing, page, limit)
}

// FollowRequests lists the users waiting for the actor to accept them.
func (s *RelationService) FollowRequests(ctx context.Context, actorID uint, page, limit int) ([]models.UserCompact, int64, error) {
	return s.list(ctx, repositories.RelationQuery{
		UserID:    actorID,
		Direction: repositories.Incoming,
		Type:      models.RelationFollow,
		Statuses:  []models.RelationStatus{models.StatusPending},
	}, page, limit)
}

func (s *RelationService) CloseFriends(ctx context.Context, actorID uint, page, limit int) ([]models.UserCompact, int64, error) {
	return s.list(ctx, repositories.RelationQuery{UserID: actorID, Direction: repositories.Outgoing, Type: models.RelationClose}, page, limit)
}

func (s *RelationService) Blocked(ctx context.Context, actorID uint, page, limit int) ([]models.UserCompact, int64, error) {
	return s.list(ctx, repositories.RelationQuery{UserID: actorID, Direction: repositories.Outgoing, Type: models.RelationBlock}, page, limit)
}

// History returns every relation row ever written between the actor and username.
func (s *RelationService) History(ctx context.Context, actorID uint, username string) ([]models.UserRelation, error) {
	other, err := findUser(ctx, s.users, username)
	if err != nil {
		return nil, err
	}
	if other.ID == actorID {
		return nil, badRequest("no relation history with yourself")
	}
	return s.relations.History(ctx, actorID, other.ID)
}

// FollowingIDs returns the users whose posts belong in userID's feed.
func (s *RelationService) FollowingIDs(ctx context.Context, userID uint) ([]uint, error) {
	return s.relations.CounterpartIDs(ctx, repositories.RelationQuery{
		UserID:    userID,
		Direction: repositories.Outgoing,
		Type:      models.RelationFollow,
		Statuses:  models.ActiveFollowStatuses,
	})
}
