package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/monitoring"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"github.com/anonto42/nano-midea/socialgraph/pkg/cache"
	"github.com/anonto42/nano-midea/socialgraph/pkg/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const pushTimeout = 10 * time.Second

// Event is a social action that may produce a notification.
type Event struct {
	Type        models.NotificationType
	Sender      *models.User
	RecipientID uint
	PostID      string
	CommentID   *uint
}

// Pusher delivers a notification to a device.
type Pusher interface {
	Push(ctx context.Context, token, title, body string, data map[string]string) error
}

// NotificationItem is one entry of a user's notification feed.
type NotificationItem struct {
	ID        uint                    `json:"id"`
	Type      models.NotificationType `json:"type"`
	Message   string                  `json:"message"`
	Sender    *models.UserCompact     `json:"sender,omitempty"`
	PostID    string                  `json:"post_id,omitempty"`
	CommentID *uint                   `json:"comment_id,omitempty"`
	IsRead    bool                    `json:"is_read"`
	ReadAt    *time.Time              `json:"read_at,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
}

// GroupedNotifications buckets a feed by age.
type GroupedNotifications struct {
	Today     []NotificationItem `json:"today"`
	Yesterday []NotificationItem `json:"yesterday"`
	ThisWeek  []NotificationItem `json:"thisWeek"`
	Older     []NotificationItem `json:"older"`
}

// NotificationService creates notifications with their per-recipient deliveries and serves
// each recipient's read state.
type NotificationService struct {
	notifications repositories.NotificationRepository
	relations     repositories.RelationRepository
	users         repositories.UserRepository
	unread        *cache.UnreadCounter
	pusher        Pusher
	log           *logrus.Entry
	now           func() time.Time
}

// NewNotificationService wires the fan-out. unread and pusher may be nil.
func NewNotificationService(
	notifications repositories.NotificationRepository,
	relations repositories.RelationRepository,
	users repositories.UserRepository,
	unread *cache.UnreadCounter,
	pusher Pusher,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		relations:     relations,
		users:         users,
		unread:        unread,
		pusher:        pusher,
		log:           logger.For("notifications"),
		now:           time.Now,
	}
}

// Emit records ev inside tx: one Notification plus one delivery per recipient. It runs in a
// savepoint, so a failure rolls back only the notification rows and is reported through logs
// and metrics; the caller's write goes on. It returns nil when nothing was created.
func (s *NotificationService) Emit(ctx context.Context, tx *gorm.DB, ev Event) *models.Notification {
	if ev.Sender == nil || ev.RecipientID == 0 || ev.Sender.ID == ev.RecipientID {
		return nil
	}

	var created *models.Notification
	err := tx.Transaction(func(sp *gorm.DB) error {
		n, err := s.fanOut(ctx, sp, ev)
		created = n
		return err
	})
	if err != nil {
		monitoring.FanoutFailures.WithLabelValues(string(ev.Type)).Inc()
		s.log.WithError(err).WithFields(logrus.Fields{
			"type":      ev.Type,
			"sender":    ev.Sender.ID,
			"recipient": ev.RecipientID,
		}).Warn("notification fan-out rolled back")
		return nil
	}
	if created != nil {
		monitoring.NotificationsCreated.WithLabelValues(string(ev.Type)).Inc()
		monitoring.DeliveriesCreated.Add(float64(len(created.Recipients)))
	}
	return created
}

func (s *NotificationService) fanOut(ctx context.Context, tx *gorm.DB, ev Event) (*models.Notification, error) {
	relations := s.relations.WithTx(tx)
	blocked, err := relations.IsBlockedEitherWay(ctx, ev.Sender.ID, ev.RecipientID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, nil
	}

	n := &models.Notification{
		RecipientID: ev.RecipientID,
		SenderID:    ev.Sender.ID,
		Type:        ev.Type,
		PostID:      ev.PostID,
		CommentID:   ev.CommentID,
		Message:     notificationMessage(ev.Type, ev.Sender.Username),
	}
	notifications := s.notifications.WithTx(tx)
	if err := notifications.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	recipients := []uint{ev.RecipientID}
	if ev.Type.FansOut() {
		followers, err := relations.CounterpartIDs(ctx, repositories.RelationQuery{
			UserID:    ev.Sender.ID,
			Direction: repositories.Incoming,
			Type:      models.RelationFollow,
			Statuses:  models.ActiveFollowStatuses,
		})
		if err != nil {
			return nil, fmt.Errorf("load followers: %w", err)
		}
		recipients = append(recipients, followers...)
	}
	recipients = uniqueIDs(recipients, ev.Sender.ID)

	deliveries := make([]models.UserNotification, 0, len(recipients))
	for _, id := range recipients {
		deliveries = append(deliveries, models.UserNotification{UserID: id, NotificationID: n.ID})
	}
	if err := notifications.CreateDeliveries(ctx, deliveries); err != nil {
		return nil, fmt.Errorf("create deliveries: %w", err)
	}
	n.Recipients = recipients
	return n, nil
}

// Retract deletes the notifications matching q and returns the users whose feeds changed.
// Failures are logged and leave the caller's transaction intact.
func (s *NotificationService) Retract(ctx context.Context, tx *gorm.DB, q repositories.NotificationQuery) []uint {
	var touched []uint
	err := tx.Transaction(func(sp *gorm.DB) error {
		ids, err := s.notifications.WithTx(sp).DeleteMatching(ctx, q)
		touched = ids
		return err
	})
	if err != nil {
		s.log.WithError(err).WithField("type", q.Type).Warn("notification retraction rolled back")
		return nil
	}
	return touched
}

// Deliver runs the post-commit side effects of a unit of work: cached unread counters of
// every affected user are dropped and each direct recipient with a device token is pushed.
func (s *NotificationService) Deliver(ctx context.Context, created []*models.Notification, touched []uint) {
	affected := append([]uint(nil), touched...)
	for _, n := range created {
		affected = append(affected, n.Recipients...)
	}
	s.unread.Invalidate(ctx, uniqueIDs(affected, 0)...)

	if s.pusher == nil || len(created) == 0 {
		return
	}
	pending := append([]*models.Notification(nil), created...)
	go s.push(pending)
}

func (s *NotificationService) push(created []*models.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()

	for _, n := range created {
		recipient, err := s.users.GetUserByID(ctx, n.RecipientID)
		if err != nil || recipient.FCMToken == "" {
			continue
		}
		data := map[string]string{
			"type":            string(n.Type),
			"notification_id": strconv.FormatUint(uint64(n.ID), 10),
			"sender_id":       strconv.FormatUint(uint64(n.SenderID), 10),
		}
		if n.PostID != "" {
			data["post_id"] = n.PostID
		}
		if err := s.pusher.Push(ctx, recipient.FCMToken, pushTitle(n.Type), n.Message, data); err != nil {
			monitoring.PushFailures.Inc()
			s.log.WithError(err).WithField("notification_id", n.ID).Warn("push failed")
		}
	}
}

// List returns one page of userID's feed without changing any read flag.
func (s *NotificationService) List(ctx context.Context, userID uint, page, limit int) ([]NotificationItem, int64, error) {
	rows, total, err := s.notifications.GetByUserID(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, err
	}
	items, err := s.toItems(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// FetchAndAcknowledge returns one page of userID's feed and marks every returned entry read.
// The items carry the read flags as they were before the call.
func (s *NotificationService) FetchAndAcknowledge(ctx context.Context, userID uint, page, limit int) ([]NotificationItem, int64, error) {
	items, total, err := s.List(ctx, userID, page, limit)
	if err != nil {
		return nil, 0, err
	}

	var unread []uint
	for _, item := range items {
		if !item.IsRead {
			unread = append(unread, item.ID)
		}
	}
	if len(unread) > 0 {
		if err := s.notifications.MarkAsRead(ctx, userID, unread); err != nil {
			return nil, 0, err
		}
		s.unread.Invalidate(ctx, userID)
	}
	return items, total, nil
}

// MarkRead marks one notification read for userID.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID uint) error {
	if _, err := s.notifications.GetDelivery(ctx, userID, notificationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("notification not found")
		}
		return err
	}
	if err := s.notifications.MarkAsRead(ctx, userID, []uint{notificationID}); err != nil {
		return err
	}
	s.unread.Invalidate(ctx, userID)
	return nil
}

// MarkAllRead marks every delivery of userID read and returns how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	n, err := s.notifications.MarkAllAsRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.unread.Invalidate(ctx, userID)
	return n, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uint) (int64, error) {
	if n, ok := s.unread.Get(ctx, userID); ok {
		return n, nil
	}
	n, err := s.notifications.GetUnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.unread.Set(ctx, userID, n)
	return n, nil
}

func (s *NotificationService) Grouped(ctx context.Context, userID uint) (*GroupedNotifications, error) {
	today, yesterday, thisWeek, older, err := s.notifications.GetGrouped(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	out := &GroupedNotifications{}
	for _, bucket := range []struct {
		rows []models.UserNotification
		dst  *[]NotificationItem
	}{
		{today, &out.Today},
		{yesterday, &out.Yesterday},
		{thisWeek, &out.ThisWeek},
		{older, &out.Older},
	} {
		items, err := s.toItems(ctx, bucket.rows)
		if err != nil {
			return nil, err
		}
		*bucket.dst = items
	}
	return out, nil
}

// toItems joins deliveries with their sender's compact profile.
func (s *NotificationService) toItems(ctx context.Context, rows []models.UserNotification) ([]NotificationItem, error) {
	senderIDs := make([]uint, 0, len(rows))
	for _, row := range rows {
		senderIDs = append(senderIDs, row.Notification.SenderID)
	}
	senders, err := s.users.GetUsersByIDs(ctx, uniqueIDs(senderIDs, 0))
	if err != nil {
		return nil, err
	}
	userCache := make(map[uint]models.UserCompact, len(senders))
	for i := range senders {
		userCache[senders[i].ID] = senders[i].ToCompact()
	}

	items := make([]NotificationItem, 0, len(rows))
	for _, row := range rows {
		item := NotificationItem{
			ID:        row.NotificationID,
			Type:      row.Notification.Type,
			Message:   row.Notification.Message,
			PostID:    row.Notification.PostID,
			CommentID: row.Notification.CommentID,
			IsRead:    row.IsRead,
			ReadAt:    row.ReadAt,
			CreatedAt: row.CreatedAt,
		}
		if sender, ok := userCache[row.Notification.SenderID]; ok {
			item.Sender = &sender
		}
		items = append(items, item)
	}
	return items, nil
}

func notificationMessage(t models.NotificationType, sender string) string {
	switch t {
	case models.NotificationTags:
		return sender + " mentioned someone in a post"
	case models.NotificationLikePost:
		return sender + " liked a post"
	case models.NotificationComment:
		return sender + " commented on a post"
	case models.NotificationFollowRequest:
		return sender + " requested to follow you"
	case models.NotificationFollowAccept:
		return sender + " accepted your follow request"
	case models.NotificationFollowed:
		return sender + " started following you"
	case models.NotificationFollowBack:
		return sender + " followed you back"
	}
	return sender + " interacted with you"
}

func pushTitle(t models.NotificationType) string {
	switch t {
	case models.NotificationFollowRequest:
		return "New follow request"
	case models.NotificationFollowAccept:
		return "Request accepted"
	case models.NotificationFollowed, models.NotificationFollowBack:
		return "New follower"
	case models.NotificationTags:
		return "You were mentioned"
	}
	return "New activity"
}

// uniqueIDs drops duplicates and every occurrence of exclude, keeping first-seen order.
func uniqueIDs(ids []uint, exclude uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == exclude {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
