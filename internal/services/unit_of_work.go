package services

import (
	"context"

	"github.com/anonto42/nano-midea/socialgraph/internal/models"
	"github.com/anonto42/nano-midea/socialgraph/internal/repositories"
	"gorm.io/gorm"
)

// unitOfWork carries one write transaction and the notification side effects it produced.
// Side effects that leave the database (cache invalidation, push) run only after commit.
type unitOfWork struct {
	ctx           context.Context
	tx            *gorm.DB
	notifications *NotificationService
	created       []*models.Notification
	touched       []uint
}

// notify emits ev inside the transaction. A failed fan-out is dropped, never returned.
func (u *unitOfWork) notify(ev Event) {
	if n := u.notifications.Emit(u.ctx, u.tx, ev); n != nil {
		u.created = append(u.created, n)
	}
}

// retract deletes the notifications matching q along with their deliveries.
func (u *unitOfWork) retract(q repositories.NotificationQuery) {
	u.touched = append(u.touched, u.notifications.Retract(u.ctx, u.tx, q)...)
}

// runInTx runs fn in a transaction and delivers the notifications it emitted once committed.
func runInTx(ctx context.Context, db *gorm.DB, notifications *NotificationService, fn func(u *unitOfWork) error) error {
	u := &unitOfWork{ctx: ctx, notifications: notifications}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u.tx = tx
		return fn(u)
	})
	if err != nil {
		return err
	}
	notifications.Deliver(ctx, u.created, u.touched)
	return nil
}
