// Package fulfillment is the durable work queue of paid orders awaiting
// delivery. Orders are claimed at-least-once; delivery failures requeue with
// backoff until a bounded attempt count, after which the order is marked
// failed and surfaced for manual review — money has already been taken, so
// nothing here is ever silently dropped.
package fulfillment

import (
	"context" // Cancellation of the blocking dequeue
	"errors"  // Sentinel error checks
	"time"    // Backoff and poll timing

	"github.com/vanityapp123/vanityapp/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/gorm"               // GORM ORM library
)

// ErrNotFound is returned when an acked or failed order does not exist.
var ErrNotFound = errors.New("fulfillment: order not found")

// Queue is a database-backed order queue. Durability comes from the orders
// table itself: an order in status created with a due next_attempt_at is
// claimable work, surviving restarts.
type Queue struct {
	db          *gorm.DB
	maxAttempts int           // Delivery attempts before the order is marked failed
	backoff     time.Duration // Base delay between retries, growing linearly
	poll        time.Duration // How often Dequeue re-checks for claimable work
}

// NewQueue creates a fulfillment queue.
func NewQueue(db *gorm.DB, maxAttempts int, backoff time.Duration) *Queue {
	return &Queue{db: db, maxAttempts: maxAttempts, backoff: backoff, poll: time.Second}
}

// EnqueueTx persists a new order in claimable state inside the caller's
// transaction, so checkout's debit compensation covers enqueue failures.
func (q *Queue) EnqueueTx(tx *gorm.DB, order *domain.Order) error {
	order.Status = domain.OrderCreated
	order.NextAttemptAt = time.Now().UnixMilli()
	return tx.Create(order).Error
}

// Enqueue persists a new order in claimable state.
func (q *Queue) Enqueue(ctx context.Context, order *domain.Order) error {
	return q.EnqueueTx(q.db.WithContext(ctx), order)
}

// Dequeue blocks until an order is claimable or the context is cancelled.
// Claiming bumps the attempt counter and pushes next_attempt_at forward as a
// visibility window, so a crashed consumer's order resurfaces on its own.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Order, error) {
	for {
		order, err := q.claim(ctx)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.poll):
		}
	}
}

// claim atomically takes the oldest due order, or returns nil when there is
// none. The guarded update makes concurrent consumers race safely: only one
// wins the row.
func (q *Queue) claim(ctx context.Context) (*domain.Order, error) {
	now := time.Now().UnixMilli()
	var order domain.Order
	err := q.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", domain.OrderCreated, now).
		Order("id").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	res := q.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ? AND status = ? AND attempts = ?", order.ID, domain.OrderCreated, order.Attempts).
		Updates(map[string]any{
			"attempts":        order.Attempts + 1,
			"next_attempt_at": now + (2 * q.backoff).Milliseconds(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil // Another consumer won the claim; look again
	}
	order.Attempts++
	return &order, nil
}

// Ack marks an order delivered (terminal).
func (q *Queue) Ack(ctx context.Context, orderID string) error {
	res := q.db.WithContext(ctx).Model(&domain.Order{}).
		Where("order_id = ? AND status = ?", orderID, domain.OrderCreated).
		Updates(map[string]any{
			"status":       domain.OrderFulfilled,
			"delivered_at": time.Now().UnixMilli(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	logrus.WithField("order_id", orderID).Info("Order fulfilled")
	return nil
}

// Fail records a delivery failure. Below the attempt bound the order is
// requeued with linear backoff; at the bound it becomes failed (terminal)
// and is escalated, since it represents paid-but-undelivered goods.
func (q *Queue) Fail(ctx context.Context, orderID, reason string) error {
	var order domain.Order
	if err := q.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if order.Attempts >= q.maxAttempts {
		err := q.db.WithContext(ctx).Model(&order).Updates(map[string]any{
			"status":      domain.OrderFailed,
			"fail_reason": reason,
		}).Error
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"order_id":   orderID,
			"account_id": order.AccountID,
			"attempts":   order.Attempts,
			"reason":     reason,
		}).Error("Order delivery exhausted retries, manual review required")
		return nil
	}
	next := time.Now().Add(time.Duration(order.Attempts) * q.backoff).UnixMilli()
	err := q.db.WithContext(ctx).Model(&order).Updates(map[string]any{
		"fail_reason":     reason,
		"next_attempt_at": next,
	}).Error
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"order_id": orderID,
		"attempts": order.Attempts,
		"reason":   reason,
	}).Warn("Order delivery failed, requeued")
	return nil
}

// Failed lists orders whose delivery retries are exhausted, for the admin
// review queue.
func (q *Queue) Failed(ctx context.Context) ([]domain.Order, error) {
	var orders []domain.Order
	err := q.db.WithContext(ctx).Where("status = ?", domain.OrderFailed).Order("id desc").Find(&orders).Error
	return orders, err
}

// OrdersByAccount returns a buyer's most recent orders.
func (q *Queue) OrdersByAccount(ctx context.Context, accountID uint, limit int) ([]domain.Order, error) {
	var orders []domain.Order
	err := q.db.WithContext(ctx).Where("account_id = ?", accountID).Order("id desc").Limit(limit).Find(&orders).Error
	return orders, err
}
