package fulfillment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vanityapp123/vanityapp/internal/catalog"
	"github.com/vanityapp123/vanityapp/internal/domain"
	"github.com/vanityapp123/vanityapp/internal/ledger"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Account{}, &domain.LedgerEntry{}, &domain.Product{}, &domain.Order{}))
	return db
}

func newOrder(accountID uint) *domain.Order {
	return &domain.Order{
		OrderID:     uuid.NewString(),
		GroupRef:    "order_group_" + uuid.NewString(),
		AccountID:   accountID,
		ProductID:   1,
		ProductName: "Skyline Set",
		Quantity:    1,
		Price:       decimal.RequireFromString("0.5"),
	}
}

func TestEnqueueDequeueAck(t *testing.T) {
	db := openTestDB(t)
	// Zero backoff so claimed work is immediately visible again in tests
	q := NewQueue(db, 3, 0)

	order := newOrder(1)
	require.NoError(t, q.Enqueue(context.Background(), order))

	claimed, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, order.OrderID, claimed.OrderID)
	require.Equal(t, 1, claimed.Attempts)

	require.NoError(t, q.Ack(context.Background(), claimed.OrderID))

	var stored domain.Order
	require.NoError(t, db.Where("order_id = ?", order.OrderID).First(&stored).Error)
	require.Equal(t, domain.OrderFulfilled, stored.Status)
	require.NotZero(t, stored.DeliveredAt)

	// Nothing left to claim
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDequeueBlocksUntilCancelled(t *testing.T) {
	db := openTestDB(t)
	q := NewQueue(db, 3, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClaimedOrderIsInvisibleDuringBackoff(t *testing.T) {
	db := openTestDB(t)
	q := NewQueue(db, 3, time.Minute)

	require.NoError(t, q.Enqueue(context.Background(), newOrder(1)))
	_, err := q.Dequeue(context.Background())
	require.NoError(t, err)

	// The visibility window keeps the in-flight order away from other consumers
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFailRequeuesUntilAttemptsExhausted(t *testing.T) {
	db := openTestDB(t)
	q := NewQueue(db, 2, 0)

	order := newOrder(1)
	require.NoError(t, q.Enqueue(context.Background(), order))

	// First attempt fails and requeues
	claimed, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.NoError(t, q.Fail(context.Background(), claimed.OrderID, "chat unreachable"))

	var stored domain.Order
	require.NoError(t, db.Where("order_id = ?", order.OrderID).First(&stored).Error)
	require.Equal(t, domain.OrderCreated, stored.Status)
	require.Equal(t, "chat unreachable", stored.FailReason)

	// Second attempt hits the bound and the order goes terminal
	claimed, err = q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, claimed.Attempts)
	require.NoError(t, q.Fail(context.Background(), claimed.OrderID, "chat unreachable"))

	require.NoError(t, db.Where("order_id = ?", order.OrderID).First(&stored).Error)
	require.Equal(t, domain.OrderFailed, stored.Status)

	// Terminal orders surface in the review list and never requeue
	failed, err := q.Failed(context.Background())
	require.NoError(t, err)
	require.Len(t, failed, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAckUnknownOrder(t *testing.T) {
	db := openTestDB(t)
	q := NewQueue(db, 3, 0)
	require.ErrorIs(t, q.Ack(context.Background(), uuid.NewString()), ErrNotFound)
	require.ErrorIs(t, q.Fail(context.Background(), uuid.NewString(), "x"), ErrNotFound)
}

func TestOrdersByAccount(t *testing.T) {
	db := openTestDB(t)
	q := NewQueue(db, 3, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(context.Background(), newOrder(1)))
	}
	require.NoError(t, q.Enqueue(context.Background(), newOrder(2)))

	orders, err := q.OrdersByAccount(context.Background(), 1, 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		require.Equal(t, uint(1), o.AccountID)
	}
}

// stubDeliverer fails a configurable number of times before succeeding.
type stubDeliverer struct {
	failures  int
	delivered []string
}

func (d *stubDeliverer) Deliver(_ context.Context, _ *domain.Account, order *domain.Order, _ *domain.Product) error {
	if d.failures > 0 {
		d.failures--
		return errors.New("telegram timeout")
	}
	d.delivered = append(d.delivered, order.OrderID)
	return nil
}

func TestWorkerDeliversAndAcks(t *testing.T) {
	db := openTestDB(t)
	q := NewQueue(db, 3, 0)
	store := ledger.New(db)
	cat := catalog.New(db)

	acct, err := store.GetOrCreateByTelegramID(context.Background(), 9, "buyer", "Buyer")
	require.NoError(t, err)

	order := newOrder(acct.ID)
	require.NoError(t, q.Enqueue(context.Background(), order))

	deliverer := &stubDeliverer{}
	w := NewWorker(q, store, cat, deliverer)

	claimed, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	w.handle(context.Background(), claimed)

	require.Equal(t, []string{order.OrderID}, deliverer.delivered)
	var stored domain.Order
	require.NoError(t, db.Where("order_id = ?", order.OrderID).First(&stored).Error)
	require.Equal(t, domain.OrderFulfilled, stored.Status)
}

func TestWorkerRetriesFailedDelivery(t *testing.T) {
	db := openTestDB(t)
	q := NewQueue(db, 3, 0)
	store := ledger.New(db)
	cat := catalog.New(db)

	acct, err := store.GetOrCreateByTelegramID(context.Background(), 9, "buyer", "Buyer")
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), newOrder(acct.ID)))

	deliverer := &stubDeliverer{failures: 1}
	w := NewWorker(q, store, cat, deliverer)

	// First pass fails and requeues, second delivers
	claimed, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	w.handle(context.Background(), claimed)
	require.Empty(t, deliverer.delivered)

	claimed, err = q.Dequeue(context.Background())
	require.NoError(t, err)
	w.handle(context.Background(), claimed)
	require.Len(t, deliverer.delivered, 1)
}
