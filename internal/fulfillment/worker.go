package fulfillment

import (
	"context" // Cancellation of the consumer loop
	"errors"  // Sentinel error checks
	"time"    // Error backoff

	"github.com/vanityapp123/vanityapp/internal/catalog" // Media refs for delivery
	"github.com/vanityapp123/vanityapp/internal/domain"  // Importing domain models
	"github.com/vanityapp123/vanityapp/internal/ledger"  // Buyer lookup

	"github.com/sirupsen/logrus" // Logging library
)

// Deliverer pushes purchased goods to the buyer. product may be nil when the
// catalog entry was removed after purchase; the order snapshot still carries
// everything needed for a minimal delivery.
type Deliverer interface {
	Deliver(ctx context.Context, acct *domain.Account, order *domain.Order, product *domain.Product) error
}

// Worker consumes the queue and drives each order to fulfilled or failed.
type Worker struct {
	queue     *Queue
	store     *ledger.Store
	catalog   *catalog.Service
	deliverer Deliverer
}

// NewWorker creates a fulfillment worker.
func NewWorker(queue *Queue, store *ledger.Store, cat *catalog.Service, deliverer Deliverer) *Worker {
	return &Worker{queue: queue, store: store, catalog: cat, deliverer: deliverer}
}

// Run consumes orders until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	logrus.Info("Fulfillment worker started")
	for {
		order, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logrus.Info("Fulfillment worker stopped")
				return
			}
			logrus.WithField("error", err.Error()).Error("Dequeue failed")
			time.Sleep(time.Second)
			continue
		}
		w.handle(ctx, order)
	}
}

// handle attempts one delivery and reports the outcome to the queue.
func (w *Worker) handle(ctx context.Context, order *domain.Order) {
	acct, err := w.store.AccountByID(ctx, order.AccountID)
	if err != nil {
		w.fail(ctx, order, "account lookup failed: "+err.Error())
		return
	}
	product, err := w.catalog.Get(ctx, order.ProductID)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		w.fail(ctx, order, "product lookup failed: "+err.Error())
		return
	}
	if err := w.deliverer.Deliver(ctx, acct, order, product); err != nil {
		w.fail(ctx, order, err.Error())
		return
	}
	if err := w.queue.Ack(ctx, order.OrderID); err != nil {
		logrus.WithFields(logrus.Fields{
			"order_id": order.OrderID,
			"error":    err.Error(),
		}).Error("Failed to ack delivered order")
	}
}

// fail reports a delivery failure, logging if even that fails.
func (w *Worker) fail(ctx context.Context, order *domain.Order, reason string) {
	if err := w.queue.Fail(ctx, order.OrderID, reason); err != nil {
		logrus.WithFields(logrus.Fields{
			"order_id": order.OrderID,
			"error":    err.Error(),
		}).Error("Failed to record delivery failure")
	}
}
