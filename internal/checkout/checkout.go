// Package checkout settles a cart against the balance ledger: one atomic
// debit, then order creation and fulfillment enqueue, with a compensating
// refund if anything after the debit fails.
package checkout

import (
	"context" // Context for DB operations
	"errors"  // Sentinel error checks
	"fmt"     // Error wrapping
	"time"    // Refund retry backoff

	"github.com/vanityapp123/vanityapp/internal/catalog" // Product reference data
	"github.com/vanityapp123/vanityapp/internal/domain"  // Importing domain models
	"github.com/vanityapp123/vanityapp/internal/ledger"  // Balance authority

	"github.com/google/uuid"        // Order identifiers
	"github.com/shopspring/decimal" // Exact SOL arithmetic
	"github.com/sirupsen/logrus"    // Logging library
	"gorm.io/gorm"                  // GORM ORM library
)

// Sentinel errors, all raised before any money moves.
var (
	ErrEmptyCart          = errors.New("checkout: cart is empty")
	ErrInvalidQuantity    = errors.New("checkout: quantity must be positive")
	ErrProductUnavailable = errors.New("checkout: product unavailable")
	ErrAccountBanned      = errors.New("checkout: account is banned")
)

// refundRetries bounds the compensation loop before the condition is
// escalated to operators. A refund that cannot be applied means a buyer was
// charged for nothing, so every attempt is logged loudly.
const refundRetries = 10

// Item is one cart line as submitted by the client. Prices are never
// client-supplied; the catalog is consulted at checkout time.
type Item struct {
	ProductID uint `json:"product_id" binding:"required"` // Product to purchase
	Quantity  int  `json:"quantity"`                      // Units, defaults to 1
}

// OrderLine is the order snapshot returned to the buyer.
type OrderLine struct {
	OrderID     string          `json:"order_id"`     // Public order identifier
	ProductID   uint            `json:"product_id"`   // Purchased product
	ProductName string          `json:"product_name"` // Name at time of purchase
	Quantity    int             `json:"quantity"`     // Units purchased
	Price       decimal.Decimal `json:"price"`        // Line total in SOL at time of purchase
}

// Result is the outcome of a checkout. When OK is false the failure was
// insufficient balance and Balance/Required describe the shortfall; every
// other failure mode is an error.
type Result struct {
	OK       bool
	Orders   []OrderLine
	Balance  decimal.Decimal
	Required decimal.Decimal
}

// Enqueuer hands a created order to the fulfillment queue inside the
// checkout's own transaction, so debit compensation covers enqueue failures.
type Enqueuer interface {
	EnqueueTx(tx *gorm.DB, order *domain.Order) error
}

// Engine executes checkouts.
type Engine struct {
	db      *gorm.DB
	ledger  *ledger.Store
	catalog *catalog.Service
	queue   Enqueuer
}

// New creates a checkout engine.
func New(db *gorm.DB, ledgerStore *ledger.Store, cat *catalog.Service, queue Enqueuer) *Engine {
	return &Engine{db: db, ledger: ledgerStore, catalog: cat, queue: queue}
}

// Process validates the cart, debits the total and creates one order per
// cart line. Everything before the debit leaves zero side effects; any
// failure after a successful debit refunds the full amount.
func (e *Engine) Process(ctx context.Context, accountID uint, items []Item) (*Result, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	acct, err := e.ledger.AccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.IsBanned {
		return nil, ErrAccountBanned
	}

	// Fetch every product fresh so pricing is current, and fail fast with
	// no side effects if anything is not purchasable.
	products := make([]*domain.Product, len(items))
	required := decimal.Zero
	for i, item := range items {
		qty := item.Quantity
		if qty == 0 {
			qty = 1
			items[i].Quantity = 1
		}
		if qty < 0 {
			return nil, ErrInvalidQuantity
		}
		p, err := e.catalog.Get(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, fmt.Errorf("%w: product %d", ErrProductUnavailable, item.ProductID)
			}
			return nil, err
		}
		if !p.Available() {
			return nil, fmt.Errorf("%w: product %d", ErrProductUnavailable, item.ProductID)
		}
		products[i] = p
		required = required.Add(p.Price.Mul(decimal.NewFromInt(int64(qty))))
	}

	// The debit is the point of no return: the balance check and the write
	// are one atomic unit inside the ledger.
	groupRef := "order_group_" + uuid.NewString()
	ok, balance, err := e.ledger.TryDebit(ctx, accountID, required, groupRef)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Result{OK: false, Balance: balance, Required: required}, nil
	}

	orders, err := e.createOrders(ctx, accountID, groupRef, items, products)
	if err != nil {
		// Money was taken but no orders exist: compensate before reporting
		logrus.WithFields(logrus.Fields{
			"account_id": accountID,
			"group_ref":  groupRef,
			"error":      err.Error(),
		}).Error("Order creation failed after debit, refunding")
		if rerr := e.refundWithRetry(ctx, accountID, required, groupRef); rerr != nil {
			return nil, rerr
		}
		return nil, err
	}

	lines := make([]OrderLine, len(orders))
	for i, o := range orders {
		lines[i] = OrderLine{
			OrderID:     o.OrderID,
			ProductID:   o.ProductID,
			ProductName: o.ProductName,
			Quantity:    o.Quantity,
			Price:       o.Price,
		}
	}
	logrus.WithFields(logrus.Fields{
		"account_id": accountID,
		"group_ref":  groupRef,
		"total":      required.String(),
		"orders":     len(lines),
	}).Info("Checkout settled")
	return &Result{OK: true, Orders: lines, Balance: balance, Required: required}, nil
}

// createOrders decrements stock, creates one order per cart line and hands
// each to the fulfillment queue, all in a single transaction so there is
// never a partially placed checkout.
func (e *Engine) createOrders(ctx context.Context, accountID uint, groupRef string, items []Item, products []*domain.Product) ([]*domain.Order, error) {
	orders := make([]*domain.Order, len(items))
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, item := range items {
			p := products[i]
			if p.Stock != domain.UnlimitedStock {
				if err := e.catalog.DecrementStockTx(tx, p.ID, item.Quantity); err != nil {
					return fmt.Errorf("%w: product %d", ErrProductUnavailable, p.ID)
				}
			}
			order := &domain.Order{
				OrderID:     uuid.NewString(),
				GroupRef:    groupRef,
				AccountID:   accountID,
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    item.Quantity,
				Price:       p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))),
			}
			if err := e.queue.EnqueueTx(tx, order); err != nil {
				return err
			}
			orders[i] = order
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// refundWithRetry applies the compensating refund, retrying transient
// failures. Exhausting the retries is an operational emergency: the buyer
// has paid and holds nothing.
func (e *Engine) refundWithRetry(ctx context.Context, accountID uint, amount decimal.Decimal, groupRef string) error {
	// A client disconnect must not abandon the compensation
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 1; attempt <= refundRetries; attempt++ {
		if err = e.ledger.Refund(ctx, accountID, amount, groupRef); err == nil {
			return nil
		}
		logrus.WithFields(logrus.Fields{
			"account_id": accountID,
			"group_ref":  groupRef,
			"attempt":    attempt,
			"error":      err.Error(),
		}).Warn("Refund attempt failed")
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	logrus.WithFields(logrus.Fields{
		"account_id": accountID,
		"group_ref":  groupRef,
		"amount":     amount.String(),
	}).Error("Refund stuck, manual reconciliation required")
	return err
}
