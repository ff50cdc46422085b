package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vanityapp123/vanityapp/internal/catalog"
	"github.com/vanityapp123/vanityapp/internal/domain"
	"github.com/vanityapp123/vanityapp/internal/fulfillment"
	"github.com/vanityapp123/vanityapp/internal/ledger"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	db      *gorm.DB
	ledger  *ledger.Store
	catalog *catalog.Service
	queue   *fulfillment.Queue
	engine  *Engine
	acctID  uint
}

// newFixture builds an engine over an in-memory database with one funded
// account.
func newFixture(t *testing.T, funding string) *fixture {
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

	ledgerStore := ledger.New(db)
	cat := catalog.New(db)
	queue := fulfillment.NewQueue(db, 3, time.Second)

	acct, err := ledgerStore.GetOrCreateByTelegramID(context.Background(), 7, "buyer", "Buyer")
	require.NoError(t, err)
	if funding != "" {
		_, err = ledgerStore.Credit(context.Background(), acct.ID, decimal.RequireFromString(funding), "funding_tx")
		require.NoError(t, err)
	}
	return &fixture{
		db:      db,
		ledger:  ledgerStore,
		catalog: cat,
		queue:   queue,
		engine:  New(db, ledgerStore, cat, queue),
		acctID:  acct.ID,
	}
}

// addProduct inserts a purchasable product and returns its ID.
func (f *fixture) addProduct(t *testing.T, name, price string, stock int) uint {
	t.Helper()
	p := &domain.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock, IsActive: true}
	require.NoError(t, f.catalog.Create(context.Background(), p))
	return p.ID
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	acct, err := f.ledger.AccountByID(context.Background(), f.acctID)
	require.NoError(t, err)
	return acct.Balance
}

func TestEmptyCartRejected(t *testing.T) {
	f := newFixture(t, "1.0")
	_, err := f.engine.Process(context.Background(), f.acctID, nil)
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestUnknownProductRejectedWithoutSideEffects(t *testing.T) {
	f := newFixture(t, "1.0")
	_, err := f.engine.Process(context.Background(), f.acctID, []Item{{ProductID: 999, Quantity: 1}})
	require.ErrorIs(t, err, ErrProductUnavailable)
	require.True(t, f.balance(t).Equal(decimal.RequireFromString("1.0")))

	var orders int64
	require.NoError(t, f.db.Model(&domain.Order{}).Count(&orders).Error)
	require.Zero(t, orders)
}

func TestInactiveProductRejected(t *testing.T) {
	f := newFixture(t, "1.0")
	id := f.addProduct(t, "Skyline Set", "0.5", domain.UnlimitedStock)
	require.NoError(t, f.catalog.Deactivate(context.Background(), id))

	_, err := f.engine.Process(context.Background(), f.acctID, []Item{{ProductID: id, Quantity: 1}})
	require.ErrorIs(t, err, ErrProductUnavailable)
}

func TestInsufficientBalanceLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, "1.0")
	id := f.addProduct(t, "Skyline Set", "1.5", domain.UnlimitedStock)

	res, err := f.engine.Process(context.Background(), f.acctID, []Item{{ProductID: id, Quantity: 1}})
	require.NoError(t, err)
	require.False(t, res.OK)
	require.True(t, res.Balance.Equal(decimal.RequireFromString("1.0")))
	require.True(t, res.Required.Equal(decimal.RequireFromString("1.5")))
	require.True(t, f.balance(t).Equal(decimal.RequireFromString("1.0")))

	var orders int64
	require.NoError(t, f.db.Model(&domain.Order{}).Count(&orders).Error)
	require.Zero(t, orders, "a failed debit must not create orders")
}

func TestSuccessfulCheckoutDebitsAndEnqueues(t *testing.T) {
	f := newFixture(t, "2.0")
	id := f.addProduct(t, "Skyline Set", "1.2", 5)

	res, err := f.engine.Process(context.Background(), f.acctID, []Item{{ProductID: id, Quantity: 1}})
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Len(t, res.Orders, 1)
	require.True(t, res.Orders[0].Price.Equal(decimal.RequireFromString("1.2")))
	require.True(t, res.Balance.Equal(decimal.RequireFromString("0.8")))
	require.True(t, f.balance(t).Equal(decimal.RequireFromString("0.8")))

	// The order is waiting in the queue, price snapshotted
	var order domain.Order
	require.NoError(t, f.db.Where("order_id = ?", res.Orders[0].OrderID).First(&order).Error)
	require.Equal(t, domain.OrderCreated, order.Status)
	require.Equal(t, "Skyline Set", order.ProductName)

	// Stock was decremented
	p, err := f.catalog.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 4, p.Stock)
}

func TestQuantityDefaultsToOne(t *testing.T) {
	f := newFixture(t, "2.0")
	id := f.addProduct(t, "Skyline Set", "0.5", domain.UnlimitedStock)

	res, err := f.engine.Process(context.Background(), f.acctID, []Item{{ProductID: id}})
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, 1, res.Orders[0].Quantity)
	require.True(t, res.Balance.Equal(decimal.RequireFromString("1.5")))
}

func TestConcurrentCheckoutsExactlyOneSucceeds(t *testing.T) {
	f := newFixture(t, "1.0")
	id := f.addProduct(t, "Skyline Set", "0.6", domain.UnlimitedStock)

	results := make(chan *Result, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.Process(context.Background(), f.acctID, []Item{{ProductID: id, Quantity: 1}})
			require.NoError(t, err)
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	wins, losses := 0, 0
	for res := range results {
		if res.OK {
			wins++
		} else {
			losses++
			// The loser sees the post-debit balance
			require.True(t, res.Balance.Equal(decimal.RequireFromString("0.4")), "balance %s", res.Balance)
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, losses)
	require.True(t, f.balance(t).Equal(decimal.RequireFromString("0.4")))
}

// failingQueue simulates the fulfillment queue being unavailable.
type failingQueue struct{}

func (failingQueue) EnqueueTx(*gorm.DB, *domain.Order) error {
	return errors.New("queue unavailable")
}

func TestEnqueueFailureAfterDebitIsRefunded(t *testing.T) {
	f := newFixture(t, "2.0")
	id := f.addProduct(t, "Skyline Set", "1.2", domain.UnlimitedStock)
	engine := New(f.db, f.ledger, f.catalog, failingQueue{})

	_, err := engine.Process(context.Background(), f.acctID, []Item{{ProductID: id, Quantity: 1}})
	require.Error(t, err)

	// Debit fully compensated, no orphaned orders
	require.True(t, f.balance(t).Equal(decimal.RequireFromString("2.0")))
	var orders int64
	require.NoError(t, f.db.Model(&domain.Order{}).Count(&orders).Error)
	require.Zero(t, orders)

	// Both the debit and the refund are on the ledger
	var kinds []string
	require.NoError(t, f.db.Model(&domain.LedgerEntry{}).Where("account_id = ?", f.acctID).Order("id").Pluck("kind", &kinds).Error)
	require.Equal(t, []string{domain.EntryDeposit, domain.EntryDebit, domain.EntryRefund}, kinds)
}

func TestStockRaceAfterDebitIsRefunded(t *testing.T) {
	f := newFixture(t, "2.0")
	// One unit in stock, but the cart wants it on two lines: validation
	// passes per line, the second decrement fails inside the transaction
	id := f.addProduct(t, "Skyline Set", "0.5", 1)

	_, err := f.engine.Process(context.Background(), f.acctID, []Item{
		{ProductID: id, Quantity: 1},
		{ProductID: id, Quantity: 1},
	})
	require.ErrorIs(t, err, ErrProductUnavailable)
	require.True(t, f.balance(t).Equal(decimal.RequireFromString("2.0")))

	// The rolled-back transaction left no orders and no stock change
	p, err := f.catalog.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 1, p.Stock)
}
