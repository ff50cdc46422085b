package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vanityapp123/vanityapp/internal/chain"
	"github.com/vanityapp123/vanityapp/internal/domain"
	"github.com/vanityapp123/vanityapp/internal/ledger"
	"github.com/vanityapp123/vanityapp/internal/settings"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stubChain serves canned transfer lists per address, honoring the watermark.
type stubChain struct {
	transfers map[string][]chain.Transfer
	errs      map[string]error
}

func (s *stubChain) ListTransactions(_ context.Context, address, sinceSig string) ([]chain.Transfer, error) {
	if err := s.errs[address]; err != nil {
		return nil, err
	}
	list := s.transfers[address]
	if sinceSig == "" {
		return list, nil
	}
	for i, t := range list {
		if t.Signature == sinceSig {
			return list[i+1:], nil
		}
	}
	return list, nil
}

func (s *stubChain) Balance(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

// stubNotifier records deposit notifications.
type stubNotifier struct {
	notified int
}

func (s *stubNotifier) NotifyDeposit(context.Context, int64, decimal.Decimal, decimal.Decimal) error {
	s.notified++
	return nil
}

func setup(t *testing.T) (*ledger.Store, *settings.Store) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Account{}, &domain.LedgerEntry{}, &domain.Setting{}))
	return ledger.New(db), settings.New(db)
}

func TestFinalDepositCreditedExactlyOnce(t *testing.T) {
	store, st := setup(t)
	ctx := context.Background()
	acct, err := store.GetOrCreateByTelegramID(ctx, 1, "alice", "Alice")
	require.NoError(t, err)

	ch := &stubChain{transfers: map[string][]chain.Transfer{
		acct.DepositAddress: {{Signature: "tx1", Amount: decimal.RequireFromString("2.5"), Final: true}},
	}}
	notifier := &stubNotifier{}
	m := New(store, ch, st, notifier, time.Second)

	// Two cycles over the same chain state: the deposit lands once
	m.Cycle(ctx)
	m.Cycle(ctx)

	got, err := store.AccountByID(ctx, acct.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.RequireFromString("2.5")), "balance %s", got.Balance)
	require.Equal(t, "tx1", got.LastDepositSig)
	require.Equal(t, 1, notifier.notified)
}

func TestUnsettledDepositIsRevisitedNotCredited(t *testing.T) {
	store, st := setup(t)
	ctx := context.Background()
	acct, err := store.GetOrCreateByTelegramID(ctx, 1, "alice", "Alice")
	require.NoError(t, err)

	ch := &stubChain{transfers: map[string][]chain.Transfer{
		acct.DepositAddress: {{Signature: "tx1", Amount: decimal.Zero, Final: false}},
	}}
	m := New(store, ch, st, nil, time.Second)
	m.Cycle(ctx)

	got, err := store.AccountByID(ctx, acct.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.IsZero())
	require.Empty(t, got.LastDepositSig, "watermark must not pass an unsettled transaction")

	// The transaction settles; next cycle credits it
	ch.transfers[acct.DepositAddress] = []chain.Transfer{
		{Signature: "tx1", Amount: decimal.RequireFromString("1.0"), Final: true},
	}
	m.Cycle(ctx)

	got, err = store.AccountByID(ctx, acct.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.RequireFromString("1.0")))
	require.Equal(t, "tx1", got.LastDepositSig)
}

func TestFailureOnOneAddressDoesNotBlockOthers(t *testing.T) {
	store, st := setup(t)
	ctx := context.Background()
	alice, err := store.GetOrCreateByTelegramID(ctx, 1, "alice", "Alice")
	require.NoError(t, err)
	bob, err := store.GetOrCreateByTelegramID(ctx, 2, "bob", "Bob")
	require.NoError(t, err)

	ch := &stubChain{
		transfers: map[string][]chain.Transfer{
			bob.DepositAddress: {{Signature: "tx2", Amount: decimal.RequireFromString("0.7"), Final: true}},
		},
		errs: map[string]error{alice.DepositAddress: errors.New("rpc unavailable")},
	}
	m := New(store, ch, st, nil, time.Second)
	m.Cycle(ctx)

	got, err := store.AccountByID(ctx, bob.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.Equal(decimal.RequireFromString("0.7")))
}

func TestDepositBelowMinimumIgnored(t *testing.T) {
	store, st := setup(t)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, domain.SettingMinDeposit, "0.01"))
	acct, err := store.GetOrCreateByTelegramID(ctx, 1, "alice", "Alice")
	require.NoError(t, err)

	ch := &stubChain{transfers: map[string][]chain.Transfer{
		acct.DepositAddress: {{Signature: "dust1", Amount: decimal.RequireFromString("0.000001"), Final: true}},
	}}
	m := New(store, ch, st, nil, time.Second)
	m.Cycle(ctx)

	got, err := store.AccountByID(ctx, acct.ID)
	require.NoError(t, err)
	require.True(t, got.Balance.IsZero())
	// Ignored dust is still processed: the watermark moves past it
	require.Equal(t, "dust1", got.LastDepositSig)
}
