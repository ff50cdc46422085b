// Package monitor watches the blockchain for deposits into account addresses
// and credits the ledger exactly once per on-chain transaction.
package monitor

import (
	"context" // Cancellation of the poll loop
	"time"    // Poll interval

	"github.com/vanityapp123/vanityapp/internal/chain"    // Blockchain query collaborator
	"github.com/vanityapp123/vanityapp/internal/domain"   // Importing domain models
	"github.com/vanityapp123/vanityapp/internal/ledger"   // Balance authority
	"github.com/vanityapp123/vanityapp/internal/settings" // Runtime-tunable thresholds

	"github.com/shopspring/decimal" // Exact SOL arithmetic
	"github.com/sirupsen/logrus"    // Logging library
)

// Notifier tells a buyer their deposit landed. Notification is best-effort;
// a failure never blocks crediting.
type Notifier interface {
	NotifyDeposit(ctx context.Context, telegramID int64, amount, balance decimal.Decimal) error
}

// Monitor runs the recurring deposit poll cycle. Blockchain data is pulled,
// not pushed, so each cycle re-queries every watched address past its
// persisted watermark.
type Monitor struct {
	store    *ledger.Store
	chain    chain.Client
	settings *settings.Store
	notifier Notifier // may be nil
	interval time.Duration
}

// New creates a deposit monitor.
func New(store *ledger.Store, client chain.Client, st *settings.Store, notifier Notifier, interval time.Duration) *Monitor {
	return &Monitor{store: store, chain: client, settings: st, notifier: notifier, interval: interval}
}

// Run polls until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	logrus.WithField("interval", m.interval.String()).Info("Deposit monitor started")
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.Cycle(ctx)
		select {
		case <-ctx.Done():
			logrus.Info("Deposit monitor stopped")
			return
		case <-ticker.C:
		}
	}
}

// Cycle scans every watched address once. A failure on one address is logged
// and retried next cycle without blocking the others.
func (m *Monitor) Cycle(ctx context.Context) {
	accounts, err := m.store.WatchedAccounts(ctx)
	if err != nil {
		logrus.WithField("error", err.Error()).Error("Failed to list watched accounts")
		return
	}
	minDeposit := m.settings.Decimal(ctx, domain.SettingMinDeposit, decimal.Zero)
	for i := range accounts {
		if ctx.Err() != nil {
			return
		}
		acct := accounts[i]
		if err := m.scanAccount(ctx, &acct, minDeposit); err != nil {
			logrus.WithFields(logrus.Fields{
				"account_id": acct.ID,
				"address":    acct.DepositAddress,
				"error":      err.Error(),
			}).Warn("Deposit scan failed, will retry next cycle")
		}
	}
}

// scanAccount processes new transactions on one address in chain order. The
// watermark only moves past a transaction once its credit is durable, so a
// crash re-observes deposits but the externalRef uniqueness keeps the credit
// single-shot.
func (m *Monitor) scanAccount(ctx context.Context, acct *domain.Account, minDeposit decimal.Decimal) error {
	transfers, err := m.chain.ListTransactions(ctx, acct.DepositAddress, acct.LastDepositSig)
	if err != nil {
		return err
	}
	for _, t := range transfers {
		if !t.Final {
			// Not past the finality threshold yet; stop here so this and
			// everything after it is revisited next cycle. A reorg can
			// still drop it, so it must not be credited.
			return nil
		}
		switch {
		case !t.Amount.IsPositive():
			// Outbound or zero-delta transaction, nothing to credit
		case t.Amount.LessThan(minDeposit):
			logrus.WithFields(logrus.Fields{
				"account_id": acct.ID,
				"amount":     t.Amount.String(),
				"signature":  t.Signature,
			}).Warn("Deposit below minimum, ignored")
		default:
			applied, cerr := m.store.Credit(ctx, acct.ID, t.Amount, t.Signature)
			if cerr != nil {
				// Watermark stays put; the deposit is retried next cycle
				return cerr
			}
			if applied {
				m.notify(ctx, acct.ID, t.Amount)
			}
		}
		if err := m.store.AdvanceWatermark(ctx, acct.ID, t.Signature); err != nil {
			return err
		}
	}
	return nil
}

// notify sends a deposit confirmation to the buyer, logging failures.
func (m *Monitor) notify(ctx context.Context, accountID uint, amount decimal.Decimal) {
	if m.notifier == nil {
		return
	}
	acct, err := m.store.AccountByID(ctx, accountID)
	if err != nil {
		return
	}
	if err := m.notifier.NotifyDeposit(ctx, acct.TelegramID, amount, acct.Balance); err != nil {
		logrus.WithFields(logrus.Fields{
			"account_id": accountID,
			"error":      err.Error(),
		}).Warn("Deposit notification failed")
	}
}
