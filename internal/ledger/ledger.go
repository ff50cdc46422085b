package ledger

import (
	"context" // Context for DB operations
	"errors"  // Sentinel error checks
	"sync"    // Per-account locks
	"time"    // Conflict retry backoff

	"github.com/vanityapp123/vanityapp/internal/domain" // Importing domain models
	"github.com/vanityapp123/vanityapp/internal/wallet" // Deposit keypair generation

	"github.com/google/uuid"        // Entry identifiers
	"github.com/shopspring/decimal" // Exact SOL arithmetic
	"github.com/sirupsen/logrus"    // Logging library
	"gorm.io/gorm"                  // GORM ORM library
)

// Sentinel errors
var (
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	ErrWriteConflict = errors.New("ledger: write conflict") // Transient, retried internally
)

// conflictRetries bounds the internal retry loop for optimistic-lock
// conflicts caused by another process mutating the same account row.
const conflictRetries = 5

// Store is the single authority for account balances. Every balance change
// appends an immutable LedgerEntry and updates the derived balance in the
// same transaction, guarded by the account's version counter. Mutations on
// one account are serialized; different accounts proceed independently.
type Store struct {
	db    *gorm.DB
	mu    sync.Mutex            // Guards locks
	locks map[uint]*sync.Mutex  // One mutex per account
}

// New creates a ledger store backed by the given database.
func New(db *gorm.DB) *Store {
	return &Store{db: db, locks: make(map[uint]*sync.Mutex)}
}

// lockFor returns the mutex serializing mutations of one account.
func (s *Store) lockFor(accountID uint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lk, ok := s.locks[accountID]
	if !ok {
		lk = &sync.Mutex{}
		s.locks[accountID] = lk
	}
	return lk
}

// GetOrCreateByTelegramID returns the account for a Telegram user, creating
// it with a zero balance and a fresh deposit address on first contact.
func (s *Store) GetOrCreateByTelegramID(ctx context.Context, telegramID int64, username, firstName string) (*domain.Account, error) {
	var acct domain.Account
	err := s.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&acct).Error
	if err == nil {
		// Refresh activity timestamp on every authenticated contact
		s.db.WithContext(ctx).Model(&acct).Update("last_active_at", time.Now().UnixMilli())
		return &acct, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	// First contact: generate the deposit keypair before inserting so the
	// account never exists without an address to watch.
	kp, err := wallet.Generate()
	if err != nil {
		return nil, err
	}
	acct = domain.Account{
		TelegramID:     telegramID,
		Username:       username,
		FirstName:      firstName,
		Balance:        decimal.Zero,
		DepositAddress: kp.PublicKey,
		DepositKey:     kp.PrivateKey,
		Role:           "user",
		LastActiveAt:   time.Now().UnixMilli(),
	}
	if err := s.db.WithContext(ctx).Create(&acct).Error; err != nil {
		// Concurrent first contact: someone else inserted the row, reuse it
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			var existing domain.Account
			if qerr := s.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&existing).Error; qerr == nil {
				return &existing, nil
			}
		}
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"account_id":      acct.ID,
		"telegram_id":     telegramID,
		"deposit_address": acct.DepositAddress,
	}).Info("Account created")
	return &acct, nil
}

// AccountByID fetches an account by its internal ID.
func (s *Store) AccountByID(ctx context.Context, accountID uint) (*domain.Account, error) {
	var acct domain.Account
	if err := s.db.WithContext(ctx).First(&acct, accountID).Error; err != nil {
		return nil, err
	}
	return &acct, nil
}

// WatchedAccounts returns every account that has a deposit address, for the
// deposit monitor's poll cycle.
func (s *Store) WatchedAccounts(ctx context.Context) ([]domain.Account, error) {
	var accts []domain.Account
	err := s.db.WithContext(ctx).Where("deposit_address <> ''").Find(&accts).Error
	return accts, err
}

// Credit appends a deposit entry and increases the balance, unless an entry
// with the same externalRef already exists, in which case nothing changes and
// applied is false. The externalRef uniqueness is what makes re-submitting an
// already-seen blockchain transaction harmless.
func (s *Store) Credit(ctx context.Context, accountID uint, amount decimal.Decimal, externalRef string) (applied bool, err error) {
	if !amount.IsPositive() {
		return false, ErrInvalidAmount
	}
	lk := s.lockFor(accountID)
	lk.Lock()
	defer lk.Unlock()
	err = s.withConflictRetry(func() error {
		applied = false
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var count int64
			if err := tx.Model(&domain.LedgerEntry{}).Where("external_ref = ?", externalRef).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return nil // Already credited, no-op
			}
			acct, aerr := lockedAccount(tx, accountID)
			if aerr != nil {
				return aerr
			}
			if err := appendEntry(tx, accountID, amount, domain.EntryDeposit, externalRef); err != nil {
				return err
			}
			if err := bumpBalance(tx, acct, acct.Balance.Add(amount)); err != nil {
				return err
			}
			applied = true
			return nil
		})
	})
	// Another process inserted the same externalRef between the check and
	// the insert; the deposit is credited exactly once either way.
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err == nil && applied {
		logrus.WithFields(logrus.Fields{
			"account_id":   accountID,
			"amount":       amount.String(),
			"external_ref": externalRef,
		}).Info("Deposit credited")
	}
	return applied, err
}

// TryDebit atomically checks the balance and, only if sufficient, appends a
// debit entry and decreases it. When the balance is too low it returns
// ok=false and the current balance, with no side effects.
func (s *Store) TryDebit(ctx context.Context, accountID uint, amount decimal.Decimal, orderRef string) (ok bool, balanceAfter decimal.Decimal, err error) {
	if !amount.IsPositive() {
		return false, decimal.Zero, ErrInvalidAmount
	}
	lk := s.lockFor(accountID)
	lk.Lock()
	defer lk.Unlock()
	err = s.withConflictRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			acct, aerr := lockedAccount(tx, accountID)
			if aerr != nil {
				return aerr
			}
			// The check and the write commit together or not at all, so the
			// balance can never go negative.
			if acct.Balance.LessThan(amount) {
				ok = false
				balanceAfter = acct.Balance
				return nil
			}
			if err := appendEntry(tx, accountID, amount.Neg(), domain.EntryDebit, orderRef); err != nil {
				return err
			}
			newBal := acct.Balance.Sub(amount)
			if err := bumpBalance(tx, acct, newBal); err != nil {
				return err
			}
			ok = true
			balanceAfter = newBal
			return nil
		})
	})
	if err == nil && ok {
		logrus.WithFields(logrus.Fields{
			"account_id": accountID,
			"amount":     amount.String(),
			"order_ref":  orderRef,
			"balance":    balanceAfter.String(),
		}).Info("Balance debited")
	}
	return ok, balanceAfter, err
}

// Refund appends a positive refund entry, compensating a debit whose checkout
// could not be completed.
func (s *Store) Refund(ctx context.Context, accountID uint, amount decimal.Decimal, orderRef string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	lk := s.lockFor(accountID)
	lk.Lock()
	defer lk.Unlock()
	err := s.withConflictRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			acct, aerr := lockedAccount(tx, accountID)
			if aerr != nil {
				return aerr
			}
			if err := appendEntry(tx, accountID, amount, domain.EntryRefund, "refund:"+orderRef); err != nil {
				return err
			}
			return bumpBalance(tx, acct, acct.Balance.Add(amount))
		})
	})
	// A retried refund whose earlier attempt committed but whose result was
	// lost hits the unique entry ref; the money is already back.
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	if err == nil {
		logrus.WithFields(logrus.Fields{
			"account_id": accountID,
			"amount":     amount.String(),
			"order_ref":  orderRef,
		}).Info("Debit refunded")
	}
	return err
}

// AdvanceWatermark records the newest fully processed deposit signature for
// an account's address. Called only after Credit durably succeeded or
// no-op'd, so a crash can re-observe but never skip a deposit.
func (s *Store) AdvanceWatermark(ctx context.Context, accountID uint, signature string) error {
	return s.db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ?", accountID).
		Update("last_deposit_sig", signature).Error
}

// Entries returns one page of an account's ledger history, newest first,
// together with the total entry count.
func (s *Store) Entries(ctx context.Context, accountID uint, page, pageSize int) ([]domain.LedgerEntry, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&domain.LedgerEntry{}).Where("account_id = ?", accountID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var entries []domain.LedgerEntry
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).
		Order("id desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	return entries, total, err
}

// withConflictRetry re-runs fn while it fails with a version conflict,
// backing off briefly between attempts. Conflicts are transient and never
// surface to callers.
func (s *Store) withConflictRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		err = fn()
		if !errors.Is(err, ErrWriteConflict) {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * 5 * time.Millisecond)
	}
	return err
}

// lockedAccount loads the current account row inside a transaction.
func lockedAccount(tx *gorm.DB, accountID uint) (*domain.Account, error) {
	var acct domain.Account
	if err := tx.First(&acct, accountID).Error; err != nil {
		return nil, err
	}
	return &acct, nil
}

// appendEntry writes one immutable ledger entry.
func appendEntry(tx *gorm.DB, accountID uint, delta decimal.Decimal, kind, externalRef string) error {
	entry := domain.LedgerEntry{
		EntryID:     uuid.NewString(),
		AccountID:   accountID,
		Delta:       delta,
		Kind:        kind,
		ExternalRef: externalRef,
	}
	return tx.Create(&entry).Error
}

// bumpBalance writes the new derived balance guarded by the version counter.
// Zero affected rows means another writer got there first.
func bumpBalance(tx *gorm.DB, acct *domain.Account, newBalance decimal.Decimal) error {
	res := tx.Model(&domain.Account{}).
		Where("id = ? AND version = ?", acct.ID, acct.Version).
		Updates(map[string]any{"balance": newBalance, "version": acct.Version + 1})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrWriteConflict
	}
	return nil
}
