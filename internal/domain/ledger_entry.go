package domain

import "github.com/shopspring/decimal"

// Ledger entry kinds
const (
	EntryDeposit = "deposit" // On-chain deposit credited to the account
	EntryDebit   = "debit"   // Checkout debit
	EntryRefund  = "refund"  // Compensating credit after a failed checkout
)

// LedgerEntry Model. Entries are append-only; an account's balance always
// equals the sum of its entry deltas.
type LedgerEntry struct {
	ID          uint            `gorm:"primaryKey"`                   // Primary key
	EntryID     string          `gorm:"size:36;uniqueIndex;not null"` // Public entry identifier (UUID)
	AccountID   uint            `gorm:"index;not null"`               // Foreign key to Account
	Delta       decimal.Decimal `gorm:"type:decimal(20,9);not null"`  // Signed balance change in SOL
	Kind        string          `gorm:"size:16;index;not null"`       // deposit, debit or refund
	ExternalRef string          `gorm:"size:128;uniqueIndex;not null"` // Blockchain tx signature or order group ref; unique system-wide
	CreatedAt   int64           `gorm:"autoCreateTime:milli"`         // Timestamp of creation in milliseconds
}
