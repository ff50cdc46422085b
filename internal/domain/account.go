package domain

import "github.com/shopspring/decimal"

// Account Model
type Account struct {
	ID             uint            `gorm:"primaryKey"`                            // Primary key
	TelegramID     int64           `gorm:"uniqueIndex;not null"`                  // Telegram user ID supplied by the identity layer
	Username       string          // Telegram username (may be empty)
	FirstName      string          // Telegram first name
	Balance        decimal.Decimal `gorm:"type:decimal(20,9);not null;default:0"` // Current spendable balance in SOL
	Version        uint64          `gorm:"not null;default:0"`                    // Optimistic concurrency counter, bumped on every balance change
	DepositAddress string          `gorm:"uniqueIndex"`                           // Per-account Solana deposit address
	DepositKey     string          // Base58-encoded private key of the deposit address
	LastDepositSig string          // Newest processed transaction signature (poll watermark)
	Role           string          `gorm:"default:user"`                          // Role: user or admin
	PasswordHash   string          // Bcrypt hash, set for admin accounts only
	IsBanned       bool            `gorm:"default:false"`                         // Banned accounts cannot check out
	CreatedAt      int64           `gorm:"autoCreateTime:milli"`                  // Timestamp of creation in milliseconds
	LastActiveAt   int64           // Timestamp of last authenticated request in milliseconds
}
