package domain

// CheckoutReceipt stores the first response produced for a client-supplied
// idempotency key, so a retried identical checkout replays the original
// outcome instead of charging again.
type CheckoutReceipt struct {
	ID        uint   `gorm:"primaryKey"`                                     // Primary key
	AccountID uint   `gorm:"uniqueIndex:idx_receipt_account_key;not null"`   // Account the key is scoped to
	Key       string `gorm:"uniqueIndex:idx_receipt_account_key;size:128;not null"` // Client-supplied idempotency key
	Status    int    `gorm:"not null"`                                       // Recorded HTTP status
	Body      []byte // Recorded response body (JSON)
	CreatedAt int64  `gorm:"autoCreateTime:milli"`                           // Timestamp of creation in milliseconds
}
