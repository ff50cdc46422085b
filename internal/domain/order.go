package domain

import "github.com/shopspring/decimal"

// Order statuses
const (
	OrderCreated   = "created"   // Paid, waiting for delivery
	OrderFulfilled = "fulfilled" // Delivered to the buyer (terminal)
	OrderFailed    = "failed"    // Delivery retries exhausted or checkout rolled back (terminal)
)

// Order Model. The price and product name are snapshotted at checkout so
// later catalog changes never affect a placed order.
type Order struct {
	ID            uint            `gorm:"primaryKey"`                  // Primary key
	OrderID       string          `gorm:"size:36;uniqueIndex;not null"` // Public order identifier (UUID)
	GroupRef      string          `gorm:"size:64;index;not null"`      // Checkout group ref, shared by all lines of one checkout
	AccountID     uint            `gorm:"index;not null"`              // Foreign key to Account
	ProductID     uint            `gorm:"index;not null"`              // Foreign key to Product
	ProductName   string          // Product name at time of purchase
	Quantity      int             `gorm:"not null;default:1"`          // Units purchased on this line
	Price         decimal.Decimal `gorm:"type:decimal(20,9);not null"` // Line total in SOL at time of purchase
	Status        string          `gorm:"size:16;index;not null"`      // created, fulfilled or failed
	FailReason    string          // Last delivery error, set on failure
	Attempts      int             `gorm:"not null;default:0"`          // Delivery attempts so far
	NextAttemptAt int64           `gorm:"index"`                       // Earliest next delivery attempt in milliseconds
	CreatedAt     int64           `gorm:"autoCreateTime:milli"`        // Timestamp of creation in milliseconds
	DeliveredAt   int64           // Timestamp of successful delivery in milliseconds
}
