package domain

import "github.com/shopspring/decimal"

// UnlimitedStock marks a product that is never depleted.
const UnlimitedStock = -1

// Product Model
type Product struct {
	ID          uint            `gorm:"primaryKey"`                  // Primary key
	Name        string          `gorm:"not null"`                    // Display name
	Description string          // Optional description
	City        string          // Optional city filter
	Location    string          // Optional pickup location
	Price       decimal.Decimal `gorm:"type:decimal(20,9);not null"` // Price in SOL
	Stock       int             `gorm:"default:-1"`                  // Remaining stock, -1 for unlimited
	IsActive    bool            `gorm:"default:true"`                // Soft-delete flag
	MediaRefs   string          `gorm:"type:text"`                   // Newline-separated media references delivered with the order
	CreatedAt   int64           `gorm:"autoCreateTime:milli"`        // Timestamp of creation in milliseconds
}

// Available reports whether the product can currently be purchased.
func (p *Product) Available() bool {
	return p.IsActive && (p.Stock == UnlimitedStock || p.Stock > 0)
}
