package catalog

import (
	"context" // Context for DB operations
	"errors"  // Sentinel error checks

	"github.com/vanityapp123/vanityapp/internal/domain" // Importing domain models

	"gorm.io/gorm" // GORM ORM library
)

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = errors.New("catalog: product not found")

// Service owns the product catalog. Checkout reads it fresh on every request
// so a price change is always in effect immediately.
type Service struct {
	db *gorm.DB
}

// New creates a catalog service.
func New(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Get fetches one product by ID.
func (s *Service) Get(ctx context.Context, productID uint) (*domain.Product, error) {
	var p domain.Product
	if err := s.db.WithContext(ctx).First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// ListActive returns purchasable products, optionally filtered by city.
func (s *Service) ListActive(ctx context.Context, city string) ([]domain.Product, error) {
	q := s.db.WithContext(ctx).Where("is_active = ?", true)
	if city != "" {
		q = q.Where("city = ?", city)
	}
	var products []domain.Product
	err := q.Order("created_at desc").Find(&products).Error
	return products, err
}

// Create inserts a new product.
func (s *Service) Create(ctx context.Context, p *domain.Product) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// Update applies the given field changes to a product.
func (s *Service) Update(ctx context.Context, productID uint, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&domain.Product{}).Where("id = ?", productID).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-deletes a product; existing orders keep their snapshots.
func (s *Service) Deactivate(ctx context.Context, productID uint) error {
	return s.Update(ctx, productID, map[string]any{"is_active": false})
}

// DecrementStockTx reduces tracked stock by qty inside the caller's
// transaction. Unlimited-stock products are untouched. Zero affected rows
// means the stock ran out between validation and commit.
func (s *Service) DecrementStockTx(tx *gorm.DB, productID uint, qty int) error {
	res := tx.Model(&domain.Product{}).
		Where("id = ? AND (stock >= ? OR stock = ?)", productID, qty, domain.UnlimitedStock).
		Update("stock", gorm.Expr("CASE WHEN stock = ? THEN stock ELSE stock - ? END", domain.UnlimitedStock, qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
