package bundle

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"plugstore/internal/pricing"
)

type ApplyTo string

const (
	ApplyToCategory ApplyTo = "category"
	ApplyToProducts ApplyTo = "products"
)

var (
	ErrNotFound        = errors.New("bundle not found")
	ErrUnknownCategory = errors.New("bundle category does not exist")
	ErrUnknownProduct  = errors.New("bundle refers to a product that does not exist")
)

// Bundle: пассивная скидка на категорию или список товаров.
type Bundle struct {
	ID            int64                `json:"id"`
	Name          string               `json:"name"`
	DiscountType  pricing.DiscountType `json:"discount_type"`
	DiscountValue decimal.Decimal      `json:"discount_value"`
	ApplyTo       ApplyTo              `json:"apply_to"`
	CategoryID    *int64               `json:"category_id,omitempty"`
	ProductIDs    []int64              `json:"product_ids"`
	ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
	IsActive      bool                 `json:"is_active"`
	CreatedAt     time.Time            `json:"created_at"`
}

// InEffect: активен и не истёк.
func (b *Bundle) InEffect(now time.Time) bool {
	if !b.IsActive {
		return false
	}
	return b.ExpiresAt == nil || now.Before(*b.ExpiresAt)
}

// Matches проверяет область действия набора для товара.
func (b *Bundle) Matches(productID int64, categoryID *int64) bool {
	switch b.ApplyTo {
	case ApplyToCategory:
		return b.CategoryID != nil && categoryID != nil && *b.CategoryID == *categoryID
	case ApplyToProducts:
		for _, id := range b.ProductIDs {
			if id == productID {
				return true
			}
		}
	}
	return false
}
