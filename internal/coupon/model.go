package coupon

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"plugstore/internal/pricing"
)

var (
	ErrNotFound       = errors.New("coupon not found")
	ErrUnknownProduct = errors.New("coupon refers to a product that does not exist")
)

type Coupon struct {
	ID            int64                `json:"id"`
	Code          string               `json:"code"` // всегда в верхнем регистре
	DiscountType  pricing.DiscountType `json:"discount_type"`
	DiscountValue decimal.Decimal      `json:"discount_value"`
	MaxUses       *int                 `json:"max_uses,omitempty"` // nil = без ограничения
	UsedCount     int                  `json:"used_count"`
	ExpiresAt     *time.Time           `json:"expires_at,omitempty"`
	IsActive      bool                 `json:"is_active"`
	UsableInCart  bool                 `json:"usable_in_cart"`
	ProductIDs    []int64              `json:"product_ids"` // пусто = все платные товары
	CreatedAt     time.Time            `json:"created_at"`
}

// NormalizeCode приводит код к виду, в котором он хранится.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c *Coupon) Exhausted() bool {
	return c.MaxUses != nil && c.UsedCount >= *c.MaxUses
}

func (c *Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

func (c *Coupon) AppliesTo(productID int64) bool {
	if len(c.ProductIDs) == 0 {
		return true
	}
	for _, id := range c.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}
