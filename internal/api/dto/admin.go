package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type CouponRequest struct {
	Code          string          `json:"code" validate:"required,min=3,max=64"`
	DiscountType  string          `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	MaxUses       *int            `json:"max_uses" validate:"omitempty,gt=0"`
	ExpiresAt     *time.Time      `json:"expires_at"`
	IsActive      *bool           `json:"is_active"`
	UsableInCart  *bool           `json:"usable_in_cart"`
	ProductIDs    []int64         `json:"product_ids" validate:"omitempty,dive,gt=0"`
}

type BundleRequest struct {
	Name          string          `json:"name" validate:"required,max=128"`
	DiscountType  string          `json:"discount_type" validate:"required,oneof=percentage fixed"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	ApplyTo       string          `json:"apply_to" validate:"required,oneof=category products"`
	CategoryID    *int64          `json:"category_id" validate:"omitempty,gt=0"`
	ProductIDs    []int64         `json:"product_ids" validate:"omitempty,dive,gt=0"`
	ExpiresAt     *time.Time      `json:"expires_at"`
	IsActive      *bool           `json:"is_active"`
}

type ProductRequest struct {
	Name          string           `json:"name" validate:"required,max=200"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"original_price"`
	CategoryID    *int64           `json:"category_id" validate:"omitempty,gt=0"`
	Status        string           `json:"status" validate:"omitempty,oneof=active inactive"`
	DownloadURL   *string          `json:"download_url" validate:"omitempty,url"`
	LicenseKey    *string          `json:"license_key" validate:"omitempty,max=256"`
}

type TopUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}
