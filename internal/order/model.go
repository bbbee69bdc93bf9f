package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const (
	PaymentBalance = "balance"
	PaymentFree    = "free"
)

const (
	LicenseActive   = "active"
	LicenseInactive = "inactive"
)

var (
	ErrNotFound        = errors.New("order not found")
	ErrLicenseNotFound = errors.New("license not found")
)

// Order: покупка одного товара одним пользователем.
// Amount + DiscountAmount всегда равно OriginalAmount.
type Order struct {
	ID             int64           `json:"id"`
	OrderNumber    string          `json:"order_number"`
	UserID         int64           `json:"user_id"`
	ProductID      int64           `json:"product_id"`
	Amount         decimal.Decimal `json:"amount"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	PaymentMethod  string          `json:"payment_method"`
	Status         Status          `json:"status"`
	CouponID       *int64          `json:"coupon_id,omitempty"`
	BundleID       *int64          `json:"bundle_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

// License выдаётся ровно одна на завершённый заказ.
type License struct {
	ID          int64     `json:"id"`
	OrderID     int64     `json:"order_id"`
	DownloadURL *string   `json:"download_url,omitempty"`
	LicenseKey  *string   `json:"license_key,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}
