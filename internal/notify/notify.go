// Package notify сообщает внешним системам о завершённых заказах
// (выдача товара на сервере, письмо покупателю).
package notify

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"plugstore/internal/order"
)

// OrderCompletedEvent: сообщение о завершённом заказе.
type OrderCompletedEvent struct {
	OrderID        int64           `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	UserID         int64           `json:"user_id"`
	ProductID      int64           `json:"product_id"`
	Amount         decimal.Decimal `json:"amount"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	PaymentMethod  string          `json:"payment_method"`
	CouponID       *int64          `json:"coupon_id,omitempty"`
	BundleID       *int64          `json:"bundle_id,omitempty"`
	CompletedAt    time.Time       `json:"completed_at"`
}

func NewOrderCompletedEvent(o *order.Order) OrderCompletedEvent {
	e := OrderCompletedEvent{
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		ProductID:      o.ProductID,
		Amount:         o.Amount,
		OriginalAmount: o.OriginalAmount,
		DiscountAmount: o.DiscountAmount,
		PaymentMethod:  o.PaymentMethod,
		CouponID:       o.CouponID,
		BundleID:       o.BundleID,
	}
	if o.CompletedAt != nil {
		e.CompletedAt = *o.CompletedAt
	}
	return e
}

// LogNotifier используется, когда брокер не настроен.
type LogNotifier struct{}

func (LogNotifier) OrderCompleted(ctx context.Context, o *order.Order) error {
	log.Printf("Notifier: order %s completed for user %d (product %d, paid %s)",
		o.OrderNumber, o.UserID, o.ProductID, o.Amount.StringFixed(2))
	return nil
}
