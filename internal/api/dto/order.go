package dto

type CreateOrderRequest struct {
	ProductID     int64  `json:"product_id" validate:"required,gt=0"`
	PaymentMethod string `json:"payment_method" validate:"required,max=32"`
	CouponCode    string `json:"coupon_code" validate:"omitempty,max=64"`
}

type PaymentWebhookRequest struct {
	OrderID int64  `json:"order_id" validate:"required,gt=0"`
	Status  string `json:"status" validate:"required,oneof=paid failed"`
}
