package dto

import (
	"github.com/shopspring/decimal"

	"plugstore/internal/discount"
)

type CalculateCouponDiscountRequest struct {
	CouponCode string `json:"coupon_code" validate:"required,max=64"`
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	// Context "cart" включает проверку usable_in_cart.
	Context string `json:"context" validate:"omitempty,oneof=product cart"`
}

type CalculateBundleDiscountRequest struct {
	BundleID  *int64 `json:"bundle_id" validate:"omitempty,gt=0"`
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
}

type DiscountResponse struct {
	OriginalAmount decimal.Decimal `json:"original_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	AppliedRule    *AppliedRule    `json:"applied_rule,omitempty"`
}

type AppliedRule struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func NewDiscountResponse(res *discount.Result) DiscountResponse {
	resp := DiscountResponse{
		OriginalAmount: res.OriginalAmount,
		FinalAmount:    res.FinalAmount,
		DiscountAmount: res.DiscountAmount,
	}
	if res.AppliedRule != nil {
		resp.AppliedRule = &AppliedRule{
			Kind: string(res.AppliedRule.Kind),
			ID:   res.AppliedRule.ID,
			Name: res.AppliedRule.Name,
		}
	}
	return resp
}
