// Package discount выбирает скидку для покупки товара: купон, введённый
// пользователем, или пассивный набор (bundle), действующий на товар.
//
// Ошибки купона возвращаются вызывающему: это явное действие пользователя.
// Наборы никогда не дают ошибок: неактивный, истёкший или чужой набор
// просто не участвует. Если применимы оба, выигрывает большая скидка;
// при равенстве остаётся набор, и купон не расходуется.
//
// Resolve ничего не пишет. Использование купона засчитывает оформление
// заказа в своей транзакции, поэтому повторные предпросмотры цены не
// тратят лимит.
package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"plugstore/internal/bundle"
	"plugstore/internal/coupon"
	"plugstore/internal/metrics"
	"plugstore/internal/pricing"
)

var (
	ErrCouponNotFound        = errors.New("coupon not found")
	ErrCouponInactive        = errors.New("coupon is not active")
	ErrCouponExpired         = errors.New("coupon has expired")
	ErrCouponExhausted       = errors.New("coupon usage limit reached")
	ErrCouponNotApplicable   = errors.New("coupon does not apply to this product")
	ErrCouponNotUsableInCart = errors.New("coupon cannot be used in cart")

	ErrNegativeAmount = errors.New("base amount must not be negative")
)

// IsCouponError: ошибка относится к купону и может быть показана пользователю.
func IsCouponError(err error) bool {
	return errors.Is(err, ErrCouponNotFound) ||
		errors.Is(err, ErrCouponInactive) ||
		errors.Is(err, ErrCouponExpired) ||
		errors.Is(err, ErrCouponExhausted) ||
		errors.Is(err, ErrCouponNotApplicable) ||
		errors.Is(err, ErrCouponNotUsableInCart)
}

type CouponStore interface {
	GetByCode(ctx context.Context, code string) (*coupon.Coupon, error)
}

type BundleStore interface {
	GetByID(ctx context.Context, id int64) (*bundle.Bundle, error)
	ListActive(ctx context.Context, now time.Time) ([]*bundle.Bundle, error)
}

type RuleKind string

const (
	RuleCoupon RuleKind = "coupon"
	RuleBundle RuleKind = "bundle"
)

type AppliedRule struct {
	Kind RuleKind
	ID   int64
	Name string // код купона или название набора
}

type Request struct {
	CouponCode string
	BundleID   *int64 // nil = искать среди всех действующих наборов
	ProductID  int64
	CategoryID *int64
	BaseAmount decimal.Decimal
	InCart     bool
}

type Result struct {
	OriginalAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	AppliedRule    *AppliedRule
	// Coupon заполнен, только если выиграл купон. Его нужно засчитать при оформлении.
	Coupon *coupon.Coupon
}

type Resolver struct {
	coupons CouponStore
	bundles BundleStore
	now     func() time.Time
}

func NewResolver(coupons CouponStore, bundles BundleStore) *Resolver {
	return &Resolver{coupons: coupons, bundles: bundles, now: time.Now}
}

// WithClock подменяет часы (для тестов).
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	if req.BaseAmount.IsNegative() {
		return nil, ErrNegativeAmount
	}
	base := pricing.RoundMoney(req.BaseAmount)
	now := r.now()

	var (
		c         *coupon.Coupon
		couponOff = decimal.Zero
	)
	if req.CouponCode != "" {
		var err error
		c, err = r.checkCoupon(ctx, req, base, now)
		if err != nil {
			return nil, err
		}
		couponOff = pricing.Discount(c.DiscountType, c.DiscountValue, base)
	}

	b, bundleOff, err := r.bestBundle(ctx, req, base, now)
	if err != nil {
		return nil, err
	}

	res := &Result{OriginalAmount: base, DiscountAmount: decimal.Zero}
	switch {
	case c != nil && couponOff.GreaterThan(bundleOff):
		res.DiscountAmount = couponOff
		res.AppliedRule = &AppliedRule{Kind: RuleCoupon, ID: c.ID, Name: c.Code}
		res.Coupon = c
	case b != nil && bundleOff.IsPositive():
		res.DiscountAmount = bundleOff
		res.AppliedRule = &AppliedRule{Kind: RuleBundle, ID: b.ID, Name: b.Name}
	}
	res.FinalAmount = base.Sub(res.DiscountAmount)

	rule := "none"
	if res.AppliedRule != nil {
		rule = string(res.AppliedRule.Kind)
	}
	metrics.DiscountResolutionsTotal.WithLabelValues(rule).Inc()

	return res, nil
}

func (r *Resolver) checkCoupon(ctx context.Context, req Request, base decimal.Decimal, now time.Time) (*coupon.Coupon, error) {
	c, err := r.coupons.GetByCode(ctx, coupon.NormalizeCode(req.CouponCode))
	if errors.Is(err, coupon.ErrNotFound) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load coupon: %w", err)
	}

	switch {
	case !c.IsActive:
		return nil, ErrCouponInactive
	case c.Expired(now):
		return nil, ErrCouponExpired
	case c.Exhausted():
		return nil, ErrCouponExhausted
	case !base.IsPositive() || !c.AppliesTo(req.ProductID):
		// Купоны действуют только на платные товары.
		return nil, ErrCouponNotApplicable
	case req.InCart && !c.UsableInCart:
		return nil, ErrCouponNotUsableInCart
	}
	return c, nil
}

func (r *Resolver) bestBundle(ctx context.Context, req Request, base decimal.Decimal, now time.Time) (*bundle.Bundle, decimal.Decimal, error) {
	if r.bundles == nil || !base.IsPositive() {
		return nil, decimal.Zero, nil
	}

	var candidates []*bundle.Bundle
	if req.BundleID != nil {
		b, err := r.bundles.GetByID(ctx, *req.BundleID)
		if errors.Is(err, bundle.ErrNotFound) {
			return nil, decimal.Zero, nil
		}
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("load bundle: %w", err)
		}
		candidates = []*bundle.Bundle{b}
	} else {
		active, err := r.bundles.ListActive(ctx, now)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("list bundles: %w", err)
		}
		candidates = active
	}

	var (
		best    *bundle.Bundle
		bestOff = decimal.Zero
	)
	for _, b := range candidates {
		if !b.InEffect(now) || !b.Matches(req.ProductID, req.CategoryID) {
			continue
		}
		off := pricing.Discount(b.DiscountType, b.DiscountValue, base)
		if best == nil || off.GreaterThan(bestOff) {
			best, bestOff = b, off
		}
	}
	return best, bestOff, nil
}
