package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"plugstore/internal/coupon"
	"plugstore/internal/coupon/repository"
	"plugstore/internal/discount"
	"plugstore/internal/pricing"
	"plugstore/internal/product"
)

var (
	ErrCouponNotFound   = coupon.ErrNotFound
	ErrCouponCodeTaken  = repository.ErrCodeTaken
	ErrUnknownProduct   = coupon.ErrUnknownProduct
	ErrInvalidCode      = errors.New("coupon code must be 3 to 64 characters")
	ErrInvalidMaxUses   = errors.New("max uses must be at least 1")
	ErrMaxUsesBelowUsed = errors.New("max uses must not be lower than current usage")
)

type CouponRepository interface {
	Create(ctx context.Context, c *coupon.Coupon) error
	Update(ctx context.Context, c *coupon.Coupon) error
	GetByID(ctx context.Context, id int64) (*coupon.Coupon, error)
	GetAll(ctx context.Context) ([]*coupon.Coupon, error)
	Delete(ctx context.Context, id int64) error
}

type ProductReader interface {
	GetActive(ctx context.Context, id int64) (*product.Product, error)
}

type DiscountResolver interface {
	Resolve(ctx context.Context, req discount.Request) (*discount.Result, error)
}

// CouponInput: поля купона, которые задаёт администратор.
type CouponInput struct {
	Code          string
	DiscountType  pricing.DiscountType
	DiscountValue decimal.Decimal
	MaxUses       *int
	ExpiresAt     *time.Time
	IsActive      bool
	UsableInCart  bool
	ProductIDs    []int64
}

type Service struct {
	repo     CouponRepository
	products ProductReader
	resolver DiscountResolver
}

// NewService: resolver должен учитывать только купоны, предпросмотр
// купона не сравнивает его с наборами.
func NewService(repo CouponRepository, products ProductReader, resolver DiscountResolver) *Service {
	return &Service{repo: repo, products: products, resolver: resolver}
}

func (s *Service) Create(ctx context.Context, in CouponInput) (*coupon.Coupon, error) {
	c := &coupon.Coupon{}
	if err := apply(c, in); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	log.Printf("CouponService: coupon created (id %d): %s", c.ID, describe(c))
	return c, nil
}

// Update заменяет настройки купона. Счётчик использований сохраняется.
func (s *Service) Update(ctx context.Context, id int64, in CouponInput) (*coupon.Coupon, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(c, in); err != nil {
		return nil, err
	}
	if c.MaxUses != nil && *c.MaxUses < c.UsedCount {
		return nil, ErrMaxUsesBelowUsed
	}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	log.Printf("CouponService: coupon %s updated (id %d)", c.Code, c.ID)
	return c, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*coupon.Coupon, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*coupon.Coupon, error) {
	coupons, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if coupons == nil {
		coupons = []*coupon.Coupon{}
	}
	return coupons, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("CouponService: coupon %d deleted", id)
	return nil
}

// CalculateDiscount показывает цену товара с купоном. Ничего не списывает.
func (s *Service) CalculateDiscount(ctx context.Context, code string, productID int64, inCart bool) (*discount.Result, error) {
	p, err := s.products.GetActive(ctx, productID)
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, discount.Request{
		CouponCode: code,
		ProductID:  p.ID,
		CategoryID: p.CategoryID,
		BaseAmount: p.Price,
		InCart:     inCart,
	})
}

func apply(c *coupon.Coupon, in CouponInput) error {
	code := coupon.NormalizeCode(in.Code)
	if len(code) < 3 || len(code) > 64 {
		return ErrInvalidCode
	}
	if err := pricing.ValidateRule(in.DiscountType, in.DiscountValue); err != nil {
		return err
	}
	if in.MaxUses != nil && *in.MaxUses < 1 {
		return ErrInvalidMaxUses
	}

	c.Code = code
	c.DiscountType = in.DiscountType
	c.DiscountValue = in.DiscountValue
	c.MaxUses = in.MaxUses
	c.ExpiresAt = in.ExpiresAt
	c.IsActive = in.IsActive
	c.UsableInCart = in.UsableInCart
	c.ProductIDs = in.ProductIDs
	return nil
}

// IsValidationError отличает ошибки ввода от инфраструктурных.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrInvalidMaxUses) ||
		errors.Is(err, ErrMaxUsesBelowUsed) ||
		errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, pricing.ErrUnknownDiscountType) ||
		errors.Is(err, pricing.ErrNonPositiveDiscount) ||
		errors.Is(err, pricing.ErrPercentageAbove100) ||
		errors.Is(err, pricing.ErrDiscountPrecisionLost)
}

func describe(c *coupon.Coupon) string {
	return fmt.Sprintf("%s %s %s", c.Code, c.DiscountType, c.DiscountValue.String())
}
