package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"plugstore/internal/bundle"
	"plugstore/internal/discount"
	"plugstore/internal/pricing"
	"plugstore/internal/product"
)

var (
	ErrBundleNotFound     = bundle.ErrNotFound
	ErrUnknownCategory    = bundle.ErrUnknownCategory
	ErrUnknownProduct     = bundle.ErrUnknownProduct
	ErrInvalidName        = errors.New("bundle name is required")
	ErrInvalidApplyTo     = errors.New("apply_to must be category or products")
	ErrCategoryRequired   = errors.New("category bundle requires category_id")
	ErrProductsRequired   = errors.New("products bundle requires at least one product")
	ErrMixedBundleTargets = errors.New("bundle must target either a category or products, not both")
)

type BundleRepository interface {
	Create(ctx context.Context, b *bundle.Bundle) error
	Update(ctx context.Context, b *bundle.Bundle) error
	GetByID(ctx context.Context, id int64) (*bundle.Bundle, error)
	GetAll(ctx context.Context) ([]*bundle.Bundle, error)
	Delete(ctx context.Context, id int64) error
}

// Invalidator сбрасывает кэш действующих наборов.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type ProductReader interface {
	GetActive(ctx context.Context, id int64) (*product.Product, error)
}

type DiscountResolver interface {
	Resolve(ctx context.Context, req discount.Request) (*discount.Result, error)
}

type BundleInput struct {
	Name          string
	DiscountType  pricing.DiscountType
	DiscountValue decimal.Decimal
	ApplyTo       bundle.ApplyTo
	CategoryID    *int64
	ProductIDs    []int64
	ExpiresAt     *time.Time
	IsActive      bool
}

type Service struct {
	repo     BundleRepository
	cache    Invalidator
	products ProductReader
	resolver DiscountResolver
}

// cache может быть nil, если Redis не настроен.
func NewService(repo BundleRepository, cache Invalidator, products ProductReader, resolver DiscountResolver) *Service {
	return &Service{repo: repo, cache: cache, products: products, resolver: resolver}
}

func (s *Service) Create(ctx context.Context, in BundleInput) (*bundle.Bundle, error) {
	b := &bundle.Bundle{}
	if err := apply(b, in); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	log.Printf("BundleService: bundle %q created (id %d)", b.Name, b.ID)
	return b, nil
}

func (s *Service) Update(ctx context.Context, id int64, in BundleInput) (*bundle.Bundle, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(b, in); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, b); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	log.Printf("BundleService: bundle %q updated (id %d)", b.Name, b.ID)
	return b, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*bundle.Bundle, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*bundle.Bundle, error) {
	bundles, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if bundles == nil {
		bundles = []*bundle.Bundle{}
	}
	return bundles, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	log.Printf("BundleService: bundle %d deleted", id)
	return nil
}

// CalculateDiscount показывает цену товара с лучшим действующим набором.
// bundleID ограничивает выбор одним набором; неподходящий набор даёт цену без скидки.
func (s *Service) CalculateDiscount(ctx context.Context, bundleID *int64, productID int64) (*discount.Result, error) {
	p, err := s.products.GetActive(ctx, productID)
	if err != nil {
		return nil, err
	}
	return s.resolver.Resolve(ctx, discount.Request{
		BundleID:   bundleID,
		ProductID:  p.ID,
		CategoryID: p.CategoryID,
		BaseAmount: p.Price,
	})
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		// Запись в БД уже прошла; устаревший кэш доживёт до TTL.
		log.Printf("BundleService: ERROR: cache invalidation failed: %v", err)
	}
}

func apply(b *bundle.Bundle, in BundleInput) error {
	if in.Name == "" {
		return ErrInvalidName
	}
	if err := pricing.ValidateRule(in.DiscountType, in.DiscountValue); err != nil {
		return err
	}
	switch in.ApplyTo {
	case bundle.ApplyToCategory:
		if in.CategoryID == nil {
			return ErrCategoryRequired
		}
		if len(in.ProductIDs) > 0 {
			return ErrMixedBundleTargets
		}
	case bundle.ApplyToProducts:
		if len(in.ProductIDs) == 0 {
			return ErrProductsRequired
		}
		if in.CategoryID != nil {
			return ErrMixedBundleTargets
		}
	default:
		return ErrInvalidApplyTo
	}

	b.Name = in.Name
	b.DiscountType = in.DiscountType
	b.DiscountValue = in.DiscountValue
	b.ApplyTo = in.ApplyTo
	b.CategoryID = in.CategoryID
	b.ProductIDs = in.ProductIDs
	b.ExpiresAt = in.ExpiresAt
	b.IsActive = in.IsActive
	return nil
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrInvalidApplyTo) ||
		errors.Is(err, ErrCategoryRequired) ||
		errors.Is(err, ErrProductsRequired) ||
		errors.Is(err, ErrMixedBundleTargets) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, pricing.ErrUnknownDiscountType) ||
		errors.Is(err, pricing.ErrNonPositiveDiscount) ||
		errors.Is(err, pricing.ErrPercentageAbove100) ||
		errors.Is(err, pricing.ErrDiscountPrecisionLost)
}
