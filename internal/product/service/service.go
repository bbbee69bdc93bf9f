package service

import (
	"context"
	"errors"

	"plugstore/internal/product"
	"plugstore/internal/product/repository"
)

var (
	ErrProductNotFound      = repository.ErrNotFound
	ErrCategoryNotFound     = product.ErrUnknownCategory
	ErrNegativePrice        = errors.New("price must not be negative")
	ErrOriginalBelowPrice   = errors.New("original price must not be lower than price")
	ErrInvalidProductStatus = errors.New("status must be active or inactive")
)

type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (*product.Product, error)
	List(ctx context.Context, activeOnly bool) ([]*product.Product, error)
	Create(ctx context.Context, p *product.Product) error
	Update(ctx context.Context, p *product.Product) error
}

type Service struct {
	repo ProductRepository
}

func NewService(repo ProductRepository) *Service {
	return &Service{repo: repo}
}

// GetActive возвращает товар, доступный для покупки и расчёта скидок.
func (s *Service) GetActive(ctx context.Context, id int64) (*product.Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive() {
		return nil, ErrProductNotFound
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, includeInactive bool) ([]*product.Product, error) {
	return s.repo.List(ctx, !includeInactive)
}

func (s *Service) Create(ctx context.Context, p *product.Product) error {
	if p.Status == "" {
		p.Status = product.StatusActive
	}
	if err := validate(p); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Update(ctx context.Context, p *product.Product) error {
	if err := validate(p); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

func validate(p *product.Product) error {
	if p.Price.IsNegative() {
		return ErrNegativePrice
	}
	if p.OriginalPrice != nil && p.OriginalPrice.LessThan(p.Price) {
		return ErrOriginalBelowPrice
	}
	if p.Status != product.StatusActive && p.Status != product.StatusInactive {
		return ErrInvalidProductStatus
	}
	p.Price = p.Price.Round(2)
	if p.OriginalPrice != nil {
		rounded := p.OriginalPrice.Round(2)
		p.OriginalPrice = &rounded
	}
	return nil
}

// IsValidationError отличает ошибки ввода от инфраструктурных.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNegativePrice) ||
		errors.Is(err, ErrOriginalBelowPrice) ||
		errors.Is(err, ErrInvalidProductStatus) ||
		errors.Is(err, ErrCategoryNotFound)
}
