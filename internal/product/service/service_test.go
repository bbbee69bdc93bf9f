package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugstore/internal/product"
)

type memProducts struct {
	byID   map[int64]*product.Product
	nextID int64
}

func (m *memProducts) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *memProducts) List(ctx context.Context, activeOnly bool) ([]*product.Product, error) {
	var out []*product.Product
	for _, p := range m.byID {
		if !activeOnly || p.IsActive() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memProducts) Create(ctx context.Context, p *product.Product) error {
	m.nextID++
	p.ID = m.nextID
	m.byID[p.ID] = p
	return nil
}

func (m *memProducts) Update(ctx context.Context, p *product.Product) error {
	if _, ok := m.byID[p.ID]; !ok {
		return product.ErrNotFound
	}
	m.byID[p.ID] = p
	return nil
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateDefaultsAndRounds(t *testing.T) {
	svc := NewService(&memProducts{byID: map[int64]*product.Product{}})

	p := &product.Product{Name: "Homes", Price: money("19.995")}
	require.NoError(t, svc.Create(context.Background(), p))
	assert.Equal(t, product.StatusActive, p.Status)
	assert.True(t, p.Price.Equal(money("20.00")))
}

func TestValidation(t *testing.T) {
	svc := NewService(&memProducts{byID: map[int64]*product.Product{}})
	ctx := context.Background()

	err := svc.Create(ctx, &product.Product{Name: "x", Price: money("-1")})
	assert.ErrorIs(t, err, ErrNegativePrice)

	original := money("5")
	err = svc.Create(ctx, &product.Product{Name: "x", Price: money("10"), OriginalPrice: &original})
	assert.ErrorIs(t, err, ErrOriginalBelowPrice)

	err = svc.Create(ctx, &product.Product{Name: "x", Price: money("10"), Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidProductStatus)
	assert.True(t, IsValidationError(err))
}

func TestGetActiveHidesInactive(t *testing.T) {
	repo := &memProducts{byID: map[int64]*product.Product{
		1: {ID: 1, Price: money("10"), Status: product.StatusActive},
		2: {ID: 2, Price: money("10"), Status: product.StatusInactive},
	}}
	svc := NewService(repo)
	ctx := context.Background()

	_, err := svc.GetActive(ctx, 1)
	require.NoError(t, err)

	_, err = svc.GetActive(ctx, 2)
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, err = svc.GetActive(ctx, 3)
	assert.ErrorIs(t, err, ErrProductNotFound)

	visible, err := svc.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, visible, 1)
	all, err := svc.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
