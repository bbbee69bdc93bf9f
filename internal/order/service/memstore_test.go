package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"plugstore/internal/coupon"
	"plugstore/internal/order"
	"plugstore/internal/product"
)

// memStore: транзакционное хранилище в памяти. InTx держит мьютекс на всё
// время транзакции и при ошибке восстанавливает снимок.
type memStore struct {
	mu sync.Mutex

	products map[int64]*product.Product
	coupons  map[int64]*coupon.Coupon
	balances map[int64]decimal.Decimal
	orders   map[int64]*order.Order
	licenses map[int64]*order.License
	nextID   int64

	failLicense bool
}

type memSnapshot struct {
	coupons  map[int64]coupon.Coupon
	balances map[int64]decimal.Decimal
	orders   map[int64]order.Order
	licenses map[int64]order.License
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{
		products: map[int64]*product.Product{},
		coupons:  map[int64]*coupon.Coupon{},
		balances: map[int64]decimal.Decimal{},
		orders:   map[int64]*order.Order{},
		licenses: map[int64]*order.License{},
	}
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		coupons:  make(map[int64]coupon.Coupon, len(s.coupons)),
		balances: make(map[int64]decimal.Decimal, len(s.balances)),
		orders:   make(map[int64]order.Order, len(s.orders)),
		licenses: make(map[int64]order.License, len(s.licenses)),
		nextID:   s.nextID,
	}
	for id, c := range s.coupons {
		snap.coupons[id] = *c
	}
	for id, b := range s.balances {
		snap.balances[id] = b
	}
	for id, o := range s.orders {
		snap.orders[id] = *o
	}
	for id, l := range s.licenses {
		snap.licenses[id] = *l
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.coupons = make(map[int64]*coupon.Coupon, len(snap.coupons))
	for id, c := range snap.coupons {
		c := c
		s.coupons[id] = &c
	}
	s.balances = snap.balances
	s.orders = make(map[int64]*order.Order, len(snap.orders))
	for id, o := range snap.orders {
		o := o
		s.orders[id] = &o
	}
	s.licenses = make(map[int64]*order.License, len(snap.licenses))
	for id, l := range snap.licenses {
		l := l
		s.licenses[id] = &l
	}
	s.nextID = snap.nextID
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) ListByUser(ctx context.Context, userID int64) ([]*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*order.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) GetLicenseByOrder(ctx context.Context, orderID int64) (*order.License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.licenses[orderID]
	if !ok {
		return nil, order.ErrLicenseNotFound
	}
	cp := *l
	return &cp, nil
}

// GetByCode делает memStore источником купонов для Resolver.
func (s *memStore) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.coupons {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (s *memStore) balance(userID int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID]
}

func (s *memStore) usedCount(couponID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupons[couponID].UsedCount
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *memStore) licenseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.licenses)
}

type memTx struct {
	s *memStore
}

func (t *memTx) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	p, ok := t.s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (t *memTx) GetCoupon(ctx context.Context, id int64) (*coupon.Coupon, error) {
	c, ok := t.s.coupons[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (t *memTx) RedeemCoupon(ctx context.Context, couponID int64) (bool, error) {
	c, ok := t.s.coupons[couponID]
	if !ok || !c.IsActive || c.Exhausted() || c.Expired(time.Now()) {
		return false, nil
	}
	c.UsedCount++
	return true, nil
}

func (t *memTx) DebitBalance(ctx context.Context, userID int64, amount decimal.Decimal) (bool, error) {
	b, ok := t.s.balances[userID]
	if !ok || b.LessThan(amount) {
		return false, nil
	}
	t.s.balances[userID] = b.Sub(amount)
	return true, nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *order.Order) (bool, error) {
	for _, existing := range t.s.orders {
		if existing.OrderNumber == o.OrderNumber {
			return false, nil
		}
	}
	t.s.nextID++
	o.ID = t.s.nextID
	o.CreatedAt = time.Now()
	cp := *o
	t.s.orders[o.ID] = &cp
	return true, nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (t *memTx) MarkCompleted(ctx context.Context, id int64, at time.Time) error {
	o := t.s.orders[id]
	if o == nil || o.Status != order.StatusPending {
		return errors.New("order is not pending")
	}
	o.Status = order.StatusCompleted
	o.CompletedAt = &at
	return nil
}

func (t *memTx) MarkFailed(ctx context.Context, id int64) error {
	o := t.s.orders[id]
	if o == nil || o.Status != order.StatusPending {
		return errors.New("order is not pending")
	}
	o.Status = order.StatusFailed
	return nil
}

func (t *memTx) InsertLicense(ctx context.Context, l *order.License) error {
	if t.s.failLicense {
		return errors.New("disk full")
	}
	if _, exists := t.s.licenses[l.OrderID]; exists {
		return errors.New("duplicate key value violates unique constraint")
	}
	t.s.nextID++
	l.ID = t.s.nextID
	l.CreatedAt = time.Now()
	cp := *l
	t.s.licenses[l.OrderID] = &cp
	return nil
}
