package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"plugstore/internal/coupon"
	couponRepo "plugstore/internal/coupon/repository"
	"plugstore/internal/order"
	orderRepo "plugstore/internal/order/repository"
	"plugstore/internal/product"
	productRepo "plugstore/internal/product/repository"
	userRepo "plugstore/internal/user/repository"
	"plugstore/pkg/db"
)

// PostgresStore собирает репозитории поверх одной транзакции *sql.Tx.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(sqlDB *sql.DB) *PostgresStore {
	return &PostgresStore{db: sqlDB}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.InTx(ctx, s.db, func(q db.Querier) error {
		return fn(newTxRepositories(q))
	})
}

func (s *PostgresStore) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	return productRepo.NewPostgresProductRepository(s.db).GetByID(ctx, id)
}

func (s *PostgresStore) GetOrder(ctx context.Context, id int64) (*order.Order, error) {
	return orderRepo.NewPostgresOrderRepository(s.db).GetByID(ctx, id)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID int64) ([]*order.Order, error) {
	return orderRepo.NewPostgresOrderRepository(s.db).ListByUser(ctx, userID)
}

func (s *PostgresStore) GetLicenseByOrder(ctx context.Context, orderID int64) (*order.License, error) {
	return orderRepo.NewPostgresOrderRepository(s.db).GetLicenseByOrder(ctx, orderID)
}

// txRepositories - репозитории, работающие в транзакции оформления заказа
type txRepositories struct {
	products *productRepo.PostgresProductRepository
	coupons  *couponRepo.PostgresCouponRepository
	users    *userRepo.PostgresUserRepository
	orders   *orderRepo.PostgresOrderRepository
}

func newTxRepositories(q db.Querier) *txRepositories {
	return &txRepositories{
		products: productRepo.NewPostgresProductRepository(q),
		coupons:  couponRepo.NewPostgresCouponRepository(q),
		users:    userRepo.NewPostgresUserRepository(q),
		orders:   orderRepo.NewPostgresOrderRepository(q),
	}
}

func (r *txRepositories) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	return r.products.GetByID(ctx, id)
}

func (r *txRepositories) GetCoupon(ctx context.Context, id int64) (*coupon.Coupon, error) {
	return r.coupons.GetByID(ctx, id)
}

func (r *txRepositories) RedeemCoupon(ctx context.Context, couponID int64) (bool, error) {
	return r.coupons.Redeem(ctx, couponID)
}

func (r *txRepositories) DebitBalance(ctx context.Context, userID int64, amount decimal.Decimal) (bool, error) {
	return r.users.Debit(ctx, userID, amount)
}

func (r *txRepositories) InsertOrder(ctx context.Context, o *order.Order) (bool, error) {
	return r.orders.Insert(ctx, o)
}

func (r *txRepositories) GetOrderForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	return r.orders.GetForUpdate(ctx, id)
}

func (r *txRepositories) MarkCompleted(ctx context.Context, id int64, at time.Time) error {
	return r.orders.MarkCompleted(ctx, id, at)
}

func (r *txRepositories) MarkFailed(ctx context.Context, id int64) error {
	return r.orders.MarkFailed(ctx, id)
}

func (r *txRepositories) InsertLicense(ctx context.Context, l *order.License) error {
	return r.orders.InsertLicense(ctx, l)
}
