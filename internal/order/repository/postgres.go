package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"plugstore/internal/order"
	"plugstore/pkg/db"
)

const orderColumns = `id, order_number, user_id, product_id, amount, original_amount, discount_amount,
               payment_method, status, coupon_id, bundle_id, created_at, completed_at`

type PostgresOrderRepository struct {
	db db.Querier
}

func NewPostgresOrderRepository(q db.Querier) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: q}
}

func scanOrder(row interface{ Scan(...any) error }) (*order.Order, error) {
	o := &order.Order{}
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.UserID,
		&o.ProductID,
		&o.Amount,
		&o.OriginalAmount,
		&o.DiscountAmount,
		&o.PaymentMethod,
		&o.Status,
		&o.CouponID,
		&o.BundleID,
		&o.CreatedAt,
		&o.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// Insert записывает заказ. false означает, что order_number уже занят:
// ON CONFLICT не обрывает транзакцию, и вызывающий может повторить с новым номером.
func (r *PostgresOrderRepository) Insert(ctx context.Context, o *order.Order) (bool, error) {
	query := `
        INSERT INTO orders (order_number, user_id, product_id, amount, original_amount, discount_amount,
                            payment_method, status, coupon_id, bundle_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (order_number) DO NOTHING
        RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		o.OrderNumber, o.UserID, o.ProductID, o.Amount, o.OriginalAmount, o.DiscountAmount,
		o.PaymentMethod, o.Status, o.CouponID, o.BundleID,
	).Scan(&o.ID, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *PostgresOrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	return o, err
}

// GetForUpdate блокирует строку заказа до конца транзакции.
func (r *PostgresOrderRepository) GetForUpdate(ctx context.Context, id int64) (*order.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	return o, err
}

func (r *PostgresOrderRepository) ListByUser(ctx context.Context, userID int64) ([]*order.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// MarkCompleted переводит pending → completed. Переход выполняется один раз.
func (r *PostgresOrderRepository) MarkCompleted(ctx context.Context, id int64, at time.Time) error {
	return r.transition(ctx,
		`UPDATE orders SET status = 'completed', completed_at = $2 WHERE id = $1 AND status = 'pending'`, id, at)
}

func (r *PostgresOrderRepository) MarkFailed(ctx context.Context, id int64) error {
	return r.transition(ctx,
		`UPDATE orders SET status = 'failed' WHERE id = $1 AND status = 'pending'`, id)
}

func (r *PostgresOrderRepository) transition(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return errors.New("order is not pending")
	}
	return nil
}

func (r *PostgresOrderRepository) InsertLicense(ctx context.Context, l *order.License) error {
	return r.db.QueryRowContext(ctx,
		`INSERT INTO licenses (order_id, download_url, license_key, status)
         VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		l.OrderID, l.DownloadURL, l.LicenseKey, l.Status,
	).Scan(&l.ID, &l.CreatedAt)
}

func (r *PostgresOrderRepository) GetLicenseByOrder(ctx context.Context, orderID int64) (*order.License, error) {
	l := &order.License{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, order_id, download_url, license_key, status, created_at FROM licenses WHERE order_id = $1`,
		orderID).Scan(&l.ID, &l.OrderID, &l.DownloadURL, &l.LicenseKey, &l.Status, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrLicenseNotFound
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}
