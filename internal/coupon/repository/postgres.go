package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"plugstore/internal/coupon"
	"plugstore/pkg/db"
)

var (
	ErrNotFound  = coupon.ErrNotFound
	ErrCodeTaken = errors.New("coupon code already exists")
)

const couponSelect = `
        SELECT c.id, c.code, c.discount_type, c.discount_value, c.max_uses, c.used_count,
               c.expires_at, c.is_active, c.usable_in_cart, c.created_at,
               COALESCE(array_agg(cp.product_id ORDER BY cp.product_id) FILTER (WHERE cp.product_id IS NOT NULL), '{}')
        FROM coupons c
        LEFT JOIN coupon_products cp ON cp.coupon_id = c.id`

// PostgresCouponRepository работает и поверх *sql.DB, и внутри *sql.Tx.
type PostgresCouponRepository struct {
	db db.Querier
}

func NewPostgresCouponRepository(q db.Querier) *PostgresCouponRepository {
	return &PostgresCouponRepository{db: q}
}

func scanCoupon(row interface{ Scan(...any) error }) (*coupon.Coupon, error) {
	c := &coupon.Coupon{}
	var maxUses sql.NullInt64
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.DiscountType,
		&c.DiscountValue,
		&maxUses,
		&c.UsedCount,
		&c.ExpiresAt,
		&c.IsActive,
		&c.UsableInCart,
		&c.CreatedAt,
		pq.Array(&c.ProductIDs),
	)
	if err != nil {
		return nil, err
	}
	if maxUses.Valid {
		n := int(maxUses.Int64)
		c.MaxUses = &n
	}
	return c, nil
}

func (r *PostgresCouponRepository) getOne(ctx context.Context, where string, arg any) (*coupon.Coupon, error) {
	c, err := scanCoupon(r.db.QueryRowContext(ctx, couponSelect+` WHERE `+where+` GROUP BY c.id`, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

func (r *PostgresCouponRepository) GetByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return r.getOne(ctx, `c.code = $1`, coupon.NormalizeCode(code))
}

func (r *PostgresCouponRepository) GetByID(ctx context.Context, id int64) (*coupon.Coupon, error) {
	return r.getOne(ctx, `c.id = $1`, id)
}

func (r *PostgresCouponRepository) GetAll(ctx context.Context) ([]*coupon.Coupon, error) {
	rows, err := r.db.QueryContext(ctx, couponSelect+` GROUP BY c.id ORDER BY c.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var coupons []*coupon.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}

func (r *PostgresCouponRepository) Create(ctx context.Context, c *coupon.Coupon) error {
	return db.InTx(ctx, r.db, func(q db.Querier) error {
		query := `
        INSERT INTO coupons (code, discount_type, discount_value, max_uses, expires_at, is_active, usable_in_cart)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, used_count, created_at`

		err := q.QueryRowContext(ctx, query,
			c.Code, c.DiscountType, c.DiscountValue, c.MaxUses, c.ExpiresAt, c.IsActive, c.UsableInCart,
		).Scan(&c.ID, &c.UsedCount, &c.CreatedAt)
		if db.IsUniqueViolation(err) {
			return ErrCodeTaken
		}
		if err != nil {
			return err
		}
		return replaceProducts(ctx, q, c.ID, c.ProductIDs)
	})
}

// Update не трогает used_count: счётчик меняет только Redeem.
func (r *PostgresCouponRepository) Update(ctx context.Context, c *coupon.Coupon) error {
	return db.InTx(ctx, r.db, func(q db.Querier) error {
		query := `UPDATE coupons SET
              code = $1,
              discount_type = $2,
              discount_value = $3,
              max_uses = $4,
              expires_at = $5,
              is_active = $6,
              usable_in_cart = $7
              WHERE id = $8`
		res, err := q.ExecContext(ctx, query,
			c.Code, c.DiscountType, c.DiscountValue, c.MaxUses, c.ExpiresAt, c.IsActive, c.UsableInCart, c.ID)
		if db.IsUniqueViolation(err) {
			return ErrCodeTaken
		}
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return replaceProducts(ctx, q, c.ID, c.ProductIDs)
	})
}

func replaceProducts(ctx context.Context, q db.Querier, couponID int64, productIDs []int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM coupon_products WHERE coupon_id = $1`, couponID); err != nil {
		return err
	}
	if len(productIDs) == 0 {
		return nil
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO coupon_products (coupon_id, product_id)
         SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`,
		couponID, pq.Array(productIDs))
	if db.IsForeignKeyViolation(err) {
		return coupon.ErrUnknownProduct
	}
	return err
}

func (r *PostgresCouponRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Redeem атомарно засчитывает одно использование. Проверка лимита, срока и
// активности делается тем же UPDATE, поэтому два параллельных заказа не
// могут превысить max_uses. false = купон уже нельзя использовать.
func (r *PostgresCouponRepository) Redeem(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        UPDATE coupons SET used_count = used_count + 1
        WHERE id = $1
          AND is_active
          AND (max_uses IS NULL OR used_count < max_uses)
          AND (expires_at IS NULL OR expires_at > NOW())`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
