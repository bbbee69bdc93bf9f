package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"plugstore/internal/bundle"
	"plugstore/pkg/db"
)

var ErrNotFound = bundle.ErrNotFound

const bundleSelect = `
        SELECT b.id, b.name, b.discount_type, b.discount_value, b.apply_to, b.category_id,
               b.expires_at, b.is_active, b.created_at,
               COALESCE(array_agg(bp.product_id ORDER BY bp.product_id) FILTER (WHERE bp.product_id IS NOT NULL), '{}')
        FROM bundles b
        LEFT JOIN bundle_products bp ON bp.bundle_id = b.id`

type PostgresBundleRepository struct {
	db db.Querier
}

func NewPostgresBundleRepository(q db.Querier) *PostgresBundleRepository {
	return &PostgresBundleRepository{db: q}
}

func scanBundle(row interface{ Scan(...any) error }) (*bundle.Bundle, error) {
	b := &bundle.Bundle{}
	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.DiscountType,
		&b.DiscountValue,
		&b.ApplyTo,
		&b.CategoryID,
		&b.ExpiresAt,
		&b.IsActive,
		&b.CreatedAt,
		pq.Array(&b.ProductIDs),
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *PostgresBundleRepository) list(ctx context.Context, query string, args ...any) ([]*bundle.Bundle, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bundles []*bundle.Bundle
	for rows.Next() {
		b, err := scanBundle(rows)
		if err != nil {
			return nil, err
		}
		bundles = append(bundles, b)
	}
	return bundles, rows.Err()
}

func (r *PostgresBundleRepository) GetByID(ctx context.Context, id int64) (*bundle.Bundle, error) {
	b, err := scanBundle(r.db.QueryRowContext(ctx, bundleSelect+` WHERE b.id = $1 GROUP BY b.id`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (r *PostgresBundleRepository) GetAll(ctx context.Context) ([]*bundle.Bundle, error) {
	return r.list(ctx, bundleSelect+` GROUP BY b.id ORDER BY b.created_at DESC`)
}

// ListActive возвращает наборы, действующие на момент now.
func (r *PostgresBundleRepository) ListActive(ctx context.Context, now time.Time) ([]*bundle.Bundle, error) {
	return r.list(ctx, bundleSelect+`
        WHERE b.is_active AND (b.expires_at IS NULL OR b.expires_at > $1)
        GROUP BY b.id ORDER BY b.id`, now)
}

func (r *PostgresBundleRepository) Create(ctx context.Context, b *bundle.Bundle) error {
	return db.InTx(ctx, r.db, func(q db.Querier) error {
		query := `
        INSERT INTO bundles (name, discount_type, discount_value, apply_to, category_id, expires_at, is_active)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`

		err := q.QueryRowContext(ctx, query,
			b.Name, b.DiscountType, b.DiscountValue, b.ApplyTo, b.CategoryID, b.ExpiresAt, b.IsActive,
		).Scan(&b.ID, &b.CreatedAt)
		if db.IsForeignKeyViolation(err) {
			return bundle.ErrUnknownCategory
		}
		if err != nil {
			return err
		}
		return replaceProducts(ctx, q, b.ID, b.ProductIDs)
	})
}

func (r *PostgresBundleRepository) Update(ctx context.Context, b *bundle.Bundle) error {
	return db.InTx(ctx, r.db, func(q db.Querier) error {
		query := `UPDATE bundles SET
              name = $1,
              discount_type = $2,
              discount_value = $3,
              apply_to = $4,
              category_id = $5,
              expires_at = $6,
              is_active = $7
              WHERE id = $8`
		res, err := q.ExecContext(ctx, query,
			b.Name, b.DiscountType, b.DiscountValue, b.ApplyTo, b.CategoryID, b.ExpiresAt, b.IsActive, b.ID)
		if db.IsForeignKeyViolation(err) {
			return bundle.ErrUnknownCategory
		}
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return replaceProducts(ctx, q, b.ID, b.ProductIDs)
	})
}

func replaceProducts(ctx context.Context, q db.Querier, bundleID int64, productIDs []int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM bundle_products WHERE bundle_id = $1`, bundleID); err != nil {
		return err
	}
	if len(productIDs) == 0 {
		return nil
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO bundle_products (bundle_id, product_id)
         SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`,
		bundleID, pq.Array(productIDs))
	if db.IsForeignKeyViolation(err) {
		return bundle.ErrUnknownProduct
	}
	return err
}

func (r *PostgresBundleRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bundles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
