package repository

import (
	"context"
	"database/sql"
	"errors"

	"plugstore/internal/product"
	"plugstore/pkg/db"
)

var ErrNotFound = product.ErrNotFound

const productColumns = `id, name, price, original_price, category_id, status, download_url, license_key, created_at`

type PostgresProductRepository struct {
	db db.Querier
}

func NewPostgresProductRepository(q db.Querier) *PostgresProductRepository {
	return &PostgresProductRepository{db: q}
}

func scanProduct(row interface{ Scan(...any) error }) (*product.Product, error) {
	p := &product.Product{}
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Price,
		&p.OriginalPrice,
		&p.CategoryID,
		&p.Status,
		&p.DownloadURL,
		&p.LicenseKey,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	p, err := scanProduct(r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *PostgresProductRepository) List(ctx context.Context, activeOnly bool) ([]*product.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if activeOnly {
		query += ` WHERE status = 'active'`
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *PostgresProductRepository) Create(ctx context.Context, p *product.Product) error {
	query := `
        INSERT INTO products (name, price, original_price, category_id, status, download_url, license_key)
        VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at`

	err := r.db.QueryRowContext(ctx, query,
		p.Name, p.Price, p.OriginalPrice, p.CategoryID, p.Status, p.DownloadURL, p.LicenseKey,
	).Scan(&p.ID, &p.CreatedAt)
	if db.IsForeignKeyViolation(err) {
		return product.ErrUnknownCategory
	}
	return err
}

func (r *PostgresProductRepository) Update(ctx context.Context, p *product.Product) error {
	query := `UPDATE products SET
              name = $1,
              price = $2,
              original_price = $3,
              category_id = $4,
              status = $5,
              download_url = $6,
              license_key = $7
              WHERE id = $8`
	res, err := r.db.ExecContext(ctx, query,
		p.Name, p.Price, p.OriginalPrice, p.CategoryID, p.Status, p.DownloadURL, p.LicenseKey, p.ID)
	if db.IsForeignKeyViolation(err) {
		return product.ErrUnknownCategory
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
