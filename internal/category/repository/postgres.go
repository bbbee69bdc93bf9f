package repository

import (
	"context"
	"database/sql"
	"errors"

	"plugstore/internal/category"
	"plugstore/pkg/db"
)

var (
	ErrNotFound  = category.ErrNotFound
	ErrNameTaken = category.ErrNameTaken
)

type PostgresCategoryRepository struct {
	db db.Querier
}

func NewPostgresCategoryRepository(q db.Querier) *PostgresCategoryRepository {
	return &PostgresCategoryRepository{db: q}
}

func (r *PostgresCategoryRepository) GetByID(ctx context.Context, id int64) (*category.Category, error) {
	c := &category.Category{}
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresCategoryRepository) List(ctx context.Context) ([]*category.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []*category.Category
	for rows.Next() {
		c := &category.Category{}
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *PostgresCategoryRepository) Create(ctx context.Context, c *category.Category) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO categories (name) VALUES ($1) RETURNING id`, c.Name).Scan(&c.ID)
	if db.IsUniqueViolation(err) {
		return ErrNameTaken
	}
	return err
}

func (r *PostgresCategoryRepository) Update(ctx context.Context, c *category.Category) error {
	res, err := r.db.ExecContext(ctx, `UPDATE categories SET name = $1 WHERE id = $2`, c.Name, c.ID)
	if db.IsUniqueViolation(err) {
		return ErrNameTaken
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
