package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"

	"plugstore/internal/user"
	"plugstore/pkg/db"
)

var ErrNotFound = errors.New("user not found")

type PostgresUserRepository struct {
	db db.Querier
}

func NewPostgresUserRepository(q db.Querier) *PostgresUserRepository {
	return &PostgresUserRepository{db: q}
}

func (r *PostgresUserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	u := &user.User{}
	query := `SELECT id, email, is_admin, balance, created_at FROM users WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&u.ID,
		&u.Email,
		&u.IsAdmin,
		&u.Balance,
		&u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return u, nil
}

// Credit пополняет баланс и возвращает новое значение.
func (r *PostgresUserRepository) Credit(ctx context.Context, id int64, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRowContext(ctx,
		`UPDATE users SET balance = balance + $1 WHERE id = $2 RETURNING balance`,
		amount, id).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	return balance, err
}

// Debit списывает amount только если хватает средств. false = недостаточно.
// Проверка и списание идут одним UPDATE, без чтения в приложении.
func (r *PostgresUserRepository) Debit(ctx context.Context, id int64, amount decimal.Decimal) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET balance = balance - $1 WHERE id = $2 AND balance >= $1`,
		amount, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
