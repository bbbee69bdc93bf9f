package service

import (
	"context"
	"errors"
	"log"

	"github.com/shopspring/decimal"

	"plugstore/internal/user"
	"plugstore/internal/user/repository"
)

var (
	ErrUserNotFound        = repository.ErrNotFound
	ErrInvalidTopUpAmount  = errors.New("top-up amount must be positive")
	ErrTopUpPrecisionLimit = errors.New("top-up amount must have at most 2 decimal places")
)

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*user.User, error)
	Credit(ctx context.Context, id int64, amount decimal.Decimal) (decimal.Decimal, error)
}

type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetProfile(ctx context.Context, userID int64) (*user.User, error) {
	return s.repo.GetByID(ctx, userID)
}

// IsAdmin читает текущий флаг администратора. Удалённый пользователь не администратор.
func (s *UserService) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.IsAdmin, nil
}

// TopUp зачисляет средства на баланс (ручное пополнение администратором).
func (s *UserService) TopUp(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidTopUpAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Zero, ErrTopUpPrecisionLimit
	}

	balance, err := s.repo.Credit(ctx, userID, amount)
	if err != nil {
		return decimal.Zero, err
	}
	log.Printf("UserService: balance of user %d topped up by %s, now %s", userID, amount.StringFixed(2), balance.StringFixed(2))
	return balance, nil
}
