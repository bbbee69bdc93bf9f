package user

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64           `json:"id"`
	Email     string          `json:"email"`
	IsAdmin   bool            `json:"is_admin"`
	Balance   decimal.Decimal `json:"balance"` // внутренний счёт, списывается при оплате с баланса
	CreatedAt time.Time       `json:"created_at"`
}
