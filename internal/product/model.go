package product

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

var (
	ErrNotFound        = errors.New("product not found")
	ErrUnknownCategory = errors.New("category does not exist")
)

type Product struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	Price         decimal.Decimal  `json:"price"` // 0 = бесплатный
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	CategoryID    *int64           `json:"category_id,omitempty"`
	Status        string           `json:"status"`
	DownloadURL   *string          `json:"-"`
	LicenseKey    *string          `json:"-"`
	CreatedAt     time.Time        `json:"created_at"`
}

func (p *Product) IsFree() bool {
	return p.Price.IsZero()
}

func (p *Product) IsActive() bool {
	return p.Status == StatusActive
}
