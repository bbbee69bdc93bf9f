// Package pricing содержит денежную арифметику скидок.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Точность валюты: два знака (копейки/куруши).
const minorUnits = 2

var (
	hundred = decimal.NewFromInt(100)

	ErrUnknownDiscountType   = errors.New("discount type must be percentage or fixed")
	ErrNonPositiveDiscount   = errors.New("discount value must be positive")
	ErrPercentageAbove100    = errors.New("percentage discount must not exceed 100")
	ErrDiscountPrecisionLost = errors.New("discount value must have at most 2 decimal places")
)

func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// ValidateRule проверяет пару тип/значение при создании купона или набора.
func ValidateRule(t DiscountType, value decimal.Decimal) error {
	if !t.Valid() {
		return ErrUnknownDiscountType
	}
	if !value.IsPositive() {
		return ErrNonPositiveDiscount
	}
	if !value.Equal(value.Round(minorUnits)) {
		return ErrDiscountPrecisionLost
	}
	if t == DiscountPercentage && value.GreaterThan(hundred) {
		return ErrPercentageAbove100
	}
	return nil
}

// Discount считает размер скидки для base.
// percentage: base*value/100, fixed: min(value, base). Результат округляется
// до копеек половиной вверх и никогда не превышает base.
func Discount(t DiscountType, value, base decimal.Decimal) decimal.Decimal {
	if !base.IsPositive() || !value.IsPositive() {
		return decimal.Zero
	}

	var d decimal.Decimal
	switch t {
	case DiscountPercentage:
		d = base.Mul(value).Div(hundred)
	case DiscountFixed:
		d = decimal.Min(value, base)
	default:
		return decimal.Zero
	}

	d = RoundMoney(d)
	if d.GreaterThan(base) {
		d = base
	}
	return d
}

// RoundMoney округляет до двух знаков, половина вверх.
// decimal.Round округляет половину от нуля, для неотрицательных сумм это одно и то же.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(minorUnits)
}
