// Package currency содержит курс обмена виртуальных валют и функции пересчёта.
package currency

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/campaign-ledger/internal/model"
)

// ErrInvalidCurrency возвращается для валюты, не участвующей в пересчёте.
var ErrInvalidCurrency = errors.New("invalid currency")

// Precision задаёт число знаков после запятой для всех сумм.
const Precision = 2

// unitsPerAC: сколько единиц валюты составляют 1 AC.
var unitsPerAC = map[model.Currency]decimal.Decimal{
	model.CurrencyAC: decimal.NewFromInt(1),
	model.CurrencyAB: decimal.NewFromInt(2),
}

func rate(cur model.Currency) (decimal.Decimal, error) {
	r, ok := unitsPerAC[cur]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidCurrency, cur)
	}
	return r, nil
}

// ToAC пересчитывает сумму в указанной валюте в эквивалент AC.
func ToAC(amount decimal.Decimal, cur model.Currency) (decimal.Decimal, error) {
	r, err := rate(cur)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.DivRound(r, Precision), nil
}

// FromAC пересчитывает сумму в AC в указанную валюту.
func FromAC(amountAC decimal.Decimal, cur model.Currency) (decimal.Decimal, error) {
	r, err := rate(cur)
	if err != nil {
		return decimal.Zero, err
	}
	return amountAC.Mul(r).Round(Precision), nil
}

// ToAB пересчитывает сумму в AC в AB.
func ToAB(amountAC decimal.Decimal) decimal.Decimal {
	ab, _ := FromAC(amountAC, model.CurrencyAB)
	return ab
}

// Convertible сообщает, участвует ли валюта в пересчёте.
func Convertible(cur model.Currency) bool {
	_, ok := unitsPerAC[cur]
	return ok
}

// ToCents переводит сумму в целое число сотых для хранения.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(Precision).Round(0).IntPart()
}

// FromCents восстанавливает сумму из целого числа сотых.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -Precision)
}
