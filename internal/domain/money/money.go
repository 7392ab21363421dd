// Package money fija la política monetaria del sistema sobre shopspring/decimal:
// escala 2 y redondeo half-up (mitad alejándose de cero), aplicado una sola vez por campo derivado.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/facturacion-mecef/internal/domain"
)

// Scale es la cantidad de decimales de todo monto persistido.
const Scale int32 = 2

var hundred = decimal.NewFromInt(100)

// Round aplica la política única de redondeo: half-up a Scale decimales.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Percent devuelve d × p / 100 sin redondear; el llamador decide el punto de redondeo.
func Percent(d, p decimal.Decimal) decimal.Decimal {
	return d.Mul(p).Div(hundred)
}

// MulRound multiplica y redondea (cantidad × precio unitario).
func MulRound(a, b decimal.Decimal) decimal.Decimal {
	return Round(a.Mul(b))
}

// PercentRound es Percent redondeado a la escala monetaria.
func PercentRound(d, p decimal.Decimal) decimal.Decimal {
	return Round(Percent(d, p))
}

// NonNegative valida que d no sea negativo y lo devuelve redondeado.
func NonNegative(d decimal.Decimal) (decimal.Decimal, error) {
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s es negativo", domain.ErrInvalidAmount, d.String())
	}
	return Round(d), nil
}

// Positive valida que d sea estrictamente mayor que cero.
func Positive(d decimal.Decimal) (decimal.Decimal, error) {
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s debe ser mayor que cero", domain.ErrInvalidAmount, d.String())
	}
	return Round(d), nil
}

// Parse interpreta una cadena decimal ("118000", "12.345") y la redondea.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, s)
	}
	return Round(d), nil
}

// Sum suma una lista de montos.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, x := range amounts {
		total = total.Add(x)
	}
	return total
}

// Format devuelve el monto con exactamente dos decimales ("118000.00").
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}

// InRange indica si p está en [0,100].
func InRange(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}
