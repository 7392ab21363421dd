package money_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/facturacion-mecef/internal/domain"
	"github.com/jhoicas/facturacion-mecef/internal/domain/money"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRound_HalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.005", "1.01"},
		{"1.004", "1.00"},
		{"2.675", "2.68"},
		{"-1.005", "-1.01"},
		{"118000", "118000.00"},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			assert.Equal(t, c.want, money.Format(money.Round(dec(c.in))))
		})
	}
}

func TestPercentRound(t *testing.T) {
	assert.Equal(t, "18000.00", money.Format(money.PercentRound(dec("100000"), dec("18"))))
	assert.Equal(t, "18.02", money.Format(money.PercentRound(dec("100.10"), dec("18"))))
	// 33.33 × 15% = 4.9995 → 5.00
	assert.Equal(t, "5.00", money.Format(money.PercentRound(dec("33.33"), dec("15"))))
}

func TestMulRound_Sum(t *testing.T) {
	assert.Equal(t, "100000.00", money.Format(money.MulRound(dec("2"), dec("50000"))))
	assert.Equal(t, "0.33", money.Format(money.MulRound(dec("0.333"), dec("1"))))
	assert.Equal(t, "100.30", money.Format(money.Sum(dec("100.10"), dec("0.20"))))
	assert.True(t, money.Sum().IsZero())
}

func TestNonNegative_Positive(t *testing.T) {
	_, err := money.NonNegative(dec("-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	v, err := money.NonNegative(dec("5.555"))
	require.NoError(t, err)
	assert.Equal(t, "5.56", money.Format(v))

	_, err = money.Positive(decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestParse_Invalido(t *testing.T) {
	_, err := money.Parse("abc")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	v, err := money.Parse("12.345")
	require.NoError(t, err)
	assert.Equal(t, "12.35", money.Format(v))
}

func TestInRange(t *testing.T) {
	assert.True(t, money.InRange(decimal.Zero))
	assert.True(t, money.InRange(dec("100")))
	assert.False(t, money.InRange(dec("100.01")))
	assert.False(t, money.InRange(dec("-0.01")))
}
