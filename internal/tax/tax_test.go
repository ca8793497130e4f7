package tax

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TaxAdvisor/internal/portfolio"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestComputeHarvestScenario(t *testing.T) {
	p := Compute(d("10000000"), d("-4000000"))

	assert.True(t, p.TaxBeforeHarvest.Equal(d("2200000")))
	assert.True(t, p.TaxAfterHarvest.Equal(d("1320000")))
	assert.True(t, p.TaxSavings.Equal(d("880000")))
}

func TestComputeFloorsTaxBaseAtZero(t *testing.T) {
	p := Compute(d("1000000"), d("-3000000"))
	assert.True(t, p.TaxBeforeHarvest.Equal(d("220000")))
	assert.True(t, p.TaxAfterHarvest.IsZero())
	assert.True(t, p.TaxSavings.Equal(d("220000")))

	negative := Compute(d("-500000"), d("-1"))
	assert.True(t, negative.TaxBeforeHarvest.IsZero())
	assert.True(t, negative.TaxSavings.IsZero())
}

func TestComputeRoundsHalfUp(t *testing.T) {
	// 12345 * 0.22 = 2715.9, 12343 * 0.22 = 2715.46
	p := Compute(d("12345"), d("-2"))
	assert.Equal(t, "2716", p.TaxBeforeHarvest.String())
	assert.Equal(t, "2715", p.TaxAfterHarvest.String())
	assert.Equal(t, "1", p.TaxSavings.String())

	half := Compute(d("0.5"), decimal.Zero)
	assert.Equal(t, "1", half.RealizedGain.String())
}

type repo struct {
	positions []portfolio.Position
	gains     []portfolio.RealizedGain
}

func (r repo) FindPortfolio(context.Context, string) ([]portfolio.Position, error) {
	return r.positions, nil
}

func (r repo) FindRealizedGains(context.Context, string) ([]portfolio.RealizedGain, error) {
	return r.gains, nil
}

func TestCalculatorIgnoresGainsInLossSum(t *testing.T) {
	calc := NewCalculator(repo{
		positions: []portfolio.Position{
			{AveragePrice: d("100"), CurrentPrice: d("50"), Quantity: 100},
			{AveragePrice: d("100"), CurrentPrice: d("300"), Quantity: 100},
		},
		gains: []portfolio.RealizedGain{{GainAmount: d("20000")}},
	})

	p, err := calc.Preview(context.Background(), portfolio.DefaultUserID)
	require.NoError(t, err)
	assert.True(t, p.RealizedGain.Equal(d("20000")))
	assert.True(t, p.UnrealizedLoss.Equal(d("-5000")))
	assert.True(t, p.TaxSavings.Equal(d("1100")))
}
