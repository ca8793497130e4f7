package portfolio

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "TaxAdvisor/internal/errors"
)

type stubRepo struct {
	positions []Position
	gains     []RealizedGain
	err       error
}

func (s stubRepo) FindPortfolio(context.Context, string) ([]Position, error) {
	return s.positions, s.err
}

func (s stubRepo) FindRealizedGains(context.Context, string) ([]RealizedGain, error) {
	return s.gains, s.err
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestUnrealizedFigures(t *testing.T) {
	p := Position{AveragePrice: d("30000"), CurrentPrice: d("20000"), Quantity: 10}
	assert.True(t, p.UnrealizedGain().Equal(d("-100000")))
	assert.True(t, p.UnrealizedRatePercent().Equal(d("-33.33")), p.UnrealizedRatePercent().String())

	up := Position{AveragePrice: d("3"), CurrentPrice: d("5"), Quantity: 1}
	assert.True(t, up.UnrealizedRatePercent().Equal(d("66.67")), up.UnrealizedRatePercent().String())

	zero := Position{AveragePrice: decimal.Zero, CurrentPrice: d("10"), Quantity: 1}
	assert.True(t, zero.UnrealizedRatePercent().IsZero())
}

func TestGetUserPortfolioViews(t *testing.T) {
	svc := NewService(stubRepo{positions: []Position{
		{Market: MarketUS, StockName: "TSLA", AveragePrice: d("250"), CurrentPrice: d("200"), Quantity: 4},
		{Market: MarketKR, StockName: "삼성전자", AveragePrice: d("70000"), CurrentPrice: d("80000"), Quantity: 2},
	}})

	views, err := svc.GetUserPortfolio(context.Background(), DefaultUserID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, MarketUS, views[0].Market)
	assert.True(t, views[0].UnrealizedGain.Equal(d("-200")))
	assert.True(t, views[1].UnrealizedGain.Equal(d("20000")))
}

func TestGetRealizedGainsTotals(t *testing.T) {
	svc := NewService(stubRepo{gains: []RealizedGain{
		{StockName: "NVDA", GainAmount: d("1500000"), RealizedDate: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)},
		{StockName: "AAPL", GainAmount: d("-200000")},
	}})

	view, err := svc.GetRealizedGains(context.Background(), DefaultUserID)
	require.NoError(t, err)
	assert.True(t, view.TotalRealizedGain.Equal(d("1300000")))
	require.Len(t, view.Items, 2)
	assert.Equal(t, "2026-03-02", view.Items[0].RealizedDate)
	assert.Equal(t, "", view.Items[1].RealizedDate)
}

func TestBaseline(t *testing.T) {
	svc := NewService(stubRepo{positions: []Position{
		{AveragePrice: d("100"), CurrentPrice: d("80"), Quantity: 10},
		{AveragePrice: d("50"), CurrentPrice: d("60"), Quantity: 10},
	}})

	b, err := svc.Baseline(context.Background(), DefaultUserID)
	require.NoError(t, err)
	assert.True(t, b.MarketValue.Equal(d("1400")))
	assert.True(t, b.CostBasis.Equal(d("1500")))
	assert.True(t, b.UnrealizedPnL.Equal(d("-100")))
	assert.True(t, b.UnrealizedLoss.Equal(d("-200")))
}

func TestRepositoryErrorIsStorageFailure(t *testing.T) {
	svc := NewService(stubRepo{err: stdErrors.New("db down")})
	_, err := svc.GetUserPortfolio(context.Background(), DefaultUserID)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeStorageFailure))
}

func TestFormatWon(t *testing.T) {
	cases := map[string]string{
		"0":         "0",
		"999":       "999",
		"1000":      "1,000",
		"1234567.5": "1,234,568",
		"-2500000":  "-2,500,000",
		"100000000": "100,000,000",
	}
	for in, want := range cases {
		assert.Equal(t, want, FormatWon(d(in)), in)
	}
}
