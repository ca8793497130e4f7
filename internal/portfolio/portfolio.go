package portfolio

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultUserID 是服务对外固定使用的用户标识。
const DefaultUserID = "me"

// Market 表示持仓所在市场。
type Market string

const (
	MarketKR Market = "KR"
	MarketUS Market = "US"
)

var hundred = decimal.NewFromInt(100)

// Position 是用户的一条持仓记录。
type Position struct {
	UserID       string
	Market       Market
	StockName    string
	AveragePrice decimal.Decimal
	CurrentPrice decimal.Decimal
	Quantity     int64
}

// UnrealizedGain 返回 (现价-均价)*数量。
func (p Position) UnrealizedGain() decimal.Decimal {
	return p.CurrentPrice.Sub(p.AveragePrice).Mul(decimal.NewFromInt(p.Quantity))
}

// UnrealizedRatePercent 返回收益率百分比，比率先按四位小数四舍五入再乘以 100。均价为 0 时返回 0。
func (p Position) UnrealizedRatePercent() decimal.Decimal {
	if p.AveragePrice.IsZero() {
		return decimal.Zero
	}
	return p.CurrentPrice.Sub(p.AveragePrice).DivRound(p.AveragePrice, 4).Mul(hundred)
}

// CostBasis 返回均价*数量。
func (p Position) CostBasis() decimal.Decimal {
	return p.AveragePrice.Mul(decimal.NewFromInt(p.Quantity))
}

// MarketValue 返回现价*数量。
func (p Position) MarketValue() decimal.Decimal {
	return p.CurrentPrice.Mul(decimal.NewFromInt(p.Quantity))
}

// RealizedGain 是一条已实现损益记录。
type RealizedGain struct {
	UserID       string
	StockName    string
	GainAmount   decimal.Decimal
	RealizedDate time.Time
}

// Repository 定义了持仓与已实现损益的数据来源。
type Repository interface {
	FindPortfolio(ctx context.Context, userID string) ([]Position, error)
	FindRealizedGains(ctx context.Context, userID string) ([]RealizedGain, error)
}

// PositionView 是返回给模型的持仓视图。
type PositionView struct {
	Market                Market          `json:"market"`
	StockName             string          `json:"stockName"`
	AveragePrice          decimal.Decimal `json:"averagePrice"`
	CurrentPrice          decimal.Decimal `json:"currentPrice"`
	Quantity              int64           `json:"quantity"`
	UnrealizedGain        decimal.Decimal `json:"unrealizedGain"`
	UnrealizedRatePercent decimal.Decimal `json:"unrealizedRatePercent"`
}

// RealizedGainItem 是单条已实现损益的视图。
type RealizedGainItem struct {
	StockName    string          `json:"stockName"`
	GainAmount   decimal.Decimal `json:"gainAmount"`
	RealizedDate string          `json:"realizedDate"`
}

// RealizedGainView 汇总已实现损益。
type RealizedGainView struct {
	TotalRealizedGain decimal.Decimal    `json:"totalRealizedGain"`
	Items             []RealizedGainItem `json:"items"`
}

// Baseline 是用户持仓的基础统计。
type Baseline struct {
	MarketValue    decimal.Decimal
	CostBasis      decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	UnrealizedLoss decimal.Decimal
}

// SumRealized 返回已实现损益合计。
func SumRealized(gains []RealizedGain) decimal.Decimal {
	total := decimal.Zero
	for _, g := range gains {
		total = total.Add(g.GainAmount)
	}
	return total
}

// SumUnrealizedLoss 返回所有为负的未实现损益之和。
func SumUnrealizedLoss(positions []Position) decimal.Decimal {
	total := decimal.Zero
	for _, p := range positions {
		if gain := p.UnrealizedGain(); gain.IsNegative() {
			total = total.Add(gain)
		}
	}
	return total
}
