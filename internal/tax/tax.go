package tax

import (
	"context"

	"github.com/shopspring/decimal"

	"TaxAdvisor/internal/portfolio"
)

// Rate 是演示用的单一税率 22%。
var Rate = decimal.RequireFromString("0.22")

// Preview 是由持仓与已实现损益推导出的税额预估，计算后不可变。
type Preview struct {
	RealizedGain     decimal.Decimal `json:"realizedGain"`
	UnrealizedLoss   decimal.Decimal `json:"unrealizedLoss"`
	TaxBeforeHarvest decimal.Decimal `json:"estimatedTaxBeforeHarvest"`
	TaxAfterHarvest  decimal.Decimal `json:"estimatedTaxAfterHarvest"`
	TaxSavings       decimal.Decimal `json:"estimatedTaxSavings"`
}

// Compute 根据已实现损益合计与未实现亏损合计（非正数）计算税额预估。
// 税基低于 0 时按 0 处理，所有结果四舍五入到整数。
func Compute(realizedGain, unrealizedLoss decimal.Decimal) Preview {
	before := floorToZero(realizedGain).Mul(Rate).Round(0)
	after := floorToZero(realizedGain.Add(unrealizedLoss)).Mul(Rate).Round(0)
	return Preview{
		RealizedGain:     realizedGain.Round(0),
		UnrealizedLoss:   unrealizedLoss.Round(0),
		TaxBeforeHarvest: before,
		TaxAfterHarvest:  after,
		TaxSavings:       floorToZero(before.Sub(after)),
	}
}

// Summarize 对原始记录求和后计算预估。
func Summarize(positions []portfolio.Position, gains []portfolio.RealizedGain) Preview {
	return Compute(portfolio.SumRealized(gains), portfolio.SumUnrealizedLoss(positions))
}

func floorToZero(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Calculator 从仓储读取数据并生成预估。
type Calculator struct {
	repo portfolio.Repository
}

// NewCalculator 创建计算器。
func NewCalculator(repo portfolio.Repository) *Calculator {
	return &Calculator{repo: repo}
}

// Preview 计算指定用户的税额预估。
func (c *Calculator) Preview(ctx context.Context, userID string) (Preview, error) {
	gains, err := c.repo.FindRealizedGains(ctx, userID)
	if err != nil {
		return Preview{}, err
	}
	positions, err := c.repo.FindPortfolio(ctx, userID)
	if err != nil {
		return Preview{}, err
	}
	return Summarize(positions, gains), nil
}
