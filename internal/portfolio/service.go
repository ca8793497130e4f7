package portfolio

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	xerrors "TaxAdvisor/internal/errors"
	"TaxAdvisor/pkg/logger"
)

const dateLayout = "2006-01-02"

// Service 在仓储之上提供面向工具调用的查询视图。
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService 创建查询服务。
func NewService(repo Repository) *Service {
	return &Service{repo: repo, logger: logger.Named("portfolio")}
}

// Positions 返回原始持仓记录。
func (s *Service) Positions(ctx context.Context, userID string) ([]Position, error) {
	positions, err := s.repo.FindPortfolio(ctx, userID)
	if err != nil {
		return nil, wrapStorage(err, "查询持仓失败", userID)
	}
	return positions, nil
}

// RealizedGains 返回原始已实现损益记录。
func (s *Service) RealizedGains(ctx context.Context, userID string) ([]RealizedGain, error) {
	gains, err := s.repo.FindRealizedGains(ctx, userID)
	if err != nil {
		return nil, wrapStorage(err, "查询已实现损益失败", userID)
	}
	return gains, nil
}

// GetUserPortfolio 返回带未实现损益的持仓视图，并记录浮盈最大的持仓。
func (s *Service) GetUserPortfolio(ctx context.Context, userID string) ([]PositionView, error) {
	s.logger.Info("模型请求查询持仓", slog.String("user_id", userID))
	positions, err := s.Positions(ctx, userID)
	if err != nil {
		return nil, err
	}

	var top *Position
	for i := range positions {
		gain := positions[i].UnrealizedGain()
		if !gain.IsPositive() {
			continue
		}
		if top == nil || gain.GreaterThan(top.UnrealizedGain()) {
			top = &positions[i]
		}
	}
	if top != nil {
		s.logger.Info("检测到最大浮盈持仓",
			slog.String("stock", top.StockName),
			slog.String("unrealized_gain", FormatWon(top.UnrealizedGain())))
	}

	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, PositionView{
			Market:                p.Market,
			StockName:             p.StockName,
			AveragePrice:          p.AveragePrice,
			CurrentPrice:          p.CurrentPrice,
			Quantity:              p.Quantity,
			UnrealizedGain:        p.UnrealizedGain(),
			UnrealizedRatePercent: p.UnrealizedRatePercent(),
		})
	}
	return views, nil
}

// GetRealizedGains 返回已实现损益明细与合计。
func (s *Service) GetRealizedGains(ctx context.Context, userID string) (RealizedGainView, error) {
	s.logger.Info("模型请求查询已实现损益", slog.String("user_id", userID))
	gains, err := s.RealizedGains(ctx, userID)
	if err != nil {
		return RealizedGainView{}, err
	}

	total := SumRealized(gains)
	s.logger.Info("已实现损益合计", slog.String("total", FormatWon(total)))

	items := make([]RealizedGainItem, 0, len(gains))
	for _, g := range gains {
		item := RealizedGainItem{StockName: g.StockName, GainAmount: g.GainAmount}
		if !g.RealizedDate.IsZero() {
			item.RealizedDate = g.RealizedDate.Format(dateLayout)
		}
		items = append(items, item)
	}
	return RealizedGainView{TotalRealizedGain: total, Items: items}, nil
}

// Baseline 汇总用户当前持仓的市值、成本与未实现损益。
func (s *Service) Baseline(ctx context.Context, userID string) (Baseline, error) {
	positions, err := s.Positions(ctx, userID)
	if err != nil {
		return Baseline{}, err
	}
	b := Baseline{
		MarketValue:    decimal.Zero,
		CostBasis:      decimal.Zero,
		UnrealizedPnL:  decimal.Zero,
		UnrealizedLoss: SumUnrealizedLoss(positions),
	}
	for _, p := range positions {
		b.MarketValue = b.MarketValue.Add(p.MarketValue())
		b.CostBasis = b.CostBasis.Add(p.CostBasis())
		b.UnrealizedPnL = b.UnrealizedPnL.Add(p.UnrealizedGain())
	}
	return b, nil
}

func wrapStorage(err error, message, userID string) error {
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(xerrors.CodeStorageFailure, err, message, xerrors.WithMetadata("user_id", userID))
}

// FormatWon 以千分位格式化金额并取整，例如 1234567.5 -> "1,234,568"。
func FormatWon(amount decimal.Decimal) string {
	digits := amount.Round(0).String()
	negative := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
