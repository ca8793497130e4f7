package tool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	xerrors "TaxAdvisor/internal/errors"
	"TaxAdvisor/internal/llm"
	"TaxAdvisor/internal/portfolio"
	"TaxAdvisor/pkg/logger"
)

// MarketSummary 汇总单个市场的持仓情况。
type MarketSummary struct {
	PositionCount       int             `json:"positionCount"`
	TotalUnrealizedGain decimal.Decimal `json:"totalUnrealizedGain"`
}

// Querier 是分发器依赖的数据查询能力，由 portfolio.Service 实现。
type Querier interface {
	GetUserPortfolio(ctx context.Context, userID string) ([]portfolio.PositionView, error)
	GetRealizedGains(ctx context.Context, userID string) (portfolio.RealizedGainView, error)
}

// Dispatcher 将模型发起的工具调用映射到本地数据查询。Execute 永远不会失败，
// 未知工具与数据源错误都以错误载荷的形式返回给模型。
type Dispatcher struct {
	catalog *Catalog
	data    Querier
	logger  *slog.Logger
}

// NewDispatcher 创建工具分发器。
func NewDispatcher(catalog *Catalog, data Querier) *Dispatcher {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Dispatcher{catalog: catalog, data: data, logger: logger.Named("tool")}
}

// Catalog 返回分发器使用的工具目录。
func (d *Dispatcher) Catalog() *Catalog {
	return d.catalog
}

// Declarations 返回发送给模型的函数声明。
func (d *Dispatcher) Declarations() []llm.FunctionDeclaration {
	return d.catalog.Declarations()
}

// ResolveUserID 返回参数中的非空 userId，否则返回默认用户。
func ResolveUserID(args llm.Args) string {
	if raw := args.String("userId"); strings.TrimSpace(raw) != "" {
		return raw
	}
	return portfolio.DefaultUserID
}

// Execute 执行一次工具调用。
func (d *Dispatcher) Execute(ctx context.Context, call llm.ToolInvocation) llm.ToolResult {
	if !d.catalog.Supports(call.Name) {
		d.logger.Warn("收到未定义的工具调用", slog.String("name", call.Name))
		return errorResult(call.Name, "Unknown function: "+call.Name)
	}

	if violations := d.catalog.Validate(call.Args); len(violations) > 0 {
		d.logger.Warn("工具参数不符合 Schema，使用默认值继续",
			slog.String("name", call.Name),
			slog.Any("violations", violations))
	}
	userID := ResolveUserID(call.Args)

	var (
		payload map[string]any
		err     error
	)
	switch call.Name {
	case GetUserPortfolio:
		payload, err = d.userPortfolio(ctx, userID)
	case GetRealizedGains:
		payload, err = d.realizedGains(ctx, userID)
	}
	if err != nil {
		d.logger.Error("工具执行失败", slog.String("name", call.Name), slog.Any("error", err))
		return errorResult(call.Name, publicMessage(err))
	}
	return llm.ToolResult{Name: call.Name, Payload: payload, Known: true}
}

func (d *Dispatcher) userPortfolio(ctx context.Context, userID string) (map[string]any, error) {
	views, err := d.data.GetUserPortfolio(ctx, userID)
	if err != nil {
		return nil, err
	}

	byMarket := orderedmap.New[string, []portfolio.PositionView]()
	for _, v := range views {
		market := string(v.Market)
		group, _ := byMarket.Get(market)
		byMarket.Set(market, append(group, v))
	}

	summary := orderedmap.New[string, MarketSummary]()
	for pair := byMarket.Oldest(); pair != nil; pair = pair.Next() {
		total := decimal.Zero
		for _, v := range pair.Value {
			total = total.Add(v.UnrealizedGain)
		}
		summary.Set(pair.Key, MarketSummary{PositionCount: len(pair.Value), TotalUnrealizedGain: total})
	}

	return map[string]any{
		"userId":            userID,
		"portfolio":         views,
		"portfolioByMarket": byMarket,
		"marketSummary":     summary,
	}, nil
}

func (d *Dispatcher) realizedGains(ctx context.Context, userID string) (map[string]any, error) {
	view, err := d.data.GetRealizedGains(ctx, userID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"userId":            userID,
		"totalRealizedGain": view.TotalRealizedGain,
		"items":             view.Items,
	}, nil
}

// publicMessage 返回可以交给模型的错误描述，编码错误只保留消息，不带底层原因。
func publicMessage(err error) string {
	if coded, ok := xerrors.From(err); ok {
		return coded.Message()
	}
	return err.Error()
}

func errorResult(name, message string) llm.ToolResult {
	return llm.ToolResult{Name: name, Payload: map[string]any{"error": message}}
}

// Summarize 生成一行工具结果摘要，用于日志。
func Summarize(result llm.ToolResult) string {
	if msg, ok := result.Payload["error"]; ok {
		return fmt.Sprintf("error=%v", msg)
	}
	switch result.Name {
	case GetUserPortfolio:
		if views, ok := result.Payload["portfolio"].([]portfolio.PositionView); ok {
			return fmt.Sprintf("portfolioCount=%d", len(views))
		}
		return "portfolioCount=unknown"
	case GetRealizedGains:
		itemCount := -1
		if items, ok := result.Payload["items"].([]portfolio.RealizedGainItem); ok {
			itemCount = len(items)
		}
		return fmt.Sprintf("totalRealizedGain=%v, itemCount=%d", result.Payload["totalRealizedGain"], itemCount)
	default:
		keys := make([]string, 0, len(result.Payload))
		for k := range result.Payload {
			keys = append(keys, k)
		}
		return fmt.Sprintf("keys=%v", keys)
	}
}
