package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"TaxAdvisor/internal/llm"
	"TaxAdvisor/internal/portfolio"
	"TaxAdvisor/internal/tax"
	"TaxAdvisor/internal/tool"
	"TaxAdvisor/pkg/logger"
)

// DefaultMaxIterations 是主策略循环允许的最大模型调用轮数。
const DefaultMaxIterations = 6

// Toolbox 提供工具声明并执行模型发起的调用。tool.Dispatcher 实现了该接口。
type Toolbox interface {
	Declarations() []llm.FunctionDeclaration
	Execute(ctx context.Context, call llm.ToolInvocation) llm.ToolResult
}

// Previewer 计算用户的税额预估。
type Previewer interface {
	Preview(ctx context.Context, userID string) (tax.Preview, error)
}

// BaselineSource 提供用户持仓的基础统计，仅用于日志。
type BaselineSource interface {
	Baseline(ctx context.Context, userID string) (portfolio.Baseline, error)
}

// Result 是主策略阶段的最终输出。
type Result struct {
	Answer       string      `json:"answer"`
	Iterations   int         `json:"iterations"`
	TaxPreview   tax.Preview `json:"taxPreview"`
	FallbackUsed bool        `json:"fallbackUsed"`
}

// Advisor 驱动带工具调用的主策略循环。
type Advisor struct {
	gateway       llm.Gateway
	tools         Toolbox
	previewer     Previewer
	baseline      BaselineSource
	maxIterations int
	logger        *slog.Logger
}

// Option 定义可选的 Advisor 配置。
type Option func(*Advisor)

// WithMaxIterations 设置循环的最大轮数，非正数时使用默认值。
func WithMaxIterations(n int) Option {
	return func(a *Advisor) {
		a.maxIterations = n
	}
}

// WithBaselineSource 配置用于记录用户基础现状的数据源。
func WithBaselineSource(src BaselineSource) Option {
	return func(a *Advisor) {
		a.baseline = src
	}
}

// NewAdvisor 创建主策略智能体。
func NewAdvisor(gateway llm.Gateway, tools Toolbox, previewer Previewer, opts ...Option) *Advisor {
	a := &Advisor{
		gateway:       gateway,
		tools:         tools,
		previewer:     previewer,
		maxIterations: DefaultMaxIterations,
		logger:        logger.Named("advisor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.maxIterations <= 0 {
		a.maxIterations = DefaultMaxIterations
	}
	return a
}

// MaxIterations 返回生效的最大轮数。
func (a *Advisor) MaxIterations() int {
	return a.maxIterations
}

// Advise 为指定用户生成节税策略。该方法不会返回错误：模型不可用、出错或
// 不遵循指令时都会退回到本地计算的回答。
func (a *Advisor) Advise(ctx context.Context, userID, question string) Result {
	question = normalizeQuestion(question)
	a.logger.Info("主策略阶段收到请求", slog.String("user_id", userID), slog.String("question", question))

	// 先计算税额预估，确保任何情况下都能给出回答。
	preview := a.preview(ctx, userID)
	a.logBaseline(ctx, userID, preview)
	fallback := FallbackAnswer(preview)

	if a.gateway == nil || !a.gateway.IsConfigured() {
		a.logger.Warn("未配置模型 API Key，使用本地计算结果回答")
		return Result{Answer: fallback, Iterations: 0, TaxPreview: preview, FallbackUsed: true}
	}

	conversation := []llm.Turn{llm.UserText(seedPrompt(userID, question))}
	var declarations []llm.FunctionDeclaration
	if a.tools != nil {
		declarations = a.tools.Declarations()
	}

	toolCalled := false
	for iteration := 1; ; iteration++ {
		if iteration > a.maxIterations {
			a.logger.Warn("超过最大轮数，使用本地计算结果结束", slog.Int("max_iterations", a.maxIterations))
			return Result{Answer: fallback, Iterations: a.maxIterations, TaxPreview: preview, FallbackUsed: true}
		}

		a.logger.Info("开始新一轮模型调用",
			slog.Int("iteration", iteration),
			slog.Int("max_iterations", a.maxIterations),
			slog.Int("conversation_size", len(conversation)),
			slog.Bool("tool_called", toolCalled))

		resp, err := a.gateway.GenerateContent(ctx, conversation, declarations, advisorSystemPrompt)
		if err != nil {
			a.logger.Error("调用模型失败，使用本地计算结果", slog.Int("iteration", iteration), slog.Any("error", err))
			return Result{Answer: fallback, Iterations: iteration, TaxPreview: preview, FallbackUsed: true}
		}

		turn, ok := resp.FirstTurn()
		if !ok {
			a.logger.Warn("模型响应中没有候选结果，使用本地计算结果", slog.Int("iteration", iteration))
			return Result{Answer: fallback, Iterations: iteration, TaxPreview: preview, FallbackUsed: true}
		}

		conversation = append(conversation, turn)
		calls := turn.FunctionCalls()
		text := turn.JoinedText()
		a.logger.Info("收到模型响应",
			slog.Int("iteration", iteration),
			slog.Int("function_calls", len(calls)),
			slog.Int("text_length", len([]rune(text))),
			slog.String("text_preview", abbreviate(text, 140)))

		if len(calls) == 0 {
			if !toolCalled {
				a.logger.Warn("模型未调用工具即给出回答，要求其先查询数据", slog.Int("iteration", iteration))
				conversation = append(conversation, llm.UserText(forceToolPrompt))
				continue
			}

			answer, fallbackUsed := text, false
			if strings.TrimSpace(answer) == "" {
				answer, fallbackUsed = fallback, true
			}
			a.logger.Info("确定最终回答",
				slog.Int("iteration", iteration),
				slog.Bool("fallback_used", fallbackUsed),
				slog.Int("answer_length", len([]rune(answer))))
			return Result{Answer: answer, Iterations: iteration, TaxPreview: preview, FallbackUsed: fallbackUsed}
		}

		for _, call := range calls {
			a.logger.Info("模型请求执行工具", slog.String("name", call.Name), slog.Any("args", call.Args))
			result := a.execute(ctx, call)
			conversation = append(conversation, llm.FunctionResponse(result))
			toolCalled = toolCalled || result.Known
			a.logger.Info("工具执行完成",
				slog.Int("iteration", iteration),
				slog.String("name", call.Name),
				slog.String("summary", tool.Summarize(result)))
		}
	}
}

func (a *Advisor) execute(ctx context.Context, call llm.ToolInvocation) llm.ToolResult {
	if a.tools == nil {
		return llm.ToolResult{Name: call.Name, Payload: map[string]any{"error": "Unknown function: " + call.Name}}
	}
	return a.tools.Execute(ctx, call)
}

func (a *Advisor) preview(ctx context.Context, userID string) tax.Preview {
	if a.previewer == nil {
		return tax.Compute(decimal.Zero, decimal.Zero)
	}
	preview, err := a.previewer.Preview(ctx, userID)
	if err != nil {
		a.logger.Error("计算税额预估失败，按零值处理", slog.String("user_id", userID), slog.Any("error", err))
		return tax.Compute(decimal.Zero, decimal.Zero)
	}
	return preview
}

func (a *Advisor) logBaseline(ctx context.Context, userID string, preview tax.Preview) {
	if a.baseline == nil {
		return
	}
	b, err := a.baseline.Baseline(ctx, userID)
	if err != nil {
		a.logger.Warn("读取用户持仓基础现状失败", slog.String("user_id", userID), slog.Any("error", err))
		return
	}
	a.logger.Info("用户持仓基础现状",
		slog.String("user_id", userID),
		slog.String("market_value", portfolio.FormatWon(b.MarketValue)),
		slog.String("cost_basis", portfolio.FormatWon(b.CostBasis)),
		slog.String("unrealized_pnl", portfolio.FormatWon(b.UnrealizedPnL)),
		slog.String("unrealized_loss", portfolio.FormatWon(b.UnrealizedLoss)),
		slog.String("realized_gain", portfolio.FormatWon(preview.RealizedGain)),
		slog.String("tax_savings", portfolio.FormatWon(preview.TaxSavings)))
}

func normalizeQuestion(question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return DefaultQuestion
	}
	return question
}

func abbreviate(value string, limit int) string {
	normalized := strings.TrimSpace(strings.ReplaceAll(value, "\n", " "))
	if normalized == "" {
		return "(empty)"
	}
	runes := []rune(normalized)
	if len(runes) <= limit {
		return normalized
	}
	return string(runes[:limit]) + "..."
}
