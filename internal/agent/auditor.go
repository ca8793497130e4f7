package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"TaxAdvisor/internal/llm"
	"TaxAdvisor/pkg/logger"
)

// AuditResult 是审计阶段的输出。Degraded 表示使用了固定的兜底提示。
type AuditResult struct {
	Text     string
	Degraded bool
}

// Auditor 以单轮、无工具的方式审查主策略。
type Auditor struct {
	gateway llm.Gateway
	logger  *slog.Logger
}

// NewAuditor 创建审计智能体。
func NewAuditor(gateway llm.Gateway) *Auditor {
	return &Auditor{gateway: gateway, logger: logger.Named("auditor")}
}

// Audit 审查主策略并返回三条风险提示，从不返回错误。
func (a *Auditor) Audit(ctx context.Context, question, primaryAnswer string) AuditResult {
	a.logger.Info("开始审查主策略风险")

	if a.gateway == nil || !a.gateway.IsConfigured() {
		a.logger.Warn("未配置模型 API Key，返回默认风险提示")
		return AuditResult{Text: AuditFallback, Degraded: true}
	}

	input := fmt.Sprintf(auditInputTemplate, orPlaceholder(question), orPlaceholder(primaryAnswer))
	resp, err := a.gateway.GenerateContent(ctx, []llm.Turn{llm.UserText(input)}, nil, auditorSystemPrompt)
	if err != nil {
		a.logger.Error("审查过程中调用模型失败，返回默认风险提示", slog.Any("error", err))
		return AuditResult{Text: AuditFallback, Degraded: true}
	}

	turn, ok := resp.FirstTurn()
	if !ok {
		a.logger.Warn("审查响应中没有候选结果，返回默认风险提示")
		return AuditResult{Text: AuditFallback, Degraded: true}
	}
	text := turn.JoinedText()
	if strings.TrimSpace(text) == "" {
		a.logger.Warn("审查响应文本为空，返回默认风险提示")
		return AuditResult{Text: AuditFallback, Degraded: true}
	}

	a.logger.Info("主策略风险审查完成", slog.Int("length", len([]rune(text))))
	return AuditResult{Text: text}
}

func orPlaceholder(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "(내용 없음)"
	}
	return value
}
