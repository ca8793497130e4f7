package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"TaxAdvisor/internal/llm"
	"TaxAdvisor/pkg/logger"
)

const (
	defaultIllustrationTimeout = 70 * time.Second
	summaryLimit               = 600
)

// Illustrator 调用图像模型生成信息图，尽力而为，失败时返回空串。
type Illustrator struct {
	gateway llm.ImageGateway
	timeout time.Duration
	logger  *slog.Logger
}

// NewIllustrator 创建插图智能体。timeout 非正数时使用 70 秒。
func NewIllustrator(gateway llm.ImageGateway, timeout time.Duration) *Illustrator {
	if timeout <= 0 {
		timeout = defaultIllustrationTimeout
	}
	return &Illustrator{gateway: gateway, timeout: timeout, logger: logger.Named("illustrator")}
}

type imageOutcome struct {
	image string
	err   error
}

// CreateInfographic 根据问题、主策略与审计意见生成图片 data URI。
// 未配置、超时、出错或结果为空时返回空串。
func (i *Illustrator) CreateInfographic(ctx context.Context, question, primary, audit string) string {
	i.logger.Info("开始生成信息图")

	if i.gateway == nil || !i.gateway.IsConfigured() {
		i.logger.Warn("未配置图像模型 API Key，跳过图片生成")
		return ""
	}

	prompt := InfographicPrompt(question, primary, audit)

	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	done := make(chan imageOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- imageOutcome{err: fmt.Errorf("图像网关 panic: %v", r)}
			}
		}()
		image, err := i.gateway.GenerateImage(callCtx, prompt)
		done <- imageOutcome{image: image, err: err}
	}()

	select {
	case <-callCtx.Done():
		i.logger.Error("生成信息图超时或被取消", slog.Duration("timeout", i.timeout), slog.Any("error", callCtx.Err()))
		return ""
	case out := <-done:
		if out.err != nil {
			i.logger.Error("生成信息图失败", slog.Any("error", out.err))
			return ""
		}
		if strings.TrimSpace(out.image) == "" {
			i.logger.Warn("图像数据为空")
			return ""
		}
		i.logger.Info("信息图生成完成", slog.Int("length", len(out.image)))
		return out.image
	}
}

// InfographicPrompt 构造英文绘图提示，嵌入三段截断后的摘要。
func InfographicPrompt(question, primary, audit string) string {
	return fmt.Sprintf(infographicTemplate,
		summarizeForPrompt(orEmpty(question)),
		summarizeForPrompt(orEmpty(primary)),
		summarizeForPrompt(orEmpty(audit)))
}

func orEmpty(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "(empty)"
	}
	return value
}

func summarizeForPrompt(text string) string {
	runes := []rune(text)
	if len(runes) <= summaryLimit {
		return text
	}
	return string(runes[:summaryLimit]) + "..."
}
