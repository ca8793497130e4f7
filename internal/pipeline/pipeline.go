package pipeline

import (
	"context"
	"log/slog"
	"time"

	"TaxAdvisor/internal/agent"
	"TaxAdvisor/pkg/logger"
)

// 流水线阶段名称，同时用作指标标签。
const (
	StagePrimary = "primary"
	StageAudit   = "audit"
	StageImage   = "image"
)

// Strategist 生成主策略。
type Strategist interface {
	Advise(ctx context.Context, userID, question string) agent.Result
}

// Reviewer 审查主策略。
type Reviewer interface {
	Audit(ctx context.Context, question, primaryAnswer string) agent.AuditResult
}

// Renderer 生成插图。
type Renderer interface {
	CreateInfographic(ctx context.Context, question, primary, audit string) string
}

// Recorder 接收阶段耗时与兜底情况，metrics.Metrics 实现了该接口。
type Recorder interface {
	ObserveStage(stage string, duration time.Duration, degraded bool)
	ObserveIterations(n int)
}

// Result 汇总三个阶段的输出。Image 为空串表示未生成图片。
type Result struct {
	Primary       agent.Result
	Audit         string
	Image         string
	AuditDegraded bool
	ImageDegraded bool
}

// Pipeline 严格按顺序执行主策略、审计与插图三个阶段，任一阶段失败都不会中断请求。
type Pipeline struct {
	strategist Strategist
	reviewer   Reviewer
	renderer   Renderer
	recorder   Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// Option 定义可选的流水线配置。
type Option func(*Pipeline)

// WithRecorder 配置指标记录器。
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// New 创建流水线。
func New(strategist Strategist, reviewer Reviewer, renderer Renderer, opts ...Option) *Pipeline {
	p := &Pipeline{
		strategist: strategist,
		reviewer:   reviewer,
		renderer:   renderer,
		logger:     logger.Named("pipeline"),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Run 为一次咨询依次执行三个阶段。
func (p *Pipeline) Run(ctx context.Context, userID, question string) Result {
	p.logger.Info("咨询流水线开始", slog.String("user_id", userID))

	p.logger.Info("阶段一：生成主策略")
	start := p.now()
	primary := p.strategist.Advise(ctx, userID, question)
	p.observe(StagePrimary, start, primary.FallbackUsed)
	if p.recorder != nil {
		p.recorder.ObserveIterations(primary.Iterations)
	}
	p.logger.Info("阶段一完成",
		slog.Int("answer_length", len([]rune(primary.Answer))),
		slog.Int("iterations", primary.Iterations),
		slog.Bool("fallback_used", primary.FallbackUsed))

	p.logger.Info("阶段二：审查主策略风险")
	start = p.now()
	audit := p.reviewer.Audit(ctx, question, primary.Answer)
	p.observe(StageAudit, start, audit.Degraded)
	p.logger.Info("阶段二完成",
		slog.Int("audit_length", len([]rune(audit.Text))),
		slog.Bool("degraded", audit.Degraded))

	p.logger.Info("阶段三：生成信息图")
	start = p.now()
	image := p.renderer.CreateInfographic(ctx, question, primary.Answer, audit.Text)
	p.observe(StageImage, start, image == "")
	p.logger.Info("阶段三完成", slog.Bool("image_generated", image != ""))

	return Result{
		Primary:       primary,
		Audit:         audit.Text,
		Image:         image,
		AuditDegraded: audit.Degraded,
		ImageDegraded: image == "",
	}
}

func (p *Pipeline) observe(stage string, start time.Time, degraded bool) {
	if p.recorder == nil {
		return
	}
	p.recorder.ObserveStage(stage, p.now().Sub(start), degraded)
}
