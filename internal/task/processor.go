package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"

	xerrors "TaxAdvisor/internal/errors"
	"TaxAdvisor/internal/pipeline"
	"TaxAdvisor/pkg/logger"
)

// Executor 定义了处理器所需的咨询能力，pipeline.Pipeline 实现了该接口。
type Executor interface {
	Run(ctx context.Context, userID, question string) pipeline.Result
}

// Recorder 记录任务终态，metrics.Metrics 实现了该接口。
type Recorder interface {
	ObserveJob(status string)
}

// Processor 负责从队列消费任务并交给流水线执行。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recorder    Recorder
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithJobRecorder 配置任务指标记录器。
func WithJobRecorder(r Recorder) ProcessorOption {
	return func(p *Processor) {
		p.recorder = r
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		logger:      logger.Named("processor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动任务处理循环，阻塞直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) || stdErrors.Is(err, ErrJobExhausted) || stdErrors.Is(err, ErrJobConflict) {
			p.logger.Debug("跳过任务", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("领取任务失败", slog.Any("error", err), slog.String("job_id", jobID))
		return err
	}

	res := p.executor.Run(ctx, job.UserID, job.Question)
	if ctx.Err() != nil {
		return p.handleFailure(ctx, job, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "任务执行被中断"))
	}

	record := NewAdviceResult(res)
	if err := p.store.MarkSucceeded(ctx, job.ID, record); err != nil {
		p.logger.Error("标记任务成功状态失败", slog.Any("error", err), slog.String("job_id", job.ID))
		return p.handleFailure(ctx, job, xerrors.Wrap(CodeJobProcessing, err, "保存任务结果失败"))
	}
	p.observe(string(StatusSucceeded))
	logger.Audit().Info("咨询任务执行成功",
		slog.String("job_id", job.ID),
		slog.String("user_id", job.UserID),
		slog.Int("iterations", record.Iterations),
		slog.Bool("fallback_used", record.FallbackUsed),
	)
	return nil
}

func (p *Processor) handleFailure(ctx context.Context, job *Job, cause error) error {
	code := xerrors.CodeOf(cause)
	if code == xerrors.CodeUnknown {
		code = CodeJobProcessing
	}
	retryable := xerrors.RetryableError(cause)
	terminal := job.Attempts >= job.MaxRetries || !retryable

	// ctx 可能已取消，回写状态使用独立的上下文。
	writeCtx := context.WithoutCancel(ctx)
	if err := p.store.MarkFailed(writeCtx, job.ID, code, cause.Error(), terminal); err != nil {
		p.logger.Error("标记任务失败状态出错", slog.Any("error", err), slog.String("job_id", job.ID))
		return err
	}
	logger.Audit().Warn("咨询任务执行失败",
		slog.String("job_id", job.ID),
		slog.Bool("terminal", terminal),
		slog.String("error", cause.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_retries", job.MaxRetries),
	)

	if terminal {
		p.observe(string(StatusFailed))
		return nil
	}
	p.observe("retried")
	if ctx.Err() != nil {
		// 关闭过程中不再重投，任务保持 pending。
		return nil
	}
	if err := p.producer.Publish(ctx, job.ID); err != nil {
		return xerrors.Wrap(CodeJobPublish, err, fmt.Sprintf("任务 %s 重投失败", job.ID))
	}
	p.logger.Debug("任务已重新排队", slog.String("job_id", job.ID), slog.Int("attempts", job.Attempts))
	return nil
}

func (p *Processor) observe(status string) {
	if p.recorder != nil {
		p.recorder.ObserveJob(status)
	}
}
