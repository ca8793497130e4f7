package task

import (
	"context"

	xerrors "TaxAdvisor/internal/errors"
)

// Store 抽象了任务状态的持久化接口。
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Claim 将任务置为 running 并累加尝试次数。
	Claim(ctx context.Context, id string) (*Job, error)
	MarkSucceeded(ctx context.Context, id string, result AdviceResult) error
	// MarkFailed 记录失败原因；terminal 为 false 时任务回到 pending 等待重投。
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	Close() error
}

// claimTransition 在内存中完成 Claim 的状态检查与迁移，供各 Store 复用。
func claimTransition(job *Job, now int64) error {
	switch job.Status {
	case StatusSucceeded:
		return ErrJobCompleted
	case StatusFailed:
		return ErrJobExhausted
	case StatusRunning:
		return ErrJobConflict
	}
	if job.MaxRetries > 0 && job.Attempts >= job.MaxRetries {
		return ErrJobExhausted
	}
	job.Status = StatusRunning
	job.Attempts++
	job.UpdatedAt = now
	return nil
}

func failTransition(job *Job, code xerrors.Code, lastError string, terminal bool, now int64) {
	if terminal {
		job.Status = StatusFailed
	} else {
		job.Status = StatusPending
	}
	job.LastError = lastError
	job.ErrorCode = string(code)
	job.UpdatedAt = now
}

func succeedTransition(job *Job, result AdviceResult, now int64) {
	job.Status = StatusSucceeded
	job.Result = &result
	job.LastError = ""
	job.ErrorCode = ""
	job.UpdatedAt = now
}
