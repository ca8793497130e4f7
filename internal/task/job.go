package task

import (
	stdErrors "errors"

	xerrors "TaxAdvisor/internal/errors"
	"TaxAdvisor/internal/pipeline"
	"TaxAdvisor/internal/tax"
)

// Status 表示任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// AdviceResult 保存一次异步咨询的输出，字段与同步接口的响应一致。
type AdviceResult struct {
	PrimaryStrategy string      `json:"primaryStrategy"`
	AuditReview     string      `json:"auditReview"`
	Base64Image     string      `json:"base64Image"`
	Iterations      int         `json:"iterations"`
	FallbackUsed    bool        `json:"fallbackUsed"`
	AuditDegraded   bool        `json:"auditDegraded"`
	ImageDegraded   bool        `json:"imageDegraded"`
	TaxPreview      tax.Preview `json:"taxPreview"`
}

// NewAdviceResult 将流水线输出转换为可持久化的结果。
func NewAdviceResult(res pipeline.Result) AdviceResult {
	return AdviceResult{
		PrimaryStrategy: res.Primary.Answer,
		AuditReview:     res.Audit,
		Base64Image:     res.Image,
		Iterations:      res.Primary.Iterations,
		FallbackUsed:    res.Primary.FallbackUsed,
		AuditDegraded:   res.AuditDegraded,
		ImageDegraded:   res.ImageDegraded,
		TaxPreview:      res.Primary.TaxPreview,
	}
}

// Job 描述排队执行的一次咨询。
type Job struct {
	ID         string        `json:"id"`
	UserID     string        `json:"userId"`
	Question   string        `json:"question"`
	Status     Status        `json:"status"`
	Attempts   int           `json:"attempts"`
	MaxRetries int           `json:"maxRetries"`
	LastError  string        `json:"lastError,omitempty"`
	ErrorCode  string        `json:"errorCode,omitempty"`
	Result     *AdviceResult `json:"result,omitempty"`
	CreatedAt  int64         `json:"createdAt"`
	UpdatedAt  int64         `json:"updatedAt"`
}

// Request 是提交任务时的输入。ID 为空时自动生成。
type Request struct {
	ID       string
	UserID   string
	Question string
}

var (
	// ErrJobNotFound 表示指定的任务不存在。
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "job not found")
	// ErrJobConflict 表示任务在当前状态下无法进行所请求的操作。
	ErrJobConflict = xerrors.New(CodeJobConflict, "job conflict")
	// ErrJobCompleted 表示任务已经成功完成。
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "job already completed")
	// ErrJobExhausted 表示任务的重试次数已经耗尽。
	ErrJobExhausted = xerrors.New(CodeJobExhausted, "job retries exhausted")
)

const (
	CodeJobNotFound   xerrors.Code = "JOB_NOT_FOUND"
	CodeJobConflict   xerrors.Code = "JOB_CONFLICT"
	CodeJobCompleted  xerrors.Code = "JOB_COMPLETED"
	CodeJobExhausted  xerrors.Code = "JOB_RETRIES_EXHAUSTED"
	CodeJobValidation xerrors.Code = "JOB_VALIDATION_FAILED"
	CodeJobPublish    xerrors.Code = "JOB_PUBLISH_FAILED"
	CodeJobProcessing xerrors.Code = "JOB_PROCESSING_FAILED"
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{
		Message:  "job not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeJobConflict, xerrors.Attributes{
		Message:  "job conflict",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeJobCompleted, xerrors.Attributes{
		Message:  "job already completed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeJobExhausted, xerrors.Attributes{
		Message:  "job retries exhausted",
		Severity: xerrors.SeverityCritical,
	})
	xerrors.Register(CodeJobValidation, xerrors.Attributes{
		Message:  "job validation failed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{
		Message:   "failed to publish job",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
	})
	xerrors.Register(CodeJobProcessing, xerrors.Attributes{
		Message:   "job execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
}

// IsJobError 判断错误是否为指定的任务错误。
func IsJobError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	switch {
	case stdErrors.Is(err, ErrJobNotFound):
		return target == CodeJobNotFound
	case stdErrors.Is(err, ErrJobConflict):
		return target == CodeJobConflict
	case stdErrors.Is(err, ErrJobCompleted):
		return target == CodeJobCompleted
	case stdErrors.Is(err, ErrJobExhausted):
		return target == CodeJobExhausted
	}
	return false
}

// IsTerminal 表示任务不会再被处理。可重试的失败会把任务放回 pending。
func (j *Job) IsTerminal() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

func cloneJob(job *Job) *Job {
	clone := *job
	if job.Result != nil {
		result := *job.Result
		clone.Result = &result
	}
	return &clone
}
