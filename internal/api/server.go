package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	xerrors "TaxAdvisor/internal/errors"
	"TaxAdvisor/internal/pipeline"
	"TaxAdvisor/internal/portfolio"
	"TaxAdvisor/internal/task"
	"TaxAdvisor/internal/tax"
	"TaxAdvisor/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Advisor 执行一次完整的咨询流水线。
type Advisor interface {
	Run(ctx context.Context, userID, question string) pipeline.Result
}

// ToolCatalog 提供工具的 JSON 描述。
type ToolCatalog interface {
	JSONSpec() []map[string]any
}

// JobService 负责异步任务的提交与查询。
type JobService interface {
	Submit(ctx context.Context, req task.Request) (*task.Job, error)
	Get(ctx context.Context, id string) (*task.Job, error)
}

// HTTPRecorder 记录 HTTP 请求指标。
type HTTPRecorder interface {
	ObserveHTTPRequest(handler, method string, status int, duration time.Duration)
}

// AdviceRequest 是咨询接口的请求体。
type AdviceRequest struct {
	Question string `json:"question"`
}

// AdviceResponse 是同步咨询接口的响应体。
type AdviceResponse struct {
	UserID          string      `json:"userId"`
	Question        string      `json:"question"`
	PrimaryStrategy string      `json:"primaryStrategy"`
	AuditReview     string      `json:"auditReview"`
	Base64Image     string      `json:"base64Image"`
	Iterations      int         `json:"iterations"`
	FallbackUsed    bool        `json:"fallbackUsed"`
	TaxPreview      tax.Preview `json:"taxPreview"`
}

// JobRequest 是异步咨询的请求体，ID 可选。
type JobRequest struct {
	ID       string `json:"id"`
	Question string `json:"question"`
}

// JobAccepted 是提交异步咨询后的响应体。
type JobAccepted struct {
	ID     string      `json:"id"`
	Status task.Status `json:"status"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr     string
	advisor  Advisor
	catalog  ToolCatalog
	jobs     JobService
	recorder HTTPRecorder
	metrics  http.Handler
	mcp      http.Handler
	logger   *slog.Logger
}

// Option 定义可选配置。
type Option func(*Server)

// WithJobs 启用异步咨询接口。
func WithJobs(jobs JobService) Option {
	return func(s *Server) {
		s.jobs = jobs
	}
}

// WithMetrics 配置请求指标与 /metrics 处理器。
func WithMetrics(recorder HTTPRecorder, handler http.Handler) Option {
	return func(s *Server) {
		s.recorder = recorder
		s.metrics = handler
	}
}

// WithMCP 在 /mcp 挂载 MCP 传输。
func WithMCP(handler http.Handler) Option {
	return func(s *Server) {
		s.mcp = handler
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, advisor Advisor, catalog ToolCatalog, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		advisor: advisor,
		catalog: catalog,
		logger:  logger.Named("api"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回注册了全部路由的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "POST /api/advice", s.handleAdvice)
	s.route(mux, "GET /api/tools", s.handleTools)
	s.route(mux, "POST /api/advice/jobs", s.handleSubmitJob)
	s.route(mux, "GET /api/advice/jobs/{id}", s.handleJobDetail)
	s.route(mux, "GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	if s.mcp != nil {
		mux.Handle("/mcp", s.mcp)
	}
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("HTTP 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleAdvice(w http.ResponseWriter, r *http.Request) {
	var req AdviceRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "请求体解析失败")
		return
	}
	if s.advisor == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.CodeInitializationFailure, "咨询流水线未初始化")
		return
	}

	res := s.advisor.Run(r.Context(), portfolio.DefaultUserID, req.Question)
	logger.Audit().Info("咨询请求完成",
		slog.String("request_id", requestID(r)),
		slog.Int("iterations", res.Primary.Iterations),
		slog.Bool("fallback_used", res.Primary.FallbackUsed),
		slog.Bool("audit_degraded", res.AuditDegraded),
		slog.Bool("image_degraded", res.ImageDegraded),
	)
	writeJSON(w, http.StatusOK, AdviceResponse{
		UserID:          portfolio.DefaultUserID,
		Question:        req.Question,
		PrimaryStrategy: res.Primary.Answer,
		AuditReview:     res.Audit,
		Base64Image:     res.Image,
		Iterations:      res.Primary.Iterations,
		FallbackUsed:    res.Primary.FallbackUsed,
		TaxPreview:      res.Primary.TaxPreview,
	})
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	if s.catalog == nil {
		writeJSON(w, http.StatusOK, []map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, s.catalog.JSONSpec())
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.CodeInitializationFailure, "异步任务未启用")
		return
	}
	var req JobRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "请求体解析失败")
		return
	}
	job, err := s.jobs.Submit(r.Context(), task.Request{
		ID:       req.ID,
		UserID:   portfolio.DefaultUserID,
		Question: req.Question,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, JobAccepted{ID: job.ID, Status: job.Status})
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, xerrors.CodeInitializationFailure, "异步任务未启用")
		return
	}
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, xerrors.CodeInvalidArgument, "任务 ID 不能为空")
		return
	}
	job, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// route 注册处理器并附加请求 ID 与指标中间件。
func (s *Server) route(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, handler))
}

func (s *Server) instrument(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		if s.recorder != nil {
			s.recorder.ObserveHTTPRequest(pattern, r.Method, rec.status, elapsed)
		}
		s.logger.Debug("HTTP 请求完成",
			slog.String("request_id", id),
			slog.String("route", pattern),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", elapsed))
	})
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := xerrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case task.CodeJobNotFound, xerrors.CodeNotFound:
		status = http.StatusNotFound
	case task.CodeJobValidation, xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case xerrors.CodeInitializationFailure:
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("请求处理失败", slog.String("request_id", requestID(r)), slog.Any("error", err))
	}
	message := err.Error()
	if e, ok := xerrors.From(err); ok {
		message = e.Message()
	}
	writeError(w, status, code, message)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code xerrors.Code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: string(code)})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
