package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TaxAdvisor/internal/agent"
	"TaxAdvisor/internal/observability/metrics"
	"TaxAdvisor/internal/pipeline"
	"TaxAdvisor/internal/task"
	"TaxAdvisor/internal/tax"
	"TaxAdvisor/internal/tool"
)

type fakeAdvisor struct {
	userID   string
	question string
}

func (f *fakeAdvisor) Run(_ context.Context, userID, question string) pipeline.Result {
	f.userID = userID
	f.question = question
	return pipeline.Result{
		Primary: agent.Result{
			Answer:     "전략",
			Iterations: 2,
			TaxPreview: tax.Compute(decimal.NewFromInt(1000), decimal.NewFromInt(-400)),
		},
		Audit:         "감사",
		ImageDegraded: true,
	}
}

type httpObservation struct {
	handler string
	status  int
}

type fakeRecorder struct {
	observed []httpObservation
}

func (f *fakeRecorder) ObserveHTTPRequest(handler, _ string, status int, _ time.Duration) {
	f.observed = append(f.observed, httpObservation{handler: handler, status: status})
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *fakeAdvisor) {
	t.Helper()
	advisor := &fakeAdvisor{}
	return NewServer(":0", advisor, tool.NewCatalog(), opts...), advisor
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleAdviceReturnsPipelineResult(t *testing.T) {
	recorder := &fakeRecorder{}
	server, advisor := newTestServer(t, WithMetrics(recorder, nil))

	rec := do(t, server.Handler(), http.MethodPost, "/api/advice", `{"question":"절세 전략?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "me", got["userId"])
	assert.Equal(t, "절세 전략?", got["question"])
	assert.Equal(t, "전략", got["primaryStrategy"])
	assert.Equal(t, "감사", got["auditReview"])
	assert.Equal(t, "", got["base64Image"])
	assert.Equal(t, float64(2), got["iterations"])
	assert.Equal(t, false, got["fallbackUsed"])
	preview, ok := got["taxPreview"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, preview, "estimatedTaxSavings")

	assert.Equal(t, "me", advisor.userID)
	assert.Equal(t, "절세 전략?", advisor.question)
	assert.Equal(t, []httpObservation{{handler: "POST /api/advice", status: http.StatusOK}}, recorder.observed)
}

func TestHandleAdviceRendersMoneyAsNumbers(t *testing.T) {
	prev := decimal.MarshalJSONWithoutQuotes
	decimal.MarshalJSONWithoutQuotes = true
	t.Cleanup(func() { decimal.MarshalJSONWithoutQuotes = prev })

	server, _ := newTestServer(t)
	rec := do(t, server.Handler(), http.MethodPost, "/api/advice", `{"question":"q"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		TaxPreview map[string]any `json:"taxPreview"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]any{
		"realizedGain":              float64(1000),
		"unrealizedLoss":            float64(-400),
		"estimatedTaxBeforeHarvest": float64(220),
		"estimatedTaxAfterHarvest":  float64(132),
		"estimatedTaxSavings":       float64(88),
	}, got.TaxPreview)
}

func TestHandleAdviceRejectsMalformedBody(t *testing.T) {
	recorder := &fakeRecorder{}
	server, _ := newTestServer(t, WithMetrics(recorder, nil))

	for _, body := range []string{"", "{", `{"question":1}`} {
		rec := do(t, server.Handler(), http.MethodPost, "/api/advice", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
	assert.Len(t, recorder.observed, 3)
}

func TestHandleAdviceMethodNotAllowed(t *testing.T) {
	server, _ := newTestServer(t)
	rec := do(t, server.Handler(), http.MethodGet, "/api/advice", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleToolsReturnsCatalog(t *testing.T) {
	server, _ := newTestServer(t)
	rec := do(t, server.Handler(), http.MethodGet, "/api/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var tools []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tools))
	require.Len(t, tools, 2)
	assert.Equal(t, tool.GetUserPortfolio, tools[0]["name"])
	assert.Equal(t, tool.GetRealizedGains, tools[1]["name"])
}

func TestJobEndpoints(t *testing.T) {
	store := task.NewMemoryStore()
	queue := task.NewMemoryQueue(4)
	svc := task.NewService(store, queue, 3)
	server, _ := newTestServer(t, WithJobs(svc))
	h := server.Handler()

	rec := do(t, h, http.MethodPost, "/api/advice/jobs", `{"id":"job-1","question":"q"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted JobAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, "job-1", accepted.ID)
	assert.Equal(t, task.StatusPending, accepted.Status)

	require.NoError(t, store.MarkSucceeded(context.Background(), "job-1", task.AdviceResult{PrimaryStrategy: "ok"}))

	rec = do(t, h, http.MethodGet, "/api/advice/jobs/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var job task.Job
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, task.StatusSucceeded, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, "ok", job.Result.PrimaryStrategy)

	rec = do(t, h, http.MethodGet, "/api/advice/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/advice/jobs", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/advice/jobs", `{"id":"`+strings.Repeat("x", 80)+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobEndpointsWithoutService(t *testing.T) {
	server, _ := newTestServer(t)
	rec := do(t, server.Handler(), http.MethodPost, "/api/advice/jobs", `{}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	m := metrics.New()
	server, _ := newTestServer(t, WithMetrics(m, m.Handler()))
	h := server.Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `taxadvisor_http_requests_total{code="200",handler="GET /healthz",method="GET"} 1`)
	count, err := testutil.GatherAndCount(m.Registry(), "taxadvisor_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMCPMountedWhenConfigured(t *testing.T) {
	called := false
	server, _ := newTestServer(t, WithMCP(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})))
	rec := do(t, server.Handler(), http.MethodPost, "/mcp", "{}")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, called)

	server, _ = newTestServer(t)
	rec = do(t, server.Handler(), http.MethodPost, "/mcp", "{}")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(requestIDHeader))
}
