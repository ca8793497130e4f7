package agent

import (
	"context"
	stdErrors "errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TaxAdvisor/internal/llm"
)

func TestAuditFallbacks(t *testing.T) {
	cases := map[string]*scriptedGateway{
		"unconfigured": {configured: false},
		"error":        {configured: true, steps: []step{{err: stdErrors.New("boom")}}},
		"no candidate": {configured: true, steps: []step{{resp: &llm.Response{}}}},
		"blank text":   {configured: true, steps: []step{{resp: textResp("  \n ")}}},
	}
	for name, g := range cases {
		t.Run(name, func(t *testing.T) {
			res := NewAuditor(g).Audit(context.Background(), "질문", "전략")
			assert.Equal(t, AuditFallback, res.Text)
			assert.True(t, res.Degraded)
		})
	}
	assert.Equal(t, 3, strings.Count(AuditFallback, "- "))
}

func TestAuditSendsSingleTurnWithoutTools(t *testing.T) {
	g := &scriptedGateway{configured: true, steps: []step{{resp: textResp("- 리스크 1\n- 리스크 2\n- 리스크 3")}}}
	res := NewAuditor(g).Audit(context.Background(), "", "1차 전략")

	assert.False(t, res.Degraded)
	assert.Equal(t, "- 리스크 1\n- 리스크 2\n- 리스크 3", res.Text)

	require.Len(t, g.calls, 1)
	require.Len(t, g.calls[0], 1)
	assert.Equal(t, 0, g.toolCounts[0])
	assert.Equal(t, auditorSystemPrompt, g.systems[0])
	assert.Equal(t, "[사용자 원문 질문]\n(내용 없음)\n\n[1차 AI 절세 전략]\n1차 전략\n", g.calls[0][0].Parts[0].Text)
}

type fakeImageGateway struct {
	configured bool
	image      string
	err        error
	block      bool
	panics     bool
	prompt     atomic.Value
}

func (f *fakeImageGateway) IsConfigured() bool { return f.configured }

func (f *fakeImageGateway) GenerateImage(ctx context.Context, prompt string) (string, error) {
	f.prompt.Store(prompt)
	if f.panics {
		panic("renderer crashed")
	}
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.image, f.err
}

func TestIllustratorSuccess(t *testing.T) {
	g := &fakeImageGateway{configured: true, image: "data:image/png;base64,AAAA"}
	got := NewIllustrator(g, time.Second).CreateInfographic(context.Background(), "질문", "전략", "감사")

	assert.Equal(t, "data:image/png;base64,AAAA", got)
	prompt := g.prompt.Load().(string)
	assert.Contains(t, prompt, "User question summary: 질문")
	assert.Contains(t, prompt, "Primary strategy summary: 전략")
	assert.Contains(t, prompt, "Auditor risk summary: 감사")
}

func TestIllustratorDegradesToEmpty(t *testing.T) {
	cases := map[string]*fakeImageGateway{
		"unconfigured": {configured: false, image: "data:x"},
		"error":        {configured: true, err: stdErrors.New("boom")},
		"empty":        {configured: true, image: "  "},
		"timeout":      {configured: true, block: true},
		"panic":        {configured: true, panics: true},
	}
	for name, g := range cases {
		t.Run(name, func(t *testing.T) {
			got := NewIllustrator(g, 30*time.Millisecond).CreateInfographic(context.Background(), "q", "p", "a")
			assert.Equal(t, "", got)
		})
	}
}

func TestInfographicPromptTruncatesSummaries(t *testing.T) {
	long := strings.Repeat("가", 650)
	prompt := InfographicPrompt("", long, "감사")

	assert.Contains(t, prompt, "User question summary: (empty)\n")
	assert.Contains(t, prompt, "Primary strategy summary: "+strings.Repeat("가", 600)+"...\n")
	assert.NotContains(t, prompt, strings.Repeat("가", 601))
	assert.True(t, strings.HasPrefix(prompt, "A modern 3D financial infographic showing tax savings"))
}
