package gemini

import (
	"context"
	stdErrors "errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	xerrors "TaxAdvisor/internal/errors"
	"TaxAdvisor/internal/llm"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-3-flash-preview"
	defaultTimeout = 60 * time.Second
)

// Config 描述了调用 Gemini generateContent 接口所需的信息。
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func (c Config) normalized(fallbackModel string) Config {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	c.Model = strings.TrimSpace(c.Model)
	if c.Model == "" {
		c.Model = fallbackModel
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

func newClient(ctx context.Context, cfg Config) (*genai.Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL + "/"},
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化 Gemini 客户端失败")
	}
	return client, nil
}

// Gateway 通过 genai SDK 调用文本模型，实现 llm.Gateway。
type Gateway struct {
	cfg    Config
	client *genai.Client
}

var _ llm.Gateway = (*Gateway)(nil)

// NewGateway 根据配置创建网关。未提供 API Key 时返回未配置状态的网关而不是错误。
func NewGateway(ctx context.Context, cfg Config) (*Gateway, error) {
	cfg = cfg.normalized(defaultModel)
	g := &Gateway{cfg: cfg}
	if cfg.APIKey == "" {
		return g, nil
	}
	client, err := newClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	g.client = client
	return g, nil
}

// IsConfigured 判断是否具备调用模型的凭据。
func (g *Gateway) IsConfigured() bool {
	return g != nil && g.client != nil
}

// GenerateContent 将完整对话、工具目录和系统指令发送给模型。
func (g *Gateway) GenerateContent(ctx context.Context, conversation []llm.Turn, tools []llm.FunctionDeclaration, systemInstruction string) (*llm.Response, error) {
	if !g.IsConfigured() {
		return nil, xerrors.New(xerrors.CodeNotConfigured, "未配置 Gemini API Key")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{}
	if strings.TrimSpace(systemInstruction) != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}}
	}
	if len(tools) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(tools)}}
		config.ToolConfig = &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto},
		}
	}

	resp, err := g.client.Models.GenerateContent(callCtx, g.cfg.Model, toContents(conversation), config)
	if err != nil {
		return nil, classify(callCtx, err)
	}
	return fromResponse(resp), nil
}

func classify(ctx context.Context, err error) error {
	if stdErrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, "调用 Gemini 超时")
	}
	return xerrors.Wrap(xerrors.CodeModelFailure, err, "请求 Gemini 失败")
}
