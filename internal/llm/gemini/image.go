package gemini

import (
	"context"
	"encoding/base64"
	"strings"

	"google.golang.org/genai"

	xerrors "TaxAdvisor/internal/errors"
	"TaxAdvisor/internal/llm"
)

const (
	defaultImageModel = "gemini-3.1-flash-image-preview"
	defaultImageMIME  = "image/png"
)

// ImageGateway 调用图像模型生成插图，实现 llm.ImageGateway。
type ImageGateway struct {
	cfg    Config
	client *genai.Client
}

var _ llm.ImageGateway = (*ImageGateway)(nil)

// NewImageGateway 创建图像网关。未提供 API Key 时返回未配置状态的网关。
func NewImageGateway(ctx context.Context, cfg Config) (*ImageGateway, error) {
	cfg = cfg.normalized(defaultImageModel)
	g := &ImageGateway{cfg: cfg}
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

// IsConfigured 判断是否具备调用图像模型的凭据。
func (g *ImageGateway) IsConfigured() bool {
	return g != nil && g.client != nil
}

// GenerateImage 发送单条文本提示并返回首个内联图片的 data URI。
// 响应中没有图片时返回空串且不报错。
func (g *ImageGateway) GenerateImage(ctx context.Context, prompt string) (string, error) {
	if !g.IsConfigured() {
		return "", xerrors.New(xerrors.CodeNotConfigured, "未配置图像模型 API Key")
	}

	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	contents := []*genai.Content{{Role: string(llm.RoleUser), Parts: []*genai.Part{{Text: prompt}}}}
	resp, err := g.client.Models.GenerateContent(callCtx, g.cfg.Model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	})
	if err != nil {
		return "", classify(callCtx, err)
	}
	return firstImage(resp), nil
}

func firstImage(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mime := strings.TrimSpace(part.InlineData.MIMEType)
			if mime == "" {
				mime = defaultImageMIME
			}
			return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(part.InlineData.Data)
		}
	}
	return ""
}
