package llm

import (
	"context"
	"strings"
)

// Role 标识对话轮次的发言方。
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Args 是模型给出的松散类型参数集合。
type Args map[string]any

// String 返回指定键的字符串值。缺失或非字符串值均返回空串。
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// ToolInvocation 表示模型发起的一次工具调用。
type ToolInvocation struct {
	Name string
	Args Args
}

// ToolResult 是本地执行工具后的结果。Known 为 true 表示调用命中了已注册工具且执行成功。
type ToolResult struct {
	Name    string
	Payload map[string]any
	Known   bool
}

// Part 是对话轮次中的一个片段，Text、Call、Result 三者只设置其一。
// ThoughtSignature 为模型返回的不透明签名，回放对话时需原样带回。
type Part struct {
	Text             string
	Call             *ToolInvocation
	Result           *ToolResult
	ThoughtSignature []byte
}

// Turn 是对话中的一轮。
type Turn struct {
	Role  Role
	Parts []Part
}

// UserText 构造只包含文本的用户轮次。
func UserText(text string) Turn {
	return Turn{Role: RoleUser, Parts: []Part{{Text: text}}}
}

// FunctionResponse 将工具结果包装为新的用户轮次。
func FunctionResponse(result ToolResult) Turn {
	r := result
	return Turn{Role: RoleUser, Parts: []Part{{Result: &r}}}
}

// FunctionCalls 按出现顺序返回轮次中的工具调用。
func (t Turn) FunctionCalls() []ToolInvocation {
	var calls []ToolInvocation
	for _, p := range t.Parts {
		if p.Call != nil {
			calls = append(calls, *p.Call)
		}
	}
	return calls
}

// JoinedText 以换行拼接轮次中所有文本片段，并去除首尾空白。
func (t Turn) JoinedText() string {
	var b strings.Builder
	for _, p := range t.Parts {
		if p.Call != nil || p.Result != nil || p.Text == "" {
			continue
		}
		if strings.TrimSpace(b.String()) != "" {
			b.WriteByte('\n')
		}
		b.WriteString(p.Text)
	}
	return strings.TrimSpace(b.String())
}

// FunctionDeclaration 描述暴露给模型的工具。
type FunctionDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Candidate 是模型返回的一个候选。
type Candidate struct {
	Content      Turn
	FinishReason string
}

// Response 是模型的结构化响应。
type Response struct {
	Candidates []Candidate
}

// FirstTurn 返回首个候选的内容。没有候选时返回 false。
func (r *Response) FirstTurn() (Turn, bool) {
	if r == nil || len(r.Candidates) == 0 {
		return Turn{}, false
	}
	return r.Candidates[0].Content, true
}

// Gateway 定义了与文本模型交互的统一接口。
type Gateway interface {
	IsConfigured() bool
	GenerateContent(ctx context.Context, conversation []Turn, tools []FunctionDeclaration, systemInstruction string) (*Response, error)
}

// ImageGateway 定义了图像生成模型的统一接口。
type ImageGateway interface {
	IsConfigured() bool
	GenerateImage(ctx context.Context, prompt string) (string, error)
}
