package gemini

import (
	"strings"

	"google.golang.org/genai"

	"TaxAdvisor/internal/llm"
)

// toContents 将内部对话转换为 genai 的 Content 列表，保留思维签名。
func toContents(conversation []llm.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(conversation))
	for _, turn := range conversation {
		content := &genai.Content{Role: string(turn.Role)}
		for _, part := range turn.Parts {
			p := &genai.Part{ThoughtSignature: part.ThoughtSignature}
			switch {
			case part.Call != nil:
				p.FunctionCall = &genai.FunctionCall{Name: part.Call.Name, Args: map[string]any(part.Call.Args)}
			case part.Result != nil:
				p.FunctionResponse = &genai.FunctionResponse{
					Name:     part.Result.Name,
					Response: map[string]any{"data": part.Result.Payload},
				}
			default:
				p.Text = part.Text
			}
			content.Parts = append(content.Parts, p)
		}
		contents = append(contents, content)
	}
	return contents
}

func fromResponse(resp *genai.GenerateContentResponse) *llm.Response {
	out := &llm.Response{}
	if resp == nil {
		return out
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		turn := llm.Turn{Role: llm.RoleModel}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			p := llm.Part{ThoughtSignature: part.ThoughtSignature}
			if part.FunctionCall != nil {
				p.Call = &llm.ToolInvocation{Name: part.FunctionCall.Name, Args: llm.Args(part.FunctionCall.Args)}
			} else {
				p.Text = part.Text
			}
			turn.Parts = append(turn.Parts, p)
		}
		out.Candidates = append(out.Candidates, llm.Candidate{
			Content:      turn,
			FinishReason: string(candidate.FinishReason),
		})
	}
	return out
}

func toDeclarations(tools []llm.FunctionDeclaration) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  toSchema(tool.Parameters),
		})
	}
	return decls
}

// toSchema 将 JSON Schema 风格的 map 转换为 genai.Schema，仅支持工具参数用到的子集。
func toSchema(raw map[string]any) *genai.Schema {
	if raw == nil {
		return nil
	}
	schema := &genai.Schema{}
	if t, ok := raw["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if d, ok := raw["description"].(string); ok {
		schema.Description = d
	}
	if props, ok := raw["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if m, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toSchema(m)
			}
		}
	}
	switch req := raw["required"].(type) {
	case []string:
		schema.Required = append(schema.Required, req...)
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := raw["items"].(map[string]any); ok {
		schema.Items = toSchema(items)
	}
	return schema
}
