package mcpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"TaxAdvisor/internal/llm"
	"TaxAdvisor/internal/tool"
	"TaxAdvisor/pkg/logger"
)

const (
	serverName    = "taxadvisor"
	serverVersion = "1.0.0"
)

// Executor 执行一次工具调用，tool.Dispatcher 实现了该接口。
type Executor interface {
	Declarations() []llm.FunctionDeclaration
	Execute(ctx context.Context, call llm.ToolInvocation) llm.ToolResult
}

// Server 通过 MCP 协议暴露与模型相同的工具。
type Server struct {
	mcp      *server.MCPServer
	executor Executor
	logger   *slog.Logger
}

// New 创建 MCP 服务并注册所有工具。
func New(executor Executor) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false)),
		executor: executor,
		logger:   logger.Named("mcp"),
	}
	for _, decl := range executor.Declarations() {
		s.mcp.AddTool(mcp.NewTool(decl.Name,
			mcp.WithDescription(decl.Description),
			mcp.WithString("userId", mcp.Description(tool.UserIDDescription), mcp.Required()),
		), s.handlerFor(decl.Name))
	}
	return s
}

// MCPServer 返回底层 mcp-go 服务。
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Handler 返回 streamable HTTP 传输的处理器。
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

func (s *Server) handlerFor(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := s.executor.Execute(ctx, llm.ToolInvocation{Name: name, Args: llm.Args(request.GetArguments())})
		s.logger.Info("MCP 工具调用完成", slog.String("name", name), slog.String("summary", tool.Summarize(result)))

		body, err := json.Marshal(result.Payload)
		if err != nil {
			return mcp.NewToolResultError("결과 직렬화 실패: " + err.Error()), nil
		}
		if !result.Known {
			return mcp.NewToolResultError(string(body)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}
