package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"quickloginas-mcp-server/internal/browser"
	"quickloginas-mcp-server/internal/config"
	"quickloginas-mcp-server/internal/inspector"
	"quickloginas-mcp-server/internal/mangle"
	"quickloginas-mcp-server/internal/messaging"
	"quickloginas-mcp-server/internal/recorder"
	"quickloginas-mcp-server/internal/salesforce"
	"quickloginas-mcp-server/internal/userlist"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// PageSource returns a classic-page fetcher authenticated with session.
type PageSource func(session *salesforce.Session) userlist.PageFetcher

// Dependencies are the components the tools operate on.
type Dependencies struct {
	Sessions  *browser.SessionManager
	Engine    *mangle.Engine
	Router    *messaging.Router
	Inspector *inspector.Registry
	Pages     PageSource
	// Traces may be nil when tracing is disabled.
	Traces *recorder.Recorder
}

// Server wires the MCP runtime to the browser, the message router and the inspector.
type Server struct {
	cfg       config.Config
	deps      Dependencies
	tools     map[string]Tool
	mcpServer *mcpserver.MCPServer
}

// Tool describes the contract for MCP tool implementations.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// NewServer constructs the MCP server and registers all tools.
func NewServer(cfg config.Config, deps Dependencies) (*Server, error) {
	if deps.Router == nil {
		return nil, fmt.Errorf("message router is required")
	}
	if deps.Inspector == nil {
		return nil, fmt.Errorf("inspector registry is required")
	}

	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithRecovery(),
	)

	server := &Server{
		cfg:       cfg,
		deps:      deps,
		tools:     make(map[string]Tool),
		mcpServer: mcpSrv,
	}

	server.registerAllTools()
	server.registerAllResources()
	return server, nil
}

// Start launches the stdio server.
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MountSSE registers the SSE stream and message endpoints on r.
func (s *Server) MountSSE(r chi.Router, baseURL string) {
	sseServer := mcpserver.NewSSEServer(s.mcpServer, mcpserver.WithBaseURL(baseURL))
	r.Handle("/sse", sseServer.SSEHandler())
	r.Handle("/message", sseServer.MessageHandler())
}

// StartSSE hosts the server over HTTP using SSE endpoints with graceful shutdown.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	s.MountSSE(r, "http://localhost:"+strconv.Itoa(port))

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Printf("SSE server shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// ExecuteTool executes a tool directly (used by the HTTP surface and tests).
func (s *Server) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	tool, exists := s.tools[name]
	if !exists {
		return nil, fmt.Errorf("tool not found: %s", name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return tool.Execute(ctx, args)
}

func (s *Server) registerAllTools() {
	// Browser lifecycle
	s.registerTool(&LaunchBrowserTool{sessions: s.deps.Sessions})
	s.registerTool(&ShutdownBrowserTool{sessions: s.deps.Sessions})
	s.registerTool(&ListWindowsTool{sessions: s.deps.Sessions})

	// Message contract and Login As
	s.registerTool(&GetSfHostTool{router: s.deps.Router})
	s.registerTool(&GetSessionTool{router: s.deps.Router})
	s.registerTool(&BuildLoginURLTool{router: s.deps.Router})
	s.registerTool(&OpenIncognitoLoginTool{router: s.deps.Router})
	s.registerTool(&ListLoginUsersTool{router: s.deps.Router, pages: s.deps.Pages, pageSize: s.cfg.Salesforce.GetUserPageSize()})

	// Record Inspector
	s.registerTool(&InspectRecordTool{registry: s.deps.Inspector})
	s.registerTool(&InspectorViewTool{registry: s.deps.Inspector})
	s.registerTool(&InspectorEditTool{registry: s.deps.Inspector})
	s.registerTool(&InspectorSetFieldTool{registry: s.deps.Inspector})
	s.registerTool(&InspectorSaveTool{registry: s.deps.Inspector})
	s.registerTool(&InspectorCancelTool{registry: s.deps.Inspector})
	s.registerTool(&InspectorFilterTool{registry: s.deps.Inspector})
	s.registerTool(&InspectorCloseTool{registry: s.deps.Inspector})

	// Activity facts and traces
	s.registerTool(&QueryFactsTool{engine: s.deps.Engine})
	s.registerTool(&RecentMessagesTool{traces: s.deps.Traces})
}

func (s *Server) registerTool(tool Tool) {
	s.tools[tool.Name()] = tool

	schema, err := json.Marshal(tool.InputSchema())
	if err != nil {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	mcpTool := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
	s.mcpServer.AddTool(mcpTool, s.wrapTool(tool))
}

func (s *Server) wrapTool(tool Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("tool %s failed: %v", tool.Name(), err))},
				IsError: true,
			}, nil
		}

		payload := marshalToolPayload(tool.Name(), result)
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(string(payload))},
			IsError: false,
		}, nil
	}
}

func marshalToolPayload(toolName string, result interface{}) []byte {
	payload, marshalErr := json.Marshal(result)
	if marshalErr == nil {
		return payload
	}

	fallback := map[string]interface{}{
		"success": false,
		"error":   fmt.Sprintf("tool %s returned non-serializable payload: %v", toolName, marshalErr),
	}
	payload, fallbackErr := json.Marshal(fallback)
	if fallbackErr == nil {
		return payload
	}

	return []byte(fmt.Sprintf(`{"success":false,"error":"tool %s failed to encode payload"}`, toolName))
}
