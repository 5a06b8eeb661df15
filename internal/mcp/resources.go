package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"quickloginas-mcp-server/internal/mangle"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	resourceMIMEJSON = "application/json"
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"quickloginas://about",
			"Quick Login As About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Server info, open inspector views and usage notes."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"quickloginas://inspector/{viewId}",
			"Inspector View",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("Rendered rows of an open Record Inspector view (does not drain notices)."),
		),
		s.handleInspectorResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"quickloginas://facts/{predicate}{?limit}",
			"Activity Facts",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("Most recent buffered facts of one predicate, oldest first."),
		),
		s.handleFactsResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":    s.cfg.Server.Name,
		"version": s.cfg.Server.Version,
		"views":   s.deps.Inspector.List(),
		"notes": []string{
			"Resolve a tab with get-sf-host, then get-session; nothing is cached between calls.",
			"build-login-url with open=true opens the impersonated session in a private window.",
			"Inspector views are edited with inspector-edit, inspector-set-field and inspector-save.",
		},
		"timestamp_ms": time.Now().UnixMilli(),
	}
	return jsonResource(request.Params.URI, payload)
}

func (s *Server) handleInspectorResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	viewID := argString(request.Params.Arguments["viewId"])
	if viewID == "" {
		return nil, fmt.Errorf("missing viewId")
	}
	v, err := s.deps.Inspector.Get(viewID)
	if err != nil {
		return nil, err
	}
	return jsonResource(request.Params.URI, v.Snapshot())
}

func (s *Server) handleFactsResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if s.deps.Engine == nil {
		return nil, fmt.Errorf("fact engine unavailable")
	}

	predicate := argString(request.Params.Arguments["predicate"])
	if predicate == "" {
		return nil, fmt.Errorf("missing predicate")
	}
	limit := asInt(request.Params.Arguments["limit"])
	if limit <= 0 {
		limit = 25
	}
	if limit > 500 {
		limit = 500
	}

	facts := recentFacts(s.deps.Engine, predicate, limit)
	return jsonResource(request.Params.URI, map[string]interface{}{
		"predicate": predicate,
		"limit":     limit,
		"count":     len(facts),
		"facts":     facts,
	})
}

// recentFacts returns the newest limit facts of predicate in arrival order.
func recentFacts(engine *mangle.Engine, predicate string, limit int) []mangle.Fact {
	if engine == nil || limit <= 0 {
		return []mangle.Fact{}
	}
	source := engine.FactsByPredicate(predicate)
	if len(source) > limit {
		source = source[len(source)-limit:]
	}
	return source
}

func jsonResource(uri string, payload interface{}) ([]mcp.ResourceContents, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func asInt(v any) int {
	switch value := v.(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case string:
		var n int
		if _, err := fmt.Sscanf(value, "%d", &n); err == nil {
			return n
		}
	case []string:
		if len(value) > 0 {
			return asInt(value[0])
		}
	}
	return 0
}
