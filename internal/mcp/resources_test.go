package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"quickloginas-mcp-server/internal/inspector"
	"quickloginas-mcp-server/internal/mangle"

	"github.com/mark3labs/mcp-go/mcp"
)

func readResource(t *testing.T, handler func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error), uri string, args map[string]any) (map[string]interface{}, error) {
	t.Helper()
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	req.Params.Arguments = args
	contents, err := handler(context.Background(), req)
	if err != nil {
		return nil, err
	}
	if len(contents) != 1 {
		t.Fatalf("expected one content block, got %d", len(contents))
	}
	text := contents[0].(mcp.TextResourceContents)
	if text.MIMEType != resourceMIMEJSON || text.URI != uri {
		t.Errorf("unexpected content header %s %s", text.MIMEType, text.URI)
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("resource is not JSON: %v", err)
	}
	return out, nil
}

func TestAboutResource(t *testing.T) {
	env := newTestEnv(t)
	openAccount(t, env)

	out, err := readResource(t, env.server.handleAboutResource, "quickloginas://about", nil)
	if err != nil {
		t.Fatalf("about: %v", err)
	}
	if out["name"] != "test-server" {
		t.Errorf("unexpected name %v", out["name"])
	}
	if views := out["views"].([]interface{}); len(views) != 1 {
		t.Errorf("expected one open view, got %v", views)
	}
}

func TestInspectorResource(t *testing.T) {
	env := newTestEnv(t)
	viewID := openAccount(t, env)

	out, err := readResource(t, env.server.handleInspectorResource, "quickloginas://inspector/"+viewID, map[string]any{"viewId": viewID})
	if err != nil {
		t.Fatalf("inspector resource: %v", err)
	}
	if out["state"] != string(inspector.StateViewing) || out["total"] != float64(4) {
		t.Errorf("unexpected snapshot %v", out)
	}

	_, err = readResource(t, env.server.handleInspectorResource, "quickloginas://inspector/nope", map[string]any{"viewId": "nope"})
	if !errors.Is(err, inspector.ErrUnknownView) {
		t.Errorf("expected ErrUnknownView, got %v", err)
	}
	if _, err := readResource(t, env.server.handleInspectorResource, "quickloginas://inspector/", nil); err == nil {
		t.Error("expected error without viewId")
	}
}

func TestFactsResource(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		_ = env.engine.AddFacts(context.Background(), []mangle.Fact{
			{Predicate: "save_skipped", Args: []interface{}{string(rune('a' + i))}, Timestamp: time.Now()},
		})
	}

	out, err := readResource(t, env.server.handleFactsResource, "quickloginas://facts/save_skipped?limit=2",
		map[string]any{"predicate": "save_skipped", "limit": []string{"2"}})
	if err != nil {
		t.Fatalf("facts resource: %v", err)
	}
	facts := out["facts"].([]interface{})
	if len(facts) != 2 {
		t.Fatalf("expected 2 facts, got %d", len(facts))
	}
	last := facts[1].(map[string]interface{})["args"].([]interface{})
	if last[0] != "e" {
		t.Errorf("expected newest fact last, got %v", last)
	}

	if _, err := readResource(t, env.server.handleFactsResource, "quickloginas://facts/", nil); err == nil {
		t.Error("expected error without predicate")
	}
}
