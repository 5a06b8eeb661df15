package mcp

import (
	"context"
	"fmt"

	"quickloginas-mcp-server/internal/browser"
)

// LaunchBrowserTool starts Chrome using the configured launch command.
type LaunchBrowserTool struct {
	sessions *browser.SessionManager
}

func (t *LaunchBrowserTool) Name() string { return "launch-browser" }
func (t *LaunchBrowserTool) Description() string {
	return `Start or attach to the Chrome instance whose cookies back session resolution.

CALL THIS FIRST unless the server was started with browser.auto_start.

WHAT IT DOES:
- Launches Chrome with DevTools Protocol enabled, or attaches to browser.debugger_url
- Idempotent: safe to call if already running

Returns: {status: "started"|"already_connected", control_url}`
}
func (t *LaunchBrowserTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{})
}
func (t *LaunchBrowserTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	if t.sessions == nil {
		return nil, browser.ErrNotConnected
	}
	if t.sessions.IsConnected() {
		return map[string]interface{}{
			"status":      "already_connected",
			"control_url": t.sessions.ControlURL(),
		}, nil
	}

	if err := t.sessions.Start(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":      "started",
		"control_url": t.sessions.ControlURL(),
	}, nil
}

// ShutdownBrowserTool stops the managed Chrome instance and closes tracked windows.
type ShutdownBrowserTool struct {
	sessions *browser.SessionManager
}

func (t *ShutdownBrowserTool) Name() string { return "shutdown-browser" }
func (t *ShutdownBrowserTool) Description() string {
	return `Stop the Chrome browser and close every window opened through this server.

Private Login-As windows are disposed with their browser contexts, which
ends the impersonated sessions they carried.

NOTE: activity facts persist after shutdown.`
}
func (t *ShutdownBrowserTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{})
}
func (t *ShutdownBrowserTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	if t.sessions == nil {
		return nil, browser.ErrNotConnected
	}
	if err := t.sessions.Shutdown(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status": "stopped",
	}, nil
}

// ListWindowsTool lists tracked windows and, when connected, every open tab.
type ListWindowsTool struct {
	sessions *browser.SessionManager
}

func (t *ListWindowsTool) Name() string { return "list-windows" }
func (t *ListWindowsTool) Description() string {
	return `List windows opened through this server and the browser's open tabs.

WHEN TO USE:
- Find the URL of the tab you want to resolve a session for (get-sf-host)
- Find the store_id of a private window to read its cookies

Returns: {connected, windows: [{id, targetId, storeId, url, incognito}], tabs: [{targetId, url, title, storeId}]}`
}
func (t *ListWindowsTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"include_tabs": boolProp("Also list every open page target (default: true)"),
	})
}
func (t *ListWindowsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if t.sessions == nil {
		return nil, browser.ErrNotConnected
	}
	result := map[string]interface{}{
		"connected": t.sessions.IsConnected(),
		"windows":   t.sessions.List(),
	}
	if !t.sessions.IsConnected() || !getBoolArg(args, "include_tabs", true) {
		return result, nil
	}

	tabs, err := t.sessions.Tabs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}
	result["tabs"] = tabs
	return result, nil
}
