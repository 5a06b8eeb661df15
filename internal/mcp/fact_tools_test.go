package mcp

import (
	"context"
	"strings"
	"testing"
	"time"

	"quickloginas-mcp-server/internal/config"
	"quickloginas-mcp-server/internal/mangle"
	"quickloginas-mcp-server/internal/recorder"
)

func TestQueryFactsTool(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A lookup that finds no session makes login_required derivable.
	env.exec(t, "get-session", map[string]interface{}{"sf_host": "nobody.my.salesforce.com"})

	t.Run("error without query or predicate", func(t *testing.T) {
		if _, err := env.server.ExecuteTool(ctx, "query-facts", nil); err == nil {
			t.Error("expected error for empty query")
		}
	})

	t.Run("query tolerates missing trailing period", func(t *testing.T) {
		res := env.exec(t, "query-facts", map[string]interface{}{"query": "login_required(Host)"})
		if res["count"].(int) != 1 {
			t.Fatalf("expected 1 result, got %v", res["count"])
		}
		rows := res["results"].([]mangle.QueryResult)
		if rows[0]["Host"] != "nobody.my.salesforce.com" {
			t.Errorf("unexpected binding %v", rows[0])
		}
	})

	t.Run("predicate with args prefix", func(t *testing.T) {
		_ = env.engine.AddFacts(ctx, []mangle.Fact{
			{Predicate: "record_saved", Args: []interface{}{"view-1", "Account", testRecordID, 1}, Timestamp: time.Now()},
			{Predicate: "record_saved", Args: []interface{}{"view-2", "Contact", "003000000000001AAA", 2}, Timestamp: time.Now()},
		})
		res := env.exec(t, "query-facts", map[string]interface{}{
			"predicate": "record_saved",
			"args":      []interface{}{"view-2"},
		})
		if res["count"].(int) != 1 {
			t.Errorf("expected 1 fact, got %v", res["count"])
		}
	})

	t.Run("since window", func(t *testing.T) {
		res := env.exec(t, "query-facts", map[string]interface{}{"predicate": "record_saved", "since_seconds": 60})
		if res["count"].(int) != 2 {
			t.Errorf("expected 2 recent facts, got %v", res["count"])
		}
	})

	t.Run("unknown predicate", func(t *testing.T) {
		if _, err := env.server.ExecuteTool(ctx, "query-facts", map[string]interface{}{"predicate": "no_such_thing"}); err == nil {
			t.Error("expected error for unknown predicate")
		}
	})

	t.Run("list predicates", func(t *testing.T) {
		res := env.exec(t, "query-facts", map[string]interface{}{"list_predicates": true})
		joined := strings.Join(res["predicates"].([]string), " ")
		if !strings.Contains(joined, "login_required/1") || !strings.Contains(joined, "unsaved_edit/1") {
			t.Errorf("unexpected predicates %s", joined)
		}
	})
}

func TestQueryFactsToolDisabledEngine(t *testing.T) {
	engine, err := mangle.NewEngine(config.MangleConfig{Enable: false})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	tool := &QueryFactsTool{engine: engine}
	if _, err := tool.Execute(context.Background(), map[string]interface{}{"query": "login_required(H)."}); err == nil {
		t.Error("expected error from a disabled engine")
	}
	if _, err := (&QueryFactsTool{}).Execute(context.Background(), nil); err == nil {
		t.Error("expected error without an engine")
	}
}

func TestRecentMessagesTool(t *testing.T) {
	env := newTestEnv(t)
	env.exec(t, "get-sf-host", map[string]interface{}{"url": testTabURL})
	env.exec(t, "get-sf-host", map[string]interface{}{"url": "https://example.com/"})

	res := env.exec(t, "recent-messages", map[string]interface{}{"limit": 1})
	messages := res["messages"].([]recorder.RoundTrip)
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].Outcome != recorder.OutcomeNull || messages[0].Host != "example.com" {
		t.Errorf("unexpected message %+v", messages[0])
	}

	if _, err := (&RecentMessagesTool{}).Execute(context.Background(), nil); err == nil {
		t.Error("expected error when tracing is disabled")
	}
}
