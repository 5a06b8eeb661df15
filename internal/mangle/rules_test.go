package mangle

import (
	"context"
	"testing"
	"time"
)

func TestActivityRules(t *testing.T) {
	engine := newTestEngine(t, 1000)
	ctx := context.Background()

	add := func(predicate string, args ...interface{}) {
		t.Helper()
		if err := engine.AddFacts(ctx, []Fact{{Predicate: predicate, Args: args, Timestamp: time.Now()}}); err != nil {
			t.Fatalf("AddFacts(%s) failed: %v", predicate, err)
		}
	}

	t.Run("login_required", func(t *testing.T) {
		add("no_session", "", "cold.my.salesforce.com")
		add("no_session", "", "warm.my.salesforce.com")
		add("session_resolved", "ctx-1", "warm.my.salesforce.com")

		facts, err := engine.Evaluate(ctx, "login_required")
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if len(facts) != 1 || facts[0].Args[0] != "cold.my.salesforce.com" {
			t.Errorf("expected only cold host to require login, got %v", facts)
		}
	})

	t.Run("inspection_failed", func(t *testing.T) {
		add("fetch_failed", "Account", "001000000000001AAA", 404, 200)
		add("fetch_failed", "Contact", "003000000000001AAA", 500, 500)
		add("record_loaded", "view-9", "Contact", "003000000000001AAA", 4)

		results, err := engine.Query(ctx, "inspection_failed(SObject, Id, RecordStatus, DescribeStatus).")
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(results) != 1 || results[0]["SObject"] != "Account" {
			t.Errorf("expected Account failure only, got %v", results)
		}
	})

	t.Run("unsaved_edit", func(t *testing.T) {
		add("save_rejected", "view-a", "Name: data value too large")
		add("save_rejected", "view-b", "FIELD_CUSTOM_VALIDATION_EXCEPTION")
		add("record_saved", "view-b", "Account", "001000000000001AAA", 1)

		results, err := engine.Query(ctx, "unsaved_edit(View).")
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(results) != 1 || results[0]["View"] != "view-a" {
			t.Errorf("expected view-a only, got %v", results)
		}
	})
}
