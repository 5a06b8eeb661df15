package mcp

import (
	"context"
	"fmt"
	"time"

	"quickloginas-mcp-server/internal/mangle"
	"quickloginas-mcp-server/internal/recorder"
)

// QueryFactsTool queries activity facts and derived predicates.
type QueryFactsTool struct {
	engine *mangle.Engine
}

func (t *QueryFactsTool) Name() string { return "query-facts" }
func (t *QueryFactsTool) Description() string {
	return `Query the activity log: host/session lookups, private windows and inspector outcomes.

MODES (first match wins):
- query: a single Mangle atom, e.g. "login_required(Host)." (trailing period optional)
- predicate (+ optional args prefix, since_seconds): every fact of one predicate,
  derived ones included (login_required, inspection_failed, unsaved_edit)
- list_predicates=true: the declared predicates with their arity

Returns: {count, results} for query, {predicate, count, facts} for predicate.`
}
func (t *QueryFactsTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"query":     stringProp("Mangle atom with variables"),
		"predicate": stringProp("Predicate name, e.g. record_saved"),
		"args": map[string]interface{}{
			"type":        "array",
			"description": "Leading argument values to match",
		},
		"since_seconds":   intProp("Only buffered facts newer than this many seconds"),
		"list_predicates": boolProp("List declared predicates"),
	})
}
func (t *QueryFactsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if t.engine == nil || !t.engine.Ready() {
		return nil, fmt.Errorf("fact engine is disabled")
	}
	if getBoolArg(args, "list_predicates", false) {
		return map[string]interface{}{"predicates": t.engine.Predicates()}, nil
	}

	if query := normalizeQuery(getStringArg(args, "query")); query != "" {
		results, err := t.engine.Query(ctx, query)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"query":   query,
			"count":   len(results),
			"results": results,
		}, nil
	}

	predicate := getStringArg(args, "predicate")
	if predicate == "" {
		return nil, fmt.Errorf("query or predicate is required")
	}

	var (
		facts []mangle.Fact
		err   error
	)
	if since := getIntArg(args, "since_seconds", 0); since > 0 {
		facts = t.engine.QueryTemporal(predicate, time.Now().Add(-time.Duration(since)*time.Second), time.Time{})
	} else {
		facts, err = t.engine.Evaluate(ctx, predicate)
		if err != nil {
			return nil, err
		}
	}
	facts = filterFacts(facts, getSliceArg(args, "args"))

	return map[string]interface{}{
		"predicate": predicate,
		"count":     len(facts),
		"facts":     facts,
	}, nil
}

// RecentMessagesTool returns the latest traced message round trips.
type RecentMessagesTool struct {
	traces *recorder.Recorder
}

func (t *RecentMessagesTool) Name() string { return "recent-messages" }
func (t *RecentMessagesTool) Description() string {
	return `Show the latest message round trips (getSfHost, getSession, window requests)
with their outcome and timing. Credentials are never traced.

Returns: {count, messages: [{ts, kind, store_id, host, outcome, detail, elapsed_ms}]}`
}
func (t *RecentMessagesTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"limit": intProp("Maximum entries (default: 20)"),
	})
}
func (t *RecentMessagesTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	if t.traces == nil {
		return nil, fmt.Errorf("message tracing is disabled")
	}
	messages := t.traces.Recent(getIntArg(args, "limit", 20))
	return map[string]interface{}{
		"count":    len(messages),
		"messages": messages,
	}, nil
}
