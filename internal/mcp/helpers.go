package mcp

import (
	"fmt"
	"strings"

	"quickloginas-mcp-server/internal/mangle"
	"quickloginas-mcp-server/internal/salesforce"
)

// filterFacts keeps facts whose leading args equal wantArgs (compared as text).
func filterFacts(facts []mangle.Fact, wantArgs []interface{}) []mangle.Fact {
	if len(wantArgs) == 0 {
		return facts
	}
	out := make([]mangle.Fact, 0, len(facts))
	for _, f := range facts {
		if len(f.Args) < len(wantArgs) {
			continue
		}
		ok := true
		for i := range wantArgs {
			if fmt.Sprintf("%v", f.Args[i]) != fmt.Sprintf("%v", wantArgs[i]) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, f)
		}
	}
	return out
}

// normalizeQuery tolerates a missing trailing period.
func normalizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if q != "" && !strings.HasSuffix(q, ".") {
		q += "."
	}
	return q
}

// maskCredential keeps the org id and hides the secret part of a session id.
func maskCredential(credential string) string {
	if credential == "" {
		return ""
	}
	if org := salesforce.OrgID(credential); org != "" && org != credential {
		return org + "!****"
	}
	return "****"
}

func getStringArg(args map[string]interface{}, key string) string {
	return getStringFromMap(args, key)
}

func getStringFromMap(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getIntArg(args map[string]interface{}, key string, fallback int) int {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func getBoolArg(args map[string]interface{}, key string, fallback bool) bool {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return fallback
}

func getSliceArg(args map[string]interface{}, key string) []interface{} {
	if v, ok := args[key].([]interface{}); ok {
		return v
	}
	return nil
}

func argString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []string:
		if len(value) == 0 {
			return ""
		}
		return value[0]
	default:
		return fmt.Sprintf("%v", value)
	}
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func boolProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": description}
}

func intProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": description}
}

func objectSchema(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
