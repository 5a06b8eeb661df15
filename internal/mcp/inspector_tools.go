package mcp

import (
	"context"
	"errors"
	"fmt"

	"quickloginas-mcp-server/internal/inspector"
)

// viewResult renders a view and drains its pending notices.
func viewResult(v *inspector.View) map[string]interface{} {
	return map[string]interface{}{
		"view":    v.Snapshot(),
		"notices": v.Notices(),
	}
}

func lookupView(registry *inspector.Registry, args map[string]interface{}) (*inspector.View, error) {
	id := getStringArg(args, "view_id")
	if id == "" {
		return nil, fmt.Errorf("view_id is required")
	}
	return registry.Get(id)
}

var viewIDSchema = objectSchema(map[string]interface{}{
	"view_id": stringProp("View id returned by inspect-record"),
}, "view_id")

// InspectRecordTool opens a Record Inspector view.
type InspectRecordTool struct {
	registry *inspector.Registry
}

func (t *InspectRecordTool) Name() string { return "inspect-record" }
func (t *InspectRecordTool) Description() string {
	return `Open the Record Inspector on one record: every field with its label, type and value.

Identify the record in one of three ways:
- id + sobject + sf_host (the inspector launch parameters)
- link: an inspector link, such as a reference field's link from a previous view
- record_page_url: a Lightning record page (/lightning/r/<SObject>/<Id>/view)

The session is resolved from sf_host (or the page) on every request.
A failed load still returns the view, in state "error" with the message.

WORKFLOW:
1. inspect-record                 -> view_id + rows
2. inspector-edit                 -> editable controls
3. inspector-set-field (repeat)   -> change values
4. inspector-save                 -> PATCH only what changed

Returns: {view: {viewId, state, title, rows, total, visible, error}, notices}`
}
func (t *InspectRecordTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"id":              stringProp("Record id (15 or 18 characters)"),
		"sobject":         stringProp("Object API name, e.g. Account"),
		"sf_host":         stringProp("Salesforce host or tab URL"),
		"store_id":        stringProp("Cookie store (browser context) id"),
		"link":            stringProp("Inspector link, e.g. /inspector?id=...&sobject=...&sfHost=..."),
		"record_page_url": stringProp("Lightning record page URL"),
	})
}
func (t *InspectRecordTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var params inspector.Params
	switch {
	case getStringArg(args, "link") != "":
		p, err := inspector.ParseLaunchURL(getStringArg(args, "link"))
		if err != nil {
			return nil, err
		}
		params = p
	case getStringArg(args, "record_page_url") != "":
		p, err := inspector.ParamsFromRecordPage(getStringArg(args, "record_page_url"))
		if err != nil {
			return nil, err
		}
		params = p
	default:
		params = inspector.Params{
			RecordID: getStringArg(args, "id"),
			SObject:  getStringArg(args, "sobject"),
			SFHost:   getStringArg(args, "sf_host"),
		}
	}
	if storeID := getStringArg(args, "store_id"); storeID != "" {
		params.StoreID = storeID
	}

	v, err := t.registry.Open(ctx, params)
	if v == nil {
		return nil, err
	}
	result := viewResult(v)
	result["launch_url"] = t.registry.LaunchURL(params)
	return result, nil
}

// InspectorViewTool renders an open view, or lists open views.
type InspectorViewTool struct {
	registry *inspector.Registry
}

func (t *InspectorViewTool) Name() string { return "inspector-view" }
func (t *InspectorViewTool) Description() string {
	return `Render an open inspector view. Without view_id, list the open views.

Set reload=true to fetch the record again (discards unsaved edits).

Returns: {view, notices} or {views: [{viewId, title, state}]}`
}
func (t *InspectorViewTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"view_id": stringProp("View id returned by inspect-record"),
		"reload":  boolProp("Fetch the record again (default: false)"),
	})
}
func (t *InspectorViewTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if getStringArg(args, "view_id") == "" {
		return map[string]interface{}{"views": t.registry.List()}, nil
	}
	v, err := lookupView(t.registry, args)
	if err != nil {
		return nil, err
	}
	if getBoolArg(args, "reload", false) {
		// Load failures are rendered in the view.
		if err := v.Load(ctx); errors.Is(err, inspector.ErrSaveInProgress) {
			return nil, err
		}
	}
	return viewResult(v), nil
}

// InspectorEditTool switches a view into editing.
type InspectorEditTool struct {
	registry *inspector.Registry
}

func (t *InspectorEditTool) Name() string { return "inspector-edit" }
func (t *InspectorEditTool) Description() string {
	return `Switch an inspector view to editing. Updateable fields get a control:
checkbox (boolean fields), textarea (textarea fields) or text.

Returns: {view, notices}`
}
func (t *InspectorEditTool) InputSchema() map[string]interface{} { return viewIDSchema }
func (t *InspectorEditTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	v, err := lookupView(t.registry, args)
	if err != nil {
		return nil, err
	}
	if err := v.BeginEdit(); err != nil {
		return nil, err
	}
	return viewResult(v), nil
}

// InspectorSetFieldTool sets one control value.
type InspectorSetFieldTool struct {
	registry *inspector.Registry
}

func (t *InspectorSetFieldTool) Name() string { return "inspector-set-field" }
func (t *InspectorSetFieldTool) Description() string {
	return `Set the control value of one updateable field while editing.

Checkboxes take true/false. Other fields take text; empty text (or null=true)
clears the field and is saved as null.

Returns: {field, changes} - the fields that currently differ from the record.`
}
func (t *InspectorSetFieldTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"view_id": stringProp("View id returned by inspect-record"),
		"field":   stringProp("Field API name"),
		"value": map[string]interface{}{
			"description": "New value: boolean for checkboxes, text otherwise",
		},
		"null": boolProp("Clear the field (default: false)"),
	}, "view_id", "field")
}
func (t *InspectorSetFieldTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	v, err := lookupView(t.registry, args)
	if err != nil {
		return nil, err
	}
	field := getStringArg(args, "field")
	if field == "" {
		return nil, fmt.Errorf("field is required")
	}

	var value interface{}
	if !getBoolArg(args, "null", false) {
		value = args["value"]
	}
	if err := v.SetInput(field, value); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"field":   field,
		"changes": v.Changes(),
	}, nil
}

// InspectorSaveTool submits changed fields.
type InspectorSaveTool struct {
	registry *inspector.Registry
}

func (t *InspectorSaveTool) Name() string { return "inspector-save" }
func (t *InspectorSaveTool) Description() string {
	return `Save an editing view. Only fields whose value changed are sent (PATCH).

- Nothing changed: no request is made, the view returns to viewing (saved=false).
- Rejected: the view stays in editing with all values kept; the server's
  first error message is in notices.
- Success: the view returns to viewing with the new values.

Returns: {saved, changed, view, notices}`
}
func (t *InspectorSaveTool) InputSchema() map[string]interface{} { return viewIDSchema }
func (t *InspectorSaveTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	v, err := lookupView(t.registry, args)
	if err != nil {
		return nil, err
	}

	res, err := v.Save(ctx)
	var rejected *inspector.SaveRejectedError
	switch {
	case errors.Is(err, inspector.ErrNoChanges):
		result := viewResult(v)
		result["saved"] = false
		return result, nil
	case errors.As(err, &rejected):
		result := viewResult(v)
		result["saved"] = false
		result["error"] = rejected.Error()
		return result, nil
	case err != nil:
		return nil, err
	}

	result := viewResult(v)
	result["saved"] = true
	result["changed"] = res.Changed
	return result, nil
}

// InspectorCancelTool discards edits.
type InspectorCancelTool struct {
	registry *inspector.Registry
}

func (t *InspectorCancelTool) Name() string { return "inspector-cancel" }
func (t *InspectorCancelTool) Description() string {
	return `Discard edits and return the view to viewing.

Returns: {view, notices}`
}
func (t *InspectorCancelTool) InputSchema() map[string]interface{} { return viewIDSchema }
func (t *InspectorCancelTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	v, err := lookupView(t.registry, args)
	if err != nil {
		return nil, err
	}
	if err := v.Cancel(); err != nil {
		return nil, err
	}
	return viewResult(v), nil
}

// InspectorFilterTool narrows the visible rows.
type InspectorFilterTool struct {
	registry *inspector.Registry
}

func (t *InspectorFilterTool) Name() string { return "inspector-filter" }
func (t *InspectorFilterTool) Description() string {
	return `Show only rows whose name, label, type or value contains the text
(case-insensitive). An empty filter shows every row. Filtering never changes what is saved.

Returns: {view, notices}`
}
func (t *InspectorFilterTool) InputSchema() map[string]interface{} {
	return objectSchema(map[string]interface{}{
		"view_id": stringProp("View id returned by inspect-record"),
		"filter":  stringProp("Filter text"),
	}, "view_id")
}
func (t *InspectorFilterTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	v, err := lookupView(t.registry, args)
	if err != nil {
		return nil, err
	}
	v.SetFilter(getStringArg(args, "filter"))
	return viewResult(v), nil
}

// InspectorCloseTool forgets a view.
type InspectorCloseTool struct {
	registry *inspector.Registry
}

func (t *InspectorCloseTool) Name() string { return "inspector-close" }
func (t *InspectorCloseTool) Description() string {
	return `Close an inspector view. Unsaved edits are discarded.

Returns: {closed}`
}
func (t *InspectorCloseTool) InputSchema() map[string]interface{} { return viewIDSchema }
func (t *InspectorCloseTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	id := getStringArg(args, "view_id")
	if id == "" {
		return nil, fmt.Errorf("view_id is required")
	}
	return map[string]interface{}{"closed": t.registry.Close(id)}, nil
}
