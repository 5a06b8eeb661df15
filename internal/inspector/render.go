package inspector

import (
	"encoding/json"
	"sort"
	"strings"

	"quickloginas-mcp-server/internal/sfapi"
)

// NullMarker is shown for null values.
const NullMarker = "null"

// PlaceholderType marks fields present on the record but absent from describe.
const PlaceholderType = "N/A"

// ControlKind selects the edit widget for a field.
type ControlKind string

const (
	ControlCheckbox ControlKind = "checkbox"
	ControlTextarea ControlKind = "textarea"
	ControlText     ControlKind = "text"
)

// FieldMeta is the describe information the grid needs for one field.
type FieldMeta struct {
	APIName     string   `json:"apiName"`
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Updateable  bool     `json:"updateable"`
	ReferenceTo []string `json:"referenceTo,omitempty"`
	Calculated  bool     `json:"calculated,omitempty"`
	Formula     string   `json:"formula,omitempty"`
	// SetupURL links to the field definition in Setup when enrichment succeeded.
	SetupURL string `json:"setupUrl,omitempty"`
}

func placeholderMeta(name string) FieldMeta {
	return FieldMeta{APIName: name, Label: name, Type: PlaceholderType}
}

func metaFromDescribe(f sfapi.Field) FieldMeta {
	return FieldMeta{
		APIName:     f.Name,
		Label:       f.Label,
		Type:        f.Type,
		Updateable:  f.Updateable,
		ReferenceTo: f.ReferenceTo,
		Calculated:  f.Calculated,
		Formula:     f.CalculatedFormula,
	}
}

// Control is the edit widget of an updateable field in Editing state.
type Control struct {
	Kind ControlKind `json:"kind"`
	// Value is a bool for checkboxes and a string otherwise.
	Value interface{} `json:"value"`
}

// Row is one rendered grid line.
type Row struct {
	FieldMeta
	Value   interface{} `json:"value"`
	Display string      `json:"display"`
	IsNull  bool        `json:"isNull,omitempty"`
	// Link opens the referenced record in a nested inspector.
	Link    string   `json:"link,omitempty"`
	Control *Control `json:"control,omitempty"`
}

// text is what the filter matches against.
func (r Row) text() string {
	return strings.ToLower(strings.Join([]string{r.Label, r.APIName, r.Type, r.Display, r.Formula}, "\n"))
}

func controlKind(fieldType string) ControlKind {
	switch fieldType {
	case "boolean":
		return ControlCheckbox
	case "textarea":
		return ControlTextarea
	default:
		return ControlText
	}
}

// displayValue renders v for the grid: strings verbatim, nested values as
// indented JSON, other scalars as their JSON text.
func displayValue(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return NullMarker, true
	case string:
		return t, false
	case map[string]interface{}, []interface{}:
		b, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return "", false
		}
		return string(b), false
	default:
		return jsonText(t), false
	}
}

// inputText is the text-control representation of an original value. It is
// also the comparison form used by the diff.
func inputText(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return jsonText(t)
	}
}

func jsonText(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// sortedFieldNames returns record keys in lexicographic order without "attributes".
func sortedFieldNames(record map[string]interface{}) []string {
	names := make([]string, 0, len(record))
	for k := range record {
		if k == "attributes" {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
