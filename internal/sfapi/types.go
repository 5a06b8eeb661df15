package sfapi

// Field is one entry of a describe result.
type Field struct {
	Name              string   `json:"name"`
	Label             string   `json:"label"`
	Type              string   `json:"type"`
	Updateable        bool     `json:"updateable"`
	Custom            bool     `json:"custom"`
	ReferenceTo       []string `json:"referenceTo"`
	Calculated        bool     `json:"calculated"`
	CalculatedFormula string   `json:"calculatedFormula,omitempty"`
}

// DescribeResult is the subset of /sobjects/{type}/describe we consume.
type DescribeResult struct {
	Name   string  `json:"name"`
	Label  string  `json:"label"`
	Fields []Field `json:"fields"`
}

// QueryResult is a SOQL response page.
type QueryResult struct {
	TotalSize int                      `json:"totalSize"`
	Done      bool                     `json:"done"`
	Records   []map[string]interface{} `json:"records"`
}

// StringField returns a string column from the i-th record, or "".
func (q *QueryResult) StringField(i int, name string) string {
	if q == nil || i < 0 || i >= len(q.Records) {
		return ""
	}
	s, _ := q.Records[i][name].(string)
	return s
}
