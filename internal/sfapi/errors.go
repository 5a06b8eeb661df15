package sfapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// ErrorItem is one element of the platform's error array payload.
type ErrorItem struct {
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode"`
	Fields    []string `json:"fields,omitempty"`
}

// APIError is returned for any non-2xx REST response.
type APIError struct {
	StatusCode int
	Errors     []ErrorItem
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("salesforce api status %d: %s", e.StatusCode, e.Message())
}

// Message returns the first server-reported message, or a status fallback.
func (e *APIError) Message() string {
	for _, item := range e.Errors {
		if item.Message != "" {
			return item.Message
		}
	}
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return "unknown error"
}

func newAPIError(resp *resty.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
	var items []ErrorItem
	if err := json.Unmarshal(resp.Body(), &items); err == nil {
		apiErr.Errors = items
		return apiErr
	}
	// Some endpoints return a single object instead of an array.
	var single ErrorItem
	if err := json.Unmarshal(resp.Body(), &single); err == nil && single.Message != "" {
		apiErr.Errors = []ErrorItem{single}
	}
	return apiErr
}
