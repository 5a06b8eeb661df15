package inspector

import (
	"errors"
	"fmt"

	"quickloginas-mcp-server/internal/sfapi"
)

var (
	ErrInvalidState   = errors.New("operation not allowed in current view state")
	ErrNoChanges      = errors.New("no fields were changed")
	ErrSaveInProgress = errors.New("a save is already in progress")
	ErrNotUpdateable  = errors.New("field is not updateable")
	ErrUnknownView    = errors.New("unknown inspector view")
	ErrInvalidParams  = errors.New("invalid inspector launch parameters")
)

// FetchFailedError reports the outcome of both initial REST calls.
type FetchFailedError struct {
	RecordStatus   int
	DescribeStatus int
	RecordErr      error
	DescribeErr    error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("api request failed. record status: %s. describe status: %s",
		statusText(e.RecordStatus, e.RecordErr), statusText(e.DescribeStatus, e.DescribeErr))
}

func (e *FetchFailedError) Unwrap() []error {
	var errs []error
	if e.RecordErr != nil {
		errs = append(errs, e.RecordErr)
	}
	if e.DescribeErr != nil {
		errs = append(errs, e.DescribeErr)
	}
	return errs
}

func statusText(status int, err error) string {
	switch {
	case status > 0:
		return fmt.Sprintf("%d", status)
	case err != nil:
		return "error (" + err.Error() + ")"
	default:
		return "200"
	}
}

// SaveRejectedError carries the server's first reported message.
type SaveRejectedError struct {
	Message string
	Err     error
}

func (e *SaveRejectedError) Error() string { return "error saving: " + e.Message }

func (e *SaveRejectedError) Unwrap() error { return e.Err }

// callStatus extracts the HTTP status of a failed call, or 0 for transport errors.
func callStatus(err error) int {
	var apiErr *sfapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// serverMessage returns the first server-reported message for err.
func serverMessage(err error) string {
	var apiErr *sfapi.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	return err.Error()
}
