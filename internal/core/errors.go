package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the import wizard. Match them with errors.Is.
var (
	// ErrUnsupportedFormat means the file extension is not xlsx, xls or csv.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrParse means the file could not be decoded or has no header row.
	ErrParse = errors.New("could not parse file")

	ErrUpload     = errors.New("upload failed")
	ErrPreview    = errors.New("preview failed")
	ErrSuggestion = errors.New("mapping suggestion failed")
	ErrTemplate   = errors.New("template request failed")
	ErrTransform  = errors.New("transform failed")
	ErrExport     = errors.New("export download failed")
	ErrJob        = errors.New("job lookup failed")

	// ErrNoMapping blocks a submission whose mapping is empty even after
	// an automatic suggestion. The session stays where it is.
	ErrNoMapping = errors.New("no column mapping: map at least one column")

	// ErrConnectivity marks a call that never got an HTTP response.
	ErrConnectivity = errors.New("could not reach the import service")

	// ErrServer marks a call the import service answered with a non-2xx status.
	ErrServer = errors.New("import service rejected the request")

	// ErrBusy means a call slot could not be acquired in time.
	ErrBusy = errors.New("too many requests in flight, please try again")
)

// Operation names a backend call for error reporting.
type Operation string

const (
	OpUpload       Operation = "upload"
	OpPreview      Operation = "preview"
	OpFields       Operation = "fields"
	OpTemplates    Operation = "templates"
	OpSaveTemplate Operation = "save template"
	OpSuggest      Operation = "suggest mapping"
	OpTransform    Operation = "transform"
	OpExport       Operation = "export"
	OpJob          Operation = "job"
	OpHealth       Operation = "health"
)

// sentinel returns the taxonomy error a failed operation belongs to.
func (op Operation) sentinel() error {
	switch op {
	case OpUpload:
		return ErrUpload
	case OpPreview:
		return ErrPreview
	case OpFields, OpTemplates, OpSaveTemplate:
		return ErrTemplate
	case OpSuggest:
		return ErrSuggestion
	case OpTransform:
		return ErrTransform
	case OpExport:
		return ErrExport
	case OpJob:
		return ErrJob
	default:
		return nil
	}
}

// CallError is returned by every failed backend call. It distinguishes a
// connectivity failure (Status == 0) from a server-reported error, whose
// detail string comes from the response body.
type CallError struct {
	Op     Operation
	Status int    // HTTP status, 0 when no response was received
	Detail string // server-provided detail, or the transport cause
	Err    error  // underlying transport or decode error, may be nil
}

// NewTransportError wraps a failure that produced no HTTP response.
func NewTransportError(op Operation, err error) *CallError {
	return &CallError{Op: op, Detail: ErrConnectivity.Error(), Err: err}
}

// NewServerError wraps a non-2xx response.
func NewServerError(op Operation, status int, detail string) *CallError {
	if detail == "" {
		detail = http.StatusText(status)
	}
	return &CallError{Op: op, Status: status, Detail: detail}
}

func (e *CallError) Error() string {
	if e.IsTransport() {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Detail, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Status, e.Detail)
}

// Unwrap exposes the operation sentinel, the failure kind and the cause.
func (e *CallError) Unwrap() []error {
	errs := make([]error, 0, 3)
	if s := e.Op.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.IsTransport() {
		errs = append(errs, ErrConnectivity)
	} else {
		errs = append(errs, ErrServer)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsTransport reports whether the call failed before any response arrived.
func (e *CallError) IsTransport() bool {
	return e.Status == 0
}

// Cause returns the human-readable reason shown to the user.
func (e *CallError) Cause() string {
	return e.Detail
}
