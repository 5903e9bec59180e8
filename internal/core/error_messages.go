package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. Users can quote the code to support staff for faster diagnosis.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Unsupported format: Only .xlsx, .xls and .csv files can be imported
//	          Action: Save the file as Excel or CSV and upload it again
//	          Sentinel: ErrUnsupportedFormat
//
//	FILE002 - Unreadable file: The file could not be read
//	          Action: Check that the file is not corrupted and has a header row
//	          Sentinel: ErrParse
//
//	FILE003 - File too large: File exceeds the maximum upload size
//	          Action: Split the file into smaller files
//	          Patterns: "file too large", "request body too large"
//
// # Network Errors (NET001-NET099)
//
//	NET001 - Unreachable: Could not connect to the import service
//	         Action: Check that the backend is running, then try again
//	         Sentinel: ErrConnectivity
//
//	NET002 - Timeout: The import service took too long to answer
//	         Action: Try again; large files may need a moment
//	         Patterns: "context deadline exceeded", "timeout"
//
// # Service Errors (API001-API099)
//
//	API001 - Upload rejected:     "<detail>"  (ErrUpload + ErrServer)
//	API002 - Preview unavailable: "<detail>"  (ErrPreview + ErrServer)
//	API003 - Template error:      "<detail>"  (ErrTemplate + ErrServer)
//	API004 - Suggestion error:    "<detail>"  (ErrSuggestion + ErrServer)
//	API005 - Transform failed:    "<detail>"  (ErrTransform + ErrServer)
//	API006 - Download failed:     "<detail>"  (ErrExport + ErrServer)
//	API007 - Job lookup failed:   "<detail>"  (ErrJob + ErrServer)
//	API000 - Service error:       "<detail>"  (ErrServer, other operations)
//
// # Mapping Errors (MAP001-MAP099)
//
//	MAP001 - No mapping: No column is mapped and no suggestion was found
//	         Action: Map at least one column to a field
//	         Sentinel: ErrNoMapping
//
// # Wizard Errors (WIZ001-WIZ099)
//
//	WIZ001 - Busy: The same request is already running
//	         Action: Wait for it to finish
//	         Sentinel: ErrBusy
//
//	WIZ002 - Stale: The wizard moved on before the request finished
//	         Action: Review the current step and try again
//	         Patterns: "result is stale"
//
//	WIZ003 - Wrong step: The action is not available on this step
//	         Action: Go back to the step the action belongs to
//	         Patterns: "not valid at this step"
//
//	WIZ004 - No step: There is no step in that direction
//	         Action: Use Start over to begin a new import
//	         Patterns: "no step in that direction"
//
//	WIZ005 - Invalid input: The step data was rejected
//	         Action: Check the highlighted values and try again
//	         Patterns: "invalid step data"
//
//	WIZ006 - Session expired: The wizard session no longer exists
//	         Action: Start a new import
//	         Patterns: "session not found"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Bad request: The request could not be read
//	         Action: Check the request body and parameters
//	         Raised by the HTTP shell as a UserError
//
//	REQ002 - Rate limited: Too many requests from this client
//	         Action: Wait a minute and try again
//	         Written directly by the HTTP shell's rate limiter
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Please try again or contact support
//
// A UserError anywhere in the chain wins over everything else.
// Sentinels are matched with errors.Is before the string patterns, so a
// wrapped sentinel always wins over an incidental substring.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// sentinelMessage maps a sentinel error to its user message.
type sentinelMessage struct {
	target error
	msg    UserMessage
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// serverMessages gives the code and headline for a server-reported failure
// per operation sentinel. The backend detail is appended at map time.
var serverMessages = []sentinelMessage{
	{ErrUpload, UserMessage{Message: "The file was rejected", Action: "Check the file and upload it again", Code: "API001"}},
	{ErrPreview, UserMessage{Message: "The preview could not be loaded", Action: "Pick the sheet again or re-upload the file", Code: "API002"}},
	{ErrTemplate, UserMessage{Message: "The template request failed", Action: "Try again; template names must be unique", Code: "API003"}},
	{ErrSuggestion, UserMessage{Message: "Automatic mapping failed", Action: "Map the columns manually", Code: "API004"}},
	{ErrTransform, UserMessage{Message: "The import could not be completed", Action: "Review the mapping and submit again", Code: "API005"}},
	{ErrExport, UserMessage{Message: "The export file could not be downloaded", Action: "Run the import again to regenerate it", Code: "API006"}},
	{ErrJob, UserMessage{Message: "The import job could not be found", Action: "Start a new import", Code: "API007"}},
}

// sentinelMessages are checked in order; the first errors.Is match wins.
var sentinelMessages = []sentinelMessage{
	{ErrUnsupportedFormat, UserMessage{
		Message: "Only .xlsx, .xls and .csv files can be imported",
		Action:  "Save the file as Excel or CSV and upload it again",
		Code:    "FILE001",
	}},
	{ErrParse, UserMessage{
		Message: "The file could not be read",
		Action:  "Check that the file is not corrupted and has a header row",
		Code:    "FILE002",
	}},
	{ErrNoMapping, UserMessage{
		Message: "No column is mapped and no automatic match was found",
		Action:  "Map at least one column to a field",
		Code:    "MAP001",
	}},
	{ErrBusy, UserMessage{
		Message: "This request is already running",
		Action:  "Wait for it to finish",
		Code:    "WIZ001",
	}},
	{ErrConnectivity, UserMessage{
		Message: "Could not connect to the import service",
		Action:  "Check that the backend is running, then try again",
		Code:    "NET001",
	}},
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// The first matching pattern wins.
var errorPatterns = []errorPattern{
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The import service took too long to answer",
			Action:  "Try again; large files may need a moment",
			Code:    "NET002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The import service took too long to answer",
			Action:  "Try again; large files may need a moment",
			Code:    "NET002",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller files",
			Code:    "FILE003",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller files",
			Code:    "FILE003",
		},
	},
	{
		pattern: "result is stale",
		msg: UserMessage{
			Message: "The wizard moved on before the request finished",
			Action:  "Review the current step and try again",
			Code:    "WIZ002",
		},
	},
	{
		pattern: "not valid at this step",
		msg: UserMessage{
			Message: "That action is not available on this step",
			Action:  "Go back to the step the action belongs to",
			Code:    "WIZ003",
		},
	},
	{
		pattern: "no step in that direction",
		msg: UserMessage{
			Message: "There is no step in that direction",
			Action:  "Use Start over to begin a new import",
			Code:    "WIZ004",
		},
	},
	{
		pattern: "invalid step data",
		msg: UserMessage{
			Message: "The step data was rejected",
			Action:  "Check the values and try again",
			Code:    "WIZ005",
		},
	},
	{
		pattern: "session not found",
		msg: UserMessage{
			Message: "This import session has expired",
			Action:  "Start a new import",
			Code:    "WIZ006",
		},
	},
}

// defaultMessage is returned when no sentinel or pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Server-reported failures carry the backend's detail string in the
// message, so the user sees why the service refused the request:
//
//	msg := MapError(err)
//	// msg.Code == "API001"
//	// msg.Message == "The file was rejected: Only .xlsx/.xls/.csv files are supported."
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var userErr *UserError
	if errors.As(err, &userErr) && userErr.User.Code != "" {
		return userErr.User
	}

	var callErr *CallError
	if errors.As(err, &callErr) && !callErr.IsTransport() {
		msg := UserMessage{
			Message: "The import service reported an error",
			Action:  "Please try again or contact support",
			Code:    "API000",
		}
		for _, sm := range serverMessages {
			if errors.Is(err, sm.target) {
				msg = sm.msg
				break
			}
		}
		if callErr.Detail != "" {
			msg.Message = msg.Message + ": " + callErr.Detail
		}
		return msg
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.target) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the generic ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while Error() stays readable.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error.
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
