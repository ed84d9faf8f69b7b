package runner

import (
	"fmt"
)

// Code classifies an administration failure.
type Code int

// Failure codes. Every error a runner, the selector, the engine, or the
// verifier returns is an *Error carrying one of these.
const (
	CodeGeneric Code = iota
	CodeUnsupportedVersion
	CodeUnknownVersion
	CodeUnknownAdminInterface
	CodeRunnerInit
	CodeHTTPResponseIO
	CodeHTTPResponseEncoding
	CodeConnectionFailed
	CodeIllegalCommandInstance
	CodeIllegalNullValue
	CodeInvalidBooleanConstant
	CodeInvalidComponentItem
	CodeTimeout
	CodeCancelled
	CodeNoJavaVM
	CodeJavaVMExecFailed
	CodeIllegalState
	CodeServerBusy
	CodeAuthFailed
	CodeCommandFailed
)

var codeNames = map[Code]string{
	CodeGeneric:                "command failed",
	CodeUnsupportedVersion:     "unsupported server version",
	CodeUnknownVersion:         "unknown server version",
	CodeUnknownAdminInterface:  "unknown administration interface",
	CodeRunnerInit:             "runner initialization failed",
	CodeHTTPResponseIO:         "failed to read HTTP response",
	CodeHTTPResponseEncoding:   "invalid HTTP response encoding",
	CodeConnectionFailed:       "connection failed",
	CodeIllegalCommandInstance: "illegal command instance",
	CodeIllegalNullValue:       "illegal null value",
	CodeInvalidBooleanConstant: "invalid boolean constant",
	CodeInvalidComponentItem:   "invalid component item",
	CodeTimeout:                "command timed out",
	CodeCancelled:              "command cancelled",
	CodeNoJavaVM:               "no Java VM found",
	CodeJavaVMExecFailed:       "failed to execute Java VM",
	CodeIllegalState:           "illegal state",
	CodeServerBusy:             "server is busy",
	CodeAuthFailed:             "authentication failed",
	CodeCommandFailed:          "server reported failure",
}

// templates holds the parameterized message for each code.
var templates = map[Code]string{
	CodeUnsupportedVersion:     "server version %s is not supported, minimum is %s",
	CodeUnknownVersion:         "server version %v is not recognized",
	CodeUnknownAdminInterface:  "administration interface %v is not recognized",
	CodeRunnerInit:             "cannot create %s runner for command %s",
	CodeHTTPResponseIO:         "failed to read response of command %s from %s",
	CodeHTTPResponseEncoding:   "cannot decode response of command %s from %s",
	CodeConnectionFailed:       "cannot connect to %s to run command %s",
	CodeIllegalCommandInstance: "runner %s cannot execute command %s",
	CodeIllegalNullValue:       "parameter %s of command %s must not be empty",
	CodeInvalidBooleanConstant: "parameter %s of command %s has invalid boolean value %q",
	CodeInvalidComponentItem:   "invalid item %q in parameter %s of command %s",
	CodeTimeout:                "command %s on %s timed out after %s",
	CodeCancelled:              "command %s on %s was cancelled",
	CodeNoJavaVM:               "no Java VM found for command %s: %s",
	CodeJavaVMExecFailed:       "failed to start Java VM %s for command %s",
	CodeIllegalState:           "%s",
	CodeServerBusy:             "server %s is not ready to process command %s",
	CodeAuthFailed:             "server %s rejected credentials of user %s",
	CodeCommandFailed:          "command %s on %s failed: %s",
	CodeGeneric:                "%s",
}

// String returns a short name for the code.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// Error is the single failure type of the administration framework.
type Error struct {
	// Code classifies the failure.
	Code Code

	// Msg is the formatted, human-readable message.
	Msg string

	// Cause is the underlying error, if any.
	Cause error
}

// Sentinels for errors.Is matching on the failure code.
var (
	ErrUnsupportedVersion     = &Error{Code: CodeUnsupportedVersion}
	ErrUnknownVersion         = &Error{Code: CodeUnknownVersion}
	ErrUnknownAdminInterface  = &Error{Code: CodeUnknownAdminInterface}
	ErrRunnerInit             = &Error{Code: CodeRunnerInit}
	ErrHTTPResponseIO         = &Error{Code: CodeHTTPResponseIO}
	ErrHTTPResponseEncoding   = &Error{Code: CodeHTTPResponseEncoding}
	ErrConnectionFailed       = &Error{Code: CodeConnectionFailed}
	ErrIllegalCommandInstance = &Error{Code: CodeIllegalCommandInstance}
	ErrIllegalNullValue       = &Error{Code: CodeIllegalNullValue}
	ErrInvalidBooleanConstant = &Error{Code: CodeInvalidBooleanConstant}
	ErrInvalidComponentItem   = &Error{Code: CodeInvalidComponentItem}
	ErrTimeout                = &Error{Code: CodeTimeout}
	ErrCancelled              = &Error{Code: CodeCancelled}
	ErrNoJavaVM               = &Error{Code: CodeNoJavaVM}
	ErrJavaVMExecFailed       = &Error{Code: CodeJavaVMExecFailed}
	ErrIllegalState           = &Error{Code: CodeIllegalState}
	ErrServerBusy             = &Error{Code: CodeServerBusy}
	ErrAuthFailed             = &Error{Code: CodeAuthFailed}
	ErrCommandFailed          = &Error{Code: CodeCommandFailed}
)

// Errorf builds an Error from the code's message template and args.
func Errorf(code Code, cause error, args ...any) *Error {
	tmpl, ok := templates[code]
	if !ok {
		tmpl = "%v"
	}
	return &Error{Code: code, Msg: fmt.Sprintf(tmpl, args...), Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same code. Sentinels carry no message,
// so errors.Is(err, ErrTimeout) matches any timeout.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Msg == "" || t.Msg == e.Msg)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeGeneric.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return CodeGeneric
}

// Wrap converts any error into an *Error, keeping an existing *Error as is.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*Error); ok {
		return err
	}
	return &Error{Code: CodeGeneric, Msg: fmt.Sprintf(format, args...), Cause: err}
}
