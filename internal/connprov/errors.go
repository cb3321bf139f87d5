package connprov

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Code classifies a provider failure.
type Code int

const (
	CodeOK Code = iota
	CodeInvalidParm
	CodeInvalidObject
	CodeInvalidAPILevel
	CodeInvalidValue
	CodeBaseOSError
	CodeCommunicationError
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "Ok"
	case CodeInvalidParm:
		return "InvalidParm"
	case CodeInvalidObject:
		return "InvalidObject"
	case CodeInvalidAPILevel:
		return "InvalidAPILevel"
	case CodeInvalidValue:
		return "InvalidValue"
	case CodeBaseOSError:
		return "BaseOSError"
	case CodeCommunicationError:
		return "CommunicationError"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error is the coded error returned by every provider and connection operation.
// Op names the failing OS or library call (e.g. "bind()") when there is one.
type Error struct {
	Code    Code
	Op      string
	OSCode  int
	Message string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
		fmt.Fprintf(&b, " osRC=%d", e.OSCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " (%v)", e.Err)
	}
	if e.Hint != "" {
		b.WriteString(". ")
		b.WriteString(e.Hint)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same Code, so callers can test the kind
// with errors.Is(err, connprov.ErrCommunication).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == "" && t.Op == ""
}

// Kind sentinels for errors.Is.
var (
	ErrInvalidParm     = &Error{Code: CodeInvalidParm}
	ErrInvalidObject   = &Error{Code: CodeInvalidObject}
	ErrInvalidAPILevel = &Error{Code: CodeInvalidAPILevel}
	ErrInvalidValue    = &Error{Code: CodeInvalidValue}
	ErrBaseOS          = &Error{Code: CodeBaseOSError}
	ErrCommunication   = &Error{Code: CodeCommunicationError}
)

// Causes wrapped inside CommunicationError values.
var (
	ErrPeerClosed       = errors.New("connprov: other side closed socket")
	ErrTimeout          = errors.New("connprov: timed out")
	ErrHandshake        = errors.New("connprov: tls handshake failed")
	ErrNoPeerCert       = errors.New("connprov: peer presented no certificate")
	ErrConnectRefused   = errors.New("connprov: connection refused")
	ErrResolve          = errors.New("connprov: name resolution failed")
	ErrDispatchRejected = errors.New("connprov: dispatch rejected")
)

// CodeOf returns the Code carried by err, CodeOK for nil and
// CodeCommunicationError for foreign errors.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeCommunicationError
}

// OSCodeOf extracts the errno from err, or 0.
func OSCodeOf(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}

func InvalidObject(format string, args ...any) error {
	return &Error{Code: CodeInvalidObject, Message: fmt.Sprintf(format, args...)}
}

func InvalidParm(format string, args ...any) error {
	return &Error{Code: CodeInvalidParm, Message: fmt.Sprintf(format, args...)}
}

func InvalidValue(format string, args ...any) error {
	return &Error{Code: CodeInvalidValue, Message: fmt.Sprintf(format, args...)}
}

// OSError wraps a failed system call. op is the call name, e.g. "bind()".
func OSError(msg, op string, err error) *Error {
	return &Error{
		Code:    CodeBaseOSError,
		Op:      op,
		OSCode:  OSCodeOf(err),
		Message: msg,
		Err:     err,
	}
}

// CommError wraps a communication failure.
func CommError(msg, op string, err error) *Error {
	return &Error{
		Code:    CodeCommunicationError,
		Op:      op,
		OSCode:  OSCodeOf(err),
		Message: msg,
		Err:     err,
	}
}

// WithHint returns e with a remediation hint attached.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

func isInterrupted(err error) bool {
	return errors.Is(err, syscall.EINTR)
}
