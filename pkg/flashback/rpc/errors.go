package rpc

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error is a remote call failure surfaced to callers. Message is the
// backend's text, unmodified.
type Error struct {
	Command string
	Message string
	Code    codes.Code

	// Retried is set when the alternate-convention retry failed as well.
	// Message and Code stay those of the first call; RetryMessage holds
	// what the retry reported.
	Retried      bool
	RetryMessage string

	err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

func (e *Error) Unwrap() error { return e.err }

// GRPCStatus lets status.Code and status.Convert see through the wrapper.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Message)
}

func newError(command string, err error) *Error {
	return &Error{
		Command: command,
		Message: Message(err),
		Code:    Code(err),
		err:     err,
	}
}

// Message extracts the backend's message from err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Message
	}
	if st, ok := status.FromError(err); ok {
		return st.Message()
	}
	return err.Error()
}

// Code returns the gRPC code of err, or codes.Unknown.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr.Code
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Unknown
}

var mismatchPattern = regexp.MustCompile(
	`(?i)(missing\s+(required\s+)?(key|param(eter)?|arg(ument)?|field)s?|invalid\s+(args|arguments|params|parameters)|unknown\s+(param(eter)?|field|arg(ument)?))`)

// IsParameterMismatch reports whether err is the backend rejecting argument
// names, and the message names one of keys. A mismatch that names none of
// the keys the caller sent or could have sent is treated as a real error.
func IsParameterMismatch(err error, keys ...string) bool {
	if err == nil {
		return false
	}
	msg := Message(err)
	if !mismatchPattern.MatchString(msg) {
		return false
	}
	for _, key := range keys {
		if key != "" && mentions(msg, key) {
			return true
		}
	}
	return false
}

func mentions(msg, key string) bool {
	re, err := regexp.Compile(`(^|[^A-Za-z0-9_])` + regexp.QuoteMeta(key) + `([^A-Za-z0-9_]|$)`)
	if err != nil {
		return strings.Contains(msg, key)
	}
	return re.MatchString(msg)
}

// IsConflict reports a uniqueness conflict, such as creating a project
// whose name is taken.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if Code(err) == codes.AlreadyExists {
		return true
	}
	msg := strings.ToLower(Message(err))
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "unique constraint")
}

// IsNotFound reports a lookup miss.
func IsNotFound(err error) bool {
	return err != nil && Code(err) == codes.NotFound
}
