package livegrapher

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes engine-level failures per the error taxonomy.
type ErrorCode string

const (
	// CodeStartup covers listener bind/listen failures and self-pipe
	// creation failures. These propagate out of New.
	CodeStartup ErrorCode = "startup"
	// CodeProtocol covers a malformed client frame (bad type, bad
	// length, or truncation after EOF). The reactor closes the client.
	CodeProtocol ErrorCode = "protocol"
	// CodeConnection covers peer-closed and fatal I/O errors on a
	// client socket. The reactor closes and forgets the client.
	CodeConnection ErrorCode = "connection"
	// CodeRegistryFull means the engine already holds 64 distinct
	// dataset names; the offending sample is dropped.
	CodeRegistryFull ErrorCode = "registry_full"
)

// Error is the structured error type returned by engine operations that
// can fail. AddData/AddDataAt never return one, since a publish with no
// subscribers or an unknown dataset isn't a caller-visible failure; it is
// returned from New and surfaced through logs for error classes the
// reactor handles locally.
type Error struct {
	Op    string // operation that failed, e.g. "New", "accept", "decode"
	Code  ErrorCode
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("livegrapher: %s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("livegrapher: %s", e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

func newError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

func wrapError(op string, code ErrorCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is a *Error (at any wrap depth) with the
// given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
