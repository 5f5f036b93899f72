// Package errors defines the error taxonomy shared by the graph store, the
// task service and the requirement gateway.
//
// Every failure surfaced to a caller wraps exactly one kind sentinel, so
// callers classify with errors.Is regardless of how much context was added:
//
//	if errors.Is(err, errors.ErrNotFound) { ... }
//
// Transport layers (HTTP, MCP) map kinds to their own status codes.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-exported so callers can import only this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Kind sentinels.
var (
	// ErrNotFound indicates a referenced task, subtask, dependency or
	// requirement does not exist.
	ErrNotFound = New("not found")
	// ErrInvalidArgument indicates a malformed or out-of-domain field value.
	ErrInvalidArgument = New("invalid argument")
	// ErrCyclicDependency indicates an edge would close a depends_on/blocks cycle.
	ErrCyclicDependency = New("cyclic dependency")
	// ErrSelfDependency indicates an edge whose endpoints are the same task.
	ErrSelfDependency = New("self dependency")
	// ErrDuplicateDependency indicates an identical edge already exists.
	ErrDuplicateDependency = New("duplicate dependency")
	// ErrUpstreamUnavailable indicates the external requirement system is
	// unreachable or returned an error.
	ErrUpstreamUnavailable = New("upstream unavailable")
)

var kinds = []error{
	ErrNotFound,
	ErrInvalidArgument,
	ErrCyclicDependency,
	ErrSelfDependency,
	ErrDuplicateDependency,
	ErrUpstreamUnavailable,
}

// Error carries a kind plus a human readable message.
type Error struct {
	Kind error
	Msg  string
	// Cause is an optional underlying error (e.g. a transport failure).
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Msg != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// NotFound reports a missing resource, e.g. NotFound("task", id).
func NotFound(resource, id string) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf("%s %s", resource, id)}
}

// InvalidArgumentf reports a malformed or out-of-domain value.
func InvalidArgumentf(format string, args ...any) error {
	return &Error{Kind: ErrInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

// Cyclic reports the witness path that the rejected edge would close.
func Cyclic(path []string) error {
	msg := "edge would create a cycle"
	if len(path) > 0 {
		msg = "edge would create cycle " + strings.Join(path, " -> ")
	}
	return &Error{Kind: ErrCyclicDependency, Msg: msg}
}

// SelfDependency reports an edge from a task to itself.
func SelfDependency(taskID string) error {
	return &Error{Kind: ErrSelfDependency, Msg: fmt.Sprintf("task %s cannot depend on itself", taskID)}
}

// DuplicateDependency reports an edge identical to an existing one.
func DuplicateDependency(existingID, source, target, depType string) error {
	return &Error{
		Kind: ErrDuplicateDependency,
		Msg:  fmt.Sprintf("%s %s -> %s already exists as %s", depType, source, target, existingID),
	}
}

// Upstream wraps a failure talking to the external requirement system.
func Upstream(msg string, cause error) error {
	return &Error{Kind: ErrUpstreamUnavailable, Msg: msg, Cause: cause}
}

// KindOf returns the kind sentinel carried by err, or nil if err is not
// part of the taxonomy.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if Is(err, k) {
			return k
		}
	}
	return nil
}
