// Package errors provides structured error handling for the flui framework.
package errors

import (
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindLifecycle indicates a lifecycle operation on an element in the
	// wrong state, such as mounting a defunct element.
	KindLifecycle
	// KindKey indicates a global key registry violation.
	KindKey
	// KindScope indicates structural tree mutation outside a build scope.
	KindScope
	// KindBuild indicates a widget build failure.
	KindBuild
	// KindPanic indicates a recovered panic.
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindLifecycle:
		return "lifecycle"
	case KindKey:
		return "key"
	case KindScope:
		return "scope"
	case KindBuild:
		return "build"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// FrameworkError represents a structured error in the flui framework.
type FrameworkError struct {
	// Op is the operation that failed (e.g., "core.BuildOwner.ScheduleBuildFor").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *FrameworkError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *FrameworkError) Unwrap() error {
	return e.Err
}

// LifecycleError reports a lifecycle operation applied to an element whose
// state does not permit it. These are caller bugs: the framework panics with
// a LifecycleError at the point of violation.
type LifecycleError struct {
	// Element is the type name of the offending element.
	Element string
	// State is the element's lifecycle state at the time of the call.
	State string
	// Op is the lifecycle operation that was attempted.
	Op string
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s called on %s element in state %s", e.Op, e.Element, e.State)
}

// KeyConflictError reports an attempt to bind a global key to a second live
// element. The framework panics with a KeyConflictError at the registration
// site.
type KeyConflictError struct {
	// Key is a printable form of the conflicting key.
	Key string
	// Existing is the identity already bound to the key.
	Existing uint64
	// Incoming is the identity that attempted to bind.
	Incoming uint64
}

func (e *KeyConflictError) Error() string {
	return fmt.Sprintf("global key %s is already bound to element %d, cannot bind to %d",
		e.Key, e.Existing, e.Incoming)
}

// ScopeError reports structural tree mutation attempted outside an active
// build scope, or build scheduling while state is locked.
type ScopeError struct {
	// Op is the operation that was attempted.
	Op string
	// Locked is true when the violation was scheduling during a state lock
	// rather than mutation outside a build scope.
	Locked bool
}

func (e *ScopeError) Error() string {
	if e.Locked {
		return fmt.Sprintf("%s attempted while build scheduling is locked", e.Op)
	}
	return fmt.Sprintf("%s attempted outside an active build scope", e.Op)
}

// BuildError represents a failure during widget build.
type BuildError struct {
	// Widget is the type name of the widget that failed.
	Widget string
	// Element is the element type hosting the widget.
	Element string
	// Recovered is the panic value (nil for regular errors).
	Recovered any
	// Err is the underlying error (nil for panics).
	Err error
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *BuildError) Error() string {
	if e.Recovered != nil {
		return fmt.Sprintf("panic in %s.Build(): %v", e.Widget, e.Recovered)
	}
	if e.Err != nil {
		return fmt.Sprintf("error in %s.Build(): %v", e.Widget, e.Err)
	}
	return fmt.Sprintf("unknown error in %s.Build()", e.Widget)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked.
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// ErrorHandler receives errors reported by the flui framework.
type ErrorHandler interface {
	// HandleError is called when a framework error occurs.
	HandleError(err *FrameworkError)
	// HandleBuildError is called when a widget build fails.
	HandleBuildError(err *BuildError)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
}
