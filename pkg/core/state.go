package core

import "sync"

// State holds mutable state for a StatefulWidget across rebuilds.
type State interface {
	// InitState runs once when the hosting element mounts.
	InitState()
	// Build produces the child widget description.
	Build(ctx BuildContext) Widget
	// DidChangeDependencies runs once right after InitState, and again
	// whenever an inherited value this state depends on changes.
	DidChangeDependencies()
	// DidUpdateWidget runs when the hosting element received a new widget
	// configuration that canUpdate accepted.
	DidUpdateWidget(oldWidget StatefulWidget)
	// Dispose releases resources when the element becomes defunct.
	Dispose()
}

// StateLifecycle tracks a State object through its life. It runs parallel to
// the hosting element's lifecycle: Created before InitState, Initialized
// between InitState and the first build, Ready while live, Defunct after
// Dispose.
type StateLifecycle int

const (
	// StateCreated means the State exists but InitState has not run.
	StateCreated StateLifecycle = iota
	// StateInitialized means InitState ran but the first build has not.
	StateInitialized
	// StateReady means the State is live and building.
	StateReady
	// StateDefunct means Dispose ran; the State accepts no further calls.
	StateDefunct
)

func (l StateLifecycle) String() string {
	switch l {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateReady:
		return "ready"
	case StateDefunct:
		return "defunct"
	default:
		return "invalid"
	}
}

// stateBase is satisfied by any struct that embeds StateBase.
// Managed values and hooks accept stateBase so callers can pass s directly.
type stateBase interface {
	state() *StateBase
}

func (s *StateBase) state() *StateBase { return s }

// StateBase provides common functionality for stateful widget states.
// Embed this struct in your state to eliminate boilerplate:
//
//	type counterState struct {
//	    core.StateBase
//	    count int
//	}
type StateBase struct {
	element   *StatefulElement
	lifecycle StateLifecycle
	disposers []func()
	disposed  bool
	mu        sync.Mutex
}

// setElement stores the element reference for triggering rebuilds.
// Called by the framework during mount.
func (s *StateBase) setElement(element *StatefulElement) {
	s.element = element
}

// Element returns the element associated with this state.
// Returns nil if the state has not been mounted.
func (s *StateBase) Element() *StatefulElement {
	return s.element
}

// Lifecycle returns the state lifecycle phase.
func (s *StateBase) Lifecycle() StateLifecycle {
	return s.lifecycle
}

// Mounted is true exactly while the lifecycle is Initialized or Ready.
// Deferred and asynchronous callbacks should check it before mutating state
// that may have been disposed.
func (s *StateBase) Mounted() bool {
	return s.lifecycle == StateInitialized || s.lifecycle == StateReady
}

// SetState executes the given function and schedules a rebuild.
// Safe to call after disposal (becomes a no-op). While build scheduling is
// locked the rebuild request is dropped with a diagnostic.
//
// SetState is NOT thread-safe; it must only be called from the frame's
// writer pass or its dispatch queue.
func (s *StateBase) SetState(fn func()) {
	if s.disposed {
		return
	}
	if fn != nil {
		fn()
	}
	if s.element != nil {
		s.element.MarkNeedsBuild()
	}
}

// OnDispose registers a cleanup function to be called when the state is
// disposed. Returns an unregister function. The cleanup runs at most once.
func (s *StateBase) OnDispose(cleanup func()) func() {
	if cleanup == nil {
		return func() {}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		// Already disposed, run cleanup immediately
		cleanup()
		return func() {}
	}

	index := len(s.disposers)
	s.disposers = append(s.disposers, cleanup)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if index < len(s.disposers) {
			s.disposers[index] = nil
		}
	}
}

// RunDisposers executes all registered disposers in reverse order.
// Called automatically by Dispose.
func (s *StateBase) RunDisposers() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.disposed = true
	s.lifecycle = StateDefunct

	// LIFO, mirroring registration order
	for i := len(s.disposers) - 1; i >= 0; i-- {
		if s.disposers[i] != nil {
			s.disposers[i]()
		}
	}
	s.disposers = nil
}

// Dispose cleans up resources. Override if you need custom cleanup, but
// always call s.RunDisposers() or s.StateBase.Dispose() in your override.
func (s *StateBase) Dispose() {
	s.RunDisposers()
}

// InitState is a no-op default implementation.
func (s *StateBase) InitState() {}

// Build is a no-op default implementation that returns nil.
func (s *StateBase) Build(ctx BuildContext) Widget {
	return nil
}

// DidChangeDependencies is a no-op default implementation.
func (s *StateBase) DidChangeDependencies() {}

// DidUpdateWidget is a no-op default implementation.
func (s *StateBase) DidUpdateWidget(oldWidget StatefulWidget) {}

// IsDisposed returns true if this state has been disposed.
func (s *StateBase) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
