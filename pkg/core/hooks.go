package core

// Disposable is anything holding resources that must be released when its
// owning state is disposed.
type Disposable interface {
	Dispose()
}

// UseDisposable creates a resource and registers it for automatic disposal
// when the state is disposed.
//
// Example:
//
//	func (s *myState) InitState() {
//	    s.ticker = core.UseDisposable(s, func() *Ticker {
//	        return NewTicker(16 * time.Millisecond)
//	    })
//	}
func UseDisposable[D Disposable](s stateBase, create func() D) D {
	base := s.state()
	resource := create()
	base.OnDispose(func() {
		resource.Dispose()
	})
	return resource
}

// Managed holds a value and triggers rebuilds when it changes.
//
// Managed is NOT thread-safe. It must only be accessed from the frame's
// writer pass; background goroutines hand updates to the embedder's dispatch
// queue first.
//
// Example:
//
//	type counterState struct {
//	    core.StateBase
//	    count *core.Managed[int]
//	}
//
//	func (s *counterState) InitState() {
//	    s.count = core.NewManaged(s, 0)
//	}
type Managed[T any] struct {
	base  *StateBase
	value T
}

// NewManaged creates a managed state value. Changes to it automatically
// trigger a rebuild of the owning widget.
func NewManaged[T any](s stateBase, initial T) *Managed[T] {
	return &Managed[T]{
		base:  s.state(),
		value: initial,
	}
}

// Value returns the current value.
func (m *Managed[T]) Value() T {
	return m.value
}

// Set updates the value and triggers a rebuild.
func (m *Managed[T]) Set(value T) {
	m.value = value
	m.base.SetState(nil)
}

// Update applies a transformation to the current value and triggers a rebuild.
func (m *Managed[T]) Update(transform func(T) T) {
	m.value = transform(m.value)
	m.base.SetState(nil)
}
