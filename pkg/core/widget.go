package core

import (
	"reflect"

	"github.com/google/uuid"

	"github.com/go-flui/flui/pkg/layout"
)

// Widget is an immutable description of part of the UI. Widgets are
// lightweight configuration values produced fresh on every build and
// discarded once reconciliation has consumed them.
type Widget interface {
	// CreateElement instantiates the element that will host this widget.
	CreateElement() Element
	// Key returns the identity hint used to match elements across
	// reordering, or nil for keyless widgets.
	Key() any
}

// StatelessWidget describes UI purely as a function of its configuration.
type StatelessWidget interface {
	Widget
	Build(ctx BuildContext) Widget
}

// StatefulWidget owns a State object that persists across rebuilds.
type StatefulWidget interface {
	Widget
	CreateState() State
}

// InheritedWidget provides a value to descendant widgets and notifies
// dependents when the value changes.
type InheritedWidget interface {
	Widget
	// ChildWidget returns the subtree below this provider.
	ChildWidget() Widget
	// UpdateShouldNotify reports whether dependents must be rebuilt after
	// the widget was replaced by a new configuration.
	UpdateShouldNotify(old InheritedWidget) bool
}

// RenderWidget creates and configures a render node directly.
//
// Child arity is expressed through optional accessors: a leaf implements
// neither, a single-child widget implements ChildWidget() Widget, and a
// multi-child widget implements ChildWidgets() []Widget.
type RenderWidget interface {
	Widget
	CreateRenderNode(ctx BuildContext) layout.RenderNode
	UpdateRenderNode(ctx BuildContext, node layout.RenderNode)
}

// BuildContext is handed to build methods so they can inspect their location
// in the tree. Elements implement it.
type BuildContext interface {
	// Widget returns the widget currently hosted at this location.
	Widget() Widget
	// FindAncestor walks up the tree and returns the first ancestor
	// matching the predicate, or nil.
	FindAncestor(predicate func(Element) bool) Element
	// DependOnInherited registers this location as depending on the nearest
	// inherited widget of the given type and returns it, or nil if absent.
	DependOnInherited(inheritedType reflect.Type) any
}

// GlobalKey identifies an element across the whole tree rather than within
// one parent's child list. A live element holding a global key can be found
// again by a new parent within the same frame, which is how reparenting
// works. Keys are comparable values; create them with NewGlobalKey.
type GlobalKey struct {
	id string
}

// NewGlobalKey returns a fresh, process-unique global key.
func NewGlobalKey() GlobalKey {
	return GlobalKey{id: uuid.NewString()}
}

func (k GlobalKey) String() string {
	return "GlobalKey(" + k.id + ")"
}

// StatelessBase provides default CreateElement and Key implementations for
// stateless widgets. Embed it in your widget struct to satisfy the Widget
// interface without boilerplate:
//
//	type Greeting struct {
//	    core.StatelessBase
//	    Name string
//	}
//
//	func (g Greeting) Build(ctx core.BuildContext) core.Widget { ... }
type StatelessBase struct{}

// CreateElement returns a new StatelessElement.
func (StatelessBase) CreateElement() Element { return NewStatelessElement() }

// Key returns nil (no key).
func (StatelessBase) Key() any { return nil }

// StatefulBase provides default CreateElement and Key implementations for
// stateful widgets.
type StatefulBase struct{}

// CreateElement returns a new StatefulElement.
func (StatefulBase) CreateElement() Element { return NewStatefulElement() }

// Key returns nil (no key).
func (StatefulBase) Key() any { return nil }

// InheritedBase provides default CreateElement and Key implementations for
// inherited widgets. Embed it along with a Child field and implement
// [InheritedWidget.ChildWidget] and [InheritedWidget.UpdateShouldNotify].
type InheritedBase struct{}

// CreateElement returns a new InheritedElement.
func (InheritedBase) CreateElement() Element { return NewInheritedElement() }

// Key returns nil (no key).
func (InheritedBase) Key() any { return nil }

// RenderBase provides default CreateElement and Key implementations for
// render widgets.
type RenderBase struct{}

// CreateElement returns a new RenderElement.
func (RenderBase) CreateElement() Element { return NewRenderElement() }

// Key returns nil (no key).
func (RenderBase) Key() any { return nil }

// Widgets that need a key define their own Key method, shadowing the
// embedded base:
//
//	type Row struct {
//	    core.StatelessBase
//	    RowKey any
//	}
//
//	func (r Row) Key() any { return r.RowKey }
