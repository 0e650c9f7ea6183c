package core

import (
	"reflect"
	"time"

	"github.com/go-flui/flui/pkg/errors"
	"github.com/go-flui/flui/pkg/layout"
)

// ElementID identifies an element within its tree. Identities are assigned at
// mount and never reused for the life of the process.
type ElementID uint64

// Lifecycle tracks an element through its life.
//
// Initial elements have been created but not mounted. Active elements are in
// the tree and may build. Inactive elements have been detached from their
// parent but may be reclaimed by a global key within the same frame. Defunct
// elements are permanently gone; any further lifecycle call panics.
type Lifecycle int

const (
	// LifecycleInitial means the element exists but Mount has not run.
	LifecycleInitial Lifecycle = iota
	// LifecycleActive means the element is mounted in the tree.
	LifecycleActive
	// LifecycleInactive means the element was removed from its parent and is
	// parked in the inactive pool, awaiting reactivation or final disposal.
	LifecycleInactive
	// LifecycleDefunct means Unmount ran; the element is unusable.
	LifecycleDefunct
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleInitial:
		return "initial"
	case LifecycleActive:
		return "active"
	case LifecycleInactive:
		return "inactive"
	case LifecycleDefunct:
		return "defunct"
	default:
		return "invalid"
	}
}

// Slot describes an element's position within its parent's child list: the
// list index plus the identity of the preceding sibling (0 for the first
// child). Render parents use the previous-sibling link to keep their child
// order stable across keyed moves.
type Slot struct {
	Index    int
	Previous ElementID
}

// Element is a mutable node in the retained tree, hosting one widget
// configuration at one location.
type Element interface {
	BuildContext

	ID() ElementID
	Depth() int
	Slot() Slot
	Lifecycle() Lifecycle

	// Mount attaches a freshly created element below parent at slot.
	Mount(parent Element, slot Slot)
	// Update replaces the hosted widget with a compatible new configuration
	// and rebuilds synchronously.
	Update(newWidget Widget)
	// Deactivate detaches the element (and its subtree) from the tree without
	// destroying it, so a global key may reclaim it this frame.
	Deactivate()
	// Activate reattaches a deactivated element below a new parent.
	Activate(parent Element, slot Slot)
	// Unmount permanently destroys the element and its subtree.
	Unmount()
	// UpdateSlot records a new position within the parent's child list.
	UpdateSlot(slot Slot)

	MarkNeedsBuild()
	RebuildIfNeeded()
	VisitChildren(visitor func(Element) bool)
}

type elementBase struct {
	id         ElementID
	widget     Widget
	parent     Element
	depth      int
	slot       Slot
	buildOwner *BuildOwner
	lifecycle  Lifecycle
	dirty      bool
	self       Element

	dependencies    map[*InheritedElement]bool
	hadDependencies bool
	depsChanged     bool
}

func (e *elementBase) ID() ElementID {
	return e.id
}

func (e *elementBase) Widget() Widget {
	return e.widget
}

func (e *elementBase) Depth() int {
	return e.depth
}

func (e *elementBase) Slot() Slot {
	return e.slot
}

func (e *elementBase) UpdateSlot(slot Slot) {
	e.slot = slot
}

func (e *elementBase) Lifecycle() Lifecycle {
	return e.lifecycle
}

func (e *elementBase) MarkNeedsBuild() {
	if e.lifecycle == LifecycleDefunct {
		panic(&errors.LifecycleError{
			Element: reflect.TypeOf(e.self).String(),
			State:   e.lifecycle.String(),
			Op:      "MarkNeedsBuild",
		})
	}
	if e.dirty {
		return
	}
	if e.lifecycle == LifecycleActive && e.buildOwner != nil && e.self != nil {
		if !e.buildOwner.ScheduleBuildFor(e.self) {
			// Dropped while scheduling was locked; stay clean so a later
			// request can try again.
			return
		}
	}
	e.dirty = true
}

func (e *elementBase) IsDirty() bool {
	return e.dirty
}

func (e *elementBase) parentElement() Element {
	return e.parent
}

func (e *elementBase) setSelf(self Element) {
	e.self = self
}

func (e *elementBase) setWidget(widget Widget) {
	e.widget = widget
}

func (e *elementBase) setBuildOwner(owner *BuildOwner) {
	e.buildOwner = owner
}

// Owner returns the build owner managing this element, or nil before mount.
func (e *elementBase) Owner() *BuildOwner {
	return e.buildOwner
}

// assertBuildScope panics with a ScopeError when a structural mutation is
// attempted outside an active build scope. Checked only in debug mode;
// elements without an owner cannot be checked.
func (e *elementBase) assertBuildScope(op string) {
	if !DebugMode || e.buildOwner == nil {
		return
	}
	if !e.buildOwner.InBuildScope() {
		panic(&errors.ScopeError{Op: op})
	}
}

// mountBase performs the bookkeeping shared by every element kind's Mount:
// lifecycle check, parent wiring, identity assignment, and global key
// registration.
func (e *elementBase) mountBase(parent Element, slot Slot) {
	if e.lifecycle != LifecycleInitial {
		panic(&errors.LifecycleError{
			Element: reflect.TypeOf(e.self).String(),
			State:   e.lifecycle.String(),
			Op:      "Mount",
		})
	}
	e.parent = parent
	e.slot = slot
	if parent != nil {
		e.depth = parent.Depth() + 1
	}
	if e.buildOwner == nil && parent != nil {
		if owned, ok := parent.(interface{ Owner() *BuildOwner }); ok {
			e.buildOwner = owned.Owner()
		}
	}
	if e.buildOwner != nil {
		e.id = e.buildOwner.tree.Register(e.self)
	}
	e.lifecycle = LifecycleActive
	if key, ok := e.widget.Key().(GlobalKey); ok && e.buildOwner != nil {
		e.buildOwner.RegisterGlobalKey(key, e.self)
	}
}

// deactivateBase detaches this element from its parent. The subtree stays
// wired below it so reactivation can restore everything in one pass.
func (e *elementBase) deactivateBase() {
	e.assertBuildScope("Deactivate")
	if e.lifecycle != LifecycleActive {
		panic(&errors.LifecycleError{
			Element: reflect.TypeOf(e.self).String(),
			State:   e.lifecycle.String(),
			Op:      "Deactivate",
		})
	}
	e.clearDependencies()
	// The parent pointer survives deactivation so a global-key reclaim can
	// detach this element from its abandoned subtree.
	e.lifecycle = LifecycleInactive
	e.self.VisitChildren(func(child Element) bool {
		child.Deactivate()
		return true
	})
}

// activateBase reattaches a deactivated element below a new parent.
// Inherited dependencies were severed at deactivation, so the next build
// re-registers them; states that had dependencies get a fresh
// DidChangeDependencies before that build.
func (e *elementBase) activateBase(parent Element, slot Slot) {
	e.assertBuildScope("Activate")
	if e.lifecycle != LifecycleInactive {
		panic(&errors.LifecycleError{
			Element: reflect.TypeOf(e.self).String(),
			State:   e.lifecycle.String(),
			Op:      "Activate",
		})
	}
	e.parent = parent
	e.slot = slot
	if parent != nil {
		e.depth = parent.Depth() + 1
	} else {
		e.depth = 0
	}
	e.lifecycle = LifecycleActive
	if e.hadDependencies {
		e.depsChanged = true
	}
	e.self.VisitChildren(func(child Element) bool {
		child.Activate(e.self, child.Slot())
		return true
	})
	e.dirty = false
	e.self.MarkNeedsBuild()
}

// unmountBase performs the bookkeeping shared by every element kind's
// Unmount. Concrete kinds unmount their children before calling it.
func (e *elementBase) unmountBase() {
	e.assertBuildScope("Unmount")
	if e.lifecycle == LifecycleDefunct {
		panic(&errors.LifecycleError{
			Element: reflect.TypeOf(e.self).String(),
			State:   e.lifecycle.String(),
			Op:      "Unmount",
		})
	}
	e.clearDependencies()
	if key, ok := e.widget.Key().(GlobalKey); ok && e.buildOwner != nil {
		e.buildOwner.UnregisterGlobalKey(key, e.self)
	}
	if e.buildOwner != nil {
		e.buildOwner.tree.Remove(e.id)
	}
	e.parent = nil
	e.lifecycle = LifecycleDefunct
}

func (e *elementBase) clearDependencies() {
	if len(e.dependencies) > 0 {
		e.hadDependencies = true
	}
	for provider := range e.dependencies {
		provider.removeDependent(e.self)
	}
	e.dependencies = nil
}

// markDependenciesChanged is called by a provider when its value changed in a
// way that UpdateShouldNotify accepted.
func (e *elementBase) markDependenciesChanged() {
	e.depsChanged = true
	e.self.MarkNeedsBuild()
}

// consumeDepsChanged reports and clears the pending dependency-change flag.
func (e *elementBase) consumeDepsChanged() bool {
	changed := e.depsChanged
	e.depsChanged = false
	return changed
}

func (e *elementBase) FindAncestor(predicate func(Element) bool) Element {
	current := e.parent
	for current != nil {
		if predicate(current) {
			return current
		}
		if base, ok := current.(interface{ parentElement() Element }); ok {
			current = base.parentElement()
		} else {
			break
		}
	}
	return nil
}

// findRenderParent walks up the element tree to the nearest RenderElement.
func (e *elementBase) findRenderParent() *RenderElement {
	current := e.parent
	for current != nil {
		if render, ok := current.(*RenderElement); ok {
			return render
		}
		if base, ok := current.(interface{ parentElement() Element }); ok {
			current = base.parentElement()
		} else {
			break
		}
	}
	return nil
}

// safeBuild executes a build function with panic recovery. A panicking build
// is reported to the global error handler and replaced by the configured
// fallback widget, so one bad subtree cannot take down the frame.
func (e *elementBase) safeBuild(buildFn func() Widget) Widget {
	var built Widget
	var buildErr *errors.BuildError

	func() {
		defer func() {
			if r := recover(); r != nil {
				buildErr = &errors.BuildError{
					Widget:     reflect.TypeOf(e.widget).String(),
					Element:    reflect.TypeOf(e.self).String(),
					Recovered:  r,
					StackTrace: errors.CaptureStack(),
					Timestamp:  time.Now(),
				}
			}
		}()
		built = buildFn()
	}()

	if buildErr != nil {
		errors.ReportBuildError(buildErr)
		if builder := GetErrorWidgetBuilder(); builder != nil {
			if errWidget := builder(buildErr); errWidget != nil {
				return errWidget
			}
		}
		return nil
	}
	return built
}

// StatelessElement hosts a StatelessWidget.
type StatelessElement struct {
	elementBase
	child Element
}

func NewStatelessElement() *StatelessElement {
	element := &StatelessElement{}
	element.setSelf(element)
	return element
}

func (e *StatelessElement) Mount(parent Element, slot Slot) {
	e.mountBase(parent, slot)
	e.dirty = true
	e.RebuildIfNeeded()
}

func (e *StatelessElement) Update(newWidget Widget) {
	e.assertBuildScope("Update")
	e.widget = newWidget
	e.dirty = true
	e.RebuildIfNeeded()
}

func (e *StatelessElement) Deactivate() {
	e.deactivateBase()
}

func (e *StatelessElement) Activate(parent Element, slot Slot) {
	e.activateBase(parent, slot)
}

func (e *StatelessElement) Unmount() {
	if e.child != nil {
		e.child.Unmount()
		e.child = nil
	}
	e.unmountBase()
}

func (e *StatelessElement) RebuildIfNeeded() {
	if !e.dirty || e.lifecycle != LifecycleActive {
		return
	}
	e.dirty = false
	e.consumeDepsChanged()
	widget := e.widget.(StatelessWidget)
	built := e.safeBuild(func() Widget {
		return widget.Build(e)
	})
	e.child = e.updateChild(e.child, built, Slot{})
}

func (e *StatelessElement) VisitChildren(visitor func(Element) bool) {
	if e.child != nil {
		visitor(e.child)
	}
}

func (e *StatelessElement) forgetChild(child Element) {
	if e.child == child {
		e.child = nil
	}
}

// RenderNode returns the render node from the nearest render descendant.
func (e *StatelessElement) RenderNode() layout.RenderNode {
	if e.child == nil {
		return nil
	}
	if child, ok := e.child.(interface{ RenderNode() layout.RenderNode }); ok {
		return child.RenderNode()
	}
	return nil
}

func (e *StatelessElement) DependOnInherited(inheritedType reflect.Type) any {
	return dependOnInheritedImpl(&e.elementBase, inheritedType)
}

// StatefulElement hosts a StatefulWidget and its State.
type StatefulElement struct {
	elementBase
	child Element
	state State
}

func NewStatefulElement() *StatefulElement {
	element := &StatefulElement{}
	element.setSelf(element)
	return element
}

// State returns the state object hosted by this element.
func (e *StatefulElement) State() State {
	return e.state
}

func (e *StatefulElement) Mount(parent Element, slot Slot) {
	e.mountBase(parent, slot)

	widget := e.widget.(StatefulWidget)
	e.state = widget.CreateState()
	if base := stateOf(e.state); base != nil {
		base.setElement(e)
	}
	e.state.InitState()
	if base := stateOf(e.state); base != nil {
		base.lifecycle = StateInitialized
	}
	e.state.DidChangeDependencies()

	e.dirty = true
	e.RebuildIfNeeded()

	if base := stateOf(e.state); base != nil {
		base.lifecycle = StateReady
	}
}

func (e *StatefulElement) Update(newWidget Widget) {
	e.assertBuildScope("Update")
	oldWidget := e.widget.(StatefulWidget)
	e.widget = newWidget
	e.state.DidUpdateWidget(oldWidget)
	e.dirty = true
	e.RebuildIfNeeded()
}

func (e *StatefulElement) Deactivate() {
	e.deactivateBase()
}

func (e *StatefulElement) Activate(parent Element, slot Slot) {
	e.activateBase(parent, slot)
}

func (e *StatefulElement) Unmount() {
	if e.child != nil {
		e.child.Unmount()
		e.child = nil
	}
	if e.state != nil {
		e.state.Dispose()
		if base := stateOf(e.state); base != nil {
			base.lifecycle = StateDefunct
		}
	}
	e.unmountBase()
}

func (e *StatefulElement) RebuildIfNeeded() {
	if !e.dirty || e.lifecycle != LifecycleActive {
		return
	}
	e.dirty = false
	if e.consumeDepsChanged() {
		e.state.DidChangeDependencies()
	}
	built := e.safeBuild(func() Widget {
		return e.state.Build(e)
	})
	e.child = e.updateChild(e.child, built, Slot{})
}

func (e *StatefulElement) VisitChildren(visitor func(Element) bool) {
	if e.child != nil {
		visitor(e.child)
	}
}

func (e *StatefulElement) forgetChild(child Element) {
	if e.child == child {
		e.child = nil
	}
}

// RenderNode returns the render node from the nearest render descendant.
func (e *StatefulElement) RenderNode() layout.RenderNode {
	if e.child == nil {
		return nil
	}
	if child, ok := e.child.(interface{ RenderNode() layout.RenderNode }); ok {
		return child.RenderNode()
	}
	return nil
}

func (e *StatefulElement) DependOnInherited(inheritedType reflect.Type) any {
	return dependOnInheritedImpl(&e.elementBase, inheritedType)
}

// stateOf extracts the embedded StateBase from a State, or nil when the
// implementation does not embed it.
func stateOf(s State) *StateBase {
	if base, ok := s.(stateBase); ok {
		return base.state()
	}
	return nil
}

// RenderElement hosts a RenderWidget, owning a render node and the child
// elements described by the widget's ChildWidget/ChildWidgets accessors.
type RenderElement struct {
	elementBase
	node         layout.RenderNode
	children     []Element
	renderParent *RenderElement
}

func NewRenderElement() *RenderElement {
	element := &RenderElement{}
	element.setSelf(element)
	return element
}

func (e *RenderElement) Mount(parent Element, slot Slot) {
	e.mountBase(parent, slot)

	widget := e.widget.(RenderWidget)
	e.node = widget.CreateRenderNode(e)
	if tagged, ok := e.node.(interface{ SetID(uint64) }); ok {
		tagged.SetID(uint64(e.id))
	}
	if e.buildOwner != nil {
		e.node.SetOwner(e.buildOwner.Pipeline())
	}

	// Attach to the render tree before building children so descendants find
	// a connected render parent.
	e.attachRenderNode()

	e.dirty = true
	e.RebuildIfNeeded()
}

func (e *RenderElement) Update(newWidget Widget) {
	e.assertBuildScope("Update")
	e.widget = newWidget
	e.dirty = true
	e.RebuildIfNeeded()
}

func (e *RenderElement) Deactivate() {
	e.detachRenderNode()
	e.deactivateBase()
}

func (e *RenderElement) Activate(parent Element, slot Slot) {
	e.activateBase(parent, slot)
	e.attachRenderNode()
	if e.node != nil {
		e.node.MarkNeedsLayout()
	}
}

func (e *RenderElement) Unmount() {
	for _, child := range e.children {
		child.Unmount()
	}
	e.children = nil
	e.detachRenderNode()
	e.node = nil
	e.unmountBase()
}

func (e *RenderElement) RebuildIfNeeded() {
	if !e.dirty || e.lifecycle != LifecycleActive {
		return
	}
	e.dirty = false
	e.consumeDepsChanged()

	widget := e.widget.(RenderWidget)
	widget.UpdateRenderNode(e, e.node)

	switch typed := e.widget.(type) {
	case interface{ ChildWidget() Widget }:
		childWidget := typed.ChildWidget()
		var child Element
		if len(e.children) > 0 {
			child = e.children[0]
		}
		child = e.updateChild(child, childWidget, Slot{})
		if child != nil {
			e.children = []Element{child}
		} else {
			e.children = nil
		}
		e.rebuildChildrenRenderList()

	case interface{ ChildWidgets() []Widget }:
		e.children = e.updateChildren(e.children, typed.ChildWidgets())
		// The render children list is rebuilt once the element list settles;
		// child mounts cannot do it because e.children is not ready then.
		e.rebuildChildrenRenderList()
	}
}

func (e *RenderElement) VisitChildren(visitor func(Element) bool) {
	for _, child := range e.children {
		if !visitor(child) {
			return
		}
	}
}

func (e *RenderElement) forgetChild(child Element) {
	for i, existing := range e.children {
		if existing == child {
			e.children = append(e.children[:i], e.children[i+1:]...)
			return
		}
	}
}

func (e *RenderElement) DependOnInherited(inheritedType reflect.Type) any {
	return dependOnInheritedImpl(&e.elementBase, inheritedType)
}

// RenderNode exposes the backing render node for the element.
func (e *RenderElement) RenderNode() layout.RenderNode {
	return e.node
}

// attachRenderNode attaches this element's render node to the render tree.
func (e *RenderElement) attachRenderNode() {
	e.renderParent = e.findRenderParent()
	if e.renderParent != nil {
		e.renderParent.insertRenderChild(e.node)
	}
}

// detachRenderNode removes this element's render node from the render tree.
func (e *RenderElement) detachRenderNode() {
	if e.renderParent != nil {
		e.renderParent.removeRenderChild(e.node)
		e.renderParent = nil
	}
}

// insertRenderChild adds a child render node below this element's node.
func (e *RenderElement) insertRenderChild(child layout.RenderNode) {
	if child == nil || e.node == nil {
		return
	}
	layout.SetParentOnChild(child, e.node)
	if single, ok := e.node.(interface{ SetChild(layout.RenderNode) }); ok {
		single.SetChild(child)
		return
	}
	// Multi-child nodes get their list rebuilt by RebuildIfNeeded once all
	// children are mounted.
}

// removeRenderChild removes a child render node.
func (e *RenderElement) removeRenderChild(child layout.RenderNode) {
	if child == nil || e.node == nil {
		return
	}
	layout.SetParentOnChild(child, nil)
	if single, ok := e.node.(interface{ SetChild(layout.RenderNode) }); ok {
		single.SetChild(nil)
		return
	}
	e.rebuildChildrenRenderList()
}

// rebuildChildrenRenderList rebuilds the render node children from the
// element children, preserving element order.
func (e *RenderElement) rebuildChildrenRenderList() {
	multi, ok := e.node.(interface{ SetChildren([]layout.RenderNode) })
	if !ok {
		return
	}
	nodes := make([]layout.RenderNode, 0, len(e.children))
	for _, child := range e.children {
		if provider, ok := child.(interface{ RenderNode() layout.RenderNode }); ok {
			if node := provider.RenderNode(); node != nil {
				nodes = append(nodes, node)
			}
		}
	}
	multi.SetChildren(nodes)
}
