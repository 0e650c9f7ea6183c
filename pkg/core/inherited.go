package core

import (
	"reflect"
	"sync"

	"github.com/go-flui/flui/pkg/layout"
)

// InheritedElement hosts an InheritedWidget and tracks which descendants
// depend on its value.
//
// A descendant calling [BuildContext.DependOnInherited] registers with the
// nearest provider of the requested type. When the provider's widget is
// replaced and UpdateShouldNotify accepts the change, every registered
// dependent is marked for rebuild and its DidChangeDependencies fires before
// the next build. Registration is bidirectional so a dependent leaving the
// tree severs the link from its side.
type InheritedElement struct {
	elementBase
	child Element

	// dependentsMu guards the dependents map: a provider sits above the
	// disjoint subtrees of a parallel flush, so registration from two workers
	// can land concurrently.
	dependentsMu sync.Mutex
	dependents   map[Element]bool
}

func NewInheritedElement() *InheritedElement {
	element := &InheritedElement{dependents: make(map[Element]bool)}
	element.setSelf(element)
	return element
}

func (e *InheritedElement) Mount(parent Element, slot Slot) {
	e.mountBase(parent, slot)
	e.dirty = true
	e.RebuildIfNeeded()
}

func (e *InheritedElement) Update(newWidget Widget) {
	e.assertBuildScope("Update")
	oldWidget := e.widget.(InheritedWidget)
	e.widget = newWidget

	if newWidget.(InheritedWidget).UpdateShouldNotify(oldWidget) {
		e.notifyDependents()
	}

	e.dirty = true
	e.RebuildIfNeeded()
}

func (e *InheritedElement) Deactivate() {
	e.deactivateBase()
}

func (e *InheritedElement) Activate(parent Element, slot Slot) {
	e.activateBase(parent, slot)
}

func (e *InheritedElement) Unmount() {
	if e.child != nil {
		e.child.Unmount()
		e.child = nil
	}
	e.dependentsMu.Lock()
	e.dependents = nil
	e.dependentsMu.Unlock()
	e.unmountBase()
}

func (e *InheritedElement) RebuildIfNeeded() {
	if !e.dirty || e.lifecycle != LifecycleActive {
		return
	}
	e.dirty = false
	e.consumeDepsChanged()
	inherited := e.widget.(InheritedWidget)
	e.child = e.updateChild(e.child, inherited.ChildWidget(), Slot{})
}

func (e *InheritedElement) VisitChildren(visitor func(Element) bool) {
	if e.child != nil {
		visitor(e.child)
	}
}

func (e *InheritedElement) forgetChild(child Element) {
	if e.child == child {
		e.child = nil
	}
}

// RenderNode returns the render node from the nearest render descendant.
func (e *InheritedElement) RenderNode() layout.RenderNode {
	if e.child == nil {
		return nil
	}
	if child, ok := e.child.(interface{ RenderNode() layout.RenderNode }); ok {
		return child.RenderNode()
	}
	return nil
}

func (e *InheritedElement) DependOnInherited(inheritedType reflect.Type) any {
	return dependOnInheritedImpl(&e.elementBase, inheritedType)
}

// Dependents returns the number of elements currently depending on this
// provider.
func (e *InheritedElement) Dependents() int {
	e.dependentsMu.Lock()
	defer e.dependentsMu.Unlock()
	return len(e.dependents)
}

func (e *InheritedElement) addDependent(dependent Element) {
	e.dependentsMu.Lock()
	defer e.dependentsMu.Unlock()
	if e.dependents == nil {
		e.dependents = make(map[Element]bool)
	}
	e.dependents[dependent] = true
}

func (e *InheritedElement) removeDependent(dependent Element) {
	e.dependentsMu.Lock()
	defer e.dependentsMu.Unlock()
	delete(e.dependents, dependent)
}

func (e *InheritedElement) notifyDependents() {
	e.dependentsMu.Lock()
	dependents := make([]Element, 0, len(e.dependents))
	for dependent := range e.dependents {
		dependents = append(dependents, dependent)
	}
	e.dependentsMu.Unlock()

	for _, dependent := range dependents {
		if base, ok := dependent.(interface{ markDependenciesChanged() }); ok {
			base.markDependenciesChanged()
		} else {
			dependent.MarkNeedsBuild()
		}
	}
}

// dependOnInheritedImpl walks up from the element to the nearest
// InheritedElement hosting a widget of the requested type, registers the
// dependency in both directions, and returns the widget. Returns nil when no
// provider of that type is in scope.
func dependOnInheritedImpl(base *elementBase, inheritedType reflect.Type) any {
	current := base.parent
	for current != nil {
		if inherited, ok := current.(*InheritedElement); ok {
			widgetType := reflect.TypeOf(inherited.widget)
			if widgetType == inheritedType ||
				(widgetType.Kind() == reflect.Pointer && widgetType.Elem() == inheritedType) {
				inherited.addDependent(base.self)
				if base.dependencies == nil {
					base.dependencies = make(map[*InheritedElement]bool)
				}
				base.dependencies[inherited] = true
				return inherited.widget
			}
		}
		if walker, ok := current.(interface{ parentElement() Element }); ok {
			current = walker.parentElement()
		} else {
			break
		}
	}
	return nil
}
