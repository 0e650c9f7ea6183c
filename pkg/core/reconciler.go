package core

import (
	"fmt"
	"reflect"
	"time"

	"github.com/go-flui/flui/pkg/errors"
)

// canUpdate reports whether an element hosting the existing widget can absorb
// the next widget in place. The element survives only when both the concrete
// widget type and the key match; otherwise it is torn down and replaced.
func canUpdate(existing Widget, next Widget) bool {
	if existing == nil || next == nil {
		return false
	}
	if reflect.TypeOf(existing) != reflect.TypeOf(next) {
		return false
	}
	return reflect.DeepEqual(existing.Key(), next.Key())
}

// updateChild reconciles a single child position against a new widget.
//
// nil widget removes the child. A compatible child is updated in place; an
// incompatible one is deactivated into the inactive pool (so a global key can
// reclaim it this frame) and a fresh element is inflated.
func (e *elementBase) updateChild(child Element, newWidget Widget, slot Slot) Element {
	if newWidget == nil {
		if child != nil {
			e.deactivateOrUnmount(child)
		}
		return nil
	}
	if child != nil {
		if canUpdate(child.Widget(), newWidget) {
			if child.Slot() != slot {
				child.UpdateSlot(slot)
			}
			child.Update(newWidget)
			return child
		}
		e.deactivateOrUnmount(child)
	}
	return e.inflateWidget(newWidget, slot)
}

// deactivateOrUnmount removes a child from the tree. With a build owner the
// child is parked in the inactive pool until FinalizeTree; without one it is
// destroyed immediately.
func (e *elementBase) deactivateOrUnmount(child Element) {
	if e.buildOwner != nil {
		e.buildOwner.deactivateChild(child)
	} else {
		child.Unmount()
	}
}

// inflateWidget creates and mounts an element for a widget. A widget carrying
// a global key first tries to reclaim the matching element from the inactive
// pool, which is how subtrees move across parents without losing state.
func (e *elementBase) inflateWidget(widget Widget, slot Slot) Element {
	if key, ok := widget.Key().(GlobalKey); ok && e.buildOwner != nil {
		if reclaimed := e.buildOwner.retakeInactiveElement(key, widget); reclaimed != nil {
			reclaimed.Activate(e.self, slot)
			reclaimed.Update(widget)
			return reclaimed
		}
	}
	element := widget.CreateElement()
	if setter, ok := element.(interface{ setWidget(Widget) }); ok {
		setter.setWidget(widget)
	}
	if setter, ok := element.(interface{ setBuildOwner(*BuildOwner) }); ok {
		setter.setBuildOwner(e.buildOwner)
	}
	element.Mount(e.self, slot)
	return element
}

// updateChildren reconciles a full child list against new widgets.
//
// The diff runs in four phases. First the leading run of compatible children
// is synced in place. Then the trailing run is matched (but not yet synced) to
// pin down the unstable middle. The middle is reconciled through a key table:
// keyed new widgets reclaim their old element wherever it moved, keyless ones
// inflate fresh, and unmatched old children are deactivated. Finally the
// trailing run is synced with its new slots. Old children never matched by any
// phase end up in the inactive pool.
func (e *elementBase) updateChildren(oldChildren []Element, newWidgets []Widget) []Element {
	newChildren := make([]Element, len(newWidgets))

	oldHead, newHead := 0, 0
	oldTail, newTail := len(oldChildren)-1, len(newWidgets)-1

	// Sync the leading run.
	for oldHead <= oldTail && newHead <= newTail {
		oldChild := oldChildren[oldHead]
		if oldChild == nil || !canUpdate(oldChild.Widget(), newWidgets[newHead]) {
			break
		}
		newChildren[newHead] = e.updateChild(oldChild, newWidgets[newHead], e.slotFor(newHead, newChildren))
		oldHead++
		newHead++
	}

	// Match the trailing run without syncing yet; its slots depend on the
	// middle settling first.
	for oldHead <= oldTail && newHead <= newTail {
		oldChild := oldChildren[oldTail]
		if oldChild == nil || !canUpdate(oldChild.Widget(), newWidgets[newTail]) {
			break
		}
		oldTail--
		newTail--
	}

	// Reconcile the middle through the key table. Keyless old middles cannot
	// match anything and are deactivated right away; keyed ones wait in the
	// table for a new widget to claim them.
	var keyed map[any]Element
	if oldHead <= oldTail {
		keyed = make(map[any]Element)
		for oldHead <= oldTail {
			child := oldChildren[oldHead]
			oldHead++
			if child == nil {
				continue
			}
			key := child.Widget().Key()
			if key == nil {
				e.deactivateOrUnmount(child)
				continue
			}
			if _, dup := keyed[key]; dup {
				// First occurrence wins the table slot; duplicates are
				// reported and torn down.
				errors.Report(&errors.FrameworkError{
					Op:         "core.updateChildren",
					Kind:       errors.KindKey,
					Err:        fmt.Errorf("duplicate key %v in child list", key),
					StackTrace: errors.CaptureStack(),
					Timestamp:  time.Now(),
				})
				e.deactivateOrUnmount(child)
				continue
			}
			keyed[key] = child
		}
	}
	for newHead <= newTail {
		widget := newWidgets[newHead]
		var oldChild Element
		if keyed != nil {
			if key := widget.Key(); key != nil {
				if candidate, ok := keyed[key]; ok && canUpdate(candidate.Widget(), widget) {
					oldChild = candidate
					delete(keyed, key)
				}
			}
		}
		newChildren[newHead] = e.updateChild(oldChild, widget, e.slotFor(newHead, newChildren))
		newHead++
	}

	// Sync the trailing run with its final slots.
	oldTail = len(oldChildren) - 1
	newTail = len(newWidgets) - 1
	for oldHead <= oldTail && newHead <= newTail {
		newChildren[newHead] = e.updateChild(oldChildren[oldHead], newWidgets[newHead], e.slotFor(newHead, newChildren))
		oldHead++
		newHead++
	}

	// Keyed old children no new widget claimed.
	for _, child := range keyed {
		e.deactivateOrUnmount(child)
	}

	return newChildren
}

// slotFor builds the slot for child position index, linking to the previous
// sibling already materialized in the new list.
func (e *elementBase) slotFor(index int, newChildren []Element) Slot {
	var previous ElementID
	if index > 0 && newChildren[index-1] != nil {
		previous = newChildren[index-1].ID()
	}
	return Slot{Index: index, Previous: previous}
}
