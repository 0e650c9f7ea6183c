// Package layout provides the render-node layout machinery: relayout
// boundaries, the pipeline owner that schedules and flushes layout, and a
// bounded cache of computed sizes.
package layout

import (
	"github.com/go-flui/flui/pkg/geometry"
)

// RenderNode computes a size from constraints and participates in the
// dirty-tracking protocol. Painting and hit testing live in the consuming
// backend; the core only exposes geometry and boundary information.
type RenderNode interface {
	Layout(constraints geometry.Constraints, parentUsesSize bool)
	Size() geometry.Size
	MarkNeedsLayout()
	SetOwner(owner *PipelineOwner)
	Depth() int
}

// Identified is implemented by render nodes with a stable numeric identity,
// used to key the layout cache.
type Identified interface {
	ID() uint64
}

// ChildVisitor is implemented by render nodes that have children.
type ChildVisitor interface {
	// VisitChildren calls the visitor function for each child.
	VisitChildren(visitor func(RenderNode))
}

// BoundaryReporter is implemented by render nodes that expose their relayout
// boundary status to the paint backend.
type BoundaryReporter interface {
	IsRelayoutBoundary() bool
}

// NodeParentData stores the offset for a child within its parent.
type NodeParentData struct {
	Offset geometry.Offset
}

// RenderNodeBase provides base behavior for render nodes.
//
// Concrete nodes embed it, call SetSelf with themselves, and implement
// PerformLayout for their specific layout logic. The base Layout handles
// boundary determination, the skip-if-clean fast path, and dirty flags.
type RenderNodeBase struct {
	id               uint64
	size             geometry.Size
	parentData       any
	owner            *PipelineOwner
	self             RenderNode
	parent           RenderNode // parent reference for tree walking
	depth            int        // tree depth (root = 0)
	relayoutBoundary RenderNode // cached nearest relayout boundary
	needsLayout      bool       // local dirty flag
	constraints      geometry.Constraints
}

// ID returns the stable identity used to key the layout cache.
func (r *RenderNodeBase) ID() uint64 {
	return r.id
}

// SetID assigns the stable identity. Set once, at creation, typically to the
// identity of the element that owns this node.
func (r *RenderNodeBase) SetID(id uint64) {
	r.id = id
}

// Size returns the current size of the render node.
func (r *RenderNodeBase) Size() geometry.Size {
	return r.size
}

// SetSize updates the render node size.
func (r *RenderNodeBase) SetSize(size geometry.Size) {
	r.size = size
}

// ParentData returns the parent-assigned data for this render node.
func (r *RenderNodeBase) ParentData() any {
	return r.parentData
}

// SetParentData assigns parent-controlled data to this render node.
func (r *RenderNodeBase) SetParentData(data any) {
	r.parentData = data
}

// MarkNeedsLayout marks this render node as needing layout.
//
// When a node needs layout, the walk goes up the tree marking each node until
// it reaches a relayout boundary. The boundary gets scheduled. During layout,
// all marked nodes re-run PerformLayout because their needsLayout flag is
// true. Marking a boundary leaves its parent untouched.
func (r *RenderNodeBase) MarkNeedsLayout() {
	if r.needsLayout {
		return
	}
	r.needsLayout = true

	if r.owner == nil || r.self == nil {
		return
	}

	// If we are our own relayout boundary, schedule ourselves and stop.
	if r.relayoutBoundary == r.self {
		r.owner.ScheduleLayout(r.self)
		return
	}

	// Walk up: the parent's size may depend on ours.
	if r.parent != nil {
		r.parent.MarkNeedsLayout()
		return
	}

	// No parent and not a boundary - likely during initial setup before the
	// tree is fully connected. Schedule self to ensure we get laid out.
	r.owner.ScheduleLayout(r.self)
}

// SetOwner assigns the pipeline owner for layout scheduling.
func (r *RenderNodeBase) SetOwner(owner *PipelineOwner) {
	r.owner = owner
}

// SetSelf registers the concrete render node for scheduling.
func (r *RenderNodeBase) SetSelf(self RenderNode) {
	r.self = self
	r.needsLayout = true // new render nodes always need initial layout
}

// Self returns the concrete render node registered via SetSelf.
func (r *RenderNodeBase) Self() RenderNode {
	return r.self
}

// Parent returns the parent render node.
func (r *RenderNodeBase) Parent() RenderNode {
	return r.parent
}

// SetParent sets the parent render node and computes depth.
// Clears the cached boundary and constraints to prevent stale references
// when the node is reparented to a different subtree.
func (r *RenderNodeBase) SetParent(parent RenderNode) {
	if r.parent == parent {
		return
	}
	r.parent = parent
	if parent == nil {
		r.depth = 0
	} else {
		r.depth = parent.Depth() + 1
	}
	r.relayoutBoundary = nil
	r.constraints = geometry.Constraints{}
	r.needsLayout = true
}

// Depth returns the tree depth (root = 0).
func (r *RenderNodeBase) Depth() int {
	return r.depth
}

// RelayoutBoundary returns the cached nearest relayout boundary.
func (r *RenderNodeBase) RelayoutBoundary() RenderNode {
	return r.relayoutBoundary
}

// IsRelayoutBoundary reports whether this node contains layout changes
// instead of propagating them to its parent.
func (r *RenderNodeBase) IsRelayoutBoundary() bool {
	return r.self != nil && r.relayoutBoundary == r.self
}

// NeedsLayout returns true if this render node needs layout.
func (r *RenderNodeBase) NeedsLayout() bool {
	return r.needsLayout
}

// Constraints returns the last received constraints.
func (r *RenderNodeBase) Constraints() geometry.Constraints {
	return r.constraints
}

// Layout handles boundary determination and delegates to PerformLayout.
//
// A node becomes a relayout boundary when:
//   - It receives tight constraints (parent dictates exact size)
//   - It is the root (no parent)
//   - Parent doesn't use our size (parentUsesSize=false)
//
// Boundaries contain layout changes - when a descendant needs layout, the
// walk up stops at the boundary, preventing relayout of ancestors.
func (r *RenderNodeBase) Layout(constraints geometry.Constraints, parentUsesSize bool) {
	shouldBeBoundary := constraints.IsTight() || r.parent == nil || !parentUsesSize

	if shouldBeBoundary {
		r.relayoutBoundary = r.self
	} else if r.parent != nil {
		// Inherit boundary from parent
		if getter, ok := r.parent.(interface{ RelayoutBoundary() RenderNode }); ok {
			r.relayoutBoundary = getter.RelayoutBoundary()
		}
	}

	// Skip layout if we're clean and constraints haven't changed.
	// This is the key optimization - unchanged subtrees don't re-layout.
	if !r.needsLayout && r.constraints == constraints {
		return
	}

	// Store constraints and clear the dirty flag before performing layout
	// so a child marking us dirty mid-layout is caught next frame.
	r.constraints = constraints
	r.needsLayout = false

	if performer, ok := r.self.(interface{ PerformLayout() }); ok {
		performer.PerformLayout()
	}
}

// SetParentOnChild sets the parent reference on a child render node.
// It marks both the old and new parent as needing layout when the parent changes.
func SetParentOnChild(child, parent RenderNode) {
	if child == nil {
		return
	}
	getter, _ := child.(interface{ Parent() RenderNode })
	setter, ok := child.(interface{ SetParent(RenderNode) })
	if !ok {
		return
	}
	currentParent := RenderNode(nil)
	if getter != nil {
		currentParent = getter.Parent()
	}
	if currentParent == parent {
		return
	}
	setter.SetParent(parent)
	if currentParent != nil {
		currentParent.MarkNeedsLayout()
	}
	if parent != nil {
		parent.MarkNeedsLayout()
	}
}
