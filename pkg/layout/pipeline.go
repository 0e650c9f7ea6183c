package layout

import (
	"slices"
	"sync"

	"github.com/go-flui/flui/pkg/geometry"
)

// PipelineOwner tracks render nodes that need layout and owns the shared
// layout cache.
//
// Layout scheduling works with relayout boundaries: when a node needs layout,
// MarkNeedsLayout walks up to the nearest boundary, marking each node along
// the way. The boundary gets scheduled here. During FlushLayoutForRoot, layout
// propagates from the root (or scheduled boundaries) down through all marked
// nodes.
type PipelineOwner struct {
	// mu guards the dirty-boundary bookkeeping: parallel build workers reach
	// ScheduleLayout when they mount or reactivate render elements.
	mu             sync.Mutex
	dirtyLayout    []RenderNode        // boundaries needing layout, processed depth-first
	dirtyLayoutSet map[RenderNode]bool // O(1) dedup check
	needsLayout    bool

	cache *LayoutCache
}

// NewPipelineOwner creates a PipelineOwner with a layout cache of the given
// capacity. Zero or negative capacity selects the default.
func NewPipelineOwner(cacheCapacity int) *PipelineOwner {
	return &PipelineOwner{cache: NewLayoutCache(cacheCapacity)}
}

// Cache returns the shared layout cache.
func (p *PipelineOwner) Cache() *LayoutCache {
	return p.cache
}

// ScheduleLayout marks a relayout boundary as needing layout.
// Only relayout boundaries should be scheduled here - intermediate nodes
// are marked via MarkNeedsLayout but not scheduled directly.
func (p *PipelineOwner) ScheduleLayout(node RenderNode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dirtyLayoutSet == nil {
		p.dirtyLayoutSet = make(map[RenderNode]bool)
	}
	if p.dirtyLayoutSet[node] {
		return
	}
	p.dirtyLayoutSet[node] = true
	p.dirtyLayout = append(p.dirtyLayout, node)
	p.needsLayout = true
}

// NeedsLayout reports if any render nodes need layout.
func (p *PipelineOwner) NeedsLayout() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.needsLayout
}

// FlushLayoutForRoot runs layout starting from the root.
//
// The typical frame sequence is:
//  1. BuildOwner.FlushBuild - rebuilds dirty elements
//  2. FlushLayoutForRoot - lays out from root, propagating to dirty subtrees
//  3. the backend paints
//
// Layout starts at the root with the given constraints (the root is always a
// boundary). From there, layout propagates down. Nodes with needsLayout=true
// re-run PerformLayout; clean nodes with unchanged constraints skip entirely.
func (p *PipelineOwner) FlushLayoutForRoot(root RenderNode, constraints geometry.Constraints) {
	if root == nil {
		return
	}

	// Root is always a boundary: parentUsesSize=false. A clean root with
	// unchanged constraints skips immediately, so running it every frame is
	// cheap; gating on scheduled work would miss freshly mounted subtrees
	// that are dirty but not yet scheduled.
	root.Layout(constraints, false)

	// Process any boundaries scheduled during the layout pass. This handles
	// MarkNeedsLayout calls made from inside PerformLayout.
	p.flushDirtyBoundaries()

	p.mu.Lock()
	p.needsLayout = false
	p.mu.Unlock()
}

// FlushLayoutFromBoundaries processes dirty relayout boundaries without a
// root. This is useful for incremental updates outside the normal frame cycle.
func (p *PipelineOwner) FlushLayoutFromBoundaries() {
	if !p.NeedsLayout() {
		return
	}

	p.flushDirtyBoundaries()

	p.mu.Lock()
	p.needsLayout = false
	p.mu.Unlock()
}

// flushDirtyBoundaries processes scheduled boundaries in depth order.
//
// Boundaries are processed parent-first so that if a parent and child are
// both scheduled, the parent lays out first and may clear the child's dirty
// flag as a side effect (the child gets laid out as part of the parent's
// PerformLayout). This avoids redundant layout work.
func (p *PipelineOwner) flushDirtyBoundaries() {
	for {
		// Take current batch and clear for next iteration. The lock is not
		// held across layout itself, which may schedule further boundaries.
		p.mu.Lock()
		dirty := p.dirtyLayout
		p.dirtyLayout = nil
		p.dirtyLayoutSet = nil
		p.mu.Unlock()
		if len(dirty) == 0 {
			return
		}

		slices.SortFunc(dirty, func(a, b RenderNode) int {
			return a.Depth() - b.Depth()
		})

		for _, node := range dirty {
			layouter, ok := node.(interface {
				NeedsLayout() bool
				Constraints() geometry.Constraints
				Layout(geometry.Constraints, bool)
			})
			if !ok {
				continue
			}
			// Only layout if still dirty - a parent's layout may have already
			// handled this node as part of its subtree.
			if layouter.NeedsLayout() {
				// Re-layout the boundary with its cached constraints.
				// parentUsesSize=false because boundaries don't propagate
				// size changes to their parents.
				layouter.Layout(layouter.Constraints(), false)
			}
		}
	}
}

// LayoutChildCached lays out a child, consulting the layout cache first.
//
// The cache is only consulted when the child is clean: a dirty child must
// re-run PerformLayout regardless of what was memoized. The key carries the
// child's own child count, so an entry memoized before a structural change
// below the child cannot be served after it.
func (p *PipelineOwner) LayoutChildCached(child RenderNode, constraints geometry.Constraints) geometry.Size {
	ident, identified := child.(Identified)

	if identified {
		key := CacheKey{Node: ident.ID(), Constraints: constraints, ChildCount: nodeChildCount(child)}
		if clean, ok := child.(interface{ NeedsLayout() bool }); ok && !clean.NeedsLayout() {
			if size, hit := p.cache.Get(key); hit {
				return size
			}
		}
		child.Layout(constraints, true)
		size := child.Size()
		p.cache.Put(key, size)
		return size
	}

	child.Layout(constraints, true)
	return child.Size()
}

// nodeChildCount counts a node's direct children, or 0 for leaves.
func nodeChildCount(node RenderNode) int {
	visitor, ok := node.(ChildVisitor)
	if !ok {
		return 0
	}
	count := 0
	visitor.VisitChildren(func(RenderNode) { count++ })
	return count
}
