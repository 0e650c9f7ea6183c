package core

import (
	"runtime"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-flui/flui/pkg/errors"
	"github.com/go-flui/flui/pkg/layout"
)

// DefaultParallelThreshold is the dirty-batch size below which
// FlushBuildParallel falls back to sequential rebuilding. Small batches are
// cheaper to process inline than to partition and fan out.
const DefaultParallelThreshold = 8

// BuildOwner coordinates the build phase: it collects dirty elements, flushes
// them in depth order, tracks global key bindings, and parks removed subtrees
// in the inactive pool until the end of the frame.
//
// A frame proceeds as FlushBuild, then layout via the pipeline owner, then
// FinalizeTree to destroy whatever the frame orphaned.
type BuildOwner struct {
	mu       sync.Mutex
	tree     *ElementTree
	dirty    []Element
	dirtySet map[ElementID]bool

	inBuildScope bool
	buildLocked  bool

	globalKeys map[GlobalKey]ElementID
	inactive   map[ElementID]Element

	pipeline *layout.PipelineOwner
	root     Element

	// OnNeedsFrame is invoked when the dirty set transitions from empty to
	// non-empty outside a build scope, signaling the embedder to schedule a
	// frame. May be nil.
	OnNeedsFrame func()
}

// NewBuildOwner creates a build owner with its own pipeline owner and layout
// cache of the default capacity.
func NewBuildOwner() *BuildOwner {
	return NewBuildOwnerWithPipeline(layout.NewPipelineOwner(0))
}

// NewBuildOwnerWithPipeline creates a build owner sharing an existing
// pipeline owner.
func NewBuildOwnerWithPipeline(pipeline *layout.PipelineOwner) *BuildOwner {
	return &BuildOwner{
		tree:       NewElementTree(),
		globalKeys: make(map[GlobalKey]ElementID),
		pipeline:   pipeline,
	}
}

// Tree returns the element index for this owner.
func (o *BuildOwner) Tree() *ElementTree {
	return o.tree
}

// Pipeline returns the pipeline owner used for layout scheduling.
func (o *BuildOwner) Pipeline() *layout.PipelineOwner {
	return o.pipeline
}

// Root returns the root element, or nil before SetRoot.
func (o *BuildOwner) Root() Element {
	return o.root
}

// SetRoot inflates the widget as the root of the tree and returns its
// element. The initial mount builds the whole tree synchronously.
func (o *BuildOwner) SetRoot(widget Widget) Element {
	var element Element
	o.BuildScope(func() {
		element = widget.CreateElement()
		if setter, ok := element.(interface{ setWidget(Widget) }); ok {
			setter.setWidget(widget)
		}
		if setter, ok := element.(interface{ setBuildOwner(*BuildOwner) }); ok {
			setter.setBuildOwner(o)
		}
		element.Mount(nil, Slot{})
	})
	o.root = element
	return element
}

// ScheduleBuildFor adds an element to the dirty set and reports whether the
// request was accepted. Requests arriving while build scheduling is locked
// are dropped with a diagnostic; duplicates are accepted but not re-queued.
func (o *BuildOwner) ScheduleBuildFor(element Element) bool {
	o.mu.Lock()
	if o.buildLocked {
		o.mu.Unlock()
		errors.Report(&errors.FrameworkError{
			Op:         "core.BuildOwner.ScheduleBuildFor",
			Kind:       errors.KindScope,
			Err:        &errors.ScopeError{Op: "ScheduleBuildFor", Locked: true},
			StackTrace: errors.CaptureStack(),
			Timestamp:  time.Now(),
		})
		return false
	}
	id := element.ID()
	if o.dirtySet[id] {
		o.mu.Unlock()
		return true
	}
	if o.dirtySet == nil {
		o.dirtySet = make(map[ElementID]bool)
	}
	o.dirtySet[id] = true
	o.dirty = append(o.dirty, element)
	needsFrame := len(o.dirty) == 1 && !o.inBuildScope
	callback := o.OnNeedsFrame
	o.mu.Unlock()

	if needsFrame && callback != nil {
		callback()
	}
	return true
}

// NeedsBuild reports whether any elements await rebuilding.
func (o *BuildOwner) NeedsBuild() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.dirty) > 0
}

// InBuildScope reports whether a build scope is currently active.
func (o *BuildOwner) InBuildScope() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inBuildScope
}

// IsLocked reports whether build scheduling is currently locked.
func (o *BuildOwner) IsLocked() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buildLocked
}

// BuildScope runs fn with structural tree mutation permitted. In debug mode,
// updating, deactivating, activating, or unmounting an element outside any
// scope panics with a ScopeError. Scopes nest; the previous scope state is
// restored on exit, panics included.
func (o *BuildOwner) BuildScope(fn func()) {
	o.mu.Lock()
	previous := o.inBuildScope
	o.inBuildScope = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inBuildScope = previous
		o.mu.Unlock()
	}()

	fn()
}

// LockState runs fn with build scheduling locked. Rebuild requests made while
// locked are dropped with a diagnostic. Locks nest; the previous lock state
// is restored on exit, panics included.
func (o *BuildOwner) LockState(fn func()) {
	o.mu.Lock()
	previous := o.buildLocked
	o.buildLocked = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.buildLocked = previous
		o.mu.Unlock()
	}()

	fn()
}

// FlushBuild rebuilds every dirty element, ancestors before descendants.
//
// Each pass drains the current dirty set in depth order; rebuilds that dirty
// further elements extend into the next pass. Elements that left the tree
// between scheduling and processing are skipped.
func (o *BuildOwner) FlushBuild() {
	o.BuildScope(o.flushDirty)
}

func (o *BuildOwner) flushDirty() {
	for {
		batch := o.takeDirtyBatch()
		if len(batch) == 0 {
			return
		}
		for _, element := range batch {
			if element.Lifecycle() != LifecycleActive {
				continue
			}
			element.RebuildIfNeeded()
		}
	}
}

// takeDirtyBatch removes and returns the current dirty set sorted by depth,
// parents first.
func (o *BuildOwner) takeDirtyBatch() []Element {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.dirty) == 0 {
		return nil
	}
	batch := o.dirty
	o.dirty = nil
	o.dirtySet = nil
	slices.SortFunc(batch, func(a, b Element) int {
		return a.Depth() - b.Depth()
	})
	return batch
}

// FlushBuildParallel rebuilds dirty elements using up to workers goroutines.
// Zero or negative workers selects GOMAXPROCS.
//
// The batch is partitioned into disjoint subtrees: a dirty element whose
// ancestor is also dirty joins the ancestor's group, so no two goroutines
// ever touch overlapping parts of the tree. Within a group, elements rebuild
// sequentially in depth order. Batches below DefaultParallelThreshold run
// sequentially.
func (o *BuildOwner) FlushBuildParallel(workers int) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	o.BuildScope(func() {
		for {
			batch := o.takeDirtyBatch()
			if len(batch) == 0 {
				return
			}
			if len(batch) < DefaultParallelThreshold || workers == 1 {
				for _, element := range batch {
					if element.Lifecycle() != LifecycleActive {
						continue
					}
					element.RebuildIfNeeded()
				}
				continue
			}

			groups := partitionDisjoint(batch)
			var g errgroup.Group
			g.SetLimit(workers)
			for _, group := range groups {
				group := group
				g.Go(func() error {
					for _, element := range group {
						if element.Lifecycle() != LifecycleActive {
							continue
						}
						element.RebuildIfNeeded()
					}
					return nil
				})
			}
			// Workers never return errors; Wait is for completion only.
			_ = g.Wait()
		}
	})
}

// partitionDisjoint splits a depth-sorted batch into groups of elements whose
// subtrees do not overlap. Each element joins the group of its nearest dirty
// ancestor, or starts its own group when no ancestor is in the batch.
func partitionDisjoint(batch []Element) [][]Element {
	rootOf := make(map[Element]Element, len(batch))
	order := make([]Element, 0, len(batch))
	groups := make(map[Element][]Element, len(batch))

	for _, element := range batch {
		root := element
		current := parentOf(element)
		for current != nil {
			if r, ok := rootOf[current]; ok {
				root = r
				break
			}
			current = parentOf(current)
		}
		rootOf[element] = root
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], element)
	}

	result := make([][]Element, 0, len(order))
	for _, root := range order {
		result = append(result, groups[root])
	}
	return result
}

func parentOf(element Element) Element {
	if base, ok := element.(interface{ parentElement() Element }); ok {
		return base.parentElement()
	}
	return nil
}

// RegisterGlobalKey binds a global key to an element. Binding a key already
// held by a live element panics with a KeyConflictError; a stale binding to a
// removed element is overwritten silently.
func (o *BuildOwner) RegisterGlobalKey(key GlobalKey, element Element) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if existingID, ok := o.globalKeys[key]; ok {
		if existingID == element.ID() {
			return
		}
		if existing := o.tree.Get(existingID); existing != nil && existing.Lifecycle() == LifecycleActive {
			panic(&errors.KeyConflictError{
				Key:      key.String(),
				Existing: uint64(existingID),
				Incoming: uint64(element.ID()),
			})
		}
	}
	o.globalKeys[key] = element.ID()
}

// UnregisterGlobalKey releases a key binding. Only the bound element may
// release it; deactivated elements keep their binding so a new parent can
// find them within the same frame.
func (o *BuildOwner) UnregisterGlobalKey(key GlobalKey, element Element) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if existingID, ok := o.globalKeys[key]; ok && existingID == element.ID() {
		delete(o.globalKeys, key)
	}
}

// ElementForGlobalKey returns the element currently bound to a key, or nil.
func (o *BuildOwner) ElementForGlobalKey(key GlobalKey) Element {
	o.mu.Lock()
	id, ok := o.globalKeys[key]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	return o.tree.Get(id)
}

// deactivateChild detaches a child subtree and parks it in the inactive pool
// until FinalizeTree.
func (o *BuildOwner) deactivateChild(child Element) {
	child.Deactivate()
	o.mu.Lock()
	if o.inactive == nil {
		o.inactive = make(map[ElementID]Element)
	}
	o.inactive[child.ID()] = child
	o.mu.Unlock()
}

// retakeInactiveElement reclaims the deactivated element bound to a global
// key, if its configuration can absorb the new widget. The element may be a
// pool root or sit anywhere inside a deactivated subtree; in the latter case
// it is detached from its abandoned parent so finalization will not destroy
// it.
func (o *BuildOwner) retakeInactiveElement(key GlobalKey, widget Widget) Element {
	o.mu.Lock()
	defer o.mu.Unlock()

	id, ok := o.globalKeys[key]
	if !ok {
		return nil
	}
	element := o.tree.Get(id)
	if element == nil || element.Lifecycle() != LifecycleInactive {
		return nil
	}
	if !canUpdate(element.Widget(), widget) {
		return nil
	}
	if _, pooled := o.inactive[id]; pooled {
		delete(o.inactive, id)
	} else if parent := parentOf(element); parent != nil {
		if keeper, ok := parent.(interface{ forgetChild(Element) }); ok {
			keeper.forgetChild(element)
		}
	}
	return element
}

// Reassemble marks every active element dirty so the whole tree rebuilds with
// freshly loaded code. Hot-reload support; does nothing unless DebugMode is
// set.
func (o *BuildOwner) Reassemble() {
	if !DebugMode || o.root == nil {
		return
	}
	WalkDepthFirst(o.root, func(element Element) bool {
		if element.Lifecycle() == LifecycleActive {
			element.MarkNeedsBuild()
		}
		return true
	})
}

// InactiveCount returns the number of subtrees awaiting finalization.
func (o *BuildOwner) InactiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inactive)
}

// FinalizeTree destroys every subtree still in the inactive pool. Call it at
// the end of the frame, after build and layout, so global-key reclaims have
// had their chance.
//
// FinalizeTree drains one snapshot of the pool and never loops: elements
// deactivated by disposal side effects wait for the next frame. Disposal may
// schedule builds (they are processed next frame), so no state lock is held.
func (o *BuildOwner) FinalizeTree() {
	o.mu.Lock()
	pool := o.inactive
	o.inactive = nil
	o.mu.Unlock()

	if len(pool) == 0 {
		return
	}

	doomed := make([]Element, 0, len(pool))
	for _, element := range pool {
		doomed = append(doomed, element)
	}
	// Shallow subtrees first, identity as tiebreaker for determinism.
	slices.SortFunc(doomed, func(a, b Element) int {
		if d := a.Depth() - b.Depth(); d != 0 {
			return d
		}
		return int(a.ID()) - int(b.ID())
	})

	o.BuildScope(func() {
		for _, element := range doomed {
			if element.Lifecycle() == LifecycleInactive {
				element.Unmount()
			}
		}
	})
}
