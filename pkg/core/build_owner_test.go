package core

import (
	"sync"
	"testing"

	"github.com/go-flui/flui/pkg/errors"
)

// probe is a stateful widget that appends its name to a shared log on every
// build.
type probe struct {
	StatefulBase
	ProbeKey any
	name     string
	log      *buildLog
	child    Widget
}

func (w probe) Key() any { return w.ProbeKey }

func (w probe) CreateState() State { return &probeState{} }

type probeState struct {
	StateBase
}

func (s *probeState) Build(ctx BuildContext) Widget {
	w := ctx.Widget().(probe)
	w.log.add(w.name)
	return w.child
}

type buildLog struct {
	mu    sync.Mutex
	names []string
}

func (l *buildLog) add(name string) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
}

func (l *buildLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func (l *buildLog) reset() {
	l.mu.Lock()
	l.names = nil
	l.mu.Unlock()
}

// wrapA and wrapB are distinct wrapper types used to force subtree
// replacement around a global-keyed child.
type wrapA struct {
	StatelessBase
	child Widget
}

func (w wrapA) Build(ctx BuildContext) Widget { return w.child }

type wrapB struct {
	StatelessBase
	child Widget
}

func (w wrapB) Build(ctx BuildContext) Widget { return w.child }

func TestFlushBuild_RebuildsAncestorsFirst(t *testing.T) {
	log := &buildLog{}
	owner := NewBuildOwner()
	root := owner.SetRoot(probe{name: "parent", log: log, child: probe{name: "child", log: log}})
	child := childrenOf(root)[0]
	log.reset()

	child.MarkNeedsBuild()
	root.MarkNeedsBuild()
	owner.FlushBuild()

	got := log.snapshot()
	if len(got) != 2 || got[0] != "parent" || got[1] != "child" {
		t.Errorf("build order = %v, want [parent child]", got)
	}
}

func TestScheduleBuildFor_DeduplicatesRequests(t *testing.T) {
	log := &buildLog{}
	owner := NewBuildOwner()
	root := owner.SetRoot(probe{name: "p", log: log})
	log.reset()

	root.MarkNeedsBuild()
	root.MarkNeedsBuild()
	root.MarkNeedsBuild()
	owner.FlushBuild()

	if got := log.snapshot(); len(got) != 1 {
		t.Errorf("builds = %v, want exactly one", got)
	}
	if owner.NeedsBuild() {
		t.Error("dirty set not drained")
	}
}

func TestFlushBuild_SkipsElementsRemovedMidFlush(t *testing.T) {
	owner := NewBuildOwner()
	show := true
	root := owner.SetRoot(builder{fn: func(ctx BuildContext) Widget {
		if show {
			return counter{CounterKey: "c"}
		}
		return nil
	}})
	child := childrenOf(root)[0]
	state := child.(*StatefulElement).State().(*counterState)

	show = false
	child.MarkNeedsBuild()
	root.MarkNeedsBuild()
	owner.FlushBuild()

	if state.builds != 1 {
		t.Errorf("builds = %d, want 1 (vanished element must not rebuild)", state.builds)
	}
	if child.Lifecycle() != LifecycleInactive {
		t.Errorf("child lifecycle = %v, want inactive", child.Lifecycle())
	}
}

func TestLockState_DropsSchedulingWithDiagnostic(t *testing.T) {
	handler := &captureHandler{}
	errors.SetHandler(handler)
	defer errors.SetHandler(nil)

	log := &buildLog{}
	owner := NewBuildOwner()
	root := owner.SetRoot(probe{name: "p", log: log})
	log.reset()

	owner.LockState(func() {
		root.MarkNeedsBuild()
	})

	if owner.NeedsBuild() {
		t.Error("locked request should not reach the dirty set")
	}
	if len(handler.frameworkErrors) != 1 {
		t.Fatalf("diagnostics = %d, want 1", len(handler.frameworkErrors))
	}
	if handler.frameworkErrors[0].Kind != errors.KindScope {
		t.Errorf("diagnostic kind = %v, want scope", handler.frameworkErrors[0].Kind)
	}
	if handler.frameworkErrors[0].StackTrace == "" {
		t.Error("diagnostic should carry the scheduling call stack")
	}

	// The drop must not wedge the element: a later request still works.
	root.MarkNeedsBuild()
	owner.FlushBuild()
	if got := log.snapshot(); len(got) != 1 {
		t.Errorf("builds after unlock = %v, want one", got)
	}
}

func TestBuildScope_RestoredAfterPanic(t *testing.T) {
	owner := NewBuildOwner()

	func() {
		defer func() { _ = recover() }()
		owner.BuildScope(func() {
			panic("scope body failed")
		})
	}()

	if owner.InBuildScope() {
		t.Error("build scope flag not restored after panic")
	}
}

func TestLockState_RestoredAfterPanic(t *testing.T) {
	owner := NewBuildOwner()

	func() {
		defer func() { _ = recover() }()
		owner.LockState(func() {
			panic("locked body failed")
		})
	}()

	if owner.IsLocked() {
		t.Error("lock flag not restored after panic")
	}
}

func TestRegisterGlobalKey_DoubleBindToLiveElementPanics(t *testing.T) {
	key := NewGlobalKey()
	owner := NewBuildOwner()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		if _, ok := r.(*errors.KeyConflictError); !ok {
			t.Fatalf("expected *errors.KeyConflictError, got %T", r)
		}
	}()
	owner.SetRoot(row{Children: []Widget{
		counter{CounterKey: key},
		counter{CounterKey: key},
	}})
}

func TestGlobalKey_SameFrameReparentingPreservesState(t *testing.T) {
	key := NewGlobalKey()
	owner := NewBuildOwner()
	root := owner.SetRoot(box{Child: wrapA{child: counter{CounterKey: key}}}).(*RenderElement)

	keyed := owner.ElementForGlobalKey(key)
	if keyed == nil {
		t.Fatal("keyed element not registered")
	}
	state := keyed.(*StatefulElement).State().(*counterState)
	if state.inits != 1 {
		t.Fatalf("inits = %d, want 1", state.inits)
	}

	// Swap the wrapper type so the old subtree is abandoned and the keyed
	// child must be reclaimed by the new one.
	updateIn(owner, root, box{Child: wrapB{child: counter{CounterKey: key}}})

	reclaimed := owner.ElementForGlobalKey(key)
	if reclaimed != keyed {
		t.Fatal("keyed element identity changed across reparenting")
	}
	if reclaimed.Lifecycle() != LifecycleActive {
		t.Fatalf("reclaimed lifecycle = %v, want active", reclaimed.Lifecycle())
	}
	if reclaimed.(*StatefulElement).State() != state {
		t.Error("state identity lost across reparenting")
	}
	if state.inits != 1 {
		t.Errorf("inits = %d, want 1 (no re-init on reparent)", state.inits)
	}

	owner.FinalizeTree()
	if state.disposed {
		t.Error("reclaimed subtree was destroyed by finalize")
	}
	if reclaimed.Lifecycle() != LifecycleActive {
		t.Errorf("lifecycle after finalize = %v, want active", reclaimed.Lifecycle())
	}
}

func TestGlobalKey_UnregisteredOnlyAtFinalDisposal(t *testing.T) {
	key := NewGlobalKey()
	owner := NewBuildOwner()
	root := owner.SetRoot(box{Child: counter{CounterKey: key}}).(*RenderElement)

	updateIn(owner, root, box{})
	if owner.ElementForGlobalKey(key) == nil {
		t.Fatal("deactivated element must keep its key binding until finalize")
	}

	owner.FinalizeTree()
	if owner.ElementForGlobalKey(key) != nil {
		t.Error("key binding must be released at final disposal")
	}
}

func TestFinalizeTree_DisposalDirtDefersToNextFrame(t *testing.T) {
	owner := NewBuildOwner()
	root := owner.SetRoot(row{Children: []Widget{
		counter{CounterKey: "victim"},
		counter{CounterKey: "other"},
	}}).(*RenderElement)
	children := childrenOf(root)
	victim := children[0].(*StatefulElement).State().(*counterState)
	other := children[1].(*StatefulElement).State().(*counterState)
	victim.OnDispose(func() {
		other.SetState(nil)
	})

	updateIn(owner, root, row{Children: []Widget{
		counter{CounterKey: "other"},
	}})
	buildsBefore := other.builds

	owner.FinalizeTree()

	if !victim.disposed {
		t.Fatal("victim not disposed")
	}
	if other.builds != buildsBefore {
		t.Error("finalize must not rebuild; disposal dirt waits for the next frame")
	}
	if !owner.NeedsBuild() {
		t.Error("dirt scheduled during disposal must survive into the next frame")
	}

	owner.FlushBuild()
	if other.builds != buildsBefore+1 {
		t.Errorf("builds = %d, want %d after next flush", other.builds, buildsBefore+1)
	}
}

func TestOnNeedsFrame_FiresOnFirstDirtyOutsideScope(t *testing.T) {
	fired := 0
	owner := NewBuildOwner()
	owner.OnNeedsFrame = func() { fired++ }
	root := owner.SetRoot(counter{})
	state := root.(*StatefulElement).State().(*counterState)

	if fired != 0 {
		t.Fatalf("fired = %d during mount, want 0", fired)
	}

	state.SetState(nil)
	state.SetState(nil)
	if fired != 1 {
		t.Errorf("fired = %d, want 1 (second request is a duplicate)", fired)
	}

	owner.FlushBuild()
	state.SetState(nil)
	if fired != 2 {
		t.Errorf("fired = %d, want 2 after flush", fired)
	}
}

func TestReassemble_RebuildsWholeTreeInDebugMode(t *testing.T) {
	log := &buildLog{}
	owner := NewBuildOwner()
	owner.SetRoot(probe{name: "parent", log: log, child: probe{name: "child", log: log}})
	log.reset()

	SetDebugMode(false)
	owner.Reassemble()
	owner.FlushBuild()
	if got := log.snapshot(); len(got) != 0 {
		t.Errorf("builds with debug mode off = %v, want none", got)
	}

	SetDebugMode(true)
	owner.Reassemble()
	owner.FlushBuild()
	if got := log.snapshot(); len(got) != 2 || got[0] != "parent" || got[1] != "child" {
		t.Errorf("builds = %v, want [parent child]", got)
	}
}

func TestFlushBuildParallel_RebuildsDisjointSubtrees(t *testing.T) {
	owner := NewBuildOwner()
	widgets := make([]Widget, 12)
	for i := range widgets {
		widgets[i] = counter{CounterKey: i}
	}
	root := owner.SetRoot(row{Children: widgets}).(*RenderElement)

	states := make([]*counterState, 0, len(widgets))
	for _, child := range childrenOf(root) {
		state := child.(*StatefulElement).State().(*counterState)
		states = append(states, state)
		state.SetState(nil)
	}

	owner.FlushBuildParallel(4)

	for i, state := range states {
		if state.builds != 2 {
			t.Errorf("child %d builds = %d, want 2", i, state.builds)
		}
	}
	if owner.NeedsBuild() {
		t.Error("dirty set not drained")
	}
}

func TestPartitionDisjoint_GroupsDescendantsWithAncestors(t *testing.T) {
	owner := NewBuildOwner()
	log := &buildLog{}
	root := owner.SetRoot(row{Children: []Widget{
		probe{ProbeKey: "l", name: "left", log: log, child: probe{name: "leftChild", log: log}},
		probe{ProbeKey: "r", name: "right", log: log},
	}}).(*RenderElement)
	children := childrenOf(root)
	left := children[0]
	leftChild := childrenOf(left)[0]
	right := children[1]

	groups := partitionDisjoint([]Element{left, leftChild, right})
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	for _, group := range groups {
		if group[0] == left && (len(group) != 2 || group[1] != leftChild) {
			t.Errorf("descendant not grouped with its ancestor: %v", group)
		}
		if group[0] == right && len(group) != 1 {
			t.Errorf("independent subtree grouped unexpectedly: %v", group)
		}
	}
}
