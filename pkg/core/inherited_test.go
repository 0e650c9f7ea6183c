package core

import (
	"reflect"
	"testing"
)

type themeWidget struct {
	InheritedBase
	Color string
	Child Widget
}

func (w themeWidget) ChildWidget() Widget { return w.Child }

func (w themeWidget) UpdateShouldNotify(old InheritedWidget) bool {
	return w.Color != old.(themeWidget).Color
}

func themeOf(ctx BuildContext) string {
	if w, ok := ctx.DependOnInherited(reflect.TypeOf(themeWidget{})).(themeWidget); ok {
		return w.Color
	}
	return ""
}

func TestDependOnInherited_ReturnsNearestProvider(t *testing.T) {
	var seen string
	owner := NewBuildOwner()
	owner.SetRoot(themeWidget{Color: "outer", Child: themeWidget{Color: "inner", Child: builder{fn: func(ctx BuildContext) Widget {
		seen = themeOf(ctx)
		return nil
	}}}})

	if seen != "inner" {
		t.Errorf("resolved color = %q, want inner", seen)
	}
}

func TestDependOnInherited_NoProviderReturnsNil(t *testing.T) {
	var result any
	owner := NewBuildOwner()
	owner.SetRoot(builder{fn: func(ctx BuildContext) Widget {
		result = ctx.DependOnInherited(reflect.TypeOf(themeWidget{}))
		return nil
	}})

	if result != nil {
		t.Errorf("result = %v, want nil", result)
	}
}

func TestInheritedUpdate_NotifiesDependents(t *testing.T) {
	dependent := counter{CounterKey: "dep", childFn: func(ctx BuildContext) Widget {
		themeOf(ctx)
		return nil
	}}

	owner := NewBuildOwner()
	root := owner.SetRoot(themeWidget{Color: "red", Child: dependent})
	child := childrenOf(root)[0]
	state := child.(*StatefulElement).State().(*counterState)

	if state.depsChanged != 1 {
		t.Fatalf("depsChanged after mount = %d, want 1", state.depsChanged)
	}

	updateIn(owner, root, themeWidget{Color: "blue", Child: dependent})

	if state.depsChanged != 2 {
		t.Errorf("depsChanged = %d, want 2 after value change", state.depsChanged)
	}
	if state.builds != 2 {
		t.Errorf("builds = %d, want 2", state.builds)
	}
}

func TestInheritedUpdate_SkipsNotifyWhenValueUnchanged(t *testing.T) {
	dependent := counter{CounterKey: "dep", childFn: func(ctx BuildContext) Widget {
		themeOf(ctx)
		return nil
	}}

	owner := NewBuildOwner()
	root := owner.SetRoot(themeWidget{Color: "red", Child: dependent})
	child := childrenOf(root)[0]
	state := child.(*StatefulElement).State().(*counterState)

	updateIn(owner, root, themeWidget{Color: "red", Child: dependent})

	if state.depsChanged != 1 {
		t.Errorf("depsChanged = %d, want 1 when value unchanged", state.depsChanged)
	}
}

func TestInherited_DependentRemovalSeversLink(t *testing.T) {
	dependent := counter{CounterKey: "dep", childFn: func(ctx BuildContext) Widget {
		themeOf(ctx)
		return nil
	}}

	owner := NewBuildOwner()
	root := owner.SetRoot(themeWidget{Color: "red", Child: row{Children: []Widget{
		dependent,
		label{Text: "bystander"},
	}}})
	provider := root.(*InheritedElement)

	if provider.Dependents() != 1 {
		t.Fatalf("dependents = %d, want 1", provider.Dependents())
	}

	updateIn(owner, root, themeWidget{Color: "red", Child: row{Children: []Widget{
		label{Text: "bystander"},
	}}})

	if provider.Dependents() != 0 {
		t.Errorf("dependents = %d, want 0 after removal", provider.Dependents())
	}
}

func TestInherited_ParallelFlushRegistersDependentsSafely(t *testing.T) {
	widgets := make([]Widget, 16)
	for i := range widgets {
		widgets[i] = counter{CounterKey: i, childFn: func(ctx BuildContext) Widget {
			themeOf(ctx)
			return nil
		}}
	}

	owner := NewBuildOwner()
	root := owner.SetRoot(themeWidget{Color: "red", Child: row{Children: widgets}})
	provider := root.(*InheritedElement)
	rowElement := childrenOf(root)[0]
	for _, child := range childrenOf(rowElement) {
		child.(*StatefulElement).State().(*counterState).SetState(nil)
	}

	// Every rebuild re-registers with the provider above the partitions.
	owner.FlushBuildParallel(8)

	if provider.Dependents() != len(widgets) {
		t.Errorf("dependents = %d, want %d", provider.Dependents(), len(widgets))
	}
	if owner.NeedsBuild() {
		t.Error("dirty set not drained")
	}
}

func TestInherited_ReactivationRefreshesDependencies(t *testing.T) {
	key := NewGlobalKey()
	dependent := counter{CounterKey: key, childFn: func(ctx BuildContext) Widget {
		themeOf(ctx)
		return nil
	}}

	owner := NewBuildOwner()
	root := owner.SetRoot(themeWidget{Color: "red", Child: box{Child: wrapA{child: dependent}}})
	keyed := owner.ElementForGlobalKey(key)
	state := keyed.(*StatefulElement).State().(*counterState)

	// Move the keyed dependent to a different wrapper under the same provider.
	updateIn(owner, root, themeWidget{Color: "red", Child: box{Child: wrapB{child: dependent}}})
	owner.FlushBuild()

	if owner.ElementForGlobalKey(key) != keyed {
		t.Fatal("element identity lost")
	}
	if state.depsChanged < 2 {
		t.Errorf("depsChanged = %d, want notification after reactivation", state.depsChanged)
	}

	provider := root.(*InheritedElement)
	if provider.Dependents() != 1 {
		t.Errorf("dependents = %d, want 1 after re-registration", provider.Dependents())
	}
}
