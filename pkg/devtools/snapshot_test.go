package devtools

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-flui/flui/pkg/core"
	"github.com/go-flui/flui/pkg/layout"
)

type textWidget struct {
	core.StatelessBase
	Text string
	Tag  any
}

func (w textWidget) Key() any { return w.Tag }

func (w textWidget) Build(ctx core.BuildContext) core.Widget { return nil }

type panelNode struct {
	layout.RenderNodeBase
	children []layout.RenderNode
}

func (n *panelNode) SetChildren(children []layout.RenderNode) { n.children = children }

func (n *panelNode) PerformLayout() { n.SetSize(n.Constraints().Biggest()) }

type panelWidget struct {
	core.RenderBase
	Children []core.Widget
}

func (w panelWidget) ChildWidgets() []core.Widget { return w.Children }

func (w panelWidget) CreateRenderNode(ctx core.BuildContext) layout.RenderNode {
	node := &panelNode{}
	node.SetSelf(node)
	return node
}

func (w panelWidget) UpdateRenderNode(ctx core.BuildContext, node layout.RenderNode) {}

type fakeT struct {
	fatals []string
	errs   []string
}

func (f *fakeT) Helper() {}

func (f *fakeT) Fatalf(format string, args ...any) {
	f.fatals = append(f.fatals, fmt.Sprintf(format, args...))
}

func (f *fakeT) Errorf(format string, args ...any) {
	f.errs = append(f.errs, fmt.Sprintf(format, args...))
}

func (f *fakeT) Name() string { return "fakeT" }

func mountPanel(widgets ...core.Widget) (*core.BuildOwner, core.Element) {
	owner := core.NewBuildOwner()
	root := owner.SetRoot(panelWidget{Children: widgets})
	return owner, root
}

func TestCapture_RecordsTreeShape(t *testing.T) {
	_, root := mountPanel(
		textWidget{Text: "a", Tag: "first"},
		textWidget{Text: "b"},
	)

	snap := Capture(root)

	if snap.Root == nil {
		t.Fatal("no root captured")
	}
	if snap.Root.Element != "RenderElement" {
		t.Errorf("root element = %q, want RenderElement", snap.Root.Element)
	}
	if snap.Root.Widget != "panelWidget" {
		t.Errorf("root widget = %q, want panelWidget", snap.Root.Widget)
	}
	if snap.Root.Lifecycle != "active" {
		t.Errorf("lifecycle = %q, want active", snap.Root.Lifecycle)
	}
	if len(snap.Root.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(snap.Root.Children))
	}
	if snap.Root.Children[0].Key != "first" {
		t.Errorf("child key = %q, want first", snap.Root.Children[0].Key)
	}
	if snap.Root.Children[0].Depth != snap.Root.Depth+1 {
		t.Error("child depth should be one below the root")
	}
}

func TestSnapshot_DiffDetectsStructuralChange(t *testing.T) {
	owner, root := mountPanel(textWidget{Text: "a"}, textWidget{Text: "b"})
	before := Capture(root)

	same := Capture(root)
	if diff := before.Diff(same); diff != "" {
		t.Errorf("identical trees must not diff, got:\n%s", diff)
	}

	owner.BuildScope(func() {
		root.Update(panelWidget{Children: []core.Widget{textWidget{Text: "a"}}})
	})
	after := Capture(root)
	if diff := before.Diff(after); diff == "" {
		t.Error("structural change must produce a diff")
	}
}

func TestSnapshot_MarshalIsValidYAML(t *testing.T) {
	_, root := mountPanel(textWidget{Text: "a"})
	snap := Capture(root)

	data, err := snap.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{"element:", "RenderElement", "StatelessElement", "lifecycle: active"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("output missing %q:\n%s", want, data)
		}
	}
}

func TestMatchesFile_GoldenRoundTrip(t *testing.T) {
	_, root := mountPanel(textWidget{Text: "a"})
	snap := Capture(root)
	path := filepath.Join(t.TempDir(), "golden", "tree.yaml")

	if err := snap.UpdateFile(path); err != nil {
		t.Fatalf("update: %v", err)
	}
	snap.MatchesFile(t, path)
}

func TestMatchesFile_MissingGoldenFails(t *testing.T) {
	_, root := mountPanel(textWidget{Text: "a"})
	snap := Capture(root)
	ft := &fakeT{}

	snap.MatchesFile(ft, filepath.Join(t.TempDir(), "absent.yaml"))

	if len(ft.fatals) != 1 {
		t.Fatalf("fatals = %d, want 1", len(ft.fatals))
	}
	if !strings.Contains(ft.fatals[0], "FLUI_UPDATE_SNAPSHOTS") {
		t.Error("failure should explain how to create the golden file")
	}
}

func TestMatchesFile_MismatchReportsDiff(t *testing.T) {
	owner, root := mountPanel(textWidget{Text: "a"}, textWidget{Text: "b"})
	snap := Capture(root)
	path := filepath.Join(t.TempDir(), "tree.yaml")
	if err := snap.UpdateFile(path); err != nil {
		t.Fatalf("update: %v", err)
	}

	owner.BuildScope(func() {
		root.Update(panelWidget{Children: []core.Widget{textWidget{Text: "a"}}})
	})
	changed := Capture(root)
	ft := &fakeT{}
	changed.MatchesFile(ft, path)

	if len(ft.errs) != 1 {
		t.Fatalf("errs = %d, want 1", len(ft.errs))
	}
}

func TestDumpTree_ListsElements(t *testing.T) {
	_, root := mountPanel(textWidget{Text: "a", Tag: "k"})

	dump := DumpTree(root)

	for _, want := range []string{"RenderElement", "panelWidget", "StatelessElement", "textWidget", "key=k"} {
		if !strings.Contains(dump, want) {
			t.Errorf("dump missing %q:\n%s", want, dump)
		}
	}
	lines := strings.Split(strings.TrimRight(dump, "\n"), "\n")
	if len(lines) != 2 {
		t.Errorf("dump lines = %d, want 2", len(lines))
	}
}
