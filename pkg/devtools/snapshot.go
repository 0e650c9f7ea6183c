// Package devtools provides inspection helpers for the element tree:
// serialized tree snapshots and golden-file matching for tests.
package devtools

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/go-flui/flui/pkg/core"
	"github.com/go-flui/flui/pkg/layout"
)

// TestingT is the subset of *testing.T used by MatchesFile, allowing
// test doubles to intercept failures.
type TestingT interface {
	Helper()
	Fatalf(format string, args ...any)
	Errorf(format string, args ...any)
	Name() string
}

// TreeNode is one element in a serialized tree snapshot.
type TreeNode struct {
	Element   string      `yaml:"element"`
	Widget    string      `yaml:"widget,omitempty"`
	Key       string      `yaml:"key,omitempty"`
	Lifecycle string      `yaml:"lifecycle"`
	Depth     int         `yaml:"depth"`
	Size      []float64   `yaml:"size,omitempty,flow"`
	Children  []*TreeNode `yaml:"children,omitempty"`
}

// Snapshot captures the element tree structure at one point in time.
type Snapshot struct {
	Root *TreeNode `yaml:"root"`
}

// Capture serializes the tree rooted at the given element.
func Capture(root core.Element) *Snapshot {
	snap := &Snapshot{}
	if root != nil {
		snap.Root = captureNode(root)
	}
	return snap
}

func captureNode(element core.Element) *TreeNode {
	node := &TreeNode{
		Element:   typeName(element),
		Lifecycle: element.Lifecycle().String(),
		Depth:     element.Depth(),
	}
	if widget := element.Widget(); widget != nil {
		node.Widget = typeName(widget)
		if key := widget.Key(); key != nil {
			node.Key = fmt.Sprint(key)
		}
	}
	// Size only appears on elements that own a render node directly;
	// composition elements delegate and would duplicate their child's size.
	if render, ok := element.(*core.RenderElement); ok {
		if rn := render.RenderNode(); rn != nil {
			size := rn.Size()
			node.Size = []float64{size.Width, size.Height}
		}
	}
	element.VisitChildren(func(child core.Element) bool {
		node.Children = append(node.Children, captureNode(child))
		return true
	})
	return node
}

func typeName(value any) string {
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// Marshal renders the snapshot as YAML.
func (s *Snapshot) Marshal() ([]byte, error) {
	return yaml.Marshal(s)
}

// MatchesFile compares this snapshot against a golden file. On mismatch it
// reports a diff and instructions for updating. When FLUI_UPDATE_SNAPSHOTS=1
// is set, the file is silently updated instead.
func (s *Snapshot) MatchesFile(t TestingT, path string) {
	t.Helper()

	if os.Getenv("FLUI_UPDATE_SNAPSHOTS") == "1" {
		if err := s.UpdateFile(path); err != nil {
			t.Fatalf("failed to update snapshot: %v", err)
		}
		return
	}

	expected, err := loadSnapshot(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Fatalf("snapshot file missing: %s\n\nTo create: FLUI_UPDATE_SNAPSHOTS=1 go test -run %s", path, t.Name())
			return
		}
		t.Fatalf("failed to load snapshot: %v", err)
		return
	}

	if diff := s.Diff(expected); diff != "" {
		t.Errorf("snapshot mismatch: %s\n%s\n\nTo update: FLUI_UPDATE_SNAPSHOTS=1 go test -run %s", path, diff, t.Name())
	}
}

// UpdateFile writes this snapshot to the given path, creating directories
// as needed.
func (s *Snapshot) UpdateFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Diff returns a line-oriented diff between this snapshot and other.
// Returns an empty string if equal.
func (s *Snapshot) Diff(other *Snapshot) string {
	a, _ := s.Marshal()
	b, _ := other.Marshal()
	if string(a) == string(b) {
		return ""
	}

	aLines := strings.Split(string(a), "\n")
	bLines := strings.Split(string(b), "\n")
	var sb strings.Builder
	max := len(aLines)
	if len(bLines) > max {
		max = len(bLines)
	}
	for i := 0; i < max; i++ {
		var got, want string
		if i < len(aLines) {
			got = aLines[i]
		}
		if i < len(bLines) {
			want = bLines[i]
		}
		if got != want {
			fmt.Fprintf(&sb, "line %d:\n  got:  %s\n  want: %s\n", i+1, got, want)
		}
	}
	return sb.String()
}

func loadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// DumpTree returns a human-readable indented rendering of the element tree,
// one element per line. Useful in test failure messages.
func DumpTree(root core.Element) string {
	var sb strings.Builder
	dumpElement(&sb, root, 0)
	return sb.String()
}

func dumpElement(sb *strings.Builder, element core.Element, indent int) {
	if element == nil {
		return
	}
	sb.WriteString(strings.Repeat("  ", indent))
	sb.WriteString(typeName(element))
	if widget := element.Widget(); widget != nil {
		fmt.Fprintf(sb, "(%s", typeName(widget))
		if key := widget.Key(); key != nil {
			fmt.Fprintf(sb, " key=%v", key)
		}
		sb.WriteString(")")
	}
	if render, ok := element.(interface{ RenderNode() layout.RenderNode }); ok {
		if rn := render.RenderNode(); rn != nil {
			size := rn.Size()
			fmt.Fprintf(sb, " %gx%g", size.Width, size.Height)
		}
	}
	sb.WriteString("\n")
	element.VisitChildren(func(child core.Element) bool {
		dumpElement(sb, child, indent+1)
		return true
	})
}
