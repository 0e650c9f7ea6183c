// Package core provides the widget and element framework: immutable widget
// descriptions, the mutable element tree that retains them, and the build
// owner that drives reconciliation.
//
// # Core Types
//
// Widget is an immutable description of part of the UI. Widgets are cheap
// configuration values produced fresh on every build.
//
// Element is the instantiation of a Widget at a particular location in the
// tree. Elements carry identity and lifecycle across rebuilds: a new widget
// of the same type and key updates the existing element in place rather than
// recreating the subtree below it.
//
// BuildOwner collects elements marked dirty and rebuilds them in depth order,
// ancestors first, so no element builds twice in one frame. A frame runs as
//
//	owner.FlushBuild()
//	owner.Pipeline().FlushLayoutForRoot(root, constraints)
//	owner.FinalizeTree()
//
// # Stateful Widgets
//
// For widgets that need mutable state, embed StateBase in your state struct:
//
//	type counterState struct {
//	    core.StateBase
//	    count int
//	}
//
//	func (s *counterState) Build(ctx core.BuildContext) core.Widget {
//	    return label{text: fmt.Sprintf("count: %d", s.count)}
//	}
//
// Call s.SetState to mutate and schedule a rebuild, or hold values in
// Managed[T] to get that automatically.
//
// # Keys
//
// Widgets in a child list are matched to elements by position, unless they
// carry a key: keyed widgets find their element wherever it moved within the
// list. A GlobalKey goes further and lets a subtree move between parents in
// the same frame without losing element or state identity.
package core
