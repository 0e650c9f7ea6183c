package core

import "sync"

// ElementTree assigns identities to mounted elements and indexes them for
// lookup. Identities are never reused within a process, so a stale ElementID
// can at worst miss, never alias a different element.
type ElementTree struct {
	mu       sync.RWMutex
	nextID   ElementID
	elements map[ElementID]Element
}

// NewElementTree creates an empty tree index.
func NewElementTree() *ElementTree {
	return &ElementTree{elements: make(map[ElementID]Element)}
}

// Register assigns a fresh identity to an element and indexes it.
// Called during mount.
func (t *ElementTree) Register(element Element) ElementID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.elements[id] = element
	return id
}

// Get returns the element with the given identity, or nil when it has been
// removed (or never existed).
func (t *ElementTree) Get(id ElementID) Element {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.elements[id]
}

// Contains reports whether an element with the given identity is indexed.
func (t *ElementTree) Contains(id ElementID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.elements[id]
	return ok
}

// Len returns the number of indexed elements.
func (t *ElementTree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.elements)
}

// Remove drops an element from the index. Called during unmount; children
// unmount before their parent, so removal proceeds bottom-up.
func (t *ElementTree) Remove(id ElementID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.elements, id)
}

// WalkDepthFirst visits root and its descendants pre-order. The visitor
// returns false to stop the walk.
func WalkDepthFirst(root Element, visit func(Element) bool) {
	if root == nil {
		return
	}
	walkDepthFirst(root, visit)
}

func walkDepthFirst(element Element, visit func(Element) bool) bool {
	if !visit(element) {
		return false
	}
	keepGoing := true
	element.VisitChildren(func(child Element) bool {
		if !walkDepthFirst(child, visit) {
			keepGoing = false
			return false
		}
		return true
	})
	return keepGoing
}
