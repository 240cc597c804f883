package fs

import (
	"sync"

	"xattrfs/internal/source"

	fusefs "bazil.org/fuse/fs"
)

// pathNode is a Dir or File that knows its current source path.
type pathNode interface {
	fusefs.Node
	base() *node
}

// nodeTable hands out one node per live path so the kernel sees a stable
// node identity, and rewrites node paths when entries are renamed.
type nodeTable struct {
	mu    sync.Mutex
	nodes map[string]pathNode
}

func newNodeTable() *nodeTable {
	return &nodeTable{nodes: make(map[string]pathNode)}
}

// lookup returns the node for p, creating it when there is none or when the
// cached one is of the other kind.
func (t *nodeTable) lookup(p source.Path, isDir bool, create func(source.Path, bool) pathNode) pathNode {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n, ok := t.nodes[p.String()]; ok {
		if _, cachedDir := n.(*Dir); cachedDir == isDir {
			return n
		}
	}
	n := create(p, isDir)
	t.nodes[p.String()] = n
	return n
}

// forget drops n if it is still the node registered for its path.
func (t *nodeTable) forget(n *node) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := n.Path().String()
	if cached, ok := t.nodes[key]; ok && cached.base() == n {
		delete(t.nodes, key)
	}
}

// remove drops the node registered for p.
func (t *nodeTable) remove(p source.Path) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.nodes, p.String())
}

// rename moves oldPath and everything beneath it to newPath. Nodes that
// lived at or beneath newPath were replaced and are dropped.
func (t *nodeTable) rename(oldPath, newPath source.Path) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var moved []pathNode
	for key, n := range t.nodes {
		p := n.base().Path()
		switch {
		case p.HasPrefix(oldPath):
			moved = append(moved, n)
			delete(t.nodes, key)
		case p.HasPrefix(newPath):
			delete(t.nodes, key)
		}
	}

	for _, n := range moved {
		b := n.base()
		rebased := b.Path().Rebase(oldPath, newPath)
		b.setPath(rebased)
		t.nodes[rebased.String()] = n
	}
}

func (t *nodeTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}
