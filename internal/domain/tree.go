package domain

import "fmt"

type Tree struct {
	root  *Node
	nodes map[string]*Node
}

func NewTree(label string) *Tree {
	root := NewNode(RootID, KindCollection, label)
	return &Tree{
		root:  root,
		nodes: map[string]*Node{root.ID: root},
	}
}

func (tree *Tree) Root() *Node {
	return tree.root
}

func (tree *Tree) Len() int {
	return len(tree.nodes)
}

func (tree *Tree) Lookup(id string) (*Node, bool) {
	node, ok := tree.nodes[id]
	return node, ok
}

// Contains reports whether this exact node is still attached to the tree.
func (tree *Tree) Contains(node *Node) bool {
	if node == nil {
		return false
	}
	indexed, ok := tree.nodes[node.ID]
	return ok && indexed == node
}

func (tree *Tree) Resolve(node *Node, children []*Node) error {
	for _, child := range children {
		existing, ok := tree.nodes[child.ID]
		if ok && existing != child && !existing.IsDescendantOf(node) {
			return fmt.Errorf("%s: %w", child.ID, ErrDuplicateID)
		}
	}
	previous := node.Children()
	if err := node.ApplyResolved(children); err != nil {
		return err
	}
	for _, child := range previous {
		tree.unindex(child)
	}
	for _, child := range children {
		tree.index(child)
	}
	return nil
}

func (tree *Tree) Fail(node *Node, reason error) {
	previous := node.Children()
	node.MarkFailed(reason)
	for _, child := range previous {
		tree.unindex(child)
	}
}

func (tree *Tree) Reset(node *Node) {
	previous := node.Children()
	node.Reset()
	for _, child := range previous {
		tree.unindex(child)
	}
}

// Walk visits nodes in pre-order; returning false from fn skips that node's children.
func (tree *Tree) Walk(fn func(node *Node, depth int) bool) {
	walk(tree.root, 0, fn)
}

func walk(node *Node, depth int, fn func(*Node, int) bool) {
	if !fn(node, depth) {
		return
	}
	for _, child := range node.children {
		walk(child, depth+1, fn)
	}
}

func (tree *Tree) index(node *Node) {
	tree.nodes[node.ID] = node
	for _, child := range node.children {
		tree.index(child)
	}
}

func (tree *Tree) unindex(node *Node) {
	if indexed, ok := tree.nodes[node.ID]; ok && indexed == node {
		delete(tree.nodes, node.ID)
	}
	for _, child := range node.children {
		tree.unindex(child)
	}
}
