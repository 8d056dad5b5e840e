package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInFlight        = errors.New("resolution already in flight")
	ErrAlreadyResolved = errors.New("node already resolved")
	ErrNotExpandable   = errors.New("node kind has no children")
	ErrIllegalChild    = errors.New("illegal child kind")
	ErrDuplicateID     = errors.New("duplicate node id")
)

const RootID = "root"

type Metadata struct {
	FullPath  string `json:"fullPath,omitempty"`
	ProjectID int64  `json:"projectId,omitempty"`
	Path      string `json:"path,omitempty"`
	Ref       string `json:"ref,omitempty"`
	SHA       string `json:"sha,omitempty"`
	Size      int64  `json:"size,omitempty"`
	WebURL    string `json:"webUrl,omitempty"`
}

type Node struct {
	ID       string
	RemoteID int64
	Kind     Kind
	Label    string
	Meta     Metadata

	parent    *Node
	children  []*Node
	state     ResolutionState
	failure   error
	observers map[int]func(*Node)
	nextWatch int
}

func NewNode(id string, kind Kind, label string) *Node {
	return &Node{ID: id, Kind: kind, Label: label}
}

func GroupNodeID(groupID int64) string {
	return "group:" + strconv.FormatInt(groupID, 10)
}

func ProjectNodeID(projectID int64) string {
	return "project:" + strconv.FormatInt(projectID, 10)
}

func RepoNodeID(projectID int64, path string) string {
	return "repo:" + strconv.FormatInt(projectID, 10) + ":" + path
}

func (node *Node) Parent() *Node {
	return node.parent
}

func (node *Node) Children() []*Node {
	return append([]*Node(nil), node.children...)
}

func (node *Node) ChildCount() int {
	return len(node.children)
}

func (node *Node) State() ResolutionState {
	return node.state
}

func (node *Node) IsResolved() bool {
	return node.state == Resolved
}

// Err is the reason recorded by the last MarkFailed, nil otherwise.
func (node *Node) Err() error {
	return node.failure
}

func (node *Node) MarkResolving() error {
	if !node.Kind.Expandable() {
		return fmt.Errorf("%s %s: %w", node.Kind, node.ID, ErrNotExpandable)
	}
	switch node.state {
	case Resolving:
		return ErrInFlight
	case Resolved:
		return ErrAlreadyResolved
	}
	node.state = Resolving
	node.failure = nil
	node.notify()
	return nil
}

// ApplyResolved replaces the children wholesale and marks the node Resolved.
func (node *Node) ApplyResolved(children []*Node) error {
	if !node.Kind.Expandable() && len(children) > 0 {
		return fmt.Errorf("%s %s: %w", node.Kind, node.ID, ErrNotExpandable)
	}
	seen := make(map[string]struct{}, len(children))
	for _, child := range children {
		if !node.Kind.Allows(child.Kind) {
			return fmt.Errorf("%s under %s: %w", child.Kind, node.Kind, ErrIllegalChild)
		}
		if _, dup := seen[child.ID]; dup {
			return fmt.Errorf("%s: %w", child.ID, ErrDuplicateID)
		}
		seen[child.ID] = struct{}{}
	}
	node.detachChildren()
	node.children = make([]*Node, 0, len(children))
	for _, child := range children {
		child.parent = node
		node.children = append(node.children, child)
	}
	node.state = Resolved
	node.failure = nil
	node.notify()
	return nil
}

func (node *Node) MarkFailed(reason error) {
	if reason == nil {
		reason = errors.New("resolution failed")
	}
	node.detachChildren()
	node.state = Failed
	node.failure = reason
	node.notify()
}

// Reset drops the children and returns the node to Unresolved.
func (node *Node) Reset() {
	node.detachChildren()
	node.state = Unresolved
	node.failure = nil
	node.notify()
}

// Watch registers fn to run after every state change of this node.
func (node *Node) Watch(fn func(*Node)) (cancel func()) {
	if node.observers == nil {
		node.observers = make(map[int]func(*Node))
	}
	id := node.nextWatch
	node.nextWatch++
	node.observers[id] = fn
	return func() {
		delete(node.observers, id)
	}
}

func (node *Node) notify() {
	for _, fn := range node.observers {
		fn(node)
	}
}

func (node *Node) detachChildren() {
	for _, child := range node.children {
		child.parent = nil
	}
	node.children = nil
}

func (node *Node) Depth() int {
	depth := 0
	for current := node.parent; current != nil; current = current.parent {
		depth++
	}
	return depth
}

// Lineage returns the nodes from the root down to and including node.
func (node *Node) Lineage() []*Node {
	lineage := make([]*Node, 0, node.Depth()+1)
	for current := node; current != nil; current = current.parent {
		lineage = append(lineage, current)
	}
	for left, right := 0, len(lineage)-1; left < right; left, right = left+1, right-1 {
		lineage[left], lineage[right] = lineage[right], lineage[left]
	}
	return lineage
}

// PathString joins the labels below the synthetic root with " / ".
func (node *Node) PathString() string {
	labels := make([]string, 0, node.Depth())
	for _, current := range node.Lineage() {
		if current.Kind == KindCollection {
			continue
		}
		labels = append(labels, current.Label)
	}
	return strings.Join(labels, " / ")
}

func (node *Node) IsDescendantOf(ancestor *Node) bool {
	for current := node.parent; current != nil; current = current.parent {
		if current == ancestor {
			return true
		}
	}
	return false
}
