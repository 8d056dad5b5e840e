package state

import (
	"path"
	"strings"

	"labtree/internal/config"
	"labtree/internal/domain"
)

type Preferences struct {
	Theme      string
	DefaultRef string
}

type State struct {
	Host            string
	Cursor          int
	Expanded        map[string]bool
	Prefs           Preferences
	Tree            *domain.Tree
	LastDownloadDir string
	SearchQuery     string
	FilterExt       string
	matches         map[string]bool
}

func NewState(cfg config.Config) *State {
	return &State{
		Host:     cfg.Host,
		Cursor:   0,
		Expanded: map[string]bool{domain.RootID: true},
		Prefs: Preferences{
			Theme:      cfg.Theme,
			DefaultRef: cfg.Ref,
		},
		LastDownloadDir: cfg.DownloadDir,
		SearchQuery:     "",
		FilterExt:       "",
	}
}

// SetTree swaps in a tree and forgets open rows and matches that no longer exist.
func (appState *State) SetTree(tree *domain.Tree) {
	appState.Tree = tree
	filteredExpanded := make(map[string]bool, len(appState.Expanded))
	if tree != nil {
		for id := range appState.Expanded {
			if _, ok := tree.Lookup(id); ok {
				filteredExpanded[id] = true
			}
		}
	}
	filteredExpanded[domain.RootID] = true
	appState.Expanded = filteredExpanded
	for id := range appState.matches {
		if tree == nil {
			delete(appState.matches, id)
			continue
		}
		if _, ok := tree.Lookup(id); !ok {
			delete(appState.matches, id)
		}
	}
	appState.clampCursor()
}

type VisibleNode struct {
	Node  *domain.Node
	Depth int
	Match bool
}

func (appState *State) VisibleNodes() []VisibleNode {
	if appState.Tree == nil {
		return nil
	}
	visible := make([]VisibleNode, 0, appState.Tree.Len())
	appState.appendNode(&visible, appState.Tree.Root(), 0)
	return visible
}

func (appState *State) CurrentNode() *domain.Node {
	visible := appState.VisibleNodes()
	if len(visible) == 0 || appState.Cursor < 0 || appState.Cursor >= len(visible) {
		return nil
	}
	return visible[appState.Cursor].Node
}

func (appState *State) MoveCursor(delta int) {
	appState.Cursor += delta
	appState.clampCursor()
}

func (appState *State) CursorTo(id string) bool {
	for index, row := range appState.VisibleNodes() {
		if row.Node.ID == id {
			appState.Cursor = index
			return true
		}
	}
	return false
}

func (appState *State) clampCursor() {
	count := len(appState.VisibleNodes())
	if appState.Cursor >= count {
		appState.Cursor = count - 1
	}
	if appState.Cursor < 0 {
		appState.Cursor = 0
	}
}

func (appState *State) ToggleExpanded(id string) bool {
	if id == "" {
		return false
	}
	appState.Expanded[id] = !appState.Expanded[id]
	return appState.Expanded[id]
}

func (appState *State) SetExpanded(id string, open bool) {
	if id == "" {
		return
	}
	if open {
		appState.Expanded[id] = true
		return
	}
	delete(appState.Expanded, id)
}

func (appState *State) IsExpanded(id string) bool {
	return appState.Expanded[id]
}

// Collapse closes the current row, or moves to its parent when it is already closed.
func (appState *State) Collapse() {
	node := appState.CurrentNode()
	if node == nil {
		return
	}
	if appState.IsExpanded(node.ID) && node.ID != domain.RootID {
		appState.SetExpanded(node.ID, false)
		appState.clampCursor()
		return
	}
	if parent := node.Parent(); parent != nil {
		appState.CursorTo(parent.ID)
	}
}

// ApplySearch records the match ids and opens every ancestor so matches are on screen.
func (appState *State) ApplySearch(query string, ids []string) {
	appState.SearchQuery = query
	appState.matches = make(map[string]bool, len(ids))
	for _, id := range ids {
		appState.matches[id] = true
		if appState.Tree == nil {
			continue
		}
		node, ok := appState.Tree.Lookup(id)
		if !ok {
			continue
		}
		for parent := node.Parent(); parent != nil; parent = parent.Parent() {
			appState.Expanded[parent.ID] = true
		}
	}
	if len(ids) > 0 {
		appState.CursorTo(ids[0])
	} else {
		appState.clampCursor()
	}
}

func (appState *State) MatchCount() int {
	return len(appState.matches)
}

func (appState *State) ClearFilters() {
	appState.SearchQuery = ""
	appState.FilterExt = ""
	appState.matches = nil
	appState.clampCursor()
}

func (appState *State) filtering() bool {
	return appState.SearchQuery != "" || appState.FilterExt != ""
}

func (appState *State) appendNode(visible *[]VisibleNode, node *domain.Node, depth int) {
	if node == nil {
		return
	}
	if !appState.filtering() {
		*visible = append(*visible, VisibleNode{Node: node, Depth: depth})
		if !appState.IsExpanded(node.ID) {
			return
		}
		for _, child := range node.Children() {
			appState.appendNode(visible, child, depth+1)
		}
		return
	}
	children := node.Children()
	filteredChildren := make([]*domain.Node, 0, len(children))
	for _, child := range children {
		if appState.nodeMatches(child) || appState.hasMatchBelow(child) {
			filteredChildren = append(filteredChildren, child)
		}
	}
	matched := appState.nodeMatches(node)
	if node.Kind == domain.KindCollection || matched || len(filteredChildren) > 0 {
		*visible = append(*visible, VisibleNode{Node: node, Depth: depth, Match: matched})
		if !appState.IsExpanded(node.ID) {
			return
		}
		for _, child := range filteredChildren {
			appState.appendNode(visible, child, depth+1)
		}
	}
}

func (appState *State) nodeMatches(node *domain.Node) bool {
	if node == nil || node.Kind == domain.KindCollection {
		return false
	}
	if appState.SearchQuery != "" && !appState.matches[node.ID] {
		return false
	}
	if appState.FilterExt != "" {
		if node.Kind != domain.KindFile {
			return false
		}
		filter := strings.ToLower(strings.TrimPrefix(appState.FilterExt, "."))
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(node.Label), "."))
		if ext != filter {
			return false
		}
	}
	return true
}

func (appState *State) hasMatchBelow(node *domain.Node) bool {
	for _, child := range node.Children() {
		if appState.nodeMatches(child) || appState.hasMatchBelow(child) {
			return true
		}
	}
	return false
}
