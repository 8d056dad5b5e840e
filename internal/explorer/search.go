package explorer

import (
	"strings"

	"labtree/internal/domain"
)

type Match struct {
	NodeID string
	Kind   domain.Kind
	Path   string
}

// Search scans the materialized tree in pre-order for labels containing query,
// ignoring case. It never fetches.
func (explorer *Explorer) Search(query string) []Match {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" || explorer.tree == nil {
		return []Match{}
	}
	matches := []Match{}
	explorer.tree.Walk(func(node *domain.Node, depth int) bool {
		if depth > 0 && strings.Contains(strings.ToLower(node.Label), needle) {
			matches = append(matches, Match{
				NodeID: node.ID,
				Kind:   node.Kind,
				Path:   node.PathString(),
			})
		}
		return true
	})
	return matches
}
