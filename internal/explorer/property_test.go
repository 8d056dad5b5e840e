package explorer

import (
	"context"
	"testing"
	"time"

	"pgregory.net/rapid"

	"labtree/internal/domain"
	"labtree/internal/services"
)

func propertyRemote() *services.MockRemote {
	remote := services.NewMockRemote()
	remote.AddGroup(1, "Infra", 0)
	remote.AddGroup(2, "Web", 0)
	remote.AddGroup(3, "Core", 1)
	remote.AddGroup(4, "Edge", 3)
	remote.AddProject(10, "ProjectAlpha", 3, "main")
	remote.AddFile(10, "cmd/alpha/main.go", []byte("package main"))
	remote.AddFile(10, "README.md", []byte("alpha"))
	remote.AddProject(20, "site", 2, "main")
	remote.AddFile(20, "public/index.html", []byte("<html>"))
	return remote
}

// Every dispatch is matched by exactly one remote call, and no node is
// dispatched twice without an intervening failure or reset.
func TestExpandDispatchesAtMostOncePerNode(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		remote := propertyRemote()
		explorer := New(remote, nil, Options{})
		explorer.Initialize("host/user")
		defer explorer.Teardown()

		dispatched := map[string]int{}
		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(t, "apply") {
				select {
				case res := <-explorer.Results():
					explorer.Apply(res)
				default:
				}
				continue
			}
			var expandable []string
			explorer.Tree().Walk(func(node *domain.Node, depth int) bool {
				if node.Kind.Expandable() {
					expandable = append(expandable, node.ID)
				}
				return true
			})
			id := rapid.SampledFrom(expandable).Draw(t, "node")
			outcome, err := explorer.Expand(id)
			if err != nil {
				t.Fatalf("expand %s: %v", id, err)
			}
			if outcome == Dispatched {
				dispatched[id]++
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := explorer.Drain(ctx); err != nil {
			t.Fatalf("drain: %v", err)
		}

		total := 0
		for id, count := range dispatched {
			if count != 1 {
				t.Fatalf("node %s dispatched %d times", id, count)
			}
			total += count
			node, ok := explorer.Lookup(id)
			if !ok || node.State() != domain.Resolved {
				t.Fatalf("node %s not resolved after drain", id)
			}
		}
		if remote.TotalCalls() != total {
			t.Fatalf("remote calls %d, dispatches %d", remote.TotalCalls(), total)
		}
	})
}
