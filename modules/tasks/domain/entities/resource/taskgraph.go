package resource

import "github.com/google/uuid"

// TaskGraph is an adjacency index over the task tree. Traversal is an
// iterative breadth-first worklist so subtree depth never grows the stack,
// and a seen-set keeps it terminating even if a parent cycle were ever
// introduced.
type TaskGraph struct {
	children map[uuid.UUID][]uuid.UUID
}

func NewTaskGraph(nodes []TaskNode) *TaskGraph {
	children := make(map[uuid.UUID][]uuid.UUID, len(nodes))
	for _, n := range nodes {
		if n.ParentUID == uuid.Nil {
			continue
		}
		children[n.ParentUID] = append(children[n.ParentUID], n.UID)
	}
	return &TaskGraph{children: children}
}

// Descendants returns every task below root, excluding root itself.
func (g *TaskGraph) Descendants(root uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{root: {}}
	var out []uuid.UUID
	queue := append([]uuid.UUID(nil), g.children[root]...)
	for len(queue) > 0 {
		uid := queue[0]
		queue = queue[1:]
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, uid)
		queue = append(queue, g.children[uid]...)
	}
	return out
}

// Expand returns the given roots plus all of their descendants, deduplicated.
func (g *TaskGraph) Expand(roots []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(roots))
	var out []uuid.UUID
	queue := append([]uuid.UUID(nil), roots...)
	for len(queue) > 0 {
		uid := queue[0]
		queue = queue[1:]
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, uid)
		queue = append(queue, g.children[uid]...)
	}
	return out
}
