package snapshot

import "sort"

// Equal compares two snapshots structurally. Node and edge order is ignored.
func Equal(a, b Snapshot) bool {
	if a.Meta != b.Meta {
		return false
	}
	return nodesEqual(a.Nodes, b.Nodes) && edgesEqual(a.Edges, b.Edges)
}

func nodesEqual(a, b []NodeSummary) bool {
	if len(a) != len(b) {
		return false
	}
	byID := make(map[int64]NodeSummary, len(a))
	for _, node := range a {
		byID[node.ID] = node
	}
	if len(byID) != len(a) {
		return false
	}
	for _, node := range b {
		other, ok := byID[node.ID]
		if !ok || other != node {
			return false
		}
		delete(byID, node.ID)
	}
	return len(byID) == 0
}

func edgesEqual(a, b []EdgeSummary) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[EdgeSummary]int, len(a))
	for _, edge := range a {
		counts[edge]++
	}
	for _, edge := range b {
		if counts[edge] == 0 {
			return false
		}
		counts[edge]--
	}
	return true
}

// Changes lists what a working copy adds to or removes from its baseline.
type Changes struct {
	MetaChanged  bool          `json:"metaChanged"`
	AddedNodes   []int64       `json:"addedNodes"`
	RemovedNodes []int64       `json:"removedNodes"`
	AddedEdges   []EdgeSummary `json:"addedEdges"`
	RemovedEdges []EdgeSummary `json:"removedEdges"`
}

func (c Changes) Empty() bool {
	return !c.MetaChanged &&
		len(c.AddedNodes) == 0 &&
		len(c.RemovedNodes) == 0 &&
		len(c.AddedEdges) == 0 &&
		len(c.RemovedEdges) == 0
}

func Diff(original, working Snapshot) Changes {
	changes := Changes{
		MetaChanged:  original.Meta != working.Meta,
		AddedNodes:   []int64{},
		RemovedNodes: []int64{},
		AddedEdges:   []EdgeSummary{},
		RemovedEdges: []EdgeSummary{},
	}

	for _, node := range working.Nodes {
		if !original.HasNode(node.ID) {
			changes.AddedNodes = append(changes.AddedNodes, node.ID)
		}
	}
	for _, node := range original.Nodes {
		if !working.HasNode(node.ID) {
			changes.RemovedNodes = append(changes.RemovedNodes, node.ID)
		}
	}
	for _, edge := range working.Edges {
		if _, ok := original.Edge(edge.Ref); !ok {
			changes.AddedEdges = append(changes.AddedEdges, edge)
		}
	}
	for _, edge := range original.Edges {
		if _, ok := working.Edge(edge.Ref); !ok {
			changes.RemovedEdges = append(changes.RemovedEdges, edge)
		}
	}

	sortIDs(changes.AddedNodes)
	sortIDs(changes.RemovedNodes)
	sortEdges(changes.AddedEdges)
	sortEdges(changes.RemovedEdges)
	return changes
}

// SetDifference returns the ids of a that are not in b, ascending.
func SetDifference(a, b []int64) []int64 {
	exclude := make(map[int64]struct{}, len(b))
	for _, id := range b {
		exclude[id] = struct{}{}
	}
	seen := make(map[int64]struct{}, len(a))
	out := make([]int64, 0)
	for _, id := range a {
		if _, skip := exclude[id]; skip {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// sortEdges orders existing edges by id ahead of proposed edges by token.
func sortEdges(edges []EdgeSummary) {
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i].Ref, edges[j].Ref
		if a.IsProposed() != b.IsProposed() {
			return !a.IsProposed()
		}
		if a.IsProposed() {
			return a.token < b.token
		}
		return a.id < b.id
	})
}
