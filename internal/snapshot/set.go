package snapshot

import (
	"fmt"
	"sort"
)

func (s Snapshot) Clone() Snapshot {
	out := Snapshot{Meta: s.Meta}
	if s.Nodes != nil {
		out.Nodes = append(make([]NodeSummary, 0, len(s.Nodes)), s.Nodes...)
	}
	if s.Edges != nil {
		out.Edges = append(make([]EdgeSummary, 0, len(s.Edges)), s.Edges...)
	}
	return out
}

func (s Snapshot) HasNode(id int64) bool {
	for _, node := range s.Nodes {
		if node.ID == id {
			return true
		}
	}
	return false
}

// NodeIDs returns the node ids in ascending order.
func (s Snapshot) NodeIDs() []int64 {
	ids := make([]int64, 0, len(s.Nodes))
	for _, node := range s.Nodes {
		ids = append(ids, node.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Snapshot) AddNode(node NodeSummary) error {
	if node.ID <= 0 {
		return fmt.Errorf("node id %d is not canonical", node.ID)
	}
	if s.HasNode(node.ID) {
		return fmt.Errorf("%w: %d", ErrNodeExists, node.ID)
	}
	s.Nodes = append(s.Nodes, node)
	return nil
}

// RemoveNode drops the node and every edge that references it. It returns the
// edges removed by the cascade.
func (s *Snapshot) RemoveNode(id int64) ([]EdgeSummary, error) {
	index := -1
	for i, node := range s.Nodes {
		if node.ID == id {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNodeMissing, id)
	}
	s.Nodes = append(s.Nodes[:index:index], s.Nodes[index+1:]...)

	kept := make([]EdgeSummary, 0, len(s.Edges))
	var dropped []EdgeSummary
	for _, edge := range s.Edges {
		if edge.touches(id) {
			dropped = append(dropped, edge)
			continue
		}
		kept = append(kept, edge)
	}
	s.Edges = kept
	return dropped, nil
}

func (s Snapshot) Edge(ref EdgeRef) (EdgeSummary, bool) {
	for _, edge := range s.Edges {
		if edge.Ref == ref {
			return edge, true
		}
	}
	return EdgeSummary{}, false
}

func (s *Snapshot) AddEdge(edge EdgeSummary) error {
	if err := edge.validate(); err != nil {
		return err
	}
	if _, ok := s.Edge(edge.Ref); ok {
		return fmt.Errorf("%w: %s", ErrEdgeExists, edge.Ref)
	}
	s.Edges = append(s.Edges, edge)
	return nil
}

func (s *Snapshot) RemoveEdge(ref EdgeRef) error {
	for i, edge := range s.Edges {
		if edge.Ref == ref {
			s.Edges = append(s.Edges[:i:i], s.Edges[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrEdgeMissing, ref)
}

// ProposedEdges returns the edges that have no canonical id yet.
func (s Snapshot) ProposedEdges() []EdgeSummary {
	var out []EdgeSummary
	for _, edge := range s.Edges {
		if edge.Ref.IsProposed() {
			out = append(out, edge)
		}
	}
	return out
}
