package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// edgeWire is the portable edge form. Existing edges carry a positive id,
// proposed edges carry a token instead. Negative ids are accepted on decode
// for payloads written before proposal tokens existed.
type edgeWire struct {
	ID           int64        `json:"id,omitempty"`
	Proposed     string       `json:"proposed,omitempty"`
	TreeID       int64        `json:"treeId"`
	SourceNodeID int64        `json:"sourceNodeId"`
	TargetNodeID int64        `json:"targetNodeId"`
	RelationType RelationType `json:"relationType"`
}

func (e EdgeSummary) MarshalJSON() ([]byte, error) {
	wire := edgeWire{
		TreeID:       e.TreeID,
		SourceNodeID: e.SourceID,
		TargetNodeID: e.TargetID,
		RelationType: e.Type,
	}
	if e.Ref.IsProposed() {
		wire.Proposed = e.Ref.token
	} else {
		wire.ID = e.Ref.id
	}
	return json.Marshal(wire)
}

func (e *EdgeSummary) UnmarshalJSON(data []byte) error {
	var wire edgeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	var ref EdgeRef
	switch {
	case wire.Proposed != "" && wire.ID != 0:
		return fmt.Errorf("edge has both id %d and proposal %q", wire.ID, wire.Proposed)
	case wire.Proposed != "":
		ref = Proposed(wire.Proposed)
	case wire.ID > 0:
		ref = Existing(wire.ID)
	case wire.ID < 0:
		ref = legacyProposed(wire.ID)
	default:
		return fmt.Errorf("edge without id")
	}
	decoded := EdgeSummary{
		Ref:      ref,
		TreeID:   wire.TreeID,
		SourceID: wire.SourceNodeID,
		TargetID: wire.TargetNodeID,
		Type:     wire.RelationType,
	}
	if err := decoded.validate(); err != nil {
		return err
	}
	*e = decoded
	return nil
}

// EncodeNodes writes the node-set in ascending id order so equal sets encode
// to equal bytes.
func EncodeNodes(nodes []NodeSummary) ([]byte, error) {
	sorted := append(make([]NodeSummary, 0, len(nodes)), nodes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	payload, err := json.Marshal(sorted)
	if err != nil {
		return nil, fmt.Errorf("%w: encode nodes: %v", ErrCodec, err)
	}
	return payload, nil
}

func DecodeNodes(data []byte) ([]NodeSummary, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty node payload", ErrCodec)
	}
	var nodes []NodeSummary
	if err := json.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("%w: decode nodes: %v", ErrCodec, err)
	}
	if nodes == nil {
		nodes = []NodeSummary{}
	}
	seen := make(map[int64]struct{}, len(nodes))
	for _, node := range nodes {
		if node.ID <= 0 {
			return nil, fmt.Errorf("%w: node id %d is not canonical", ErrCodec, node.ID)
		}
		if _, dup := seen[node.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node %d", ErrCodec, node.ID)
		}
		seen[node.ID] = struct{}{}
	}
	return nodes, nil
}

func EncodeEdges(edges []EdgeSummary) ([]byte, error) {
	sorted := append(make([]EdgeSummary, 0, len(edges)), edges...)
	sortEdges(sorted)
	for _, edge := range sorted {
		if err := edge.validate(); err != nil {
			return nil, fmt.Errorf("%w: encode edges: %v", ErrCodec, err)
		}
	}
	payload, err := json.Marshal(sorted)
	if err != nil {
		return nil, fmt.Errorf("%w: encode edges: %v", ErrCodec, err)
	}
	return payload, nil
}

func DecodeEdges(data []byte) ([]EdgeSummary, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty edge payload", ErrCodec)
	}
	var edges []EdgeSummary
	if err := json.Unmarshal(data, &edges); err != nil {
		return nil, fmt.Errorf("%w: decode edges: %v", ErrCodec, err)
	}
	if edges == nil {
		edges = []EdgeSummary{}
	}
	seen := make(map[EdgeRef]struct{}, len(edges))
	for _, edge := range edges {
		if _, dup := seen[edge.Ref]; dup {
			return nil, fmt.Errorf("%w: duplicate edge %s", ErrCodec, edge.Ref)
		}
		seen[edge.Ref] = struct{}{}
	}
	return edges, nil
}

type document struct {
	Meta  Meta            `json:"meta"`
	Nodes json.RawMessage `json:"nodes"`
	Edges json.RawMessage `json:"edges"`
}

// Encode writes a whole snapshot as one JSON document.
func Encode(s Snapshot) ([]byte, error) {
	nodes, err := EncodeNodes(s.Nodes)
	if err != nil {
		return nil, err
	}
	edges, err := EncodeEdges(s.Edges)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(document{Meta: s.Meta, Nodes: nodes, Edges: edges})
	if err != nil {
		return nil, fmt.Errorf("%w: encode snapshot: %v", ErrCodec, err)
	}
	return payload, nil
}

func Decode(data []byte) (Snapshot, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decode snapshot: %v", ErrCodec, err)
	}
	nodes, err := DecodeNodes(doc.Nodes)
	if err != nil {
		return Snapshot{}, err
	}
	edges, err := DecodeEdges(doc.Edges)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Meta: doc.Meta, Nodes: nodes, Edges: edges}, nil
}
