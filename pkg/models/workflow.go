package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// StartSource is the implicit source of the first step of every workflow.
	StartSource = "start"
	// EndSource marks the terminal position of a workflow.
	EndSource = "end"
	// AnyLabel is the label sentinel meaning "match on source only".
	AnyLabel = "..."
	// EdgeTypeEnd is the data.type of the synthetic terminal edge.
	EdgeTypeEnd = "end"

	workflowCodePrefix = "W"
)

// ErrInvalidWorkflowCode is returned when a workflow code does not carry a numeric id.
var ErrInvalidWorkflowCode = errors.New("invalid workflow code")

// WorkflowGraph is the externally authored node/edge definition of a business process.
type WorkflowGraph struct {
	FlowsCode      string                 `json:"flows_code" bson:"flows_code"`
	Name           string                 `json:"name,omitempty" bson:"name,omitempty"`
	Version        string                 `json:"version,omitempty" bson:"version,omitempty"`
	Nodes          []Node                 `json:"nodes" bson:"nodes"`
	Edges          []Edge                 `json:"edges" bson:"edges"`
	ProcessingTime time.Time              `json:"processing_time" bson:"processing_time"`
	Extra          map[string]interface{} `json:"-" bson:",inline"`
}

// Node is a single workflow node. Editor specific attributes land in Extra.
type Node struct {
	ID    string                 `json:"id" bson:"id"`
	Type  string                 `json:"type,omitempty" bson:"type,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty" bson:"data,omitempty"`
	Extra map[string]interface{} `json:"-" bson:",inline"`
}

// Edge connects two nodes. Several edges may share a source with different labels.
type Edge struct {
	ID     string                 `json:"id,omitempty" bson:"id,omitempty"`
	Source string                 `json:"source" bson:"source"`
	Target string                 `json:"target" bson:"target"`
	Data   EdgeData               `json:"data" bson:"data"`
	Extra  map[string]interface{} `json:"-" bson:",inline"`
}

// EdgeData carries the branch label and identity of an edge.
type EdgeData struct {
	Label string                 `json:"label" bson:"label"`
	ID    string                 `json:"id" bson:"id"`
	Type  string                 `json:"type" bson:"type"`
	Extra map[string]interface{} `json:"-" bson:",inline"`
}

// IsEnd reports whether the edge routes to the terminal position.
func (e *Edge) IsEnd() bool {
	return e != nil && e.Source == EndSource && e.Target == EndSource
}

// NormalizeCode returns code in its canonical "W<id>" form.
func NormalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return code
	}
	if strings.HasPrefix(code, workflowCodePrefix) || strings.HasPrefix(code, "w") {
		return workflowCodePrefix + code[1:]
	}
	return workflowCodePrefix + code
}

// ParseWorkflowID extracts the numeric workflow id from a workflow code.
// Both "W12" and "12" yield 12.
func ParseWorkflowID(code string) (int, error) {
	trimmed := strings.TrimSpace(code)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, workflowCodePrefix), "w")
	id, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidWorkflowCode, code)
	}
	return id, nil
}

// WorkflowID returns the numeric id encoded in FlowsCode.
func (g *WorkflowGraph) WorkflowID() (int, error) {
	return ParseWorkflowID(g.FlowsCode)
}

// FindEdgeBySource returns the first edge, in document order, whose source
// equals sourceID. The comparison is case-sensitive.
func (g *WorkflowGraph) FindEdgeBySource(sourceID string) *Edge {
	if g == nil {
		return nil
	}
	for i := range g.Edges {
		if g.Edges[i].Source == sourceID {
			e := g.Edges[i]
			return &e
		}
	}
	return nil
}

// FindEdgeBySourceAndLabel returns the first edge matching both source and data.label.
func (g *WorkflowGraph) FindEdgeBySourceAndLabel(sourceID, label string) *Edge {
	if g == nil {
		return nil
	}
	for i := range g.Edges {
		if g.Edges[i].Source == sourceID && g.Edges[i].Data.Label == label {
			e := g.Edges[i]
			return &e
		}
	}
	return nil
}

// FindEdgeByTarget returns the first edge pointing at targetID. A blank or
// AnyLabel label disables the label filter.
func (g *WorkflowGraph) FindEdgeByTarget(targetID, label string) *Edge {
	if g == nil {
		return nil
	}
	anyLabel := IsAnyLabel(label)
	for i := range g.Edges {
		if g.Edges[i].Target != targetID {
			continue
		}
		if anyLabel || g.Edges[i].Data.Label == label {
			e := g.Edges[i]
			return &e
		}
	}
	return nil
}

// FindNodeByID looks a node up by id, ignoring case.
func (g *WorkflowGraph) FindNodeByID(nodeID string) *Node {
	if g == nil {
		return nil
	}
	for i := range g.Nodes {
		if strings.EqualFold(g.Nodes[i].ID, nodeID) {
			n := g.Nodes[i]
			return &n
		}
	}
	return nil
}

// IsAnyLabel reports whether label asks for a source-only lookup.
func IsAnyLabel(label string) bool {
	label = strings.TrimSpace(label)
	return label == "" || label == AnyLabel
}

// MarshalJSON folds Extra into the encoded object.
func (g WorkflowGraph) MarshalJSON() ([]byte, error) {
	type alias WorkflowGraph
	return marshalWithExtra(alias(g), g.Extra)
}

// UnmarshalJSON keeps unknown attributes in Extra.
func (g *WorkflowGraph) UnmarshalJSON(data []byte) error {
	type alias WorkflowGraph
	typed, extra, err := splitObject(data, "flows_code", "name", "version", "nodes", "edges", "processing_time")
	if err != nil {
		return err
	}
	var a alias
	if err := json.Unmarshal(typed, &a); err != nil {
		return err
	}
	a.Extra = extra
	*g = WorkflowGraph(a)
	return nil
}

// MarshalJSON folds Extra into the encoded object.
func (n Node) MarshalJSON() ([]byte, error) {
	type alias Node
	return marshalWithExtra(alias(n), n.Extra)
}

// UnmarshalJSON keeps unknown attributes in Extra.
func (n *Node) UnmarshalJSON(data []byte) error {
	type alias Node
	typed, extra, err := splitObject(data, "id", "type", "data")
	if err != nil {
		return err
	}
	var a alias
	if err := json.Unmarshal(typed, &a); err != nil {
		return err
	}
	a.Extra = extra
	*n = Node(a)
	return nil
}

// MarshalJSON folds Extra into the encoded object.
func (e Edge) MarshalJSON() ([]byte, error) {
	type alias Edge
	return marshalWithExtra(alias(e), e.Extra)
}

// UnmarshalJSON keeps unknown attributes in Extra.
func (e *Edge) UnmarshalJSON(data []byte) error {
	type alias Edge
	typed, extra, err := splitObject(data, "id", "source", "target", "data")
	if err != nil {
		return err
	}
	var a alias
	if err := json.Unmarshal(typed, &a); err != nil {
		return err
	}
	a.Extra = extra
	*e = Edge(a)
	return nil
}

// MarshalJSON folds Extra into the encoded object.
func (d EdgeData) MarshalJSON() ([]byte, error) {
	type alias EdgeData
	return marshalWithExtra(alias(d), d.Extra)
}

// UnmarshalJSON keeps unknown attributes in Extra.
func (d *EdgeData) UnmarshalJSON(data []byte) error {
	type alias EdgeData
	typed, extra, err := splitObject(data, "label", "id", "type")
	if err != nil {
		return err
	}
	var a alias
	if err := json.Unmarshal(typed, &a); err != nil {
		return err
	}
	a.Extra = extra
	*d = EdgeData(a)
	return nil
}
