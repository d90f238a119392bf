package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"workflow-engine/backend/pkg/models"
)

// Navigator resolves the next edge of a workflow from a current position.
// It never fails: a missing path resolves to a synthetic end edge.
type Navigator struct {
	logger  Logger
	newID   func() string
	metrics *instruments
}

// NextStep is the resolved edge together with its target node, if the graph defines one.
type NextStep struct {
	Edge *models.Edge `json:"edge"`
	Node *models.Node `json:"node,omitempty"`
}

// NewNavigator creates a Navigator.
func NewNavigator(logger Logger) *Navigator {
	return &Navigator{
		logger:  orNop(logger),
		newID:   uuid.NewString,
		metrics: newInstruments(),
	}
}

// GetNextAction returns the edge to follow from sourceID. A blank source
// means "start"; a blank or "..." label matches on source only.
func (n *Navigator) GetNextAction(ctx context.Context, graph *models.WorkflowGraph, sourceID, label string) *models.Edge {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" {
		sourceID = models.StartSource
	}

	var edge *models.Edge
	if models.IsAnyLabel(label) {
		edge = graph.FindEdgeBySource(sourceID)
	} else {
		edge = graph.FindEdgeBySourceAndLabel(sourceID, label)
	}
	if edge != nil {
		return edge
	}

	code := ""
	if graph != nil {
		code = graph.FlowsCode
	}
	n.logger.Debug("no outgoing edge, routing to end", "flows_code", code, "source_id", sourceID, "label", label)
	n.metrics.endEdges.Add(ctx, 1)
	return EndEdge(n.newID())
}

// NextStep resolves the next edge and looks up its target node.
func (n *Navigator) NextStep(ctx context.Context, graph *models.WorkflowGraph, sourceID, label string) NextStep {
	edge := n.GetNextAction(ctx, graph, sourceID, label)
	if edge.IsEnd() {
		return NextStep{Edge: edge}
	}
	return NextStep{Edge: edge, Node: graph.FindNodeByID(edge.Target)}
}

// EndEdge builds the synthetic terminal edge with the given data id.
func EndEdge(id string) *models.Edge {
	return &models.Edge{
		Source: models.EndSource,
		Target: models.EndSource,
		Data: models.EdgeData{
			Label: models.AnyLabel,
			ID:    id,
			Type:  models.EdgeTypeEnd,
		},
	}
}
