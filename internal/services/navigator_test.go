package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workflow-engine/backend/pkg/models"
)

func TestNavigatorStartToEnd(t *testing.T) {
	ctx := context.Background()
	nav := NewNavigator(nil)
	graph := &models.WorkflowGraph{
		FlowsCode: "W1",
		Nodes:     []models.Node{{ID: "start"}, {ID: "A"}, {ID: "end"}},
		Edges: []models.Edge{
			{ID: "e1", Source: "start", Target: "A", Data: models.EdgeData{Label: "go"}},
		},
	}

	first := nav.GetNextAction(ctx, graph, "", "go")
	require.NotNil(t, first)
	assert.Equal(t, "e1", first.ID)
	assert.Equal(t, "A", first.Target)

	last := nav.GetNextAction(ctx, graph, "A", "")
	assert.True(t, last.IsEnd())
	assert.Equal(t, models.EndSource, last.Source)
	assert.Equal(t, models.EndSource, last.Target)
	assert.Equal(t, models.AnyLabel, last.Data.Label)
	assert.Equal(t, models.EdgeTypeEnd, last.Data.Type)
}

func TestNavigatorEndEdgeIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	nav := NewNavigator(nil)
	graph := sampleGraph()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		edge := nav.GetNextAction(ctx, graph, "missing", "")
		require.True(t, edge.IsEnd())
		require.NotEmpty(t, edge.Data.ID)
		assert.False(t, seen[edge.Data.ID], "duplicate end edge id %s", edge.Data.ID)
		seen[edge.Data.ID] = true
	}
}

func TestNavigatorLabelSelection(t *testing.T) {
	ctx := context.Background()
	nav := NewNavigator(nil)
	graph := sampleGraph()

	tests := []struct {
		name   string
		source string
		label  string
		want   string
	}{
		{"exact label", "A", "reject", "e-a-c"},
		{"blank label takes first", "A", "", "e-a-b"},
		{"any label takes first", "A", models.AnyLabel, "e-a-b"},
		{"blank source means start", " ", "go", "e-start-a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edge := nav.GetNextAction(ctx, graph, tt.source, tt.label)
			assert.Equal(t, tt.want, edge.ID)
		})
	}
}

func TestNavigatorUnknownLabelRoutesToEnd(t *testing.T) {
	edge := NewNavigator(nil).GetNextAction(context.Background(), sampleGraph(), "A", "escalate")
	assert.True(t, edge.IsEnd())
}

func TestNavigatorSourceIsCaseSensitive(t *testing.T) {
	edge := NewNavigator(nil).GetNextAction(context.Background(), sampleGraph(), "a", "approve")
	assert.True(t, edge.IsEnd())
}

func TestNavigatorNilGraph(t *testing.T) {
	edge := NewNavigator(nil).GetNextAction(context.Background(), nil, "start", "")
	assert.True(t, edge.IsEnd())
}

func TestNavigatorNextStep(t *testing.T) {
	ctx := context.Background()
	nav := NewNavigator(nil)
	graph := sampleGraph()

	step := nav.NextStep(ctx, graph, "start", "go")
	require.NotNil(t, step.Node)
	assert.Equal(t, "A", step.Node.ID)
	assert.Equal(t, "decision_flow", step.Node.Type)

	graph.Nodes = graph.Nodes[:1]
	step = nav.NextStep(ctx, graph, "start", "go")
	assert.Equal(t, "e-start-a", step.Edge.ID)
	assert.Nil(t, step.Node)

	step = nav.NextStep(ctx, graph, "B", "")
	assert.True(t, step.Edge.IsEnd())
	assert.Nil(t, step.Node)
}
