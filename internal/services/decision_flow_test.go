package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecisionFlowOutput(t *testing.T) {
	out := decisionFlowOutput(t, decisionFlowResponse)

	require.Len(t, out.Data.Stages, 2)
	assert.Equal(t, "bureau", out.Data.Stages[0].Name)
	assert.True(t, out.HasResults())
	assert.Equal(t, map[string]interface{}{
		"score":  float64(720),
		"status": "review",
		"guarantors": []interface{}{
			map[string]interface{}{"income": float64(2500)},
			map[string]interface{}{"name": "B", "income": float64(500)},
		},
	}, out.StageFields())
}

func TestParseDecisionFlowOutputRejectsWrongShape(t *testing.T) {
	_, err := ParseDecisionFlowOutput(Payload{"data": "not an object"})
	assert.Error(t, err)
}

func TestDecisionFlowOutputWithoutResults(t *testing.T) {
	out, err := ParseDecisionFlowOutput(Payload{"status": "ok"})
	require.NoError(t, err)
	assert.False(t, out.HasResults())
	assert.Empty(t, out.StageFields())
	assert.Empty(t, out.TempFields())
}

func TestStageFieldsSkipsUnnamed(t *testing.T) {
	out := stageOutput(FieldResult{FieldValue: 1}, FieldResult{FieldName: "a", FieldValue: 2})
	assert.Equal(t, map[string]interface{}{"a": 2}, out.StageFields())
}

func TestTempFieldsKeepsFalsyScalars(t *testing.T) {
	out := DecisionFlowOutput{Data: DecisionFlowData{TempResults: map[string]interface{}{
		"zero":  0,
		"false": false,
		"empty": "",
		"map":   map[string]interface{}{},
		"list":  []interface{}{"x"},
	}}}
	assert.Equal(t, map[string]interface{}{
		"zero":  0,
		"false": false,
		"list":  []interface{}{"x"},
	}, out.TempFields())
}
