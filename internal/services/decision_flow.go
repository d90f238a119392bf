package services

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is a JSON-like connector request or response body.
type Payload map[string]interface{}

// ConnectorRequest is sent to an external process connector.
type ConnectorRequest struct {
	AppID   string  `json:"app_id"`
	TTable  string  `json:"ttable"`
	Payload Payload `json:"payload,omitempty"`
}

// DecisionFlowOutput is the part of a decision-flow response the engine reads.
type DecisionFlowOutput struct {
	Data DecisionFlowData `json:"data"`
}

// DecisionFlowData holds per-stage results and flat temporary results.
type DecisionFlowData struct {
	Stages      []DecisionStage        `json:"stages"`
	TempResults map[string]interface{} `json:"temp_results"`
}

// DecisionStage is one evaluated stage.
type DecisionStage struct {
	Name   string        `json:"name,omitempty"`
	Result []FieldResult `json:"result"`
}

// FieldResult is a single computed field.
type FieldResult struct {
	FieldName  string      `json:"field_name"`
	FieldValue interface{} `json:"field_value"`
}

// ParseDecisionFlowOutput decodes the decision-flow shape out of a connector payload.
func ParseDecisionFlowOutput(p Payload) (DecisionFlowOutput, error) {
	var out DecisionFlowOutput
	raw, err := json.Marshal(p)
	if err != nil {
		return out, fmt.Errorf("failed to encode decision flow payload: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode decision flow payload: %w", err)
	}
	return out, nil
}

// HasResults reports whether the output carries anything to merge.
func (o DecisionFlowOutput) HasResults() bool {
	return len(o.Data.Stages) > 0 || len(o.Data.TempResults) > 0
}

// StageFields flattens all stage results into one field map. Later stages
// overwrite earlier ones for the same field.
func (o DecisionFlowOutput) StageFields() map[string]interface{} {
	fields := make(map[string]interface{})
	for _, stage := range o.Data.Stages {
		for _, r := range stage.Result {
			if r.FieldName == "" {
				continue
			}
			fields[r.FieldName] = r.FieldValue
		}
	}
	return fields
}

// TempFields returns temp_results without empty or blank values.
func (o DecisionFlowOutput) TempFields() map[string]interface{} {
	fields := make(map[string]interface{}, len(o.Data.TempResults))
	for k, v := range o.Data.TempResults {
		if isBlank(v) {
			continue
		}
		fields[k] = v
	}
	return fields
}

func isBlank(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	default:
		return false
	}
}
