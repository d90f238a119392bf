package models

import (
	"encoding/json"
	"time"
)

// TTable is the mutable working record of one application. Business fields
// are flattened next to app_id and processing_time when encoded.
type TTable struct {
	AppID          string                 `json:"app_id" bson:"app_id"`
	ProcessingTime time.Time              `json:"processing_time" bson:"processing_time"`
	Fields         map[string]interface{} `json:"-" bson:",inline"`
}

// NewTTable returns an empty working record for appID.
func NewTTable(appID string) *TTable {
	return &TTable{AppID: appID, Fields: map[string]interface{}{}}
}

// Clone copies the record. Top-level slices and maps are copied so a merge
// into the clone never mutates the original.
func (t *TTable) Clone() *TTable {
	if t == nil {
		return nil
	}
	out := &TTable{
		AppID:          t.AppID,
		ProcessingTime: t.ProcessingTime,
		Fields:         make(map[string]interface{}, len(t.Fields)),
	}
	for k, v := range t.Fields {
		switch val := v.(type) {
		case []interface{}:
			out.Fields[k] = append([]interface{}(nil), val...)
		case map[string]interface{}:
			m := make(map[string]interface{}, len(val))
			for mk, mv := range val {
				m[mk] = mv
			}
			out.Fields[k] = m
		default:
			out.Fields[k] = v
		}
	}
	return out
}

// Merge folds values into the record, last write wins per top-level field.
// When both the current and the incoming value are arrays they are merged
// element-wise: object elements at the same index are merged shallowly,
// anything else is replaced, and extra incoming elements are appended.
func (t *TTable) Merge(values map[string]interface{}) {
	if t.Fields == nil {
		t.Fields = make(map[string]interface{}, len(values))
	}
	for k, v := range values {
		if k == "app_id" || k == "processing_time" {
			continue
		}
		t.Fields[k] = mergeValue(t.Fields[k], v)
	}
}

func mergeValue(current, incoming interface{}) interface{} {
	cur, ok := current.([]interface{})
	if !ok {
		return incoming
	}
	inc, ok := incoming.([]interface{})
	if !ok {
		return incoming
	}

	out := make([]interface{}, max(len(cur), len(inc)))
	copy(out, cur)
	for i, v := range inc {
		if i < len(cur) {
			cm, curIsMap := cur[i].(map[string]interface{})
			im, incIsMap := v.(map[string]interface{})
			if curIsMap && incIsMap {
				merged := make(map[string]interface{}, len(cm)+len(im))
				for mk, mv := range cm {
					merged[mk] = mv
				}
				for mk, mv := range im {
					merged[mk] = mv
				}
				out[i] = merged
				continue
			}
		}
		out[i] = v
	}
	return out
}

// MarshalJSON flattens Fields next to app_id and processing_time.
func (t TTable) MarshalJSON() ([]byte, error) {
	type alias TTable
	return marshalWithExtra(alias(t), t.Fields)
}

// UnmarshalJSON collects every non-reserved key into Fields.
func (t *TTable) UnmarshalJSON(data []byte) error {
	type alias TTable
	typed, fields, err := splitObject(data, "app_id", "processing_time")
	if err != nil {
		return err
	}
	var a alias
	if err := json.Unmarshal(typed, &a); err != nil {
		return err
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	a.Fields = fields
	*t = TTable(a)
	return nil
}
