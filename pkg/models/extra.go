package models

import "encoding/json"

// marshalWithExtra encodes v and folds extra keys into the resulting object.
// Keys already produced by v win over extra keys of the same name.
func marshalWithExtra(v interface{}, extra map[string]interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, val := range extra {
		if _, known := fields[k]; known {
			continue
		}
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		fields[k] = raw
	}
	return json.Marshal(fields)
}

// splitObject decodes data as an object and separates the keys listed in
// known, matched exactly, from everything else. typed holds the known keys
// re-encoded as an object; extra holds the rest decoded. encoding/json
// matches struct fields case-insensitively, so only typed may be decoded
// into the struct or a key like "App_Id" would be claimed twice.
func splitObject(data []byte, known ...string) (typed []byte, extra map[string]interface{}, err error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, nil, err
	}

	own := make(map[string]json.RawMessage, len(known))
	for _, k := range known {
		if raw, ok := all[k]; ok {
			own[k] = raw
			delete(all, k)
		}
	}
	if len(all) > 0 {
		extra = make(map[string]interface{}, len(all))
		for k, raw := range all {
			var v interface{}
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, nil, err
			}
			extra[k] = v
		}
	}

	typed, err = json.Marshal(own)
	if err != nil {
		return nil, nil, err
	}
	return typed, extra, nil
}
