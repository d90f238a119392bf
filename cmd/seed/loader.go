package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"workflow-engine/backend/pkg/models"
)

// readDocuments decodes every YAML document in path. JSON files are valid
// YAML, so both formats load the same way. A top-level list counts as one
// document per element.
func readDocuments(path string) ([][]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var docs [][]byte
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	for {
		var doc interface{}
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if doc == nil {
			continue
		}

		items := []interface{}{doc}
		if list, ok := doc.([]interface{}); ok {
			items = list
		}
		for _, item := range items {
			data, err := json.Marshal(jsonCompatible(item))
			if err != nil {
				return nil, fmt.Errorf("failed to convert %s: %w", path, err)
			}
			docs = append(docs, data)
		}
	}
	return docs, nil
}

// jsonCompatible rewrites map[interface{}]interface{} values, which YAML
// produces for non-string keys, into maps encoding/json accepts.
func jsonCompatible(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = jsonCompatible(item)
		}
		return out
	case map[string]interface{}:
		for k, item := range val {
			val[k] = jsonCompatible(item)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = jsonCompatible(item)
		}
		return val
	default:
		return v
	}
}

func loadWorkflows(path string) ([]*models.WorkflowGraph, error) {
	docs, err := readDocuments(path)
	if err != nil {
		return nil, err
	}
	graphs := make([]*models.WorkflowGraph, 0, len(docs))
	for i, doc := range docs {
		var graph models.WorkflowGraph
		if err := json.Unmarshal(doc, &graph); err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", path, i+1, err)
		}
		if graph.FlowsCode == "" {
			return nil, fmt.Errorf("%s: document %d: flows_code is required", path, i+1)
		}
		graphs = append(graphs, &graph)
	}
	return graphs, nil
}

func loadTTables(path string) ([]*models.TTable, error) {
	docs, err := readDocuments(path)
	if err != nil {
		return nil, err
	}
	ttables := make([]*models.TTable, 0, len(docs))
	for i, doc := range docs {
		var ttable models.TTable
		if err := json.Unmarshal(doc, &ttable); err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", path, i+1, err)
		}
		if ttable.AppID == "" {
			return nil, fmt.Errorf("%s: document %d: app_id is required", path, i+1)
		}
		ttables = append(ttables, &ttable)
	}
	return ttables, nil
}
