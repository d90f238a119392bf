package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	StatusProcess  = "process"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// ErrInvalidDataKey is returned for a data key that document stores would
// read as a path or an operator.
var ErrInvalidDataKey = errors.New("invalid data key")

// ValidateDataKeys rejects empty keys, keys containing "." and keys
// starting with "$". Only top-level keys are checked; they are the ones
// status updates merge one by one.
func ValidateDataKeys(data map[string]interface{}) error {
	for k := range data {
		if k == "" || strings.Contains(k, ".") || strings.HasPrefix(k, "$") {
			return fmt.Errorf("%w: %q", ErrInvalidDataKey, k)
		}
	}
	return nil
}

// ProcessLogEntry records one execution of a workflow step for an application.
// IDs are time ordered, so the entry with the greatest ID is the most recent.
type ProcessLogEntry struct {
	ID             string                 `json:"id" bson:"_id"`
	AppID          string                 `json:"app_id" bson:"app_id"`
	TTable         string                 `json:"ttable" bson:"ttable"`
	UserID         string                 `json:"user_id" bson:"user_id"`
	SourceID       string                 `json:"source_id" bson:"source_id"`
	WorkflowID     int                    `json:"workflow_id" bson:"workflow_id"`
	EdgeID         string                 `json:"edge_id" bson:"edge_id"`
	Status         string                 `json:"status" bson:"status"`
	ActionDate     time.Time              `json:"action_date" bson:"action_date"`
	FinishDate     *time.Time             `json:"finish_date" bson:"finish_date"`
	Data           map[string]interface{} `json:"data,omitempty" bson:"data,omitempty"`
	Notes          string                 `json:"notes,omitempty" bson:"notes,omitempty"`
	ProcessingTime time.Time              `json:"processing_time" bson:"processing_time"`
}

// IsFinished reports whether the entry reached the finished status, ignoring case.
func (e *ProcessLogEntry) IsFinished() bool {
	return e != nil && strings.EqualFold(strings.TrimSpace(e.Status), StatusFinished)
}

// StatusUpdate is the set of fields changed when a step completes.
type StatusUpdate struct {
	UserID     string
	Status     string
	FinishDate time.Time
	Data       map[string]interface{}
}
