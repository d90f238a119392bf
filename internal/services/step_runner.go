package services

import (
	"context"
	"errors"
	"strings"

	"workflow-engine/backend/internal/repository"
	"workflow-engine/backend/pkg/models"
)

// StepRequest asks the runner to advance an application by one step.
type StepRequest struct {
	AppID        string `json:"app_id"`
	TTable       string `json:"ttable"`
	UserID       string `json:"user_id"`
	WorkflowCode string `json:"workflow_code"`
	SourceID     string `json:"source_id"`
	Label        string `json:"label,omitempty"`
	// DependsOn names a step that must have finished before this one runs.
	DependsOn string `json:"depends_on,omitempty"`
	// Connector is called for the step; blank records the step without a call.
	Connector string  `json:"connector,omitempty"`
	Payload   Payload `json:"payload,omitempty"`
}

// StepResult describes what a step did.
type StepResult struct {
	LogID      string           `json:"log_id,omitempty"`
	Next       NextStep         `json:"next"`
	Status     string           `json:"status"`
	Blocked    bool             `json:"blocked"`
	Dependency *DependencyState `json:"dependency,omitempty"`
	Response   Payload          `json:"response,omitempty"`
	TTable     *models.TTable   `json:"ttable,omitempty"`
}

// StepRunner executes one workflow step: resolve the next edge, check the
// dependency, log the start, call the connector, fold decision-flow results
// into the TTable and log the outcome. Process log write failures are
// logged and do not abort the step.
type StepRunner struct {
	definitions *DefinitionService
	navigator   *Navigator
	logs        *ProcessLogService
	ttables     *TTableService
	connectors  *ConnectorRegistry
	logger      Logger
}

// NewStepRunner wires a StepRunner.
func NewStepRunner(definitions *DefinitionService, navigator *Navigator, logs *ProcessLogService,
	ttables *TTableService, connectors *ConnectorRegistry, logger Logger) *StepRunner {
	if connectors == nil {
		connectors = NewConnectorRegistry()
	}
	return &StepRunner{
		definitions: definitions,
		navigator:   navigator,
		logs:        logs,
		ttables:     ttables,
		connectors:  connectors,
		logger:      orNop(logger),
	}
}

// Run executes req. An unsatisfied dependency is reported with Blocked set,
// not as an error. A connector failure marks the log entry failed and is
// returned together with the partial result.
func (r *StepRunner) Run(ctx context.Context, req StepRequest) (*StepResult, error) {
	graph, err := r.definitions.Get(ctx, req.WorkflowCode)
	if err != nil {
		return nil, err
	}
	workflowID, err := graph.WorkflowID()
	if err != nil {
		return nil, err
	}

	source := strings.TrimSpace(req.SourceID)
	if source == "" {
		source = models.StartSource
	}
	result := &StepResult{
		Next:   r.navigator.NextStep(ctx, graph, source, req.Label),
		Status: models.StatusProcess,
	}

	if dep := strings.TrimSpace(req.DependsOn); dep != "" {
		state, err := r.logs.CheckDependency(ctx, dep, req.AppID, workflowID)
		if err != nil {
			return nil, err
		}
		result.Dependency = state
		if !state.isSatisfied() {
			result.Blocked = true
			r.logger.Info("step blocked by dependency", "app_id", req.AppID, "source_id", source, "depends_on", dep)
			return result, nil
		}
	}

	var connector Connector
	if req.Connector != "" {
		if connector, err = r.connectors.Get(req.Connector); err != nil {
			return nil, err
		}
	}

	edgeID := result.Next.Edge.ID
	if edgeID == "" {
		edgeID = result.Next.Edge.Data.ID
	}
	result.LogID, err = r.logs.Insert(ctx, InsertLogRequest{
		AppID:        req.AppID,
		TTable:       req.TTable,
		UserID:       req.UserID,
		SourceID:     source,
		EdgeID:       edgeID,
		WorkflowCode: graph.FlowsCode,
	})
	if err != nil {
		if !IsStoreFailure(err) {
			return nil, err
		}
		r.logger.Warn("continuing step without process log entry", "app_id", req.AppID, "source_id", source, "error", err)
	}

	if connector != nil {
		result.Response, err = connector.Call(ctx, ConnectorRequest{AppID: req.AppID, TTable: req.TTable, Payload: req.Payload})
		if err != nil {
			result.Status = models.StatusFailed
			r.finish(ctx, result.LogID, req.UserID, models.StatusFailed, map[string]interface{}{
				"connector": connector.Name(),
				"error":     err.Error(),
			})
			return result, err
		}
		if connector.Name() == ConnectorDecisionFlow {
			if result.TTable, err = r.project(ctx, req.AppID, result.Response); err != nil {
				result.Status = models.StatusFailed
				r.finish(ctx, result.LogID, req.UserID, models.StatusFailed, map[string]interface{}{
					"connector": connector.Name(),
					"error":     err.Error(),
				})
				return result, err
			}
		}
	}

	var data map[string]interface{}
	if connector != nil {
		data = map[string]interface{}{"connector": connector.Name()}
	}
	result.Status = models.StatusFinished
	r.finish(ctx, result.LogID, req.UserID, models.StatusFinished, data)
	return result, nil
}

// project merges decision-flow results into the application's TTable.
func (r *StepRunner) project(ctx context.Context, appID string, response Payload) (*models.TTable, error) {
	out, err := ParseDecisionFlowOutput(response)
	if err != nil {
		return nil, err
	}
	if !out.HasResults() {
		return nil, nil
	}

	ttable, err := r.ttables.Get(ctx, appID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		ttable = models.NewTTable(appID)
	}

	merged, err := r.ttables.MergeStageResults(ctx, ttable, out)
	if err != nil {
		if merged == nil {
			return nil, err
		}
		r.logger.Warn("stage results not persisted", "app_id", appID, "error", err)
	}
	ttable = merged
	merged, err = r.ttables.MergeTempResults(ctx, ttable, out)
	if err != nil {
		if merged == nil {
			return nil, err
		}
		r.logger.Warn("temp results not persisted", "app_id", appID, "error", err)
	}
	return merged, nil
}

func (r *StepRunner) finish(ctx context.Context, logID, userID, status string, data map[string]interface{}) {
	if logID == "" {
		return
	}
	if _, err := r.logs.UpdateStatus(context.WithoutCancel(ctx), logID, userID, status, data); err != nil {
		r.logger.Warn("failed to record step outcome", "log_id", logID, "status", status, "error", err)
	}
}

func (d *DependencyState) isSatisfied() bool {
	return d != nil && d.Satisfied
}
