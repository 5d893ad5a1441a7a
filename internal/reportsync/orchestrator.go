package reportsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	enums "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

const reportExecutionTimeout = 30 * time.Minute

// ReportRunner executes one report run and waits for its result.
type ReportRunner interface {
	RunReport(ctx context.Context, input RunInput) (RunResult, error)
}

// ReportOrchestrator abstracts how report runs are executed. Production
// backs it with Temporal so every trigger goes through the same workflow.
type ReportOrchestrator interface {
	ReportRunner
	RunReportAsync(ctx context.Context, input RunInput) (string, error)
}

// TemporalOrchestrator starts SalesTrafficReportWorkflow executions.
type TemporalOrchestrator struct {
	client client.Client
	logger *slog.Logger
}

func NewTemporalOrchestrator(c client.Client, logger *slog.Logger) *TemporalOrchestrator {
	return &TemporalOrchestrator{client: c, logger: logger.With("component", "report.orchestrator")}
}

// Every run gets a fresh id: runs are not idempotent and always create a new report.
func startOptions(tenantID string) client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:                       fmt.Sprintf("salesreport-%s-%s", tenantID, uuid.NewString()),
		TaskQueue:                reportTaskQueue,
		WorkflowIDReusePolicy:    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionTimeout: reportExecutionTimeout,
	}
}

func (o *TemporalOrchestrator) RunReport(ctx context.Context, input RunInput) (RunResult, error) {
	we, err := o.client.ExecuteWorkflow(ctx, startOptions(input.TenantID), reportWorkflowName, input)
	if err != nil {
		o.logger.Error("start workflow failed", "tenant", input.TenantID, "error", err)
		return RunResult{}, err
	}
	var result RunResult
	if err := we.Get(ctx, &result); err != nil {
		o.logger.Error("wait workflow failed", "workflow_id", we.GetID(), "error", err)
		result.WorkflowID = we.GetID()
		result.RunID = we.GetRunID()
		return result, err
	}
	result.WorkflowID = we.GetID()
	result.RunID = we.GetRunID()
	o.logger.Info("workflow completed", "workflow_id", result.WorkflowID, "run_id", result.RunID,
		"tenant", input.TenantID, "report_id", result.ReportID, "status", result.Status)
	return result, nil
}

func (o *TemporalOrchestrator) RunReportAsync(ctx context.Context, input RunInput) (string, error) {
	we, err := o.client.ExecuteWorkflow(ctx, startOptions(input.TenantID), reportWorkflowName, input)
	if err != nil {
		o.logger.Error("start workflow async failed", "tenant", input.TenantID, "error", err)
		return "", err
	}
	o.logger.Info("workflow dispatched", "workflow_id", we.GetID(), "run_id", we.GetRunID(), "tenant", input.TenantID)
	return we.GetID(), nil
}
