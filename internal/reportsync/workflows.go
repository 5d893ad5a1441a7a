package reportsync

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	temporalworker "go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"example.com/salesreport-sync/internal/netsuite"
	"example.com/salesreport-sync/internal/spapi"
)

const (
	reportTaskQueue            = "salesreport-sync-task-queue"
	reportWorkflowName         = "salesreport.sales_traffic"
	pollWorkflowName           = "salesreport.poll_report"
	createReportActivityName   = "salesreport.create_report"
	reportStatusActivityName   = "salesreport.report_status"
	downloadReportActivityName = "salesreport.download_report"
	submitReportActivityName   = "salesreport.submit_report"
)

// Application error types surfaced by the workflows.
const (
	ErrTypeTimeoutExceeded = "TimeoutExceeded"
	ErrTypeTenantNotFound  = "TenantNotFound"
	ErrTypeMissingDocument = "MissingDocument"
)

// ErrTimeoutExceeded marks a poll loop that used up its attempts.
var ErrTimeoutExceeded = errors.New("exceeded max poll attempts")

// IsTimeoutExceeded reports whether err, possibly wrapped by Temporal,
// is a poll timeout.
func IsTimeoutExceeded(err error) bool {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() == ErrTypeTimeoutExceeded {
		return true
	}
	return errors.Is(err, ErrTimeoutExceeded)
}

// activityOptions never retry: the only designed retry is the poll loop.
func activityOptions(timeout time.Duration) workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
}

// PollReportWorkflow polls the report status every Interval until it
// reaches a terminal state or MaxAttempts polls have been made. The wait
// between polls is a durable timer, so no worker thread is held.
func PollReportWorkflow(ctx workflow.Context, input PollInput) (PollOutcome, error) {
	logger := workflow.GetLogger(ctx)
	policy := input.Policy.withDefaults()
	ctx = workflow.WithActivityOptions(ctx, activityOptions(time.Minute))
	ref := ReportRef{TenantID: input.TenantID, ReportID: input.ReportID}
	outcome := PollOutcome{ReportID: input.ReportID}

	for {
		var status ReportStatus
		if err := workflow.ExecuteActivity(ctx, reportStatusActivityName, ref).Get(ctx, &status); err != nil {
			logger.Error("report status poll failed", "report_id", input.ReportID, "attempt", outcome.Attempts+1, "error", err)
			return outcome, err
		}
		outcome.Attempts++
		logger.Info("report polled", "report_id", input.ReportID, "attempt", outcome.Attempts, "status", status.Status)

		switch status.Status {
		case spapi.StatusDone:
			if status.DocumentID == "" {
				return outcome, temporal.NewNonRetryableApplicationError(
					fmt.Sprintf("report %s is DONE without a document id", input.ReportID), ErrTypeMissingDocument, nil)
			}
			dctx := workflow.WithActivityOptions(ctx, activityOptions(5*time.Minute))
			var content string
			download := DownloadInput{TenantID: input.TenantID, ReportID: input.ReportID, DocumentID: status.DocumentID}
			if err := workflow.ExecuteActivity(dctx, downloadReportActivityName, download).Get(ctx, &content); err != nil {
				logger.Error("report download failed", "report_id", input.ReportID, "error", err)
				return outcome, err
			}
			outcome.Status = spapi.StatusDone
			outcome.Content = &content
			logger.Info("report downloaded", "report_id", input.ReportID, "attempts", outcome.Attempts)
			return outcome, nil
		case spapi.StatusFatal, spapi.StatusCancelled:
			outcome.Status = status.Status
			logger.Warn("report ended without a document", "report_id", input.ReportID, "status", status.Status)
			return outcome, nil
		}

		if outcome.Attempts >= policy.MaxAttempts {
			logger.Error("report polling gave up", "report_id", input.ReportID, "attempts", outcome.Attempts)
			return outcome, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("report %s: %d attempts", input.ReportID, outcome.Attempts), ErrTypeTimeoutExceeded, ErrTimeoutExceeded)
		}
		if err := workflow.Sleep(ctx, policy.Interval); err != nil {
			return outcome, err
		}
	}
}

// SalesTrafficReportWorkflow requests the report for the tenant, waits for
// it through PollReportWorkflow and delivers the outcome to the ERP once.
// Any error before delivery aborts the run without contacting the ERP.
func SalesTrafficReportWorkflow(ctx workflow.Context, input RunInput) (RunResult, error) {
	logger := workflow.GetLogger(ctx)
	if input.TenantID == "" {
		return RunResult{}, temporal.NewNonRetryableApplicationError("tenant_id required", ErrTypeTenantNotFound, nil)
	}
	now := workflow.Now(ctx)
	result := RunResult{TenantID: input.TenantID, StartedAt: now, Range: ComputeRange(now)}
	if input.Year != nil {
		logger.Info("year supplied; reporting window still derives from the current date", "year", *input.Year)
	}
	logger.Info("report run started", "tenant", input.TenantID, "start", result.Range.Start, "end", result.Range.End, "reason", input.Reason)

	actx := workflow.WithActivityOptions(ctx, activityOptions(time.Minute))
	create := CreateReportInput{TenantID: input.TenantID, Range: result.Range}
	if err := workflow.ExecuteActivity(actx, createReportActivityName, create).Get(ctx, &result.ReportID); err != nil {
		logger.Error("create report failed", "tenant", input.TenantID, "error", err)
		return result, err
	}

	cctx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID: workflow.GetInfo(ctx).WorkflowExecution.ID + "-poll",
	})
	var outcome PollOutcome
	poll := PollInput{TenantID: input.TenantID, ReportID: result.ReportID, Policy: input.Poll}
	if err := workflow.ExecuteChildWorkflow(cctx, pollWorkflowName, poll).Get(ctx, &outcome); err != nil {
		logger.Error("report polling failed", "tenant", input.TenantID, "report_id", result.ReportID, "error", err)
		return result, err
	}
	result.Status = outcome.Status
	result.Attempts = outcome.Attempts

	submit := SubmitInput{TenantID: input.TenantID, ReportID: result.ReportID, Payload: NewSubmission(outcome)}
	var delivery netsuite.Result
	if err := workflow.ExecuteActivity(actx, submitReportActivityName, submit).Get(ctx, &delivery); err != nil {
		logger.Error("erp submission failed", "tenant", input.TenantID, "report_id", result.ReportID, "error", err)
		return result, err
	}
	result.Delivery = delivery
	result.CompletedAt = workflow.Now(ctx)
	logger.Info("report run finished", "tenant", input.TenantID, "report_id", result.ReportID,
		"status", result.Status, "attempts", result.Attempts, "delivered", delivery.Success)
	return result, nil
}

// RegisterReportWorker wires up the Temporal worker consuming the report task queue.
func RegisterReportWorker(c client.Client, activities *ReportActivities) temporalworker.Worker {
	w := temporalworker.New(c, reportTaskQueue, temporalworker.Options{})
	w.RegisterWorkflowWithOptions(SalesTrafficReportWorkflow, workflow.RegisterOptions{Name: reportWorkflowName})
	w.RegisterWorkflowWithOptions(PollReportWorkflow, workflow.RegisterOptions{Name: pollWorkflowName})
	registerActivities(w, activities)
	return w
}

// activityRegistry is satisfied by both the worker and the test environment.
type activityRegistry interface {
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

func registerActivities(r activityRegistry, a *ReportActivities) {
	r.RegisterActivityWithOptions(a.CreateReport, activity.RegisterOptions{Name: createReportActivityName})
	r.RegisterActivityWithOptions(a.GetReportStatus, activity.RegisterOptions{Name: reportStatusActivityName})
	r.RegisterActivityWithOptions(a.DownloadReport, activity.RegisterOptions{Name: downloadReportActivityName})
	r.RegisterActivityWithOptions(a.SubmitReport, activity.RegisterOptions{Name: submitReportActivityName})
}
