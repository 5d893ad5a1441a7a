package reportsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"example.com/salesreport-sync/internal/spapi"
)

// Invocation response bodies.
const (
	msgReportFailed = "FAILED TO GET REPORT"
	msgInvokeError  = "An error occured"
)

// Response is the outcome of one invocation as reported to the trigger.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// invokeRequest is the optional invocation body. Year is informational
// only, so any JSON value is accepted.
type invokeRequest struct {
	Year json.RawMessage `json:"year"`
}

// year returns the supplied year when it is a whole number and nil
// otherwise. Values of any other shape are logged and dropped.
func (r invokeRequest) year(logger *slog.Logger, tenantID string) *int {
	if len(r.Year) == 0 || string(r.Year) == "null" {
		return nil
	}
	var y int
	if err := json.Unmarshal(r.Year, &y); err != nil {
		logger.Info("ignoring non-integer year", "tenant", tenantID, "year", string(r.Year))
		return nil
	}
	return &y
}

// Invoke runs one report for tenantID and maps the outcome to a status and
// message. A run that reached a terminal report status answers 200 even when
// the ERP delivery failed; every error answers 500.
func Invoke(ctx context.Context, runner ReportRunner, logger *slog.Logger, tenantID string, body []byte) Response {
	var req invokeRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			logger.Error("decode invocation body", "tenant", tenantID, "error", err)
			return Response{StatusCode: http.StatusInternalServerError, Body: msgInvokeError}
		}
	}
	if tenantID == "" {
		logger.Error("invocation without tenant")
		return Response{StatusCode: http.StatusInternalServerError, Body: msgInvokeError}
	}

	result, err := runner.RunReport(ctx, RunInput{TenantID: tenantID, Year: req.year(logger, tenantID), Reason: "invoke"})
	if err != nil {
		logger.Error("report run failed", "tenant", tenantID, "timeout", IsTimeoutExceeded(err), "error", err)
		return Response{StatusCode: http.StatusInternalServerError, Body: msgInvokeError}
	}
	if !result.Delivery.Success {
		logger.Warn("report run finished but erp rejected the submission", "tenant", tenantID,
			"report_id", result.ReportID, "error", result.Delivery.Error)
	}
	if result.Status == spapi.StatusDone {
		return Response{
			StatusCode: http.StatusOK,
			Body:       fmt.Sprintf("Report (%s) has been generated and saved in NetSuite...", result.ReportID),
		}
	}
	return Response{StatusCode: http.StatusOK, Body: msgReportFailed}
}
