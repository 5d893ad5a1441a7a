package reportsync

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"

	"example.com/salesreport-sync/internal/config"
	"example.com/salesreport-sync/internal/netsuite"
	"example.com/salesreport-sync/internal/spapi"
)

func TestActivitiesCacheReportClientPerTenant(t *testing.T) {
	api := &scriptedAPI{reportID: "R1", statuses: []spapi.ProcessingStatus{spapi.StatusInProgress}}
	built := 0
	acts := NewReportActivities(
		fakeTenants{"us": sampleTenant("us")},
		func(config.Tenant) (ReportAPI, error) { built++; return api, nil },
		func(config.Tenant) ERPSender { return &fakeERP{} },
		nil,
		discardLogger(),
	)
	ctx := context.Background()

	_, err := acts.GetReportStatus(ctx, ReportRef{TenantID: "us", ReportID: "R1"})
	require.NoError(t, err)
	_, err = acts.GetReportStatus(ctx, ReportRef{TenantID: " US ", ReportID: "R1"})
	require.NoError(t, err)
	assert.Equal(t, 1, built)

	acts.ForgetTenant("us")
	_, err = acts.GetReportStatus(ctx, ReportRef{TenantID: "us", ReportID: "R1"})
	require.NoError(t, err)
	assert.Equal(t, 2, built)
}

func TestActivitiesUnknownTenantIsNonRetryable(t *testing.T) {
	acts := NewReportActivities(fakeTenants{}, nil, nil, nil, discardLogger())

	_, err := acts.CreateReport(context.Background(), CreateReportInput{TenantID: "mx"})
	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeTenantNotFound, appErr.Type())
	assert.True(t, appErr.NonRetryable())

	_, err = acts.SubmitReport(context.Background(), SubmitInput{TenantID: "mx"})
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, ErrTypeTenantNotFound, appErr.Type())
}

func TestActivitiesFactoryError(t *testing.T) {
	acts := NewReportActivities(
		fakeTenants{"us": sampleTenant("us")},
		func(config.Tenant) (ReportAPI, error) { return nil, errors.New("unknown region") },
		nil, nil, discardLogger(),
	)
	_, err := acts.GetReportStatus(context.Background(), ReportRef{TenantID: "us", ReportID: "R1"})
	assert.ErrorContains(t, err, "unknown region")
}

func TestActivitiesRecordMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	api := &scriptedAPI{reportID: "R7", docID: "D7", content: "{}", statuses: []spapi.ProcessingStatus{spapi.StatusDone}}
	erp := &fakeERP{result: netsuite.Result{Success: false, Error: "boom"}}
	acts := NewReportActivities(
		fakeTenants{"us": sampleTenant("us")},
		func(config.Tenant) (ReportAPI, error) { return api, nil },
		func(config.Tenant) ERPSender { return erp },
		metrics,
		discardLogger(),
	)
	ctx := context.Background()

	id, err := acts.CreateReport(ctx, CreateReportInput{TenantID: "us", Range: DateRange{Start: "2024-11-01T00:00:00", End: "2026-10-01T00:00:00"}})
	require.NoError(t, err)
	assert.Equal(t, "R7", id)
	status, err := acts.GetReportStatus(ctx, ReportRef{TenantID: "us", ReportID: id})
	require.NoError(t, err)
	assert.Equal(t, ReportStatus{Status: spapi.StatusDone, DocumentID: "D7"}, status)
	content, err := acts.DownloadReport(ctx, DownloadInput{TenantID: "us", ReportID: id, DocumentID: status.DocumentID})
	require.NoError(t, err)
	assert.Equal(t, "{}", content)

	res, err := acts.SubmitReport(ctx, SubmitInput{TenantID: "us", ReportID: id, Payload: NewSubmission(PollOutcome{Status: spapi.StatusDone, Content: &content})})
	require.NoError(t, err)
	assert.False(t, res.Success)

	assert.Equal(t, 1.0, counterValue(t, reg, "salesreport_reports_created_total", map[string]string{"tenant": "us"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "salesreport_report_polls_total", map[string]string{"tenant": "us", "status": "DONE"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "salesreport_report_downloads_total", map[string]string{"tenant": "us"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "salesreport_erp_deliveries_total", map[string]string{"tenant": "us", "outcome": "failure"}))
}

func TestNewSubmission(t *testing.T) {
	content := `{"a":1}`
	done := NewSubmission(PollOutcome{Status: spapi.StatusDone, Content: &content})
	assert.JSONEq(t, `{"status":"DONE","content":"{\"a\":1}","fileName":"amazon_sales_traffic_report","fileType":"JSON"}`, mustJSON(t, done))

	fatal := NewSubmission(PollOutcome{Status: spapi.StatusFatal, Content: &content})
	assert.JSONEq(t, `{"status":"FATAL","content":null,"fileName":"amazon_sales_traffic_report","fileType":"JSON"}`, mustJSON(t, fatal))
}

func counterValue(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
