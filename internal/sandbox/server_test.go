package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/salesreport-sync/internal/netsuite"
	"example.com/salesreport-sync/internal/spapi"
	"example.com/salesreport-sync/internal/sqliteutil"
)

var testNetSuite = netsuite.Credentials{
	AccountID:      "1234567_SB1",
	ConsumerKey:    "consumer-key",
	ConsumerSecret: "consumer-secret",
	TokenKey:       "token-key",
	TokenSecret:    "token-secret",
}

func newSandbox(t *testing.T) (*Server, *Store, *httptest.Server) {
	t.Helper()
	db, err := sqliteutil.Open(filepath.Join(t.TempDir(), "sandbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := NewStore(db)
	require.NoError(t, store.Init(context.Background()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(store, Config{RefreshToken: "Atzr|sandbox", NetSuite: testNetSuite}, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, store, ts
}

func newReportsClient(t *testing.T, ts *httptest.Server, refresh string) *spapi.Client {
	t.Helper()
	client, err := spapi.New(spapi.Credentials{
		AppClientID:     "amzn1.application-oa2-client.sandbox",
		AppClientSecret: "secret",
		RefreshToken:    refresh,
		Region:          "na",
		Endpoint:        ts.URL,
		TokenURL:        ts.URL + "/auth/o2/token",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return client
}

func TestSandboxReportLifecycle(t *testing.T) {
	_, store, ts := newSandbox(t)
	client := newReportsClient(t, ts, "Atzr|sandbox")
	ctx := context.Background()

	reportID, err := client.CreateReport(ctx, spapi.CreateReportSpecification{
		ReportType:     "GET_SALES_AND_TRAFFIC_REPORT",
		ReportOptions:  &spapi.ReportOptions{DateGranularity: "MONTH", ASINGranularity: "PARENT"},
		DataStartTime:  "2024-11-01T00:00:00",
		DataEndTime:    "2026-10-01T00:00:00",
		MarketplaceIDs: []string{"ATVPDKIKX0DER"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, reportID)

	var statuses []spapi.ProcessingStatus
	var report spapi.Report
	for range 4 {
		report, err = client.GetReport(ctx, reportID)
		require.NoError(t, err)
		statuses = append(statuses, report.ProcessingStatus)
	}
	assert.Equal(t, []spapi.ProcessingStatus{spapi.StatusInQueue, spapi.StatusInProgress, spapi.StatusDone, spapi.StatusDone}, statuses)
	require.NotEmpty(t, report.ReportDocumentID)

	doc, err := client.GetReportDocument(ctx, report.ReportDocumentID)
	require.NoError(t, err)
	assert.Equal(t, "GZIP", doc.CompressionAlgorithm)
	content, err := client.Download(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, DefaultScenario().Content, content)

	reports, err := store.ListReports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 4, reports[0].Polls)
	assert.Equal(t, "2024-11-01T00:00:00", reports[0].DataStartTime)
	assert.Equal(t, []string{"ATVPDKIKX0DER"}, reports[0].MarketplaceIDs)
}

func TestSandboxScenario(t *testing.T) {
	srv, _, ts := newSandbox(t)
	srv.SetScenario(Scenario{Statuses: []spapi.ProcessingStatus{spapi.StatusInProgress, spapi.StatusFatal}})
	client := newReportsClient(t, ts, "Atzr|sandbox")
	ctx := context.Background()

	reportID, err := client.CreateReport(ctx, spapi.CreateReportSpecification{ReportType: "GET_SALES_AND_TRAFFIC_REPORT", MarketplaceIDs: []string{"ATVPDKIKX0DER"}})
	require.NoError(t, err)
	first, err := client.GetReport(ctx, reportID)
	require.NoError(t, err)
	second, err := client.GetReport(ctx, reportID)
	require.NoError(t, err)
	assert.Equal(t, spapi.StatusInProgress, first.ProcessingStatus)
	assert.Equal(t, spapi.StatusFatal, second.ProcessingStatus)
	assert.Empty(t, second.ReportDocumentID)
}

func TestSandboxScenarioEndpoint(t *testing.T) {
	_, _, ts := newSandbox(t)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/sandbox/scenario", strings.NewReader(`{"statuses":["CANCELLED"]}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/sandbox/scenario")
	require.NoError(t, err)
	defer resp.Body.Close()
	var sc Scenario
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sc))
	assert.Equal(t, []spapi.ProcessingStatus{spapi.StatusCancelled}, sc.Statuses)

	req, err = http.NewRequest(http.MethodPut, ts.URL+"/sandbox/scenario", strings.NewReader(`{"statuses":[]}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSandboxRejectsUnknownRefreshToken(t *testing.T) {
	_, _, ts := newSandbox(t)
	client := newReportsClient(t, ts, "Atzr|stolen")

	_, err := client.GetReport(context.Background(), "R1")
	assert.ErrorContains(t, err, "invalid_grant")
}

func TestSandboxUnknownReport(t *testing.T) {
	_, _, ts := newSandbox(t)
	client := newReportsClient(t, ts, "Atzr|sandbox")

	_, err := client.GetReport(context.Background(), "missing")
	var apiErr *spapi.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestSandboxRestletAcceptsSignedSubmission(t *testing.T) {
	_, store, ts := newSandbox(t)
	client := netsuite.NewClient(testNetSuite, slog.New(slog.NewTextHandler(io.Discard, nil)))
	content := `{"salesAndTrafficByDate":[]}`

	res := client.Send(context.Background(), ts.URL+"/restlet?script=customscript_sales&deploy=1", http.MethodPost, map[string]any{
		"status":   "DONE",
		"content":  content,
		"fileName": "amazon_sales_traffic_report",
		"fileType": "JSON",
	})
	require.True(t, res.Success, res.Error)
	assert.Contains(t, string(res.Content), `"success": true`)

	subs, err := store.ListSubmissions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, spapi.StatusDone, subs[0].Status)
	require.NotNil(t, subs[0].Content)
	assert.Equal(t, content, *subs[0].Content)
}

func TestSandboxRestletStoresNullContent(t *testing.T) {
	_, store, ts := newSandbox(t)
	client := netsuite.NewClient(testNetSuite, slog.New(slog.NewTextHandler(io.Discard, nil)))

	res := client.Send(context.Background(), ts.URL+"/restlet", http.MethodPost, map[string]any{
		"status":   "FATAL",
		"content":  nil,
		"fileName": "amazon_sales_traffic_report",
		"fileType": "JSON",
	})
	require.True(t, res.Success, res.Error)

	subs, err := store.ListSubmissions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Nil(t, subs[0].Content)
}

func TestSandboxRestletRejectsBadSignature(t *testing.T) {
	_, store, ts := newSandbox(t)
	wrong := testNetSuite
	wrong.TokenSecret = "not-the-secret"
	client := netsuite.NewClient(wrong, slog.New(slog.NewTextHandler(io.Discard, nil)))

	res := client.Send(context.Background(), ts.URL+"/restlet", http.MethodPost, map[string]any{"status": "DONE", "fileName": "x"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "INVALID_LOGIN_ATTEMPT")

	subs, err := store.ListSubmissions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSandboxRestletApplicationError(t *testing.T) {
	_, _, ts := newSandbox(t)
	client := netsuite.NewClient(testNetSuite, slog.New(slog.NewTextHandler(io.Discard, nil)))

	res := client.Send(context.Background(), ts.URL+"/restlet", http.MethodPost, map[string]any{"content": "x"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "INVALID_FLD_VALUE")
}
