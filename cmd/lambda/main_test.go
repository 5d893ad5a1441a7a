package main

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/salesreport-sync/internal/reportsync"
	"example.com/salesreport-sync/internal/spapi"
)

type recordingRunner struct {
	result reportsync.RunResult
	err    error
	inputs []reportsync.RunInput
}

func (r *recordingRunner) RunReport(_ context.Context, input reportsync.RunInput) (reportsync.RunResult, error) {
	r.inputs = append(r.inputs, input)
	return r.result, r.err
}

func newHandler(r reportsync.ReportRunner) handler {
	return handler{runner: r, defaultTenant: "us", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestHandleUsesPathTenant(t *testing.T) {
	runner := &recordingRunner{result: reportsync.RunResult{ReportID: "R1", Status: spapi.StatusDone}}
	resp, err := newHandler(runner).handle(context.Background(), events.APIGatewayProxyRequest{
		PathParameters: map[string]string{"tenant": "CA"},
		Body:           `{"year":2025}`,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Report (R1) has been generated and saved in NetSuite...", resp.Body)
	require.Len(t, runner.inputs, 1)
	assert.Equal(t, "ca", runner.inputs[0].TenantID)
	assert.Equal(t, 2025, *runner.inputs[0].Year)
}

func TestHandleFallsBackToDefaultTenant(t *testing.T) {
	runner := &recordingRunner{result: reportsync.RunResult{Status: spapi.StatusFatal}}
	resp, err := newHandler(runner).handle(context.Background(), events.APIGatewayProxyRequest{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "FAILED TO GET REPORT", resp.Body)
	require.Len(t, runner.inputs, 1)
	assert.Equal(t, "us", runner.inputs[0].TenantID)
}

func TestHandleBase64Body(t *testing.T) {
	runner := &recordingRunner{result: reportsync.RunResult{ReportID: "R2", Status: spapi.StatusDone}}
	_, err := newHandler(runner).handle(context.Background(), events.APIGatewayProxyRequest{
		Body:            base64.StdEncoding.EncodeToString([]byte(`{"year":2024}`)),
		IsBase64Encoded: true,
	})
	require.NoError(t, err)
	require.Len(t, runner.inputs, 1)
	assert.Equal(t, 2024, *runner.inputs[0].Year)
}

func TestHandleError(t *testing.T) {
	runner := &recordingRunner{err: errors.New("boom")}
	resp, err := newHandler(runner).handle(context.Background(), events.APIGatewayProxyRequest{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "An error occured", resp.Body)
}
