// Command lambda triggers one sales and traffic report run per invocation.
// The run itself executes on the Temporal workers; the function waits for it.
package main

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.temporal.io/sdk/client"

	"example.com/salesreport-sync/internal/config"
	"example.com/salesreport-sync/internal/logging"
	"example.com/salesreport-sync/internal/reportsync"
)

type handler struct {
	runner        reportsync.ReportRunner
	defaultTenant string
	logger        *slog.Logger
}

func (h handler) handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	tenant := req.PathParameters["tenant"]
	if tenant == "" {
		tenant = h.defaultTenant
	}
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			h.logger.Error("decode base64 body", "error", err)
			return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "An error occured"}, nil
		}
		body = decoded
	}

	resp := reportsync.Invoke(ctx, h.runner, h.logger, config.NormalizeTenantID(tenant), body)
	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       resp.Body,
	}, nil
}

func main() {
	logger := logging.New().With("component", "lambda")
	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config failed", "error", err)
		os.Exit(1)
	}

	temporalClient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalHostPort,
		Namespace: cfg.TemporalNamespace,
		Logger:    logging.Temporal(logger),
	})
	if err != nil {
		logger.Error("connect temporal failed", "hostport", cfg.TemporalHostPort, "error", err)
		os.Exit(1)
	}
	defer temporalClient.Close()

	h := handler{
		runner:        reportsync.NewTemporalOrchestrator(temporalClient, logger),
		defaultTenant: cfg.DefaultTenant,
		logger:        logger,
	}
	lambda.Start(h.handle)
}
