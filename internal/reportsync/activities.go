package reportsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"go.temporal.io/sdk/temporal"

	"example.com/salesreport-sync/internal/config"
	"example.com/salesreport-sync/internal/netsuite"
	"example.com/salesreport-sync/internal/spapi"
)

// TenantSource resolves tenant configuration by id.
type TenantSource interface {
	GetTenant(ctx context.Context, id string) (config.Tenant, error)
}

// ReportAPI is the reporting API capability the activities drive.
type ReportAPI interface {
	CreateReport(ctx context.Context, spec spapi.CreateReportSpecification) (string, error)
	GetReport(ctx context.Context, reportID string) (spapi.Report, error)
	GetReportDocument(ctx context.Context, documentID string) (spapi.ReportDocument, error)
	Download(ctx context.Context, doc spapi.ReportDocument) (string, error)
}

// ERPSender delivers a JSON body to the ERP.
type ERPSender interface {
	Send(ctx context.Context, rawURL, method string, body any) netsuite.Result
}

// ReportAPIFactory builds a reporting client for a tenant.
type ReportAPIFactory func(tenant config.Tenant) (ReportAPI, error)

// ERPFactory builds an ERP sender for a tenant.
type ERPFactory func(tenant config.Tenant) ERPSender

// NewSPAPIFactory returns a factory backed by the SP-API client.
func NewSPAPIFactory(logger *slog.Logger) ReportAPIFactory {
	return func(tenant config.Tenant) (ReportAPI, error) {
		client, err := spapi.New(tenant.SPAPI, logger.With("component", "spapi", "tenant", tenant.ID))
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// NewNetSuiteFactory returns a factory backed by the signed NetSuite client.
func NewNetSuiteFactory(logger *slog.Logger) ERPFactory {
	return func(tenant config.Tenant) ERPSender {
		return netsuite.NewClient(tenant.NetSuite, logger.With("component", "netsuite", "tenant", tenant.ID))
	}
}

// ReportActivities hosts the activity implementations. Reporting clients are
// cached per tenant so access tokens survive across polls.
type ReportActivities struct {
	tenants TenantSource
	newAPI  ReportAPIFactory
	newERP  ERPFactory
	metrics *Metrics
	logger  *slog.Logger

	mu   sync.Mutex
	apis map[string]ReportAPI
}

func NewReportActivities(tenants TenantSource, newAPI ReportAPIFactory, newERP ERPFactory, metrics *Metrics, logger *slog.Logger) *ReportActivities {
	return &ReportActivities{
		tenants: tenants,
		newAPI:  newAPI,
		newERP:  newERP,
		metrics: metrics,
		logger:  logger,
		apis:    make(map[string]ReportAPI),
	}
}

// CreateReport requests the sales and traffic report for the range.
func (a *ReportActivities) CreateReport(ctx context.Context, input CreateReportInput) (string, error) {
	api, err := a.reportAPI(ctx, input.TenantID)
	if err != nil {
		return "", err
	}
	a.logger.Info("creating report", "tenant", input.TenantID, "start", input.Range.Start, "end", input.Range.End)
	reportID, err := api.CreateReport(ctx, spapi.CreateReportSpecification{
		ReportType: ReportType,
		ReportOptions: &spapi.ReportOptions{
			DateGranularity: DateGranularity,
			ASINGranularity: ASINGranularity,
		},
		DataStartTime:  input.Range.Start,
		DataEndTime:    input.Range.End,
		MarketplaceIDs: []string{MarketplaceID},
	})
	if err != nil {
		a.logger.Error("create report failed", "tenant", input.TenantID, "error", err)
		return "", err
	}
	a.metrics.reportCreated(input.TenantID)
	a.logger.Info("report created", "tenant", input.TenantID, "report_id", reportID)
	return reportID, nil
}

// GetReportStatus performs one poll.
func (a *ReportActivities) GetReportStatus(ctx context.Context, ref ReportRef) (ReportStatus, error) {
	api, err := a.reportAPI(ctx, ref.TenantID)
	if err != nil {
		return ReportStatus{}, err
	}
	report, err := api.GetReport(ctx, ref.ReportID)
	if err != nil {
		a.logger.Error("report status failed", "tenant", ref.TenantID, "report_id", ref.ReportID, "error", err)
		return ReportStatus{}, err
	}
	a.metrics.polled(ref.TenantID, string(report.ProcessingStatus))
	a.logger.Debug("report status", "tenant", ref.TenantID, "report_id", ref.ReportID, "status", report.ProcessingStatus)
	return ReportStatus{Status: report.ProcessingStatus, DocumentID: report.ReportDocumentID}, nil
}

// DownloadReport resolves the document reference and downloads its content.
func (a *ReportActivities) DownloadReport(ctx context.Context, input DownloadInput) (string, error) {
	api, err := a.reportAPI(ctx, input.TenantID)
	if err != nil {
		return "", err
	}
	doc, err := api.GetReportDocument(ctx, input.DocumentID)
	if err != nil {
		return "", err
	}
	content, err := api.Download(ctx, doc)
	if err != nil {
		a.logger.Error("report download failed", "tenant", input.TenantID, "report_id", input.ReportID, "error", err)
		return "", err
	}
	a.metrics.downloaded(input.TenantID)
	a.logger.Info("report downloaded", "tenant", input.TenantID, "report_id", input.ReportID, "bytes", len(content))
	return content, nil
}

// SubmitReport posts the payload to the tenant's RESTlet exactly once. A
// failed delivery is reported in the result rather than as an error.
func (a *ReportActivities) SubmitReport(ctx context.Context, input SubmitInput) (netsuite.Result, error) {
	tenant, err := a.tenant(ctx, input.TenantID)
	if err != nil {
		return netsuite.Result{}, err
	}
	res := a.newERP(tenant).Send(ctx, tenant.RestletURL, http.MethodPost, input.Payload)
	a.metrics.delivered(tenant.ID, res.Success)
	if !res.Success {
		a.logger.Error("erp delivery failed", "tenant", tenant.ID, "report_id", input.ReportID, "status", input.Payload.Status, "error", res.Error)
		return res, nil
	}
	a.logger.Info("erp delivery succeeded", "tenant", tenant.ID, "report_id", input.ReportID, "status", input.Payload.Status)
	return res, nil
}

func (a *ReportActivities) tenant(ctx context.Context, id string) (config.Tenant, error) {
	tenant, err := a.tenants.GetTenant(ctx, id)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return config.Tenant{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeTenantNotFound, err)
		}
		return config.Tenant{}, fmt.Errorf("load tenant: %w", err)
	}
	return tenant, nil
}

func (a *ReportActivities) reportAPI(ctx context.Context, tenantID string) (ReportAPI, error) {
	key := config.NormalizeTenantID(tenantID)
	a.mu.Lock()
	api, ok := a.apis[key]
	a.mu.Unlock()
	if ok {
		return api, nil
	}

	tenant, err := a.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	api, err = a.newAPI(tenant)
	if err != nil {
		return nil, fmt.Errorf("reporting client for %s: %w", tenantID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.apis[key]; ok {
		return existing, nil
	}
	a.apis[key] = api
	return api, nil
}

// ForgetTenant drops the cached reporting client, e.g. after credentials change.
func (a *ReportActivities) ForgetTenant(tenantID string) {
	a.mu.Lock()
	delete(a.apis, config.NormalizeTenantID(tenantID))
	a.mu.Unlock()
}
