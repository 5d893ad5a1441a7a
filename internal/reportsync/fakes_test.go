package reportsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"example.com/salesreport-sync/internal/config"
	"example.com/salesreport-sync/internal/netsuite"
	"example.com/salesreport-sync/internal/spapi"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTenants map[string]config.Tenant

func (f fakeTenants) GetTenant(_ context.Context, id string) (config.Tenant, error) {
	tenant, ok := f[config.NormalizeTenantID(id)]
	if !ok {
		return config.Tenant{}, fmt.Errorf("%w: %s", ErrTenantNotFound, id)
	}
	return tenant, nil
}

// scriptedAPI answers polls from a fixed status script; the last status
// repeats once the script runs out.
type scriptedAPI struct {
	mu        sync.Mutex
	now       func() time.Time
	reportID  string
	statuses  []spapi.ProcessingStatus
	docID     string
	content   string
	createErr error
	statusErr error

	created   []spapi.CreateReportSpecification
	polls     []time.Time
	downloads int
}

func (a *scriptedAPI) CreateReport(_ context.Context, spec spapi.CreateReportSpecification) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.createErr != nil {
		return "", a.createErr
	}
	a.created = append(a.created, spec)
	return a.reportID, nil
}

func (a *scriptedAPI) GetReport(_ context.Context, reportID string) (spapi.Report, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.statusErr != nil {
		return spapi.Report{}, a.statusErr
	}
	at := time.Now()
	if a.now != nil {
		at = a.now()
	}
	a.polls = append(a.polls, at)
	idx := len(a.polls) - 1
	if idx >= len(a.statuses) {
		idx = len(a.statuses) - 1
	}
	report := spapi.Report{ReportID: reportID, ProcessingStatus: a.statuses[idx]}
	if report.ProcessingStatus == spapi.StatusDone {
		report.ReportDocumentID = a.docID
	}
	return report, nil
}

func (a *scriptedAPI) GetReportDocument(_ context.Context, documentID string) (spapi.ReportDocument, error) {
	return spapi.ReportDocument{ReportDocumentID: documentID, URL: "https://example.test/" + documentID}, nil
}

func (a *scriptedAPI) Download(_ context.Context, _ spapi.ReportDocument) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.downloads++
	return a.content, nil
}

func (a *scriptedAPI) pollTimes() []time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]time.Time(nil), a.polls...)
}

type fakeERP struct {
	mu          sync.Mutex
	result      netsuite.Result
	urls        []string
	submissions []Submission
}

func (e *fakeERP) Send(_ context.Context, rawURL, _ string, body any) netsuite.Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.urls = append(e.urls, rawURL)
	if s, ok := body.(Submission); ok {
		e.submissions = append(e.submissions, s)
	}
	return e.result
}

func (e *fakeERP) sent() []Submission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Submission(nil), e.submissions...)
}

func ptr[T any](v T) *T {
	return &v
}
