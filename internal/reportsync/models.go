package reportsync

import (
	"time"

	"example.com/salesreport-sync/internal/netsuite"
	"example.com/salesreport-sync/internal/spapi"
)

// The single report this job knows how to request.
const (
	ReportType      = "GET_SALES_AND_TRAFFIC_REPORT"
	DateGranularity = "MONTH"
	ASINGranularity = "PARENT"
	MarketplaceID   = "ATVPDKIKX0DER"

	SubmissionFileName = "amazon_sales_traffic_report"
	SubmissionFileType = "JSON"
)

const (
	DefaultPollInterval    = 3 * time.Second
	DefaultMaxPollAttempts = 100
)

// DateRange is the reporting window, month aligned, formatted without offset.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// PollPolicy bounds the status polling loop.
type PollPolicy struct {
	Interval    time.Duration `json:"interval"`
	MaxAttempts int           `json:"max_attempts"`
}

func (p PollPolicy) withDefaults() PollPolicy {
	if p.Interval <= 0 {
		p.Interval = DefaultPollInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxPollAttempts
	}
	return p
}

// RunInput starts one report run for a tenant. Year is accepted from
// callers but does not influence the reporting window.
type RunInput struct {
	TenantID string     `json:"tenant_id"`
	Year     *int       `json:"year,omitempty"`
	Reason   string     `json:"reason,omitempty"`
	Poll     PollPolicy `json:"poll"`
}

// RunResult captures what a run did.
type RunResult struct {
	WorkflowID  string                 `json:"workflow_id"`
	RunID       string                 `json:"run_id"`
	TenantID    string                 `json:"tenant_id"`
	ReportID    string                 `json:"report_id"`
	Range       DateRange              `json:"range"`
	Status      spapi.ProcessingStatus `json:"status"`
	Attempts    int                    `json:"attempts"`
	Delivery    netsuite.Result        `json:"delivery"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
}

// CreateReportInput is the argument of the create activity.
type CreateReportInput struct {
	TenantID string    `json:"tenant_id"`
	Range    DateRange `json:"range"`
}

// ReportRef identifies a report of a tenant.
type ReportRef struct {
	TenantID string `json:"tenant_id"`
	ReportID string `json:"report_id"`
}

// ReportStatus is one poll observation.
type ReportStatus struct {
	Status     spapi.ProcessingStatus `json:"status"`
	DocumentID string                 `json:"document_id,omitempty"`
}

// DownloadInput names the document to fetch.
type DownloadInput struct {
	TenantID   string `json:"tenant_id"`
	ReportID   string `json:"report_id"`
	DocumentID string `json:"document_id"`
}

// PollInput starts the polling workflow.
type PollInput struct {
	TenantID string     `json:"tenant_id"`
	ReportID string     `json:"report_id"`
	Policy   PollPolicy `json:"policy"`
}

// PollOutcome is a terminal poll result. Content is only set for DONE.
type PollOutcome struct {
	ReportID string                 `json:"report_id"`
	Status   spapi.ProcessingStatus `json:"status"`
	Content  *string                `json:"content,omitempty"`
	Attempts int                    `json:"attempts"`
}

// Submission is the JSON document posted to the ERP.
type Submission struct {
	Status   spapi.ProcessingStatus `json:"status"`
	Content  *string                `json:"content"`
	FileName string                 `json:"fileName"`
	FileType string                 `json:"fileType"`
}

// NewSubmission builds the ERP payload; content is null unless DONE.
func NewSubmission(outcome PollOutcome) Submission {
	s := Submission{
		Status:   outcome.Status,
		FileName: SubmissionFileName,
		FileType: SubmissionFileType,
	}
	if outcome.Status == spapi.StatusDone {
		s.Content = outcome.Content
	}
	return s
}

// SubmitInput is the argument of the ERP delivery activity.
type SubmitInput struct {
	TenantID string     `json:"tenant_id"`
	ReportID string     `json:"report_id"`
	Payload  Submission `json:"payload"`
}

// TenantSummary is the redacted view of a registered tenant.
type TenantSummary struct {
	ID         string    `json:"id"`
	Region     string    `json:"region"`
	AccountID  string    `json:"netsuite_account_id"`
	RestletURL string    `json:"restlet_url"`
	UpdatedAt  time.Time `json:"updated_at"`
}
