package spapi

import (
	"fmt"
	"log/slog"
	"strings"
)

// ProcessingStatus is the report lifecycle reported by getReport.
type ProcessingStatus string

const (
	StatusInQueue    ProcessingStatus = "IN_QUEUE"
	StatusInProgress ProcessingStatus = "IN_PROGRESS"
	StatusDone       ProcessingStatus = "DONE"
	StatusFatal      ProcessingStatus = "FATAL"
	StatusCancelled  ProcessingStatus = "CANCELLED"
)

// Terminal reports whether no further transitions can happen.
func (s ProcessingStatus) Terminal() bool {
	switch s {
	case StatusDone, StatusFatal, StatusCancelled:
		return true
	}
	return false
}

// Credentials bundles everything the reporting API needs; none of it is
// interpreted outside this package.
type Credentials struct {
	AppClientID        string `json:"app_client_id"`
	AppClientSecret    string `json:"app_client_secret"`
	RefreshToken       string `json:"refresh_token"`
	AWSAccessKeyID     string `json:"aws_access_key_id"`
	AWSSecretAccessKey string `json:"aws_secret_access_key"`
	AWSRoleARN         string `json:"aws_role_arn"`
	// Region is one of na, eu or fe.
	Region string `json:"region"`
	// Endpoint and TokenURL override the regional defaults (sandbox, tests).
	Endpoint string `json:"endpoint,omitempty"`
	TokenURL string `json:"token_url,omitempty"`
}

// LogValue keeps secrets out of structured logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("app_client_id", c.AppClientID),
		slog.String("region", c.Region),
	)
}

type regionInfo struct {
	endpoint  string
	awsRegion string
}

var regions = map[string]regionInfo{
	"na": {endpoint: "https://sellingpartnerapi-na.amazon.com", awsRegion: "us-east-1"},
	"eu": {endpoint: "https://sellingpartnerapi-eu.amazon.com", awsRegion: "eu-west-1"},
	"fe": {endpoint: "https://sellingpartnerapi-fe.amazon.com", awsRegion: "us-west-2"},
}

const defaultTokenURL = "https://api.amazon.com/auth/o2/token"

// ReportOptions are the report-type specific knobs.
type ReportOptions struct {
	DateGranularity string `json:"dateGranularity,omitempty"`
	ASINGranularity string `json:"asinGranularity,omitempty"`
}

// CreateReportSpecification is the body of createReport.
type CreateReportSpecification struct {
	ReportType     string         `json:"reportType"`
	ReportOptions  *ReportOptions `json:"reportOptions,omitempty"`
	DataStartTime  string         `json:"dataStartTime,omitempty"`
	DataEndTime    string         `json:"dataEndTime,omitempty"`
	MarketplaceIDs []string       `json:"marketplaceIds"`
}

// Report is the getReport payload.
type Report struct {
	ReportID         string           `json:"reportId"`
	ReportType       string           `json:"reportType,omitempty"`
	ProcessingStatus ProcessingStatus `json:"processingStatus"`
	ReportDocumentID string           `json:"reportDocumentId,omitempty"`
}

// ReportDocument points at the downloadable content of a finished report.
type ReportDocument struct {
	ReportDocumentID     string `json:"reportDocumentId"`
	URL                  string `json:"url"`
	CompressionAlgorithm string `json:"compressionAlgorithm,omitempty"`
}

// ErrorDetail is one entry of an SP-API error list.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error is returned for non-2xx responses.
type Error struct {
	StatusCode int           `json:"-"`
	Errors     []ErrorDetail `json:"errors"`
}

func (e *Error) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("sp-api: status %d", e.StatusCode)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, d := range e.Errors {
		msgs = append(msgs, d.Code+": "+d.Message)
	}
	return fmt.Sprintf("sp-api: status %d: %s", e.StatusCode, strings.Join(msgs, "; "))
}
