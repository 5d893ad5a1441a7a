package spapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/klauspost/compress/gzip"
)

const (
	reportsPath      = "/reports/2021-06-30"
	signingService   = "execute-api"
	roleSessionName  = "salesreport-sync"
	defaultUserAgent = "SalesReportingApi/1.0 (Language=Go)"
)

// Client talks to the Reports API of the Selling Partner API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	awsRegion  string
	tokens     *tokenSource
	awsCreds   aws.CredentialsProvider
	signer     *v4.Signer
	userAgent  string
	logger     *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient swaps the transport used for every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		c.tokens.httpClient = hc
	}
}

// WithUserAgent overrides the user-agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New builds a client for the credentials' region. AWS keys are optional;
// when present requests are SigV4 signed, assuming AWSRoleARN if set.
func New(creds Credentials, logger *slog.Logger, opts ...Option) (*Client, error) {
	if creds.AppClientID == "" || creds.AppClientSecret == "" || creds.RefreshToken == "" {
		return nil, errors.New("sp-api client id, secret and refresh token required")
	}
	region := strings.ToLower(creds.Region)
	if region == "" {
		region = "na"
	}
	info, ok := regions[region]
	if !ok {
		return nil, fmt.Errorf("unknown sp-api region %q", creds.Region)
	}
	endpoint := info.endpoint
	if creds.Endpoint != "" {
		endpoint = strings.TrimRight(creds.Endpoint, "/")
	}
	tokenURL := defaultTokenURL
	if creds.TokenURL != "" {
		tokenURL = creds.TokenURL
	}

	hc := &http.Client{Timeout: 30 * time.Second}
	c := &Client{
		httpClient: hc,
		endpoint:   endpoint,
		awsRegion:  info.awsRegion,
		tokens: &tokenSource{
			httpClient: hc,
			tokenURL:   tokenURL,
			clientID:   creds.AppClientID,
			secret:     creds.AppClientSecret,
			refresh:    creds.RefreshToken,
			now:        time.Now,
		},
		userAgent: defaultUserAgent,
		logger:    logger,
	}
	if creds.AWSAccessKeyID != "" && creds.AWSSecretAccessKey != "" {
		c.awsCreds = awsCredentials(creds, info.awsRegion)
		c.signer = v4.NewSigner()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func awsCredentials(creds Credentials, region string) aws.CredentialsProvider {
	static := credentials.NewStaticCredentialsProvider(creds.AWSAccessKeyID, creds.AWSSecretAccessKey, "")
	if creds.AWSRoleARN == "" {
		return aws.NewCredentialsCache(static)
	}
	stsClient := sts.NewFromConfig(aws.Config{Region: region, Credentials: static})
	provider := stscreds.NewAssumeRoleProvider(stsClient, creds.AWSRoleARN, func(o *stscreds.AssumeRoleOptions) {
		o.RoleSessionName = roleSessionName
	})
	return aws.NewCredentialsCache(provider)
}

// CreateReport requests asynchronous generation and returns the report id.
func (c *Client) CreateReport(ctx context.Context, spec CreateReportSpecification) (string, error) {
	var out struct {
		ReportID string `json:"reportId"`
	}
	if err := c.do(ctx, http.MethodPost, reportsPath+"/reports", spec, &out); err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if out.ReportID == "" {
		return "", errors.New("create report: empty reportId")
	}
	c.logger.Info("sp-api report requested", "report_id", out.ReportID, "report_type", spec.ReportType,
		"start", spec.DataStartTime, "end", spec.DataEndTime)
	return out.ReportID, nil
}

// GetReport returns the current processing status of a report.
func (c *Client) GetReport(ctx context.Context, reportID string) (Report, error) {
	var out Report
	if err := c.do(ctx, http.MethodGet, reportsPath+"/reports/"+url.PathEscape(reportID), nil, &out); err != nil {
		return Report{}, fmt.Errorf("get report %s: %w", reportID, err)
	}
	return out, nil
}

// GetReportDocument resolves a document id to its download location.
func (c *Client) GetReportDocument(ctx context.Context, documentID string) (ReportDocument, error) {
	var out ReportDocument
	if err := c.do(ctx, http.MethodGet, reportsPath+"/documents/"+url.PathEscape(documentID), nil, &out); err != nil {
		return ReportDocument{}, fmt.Errorf("get report document %s: %w", documentID, err)
	}
	if out.URL == "" {
		return ReportDocument{}, fmt.Errorf("get report document %s: missing url", documentID)
	}
	return out, nil
}

// Download fetches the document content, inflating GZIP documents.
func (c *Client) Download(ctx context.Context, doc ReportDocument) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, doc.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download document %s: %w", doc.ReportDocumentID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download document %s: %s", doc.ReportDocumentID, resp.Status)
	}

	var body io.Reader = resp.Body
	if strings.EqualFold(doc.CompressionAlgorithm, "GZIP") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("inflate document %s: %w", doc.ReportDocumentID, err)
		}
		defer zr.Close()
		body = zr
	}
	content, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read document %s: %w", doc.ReportDocumentID, err)
	}
	return string(content), nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("x-amz-access-token", token)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.awsCreds != nil {
		if err := c.sign(ctx, req, payload); err != nil {
			return err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) sign(ctx context.Context, req *http.Request, payload []byte) error {
	creds, err := c.awsCreds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("aws credentials: %w", err)
	}
	sum := sha256.Sum256(payload)
	if err := c.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(sum[:]), signingService, c.awsRegion, time.Now().UTC()); err != nil {
		return fmt.Errorf("sigv4 sign: %w", err)
	}
	return nil
}
