package sandbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/salesreport-sync/internal/spapi"
)

// ErrNotFound is returned for unknown reports and documents.
var ErrNotFound = errors.New("not found")

// Store persists sandbox reports and received submissions.
type Store struct {
	db *sql.DB
}

// NewStore wires a sandbox data store backed by SQLite.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init applies schema migrations for the sandbox database.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			report_type TEXT NOT NULL,
			data_start TEXT NOT NULL,
			data_end TEXT NOT NULL,
			marketplaces TEXT NOT NULL,
			script TEXT NOT NULL,
			polls INTEGER NOT NULL DEFAULT 0,
			document_id TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			content TEXT,
			file_name TEXT NOT NULL,
			file_type TEXT NOT NULL,
			received_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_received ON submissions(received_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply sandbox schema: %w", err)
		}
	}
	return nil
}

// CreateReport records a report request that will follow scenario.
func (s *Store) CreateReport(ctx context.Context, request spapi.CreateReportSpecification, scenario Scenario) (Report, error) {
	if request.ReportType == "" {
		return Report{}, errors.New("reportType required")
	}
	if len(request.MarketplaceIDs) == 0 {
		return Report{}, errors.New("marketplaceIds required")
	}
	report := Report{
		ID:             uuid.NewString(),
		ReportType:     request.ReportType,
		DataStartTime:  request.DataStartTime,
		DataEndTime:    request.DataEndTime,
		MarketplaceIDs: request.MarketplaceIDs,
		Script:         scenario.Statuses,
		DocumentID:     "amzn1.spdoc." + uuid.NewString(),
		Content:        scenario.Content,
		CreatedAt:      time.Now().UTC(),
	}
	markets, err := json.Marshal(report.MarketplaceIDs)
	if err != nil {
		return Report{}, err
	}
	script, err := json.Marshal(report.Script)
	if err != nil {
		return Report{}, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO reports(id, report_type, data_start, data_end, marketplaces, script, document_id, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.ReportType, report.DataStartTime, report.DataEndTime, string(markets), string(script),
		report.DocumentID, report.Content, report.CreatedAt,
	); err != nil {
		return Report{}, fmt.Errorf("insert report: %w", err)
	}
	return report, nil
}

// PollReport counts one status poll and returns the report as it now looks.
func (s *Store) PollReport(ctx context.Context, id string) (Report, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE reports SET polls = polls + 1 WHERE id = ?`, id)
	if err != nil {
		return Report{}, fmt.Errorf("poll report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Report{}, ErrNotFound
	}
	return s.getReport(ctx, `WHERE id = ?`, id)
}

// ReportByDocument finds the report owning a document id.
func (s *Store) ReportByDocument(ctx context.Context, documentID string) (Report, error) {
	return s.getReport(ctx, `WHERE document_id = ?`, documentID)
}

// ListReports returns all reports, newest first.
func (s *Store) ListReports(ctx context.Context) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, reportColumns+` ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	reports := []Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

const reportColumns = `SELECT id, report_type, data_start, data_end, marketplaces, script, polls, document_id, content, created_at FROM reports`

func (s *Store) getReport(ctx context.Context, where string, arg any) (Report, error) {
	report, err := scanReport(s.db.QueryRowContext(ctx, reportColumns+" "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	return report, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (Report, error) {
	var (
		report          Report
		markets, script string
	)
	if err := row.Scan(&report.ID, &report.ReportType, &report.DataStartTime, &report.DataEndTime,
		&markets, &script, &report.Polls, &report.DocumentID, &report.Content, &report.CreatedAt); err != nil {
		return Report{}, err
	}
	if err := json.Unmarshal([]byte(markets), &report.MarketplaceIDs); err != nil {
		return Report{}, fmt.Errorf("decode marketplaces: %w", err)
	}
	if err := json.Unmarshal([]byte(script), &report.Script); err != nil {
		return Report{}, fmt.Errorf("decode script: %w", err)
	}
	return report, nil
}

// RecordSubmission stores a payload accepted by the RESTlet.
func (s *Store) RecordSubmission(ctx context.Context, sub Submission) (Submission, error) {
	sub.ID = uuid.NewString()
	sub.ReceivedAt = time.Now().UTC()
	var content sql.NullString
	if sub.Content != nil {
		content = sql.NullString{String: *sub.Content, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions(id, status, content, file_name, file_type, received_at) VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID, string(sub.Status), content, sub.FileName, sub.FileType, sub.ReceivedAt,
	); err != nil {
		return Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	return sub, nil
}

// ListSubmissions returns received payloads, newest first.
func (s *Store) ListSubmissions(ctx context.Context) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, content, file_name, file_type, received_at FROM submissions ORDER BY received_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()
	subs := []Submission{}
	for rows.Next() {
		var (
			sub     Submission
			status  string
			content sql.NullString
		)
		if err := rows.Scan(&sub.ID, &status, &content, &sub.FileName, &sub.FileType, &sub.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.Status = spapi.ProcessingStatus(status)
		if content.Valid {
			sub.Content = &content.String
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
