package sandbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"

	"example.com/salesreport-sync/internal/netsuite"
	"example.com/salesreport-sync/internal/spapi"
)

const reportsPath = "/reports/2021-06-30"

// Config holds the credentials the fakes accept.
type Config struct {
	RefreshToken string
	AccessToken  string
	NetSuite     netsuite.Credentials
}

// Server exposes HTTP APIs that mimic the Selling Partner reports API, its
// token endpoint and a NetSuite RESTlet.
type Server struct {
	store  *Store
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	scenario Scenario
}

// NewServer builds a sandbox backed by the provided store.
func NewServer(store *Store, cfg Config, logger *slog.Logger) *Server {
	if cfg.AccessToken == "" {
		cfg.AccessToken = "Atza|sandbox"
	}
	return &Server{store: store, cfg: cfg, logger: logger, scenario: DefaultScenario()}
}

// Router wires all sandbox routes under a single chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Post("/auth/o2/token", s.handleToken)
	r.Route(reportsPath, func(r chi.Router) {
		r.Use(s.requireAccessToken)
		r.Post("/reports", s.handleCreateReport)
		r.Get("/reports/{reportID}", s.handleGetReport)
		r.Get("/documents/{documentID}", s.handleGetDocument)
	})
	r.Get("/download/{documentID}", s.handleDownload)
	r.Post("/restlet", s.handleRestlet)

	r.Route("/sandbox", func(r chi.Router) {
		r.Get("/scenario", s.handleGetScenario)
		r.Put("/scenario", s.handleSetScenario)
		r.Get("/reports", s.handleListReports)
		r.Get("/submissions", s.handleListSubmissions)
	})
	return r
}

// SetScenario changes what reports created from now on do.
func (s *Server) SetScenario(sc Scenario) {
	s.mu.Lock()
	s.scenario = sc
	s.mu.Unlock()
}

func (s *Server) currentScenario() Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenario
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeAmazonError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if r.PostForm.Get("grant_type") != "refresh_token" {
		writeAmazonError(w, http.StatusBadRequest, "unsupported_grant_type", "grant_type must be refresh_token")
		return
	}
	if s.cfg.RefreshToken != "" && r.PostForm.Get("refresh_token") != s.cfg.RefreshToken {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "invalid_grant",
			"error_description": "The request has an invalid grant parameter : refresh_token",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": s.cfg.AccessToken,
		"token_type":   "bearer",
		"expires_in":   3600,
	})
}

func (s *Server) requireAccessToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-amz-access-token") != s.cfg.AccessToken {
			writeAmazonError(w, http.StatusForbidden, "Unauthorized", "Access to requested resource is denied.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	var request spapi.CreateReportSpecification
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeAmazonError(w, http.StatusBadRequest, "InvalidInput", fmt.Sprintf("invalid json: %v", err))
		return
	}
	report, err := s.store.CreateReport(r.Context(), request, s.currentScenario())
	if err != nil {
		writeAmazonError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}
	s.logger.Info("sandbox report created", "report_id", report.ID, "start", report.DataStartTime, "end", report.DataEndTime)
	writeJSON(w, http.StatusAccepted, map[string]any{"reportId": report.ID})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.PollReport(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		handleNotFound(w, err)
		return
	}
	out := spapi.Report{
		ReportID:         report.ID,
		ReportType:       report.ReportType,
		ProcessingStatus: report.Status(),
	}
	if out.ProcessingStatus == spapi.StatusDone {
		out.ReportDocumentID = report.DocumentID
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.ReportByDocument(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		handleNotFound(w, err)
		return
	}
	writeJSON(w, http.StatusOK, spapi.ReportDocument{
		ReportDocumentID:     report.DocumentID,
		URL:                  baseURL(r) + "/download/" + report.DocumentID,
		CompressionAlgorithm: "GZIP",
	})
}

// handleDownload stands in for the pre-signed document URL and serves the
// content gzip compressed.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	report, err := s.store.ReportByDocument(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		handleNotFound(w, err)
		return
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(report.Content)); err != nil {
		writeError(w, http.StatusInternalServerError, "compress: %v", err)
		return
	}
	if err := zw.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, "compress: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleRestlet behaves like a NetSuite RESTlet: authentication and
// application failures come back as an "error" object.
func (s *Server) handleRestlet(w http.ResponseWriter, r *http.Request) {
	if err := netsuite.Verify(r, s.cfg.NetSuite); err != nil {
		s.logger.Warn("sandbox restlet rejected signature", "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error": map[string]any{"code": "INVALID_LOGIN_ATTEMPT", "message": "Invalid login attempt."},
		})
		return
	}
	var sub Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"code": "SYNTAX_ERROR", "message": err.Error()},
		})
		return
	}
	if sub.FileName == "" || sub.Status == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"error": map[string]any{"code": "INVALID_FLD_VALUE", "message": "status and fileName are required"},
		})
		return
	}
	saved, err := s.store.RecordSubmission(r.Context(), sub)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "record submission: %v", err)
		return
	}
	s.logger.Info("sandbox restlet accepted submission", "id", saved.ID, "status", saved.Status, "has_content", saved.Content != nil)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": saved.ID})
}

func (s *Server) handleGetScenario(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.currentScenario())
}

func (s *Server) handleSetScenario(w http.ResponseWriter, r *http.Request) {
	var sc Scenario
	if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if len(sc.Statuses) == 0 {
		writeError(w, http.StatusBadRequest, "statuses required")
		return
	}
	s.SetScenario(sc)
	s.logger.Info("sandbox scenario changed", "statuses", sc.Statuses)
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.store.ListReports(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list reports: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.ListSubmissions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list submissions: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": strings.TrimSpace(fmt.Sprintf(format, args...)),
			"status":  status,
		},
	})
}

// writeAmazonError uses the SP-API error envelope.
func writeAmazonError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"errors": []spapi.ErrorDetail{{Code: code, Message: message}},
	})
}

func handleNotFound(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		writeAmazonError(w, http.StatusNotFound, "NotFound", "resource not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "%v", err)
}
