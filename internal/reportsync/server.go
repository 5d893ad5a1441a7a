package reportsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/salesreport-sync/internal/config"
)

const maxInvokeBody = 1 << 20

// Server exposes the tenant registry and report triggers over HTTP.
type Server struct {
	store         *Store
	orchestrator  ReportOrchestrator
	gatherer      prometheus.Gatherer
	tenantChanged func(id string)
	logger        *slog.Logger
}

// NewServer creates a server with the required collaborators wired in.
func NewServer(store *Store, orchestrator ReportOrchestrator, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	return &Server{
		store:        store,
		orchestrator: orchestrator,
		gatherer:     gatherer,
		logger:       logger,
	}
}

// OnTenantChange registers a hook called after a tenant is replaced or removed.
func (s *Server) OnTenantChange(fn func(id string)) {
	s.tenantChanged = fn
}

// Router configures all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/tenants", func(r chi.Router) {
		r.Get("/", s.handleListTenants)
		r.Post("/", s.handleRegisterTenant)
		r.Delete("/{tenantID}", s.handleDeleteTenant)
		r.Post("/{tenantID}/reports/sales-traffic", s.handleRunReport)
		r.Post("/{tenantID}/reports/sales-traffic/async", s.handleRunReportAsync)
	})
	return r
}

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.store.ListTenants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list tenants: %v", err)
		return
	}
	if tenants == nil {
		tenants = []TenantSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

func (s *Server) handleRegisterTenant(w http.ResponseWriter, r *http.Request) {
	var tenant config.Tenant
	if err := json.NewDecoder(r.Body).Decode(&tenant); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	tenant.ID = config.NormalizeTenantID(tenant.ID)
	if err := tenant.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if err := s.store.UpsertTenant(r.Context(), tenant); err != nil {
		writeError(w, http.StatusInternalServerError, "register tenant: %v", err)
		return
	}
	s.notifyTenantChanged(tenant.ID)
	s.logger.Info("tenant registered", "tenant", tenant.ID, "region", tenant.SPAPI.Region)
	writeJSON(w, http.StatusCreated, map[string]any{"id": tenant.ID})
}

func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	if err := s.store.DeleteTenant(r.Context(), tenantID); err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, "tenant not registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "delete tenant: %v", err)
		return
	}
	s.notifyTenantChanged(tenantID)
	s.logger.Info("tenant removed", "tenant", tenantID)
	w.WriteHeader(http.StatusNoContent)
}

// handleRunReport runs the report synchronously and answers with the
// invocation status and message as plain text.
func (s *Server) handleRunReport(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "report orchestrator not configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInvokeBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: %v", err)
		return
	}
	tenantID := config.NormalizeTenantID(chi.URLParam(r, "tenantID"))
	resp := Invoke(r.Context(), s.orchestrator, s.logger, tenantID, body)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

func (s *Server) handleRunReportAsync(w http.ResponseWriter, r *http.Request) {
	if s.orchestrator == nil {
		writeError(w, http.StatusServiceUnavailable, "report orchestrator not configured")
		return
	}
	tenantID := config.NormalizeTenantID(chi.URLParam(r, "tenantID"))
	if _, err := s.store.GetTenant(r.Context(), tenantID); err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			writeError(w, http.StatusNotFound, "tenant not registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "load tenant: %v", err)
		return
	}
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	id, err := s.orchestrator.RunReportAsync(r.Context(), RunInput{TenantID: tenantID, Year: req.year(s.logger, tenantID), Reason: "api-async"})
	if err != nil {
		writeError(w, http.StatusBadGateway, "dispatch workflow: %v", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"tenant": tenantID, "workflow_id": id})
}

func (s *Server) notifyTenantChanged(id string) {
	if s.tenantChanged != nil {
		s.tenantChanged(id)
	}
}

// StartAutoSync dispatches a report run for every registered tenant now and
// then once per interval until ctx is done.
func (s *Server) StartAutoSync(ctx context.Context, interval time.Duration) {
	go func() {
		s.logger.Info("autosync loop started", "interval", interval)
		s.dispatchAllTenants(ctx, "autosync-initial")
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("autosync loop stopped", "reason", ctx.Err())
				return
			case <-ticker.C:
				s.dispatchAllTenants(ctx, "autosync-interval")
			}
		}
	}()
}

func (s *Server) dispatchAllTenants(ctx context.Context, reason string) {
	if s.orchestrator == nil {
		s.logger.Warn("autosync orchestrator not available; skipping dispatch")
		return
	}
	tenants, err := s.store.ListTenants(ctx)
	if err != nil {
		s.logger.Error("autosync list tenants failed", "error", err)
		return
	}
	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			return
		}
		id, err := s.orchestrator.RunReportAsync(ctx, RunInput{TenantID: tenant.ID, Reason: reason})
		if err != nil {
			s.logger.Error("autosync dispatch failed", "tenant", tenant.ID, "error", err)
			continue
		}
		s.logger.Info("autosync dispatched workflow", "tenant", tenant.ID, "workflow_id", id, "reason", reason)
	}
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
