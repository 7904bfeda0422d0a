package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"

	"github.com/checkward/checkward/awsops"
	"github.com/checkward/checkward/internal/logger"
	"github.com/checkward/checkward/rules"
	"github.com/checkward/checkward/tenants"
	"github.com/checkward/checkward/validation"
)

type Server struct {
	db            *sql.DB
	ruleStore     rules.RuleStore
	overrideStore rules.OverrideStore
	tenantStore   tenants.Store
	execStore     validation.ExecutionStore
	cache         rules.DefinitionCache
	orchestrator  *validation.Orchestrator
	router        *chi.Mux
	logger        *slog.Logger
}

// NewServer wires the full service: Postgres-backed stores when DATABASE_URL
// is set, in-memory stores otherwise, plus the AWS-bound validation engine.
func NewServer(ctx context.Context, databaseURL string) (*Server, error) {
	var (
		db            *sql.DB
		ruleStore     rules.RuleStore
		overrideStore rules.OverrideStore
		tenantStore   tenants.Store
		execStore     validation.ExecutionStore
	)

	if databaseURL != "" {
		var err error
		db, err = sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		ruleStore = rules.NewPostgresRuleStore(db)
		overrideStore = rules.NewPostgresOverrideStore(db)
		tenantStore = tenants.NewPostgresStore(db)
		execStore = validation.NewPostgresExecutionStore(db)
	} else {
		ruleStore = rules.NewInMemoryRuleStore()
		overrideStore = rules.NewInMemoryOverrideStore()
		tenantStore = tenants.NewInMemoryStore()
		execStore = validation.NewInMemoryExecutionStore()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	cache := rules.NewInMemoryDefinitionCache(rules.DefaultCacheConfig())

	orchestrator, err := validation.NewOrchestrator(validation.OrchestratorConfig{
		Rules:     ruleStore,
		Overrides: overrideStore,
		Tenants:   tenantStore,
		Cache:     cache,
		Creds:     awsops.NewSTSCredentialProvider(awsCfg),
		Invoker:   awsops.NewInvoker(awsops.DefaultClientFactory),
		Extractor: awsops.NewExtractor(),
		Recorder:  execStore,
		Logger:    logger.Logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		db:            db,
		ruleStore:     ruleStore,
		overrideStore: overrideStore,
		tenantStore:   tenantStore,
		execStore:     execStore,
		cache:         cache,
		orchestrator:  orchestrator,
		logger:        logger.Logger,
	}
	s.setupRoutes()
	return s, nil
}

// newServerWithEngine wires a server around preconstructed stores and
// orchestrator. Used by tests.
func newServerWithEngine(
	ruleStore rules.RuleStore,
	overrideStore rules.OverrideStore,
	tenantStore tenants.Store,
	execStore validation.ExecutionStore,
	cache rules.DefinitionCache,
	orchestrator *validation.Orchestrator,
) *Server {
	s := &Server{
		ruleStore:     ruleStore,
		overrideStore: overrideStore,
		tenantStore:   tenantStore,
		execStore:     execStore,
		cache:         cache,
		orchestrator:  orchestrator,
		logger:        slog.Default(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	r.Post("/api/v1/validate", s.handleValidate)
	r.Get("/api/v1/executions", s.handleListExecutions)
	r.Get("/api/v1/results/{executionId}", s.handleGetResult)

	r.Route("/api/v1/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)

		r.Route("/{checkId}", func(r chi.Router) {
			r.Get("/", s.handleGetActiveRule)
			r.Get("/versions/{version}", s.handleGetRuleVersion)
			r.Put("/versions/{version}", s.handleUpdateRuleVersion)
			r.Delete("/versions/{version}", s.handleDeleteRuleVersion)
		})
	})

	r.Route("/api/v1/tenants", func(r chi.Router) {
		r.Get("/", s.handleListTenants)
		r.Post("/", s.handleCreateTenant)

		r.Route("/{tenantId}", func(r chi.Router) {
			r.Get("/", s.handleGetTenant)
			r.Put("/", s.handleUpdateTenant)
			r.Delete("/", s.handleDeleteTenant)

			r.Get("/overrides", s.handleListOverrides)
			r.Put("/overrides/{ruleId}", s.handlePutOverride)
			r.Delete("/overrides/{ruleId}", s.handleDeleteOverride)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Validation handler
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.TenantID == "" {
		respondError(w, http.StatusBadRequest, "tenant_id is required", nil)
		return
	}

	trigger := validation.Trigger{Source: req.TriggerSource, RequestedBy: req.RequestedBy}
	if trigger.Source == "" {
		trigger.Source = "api"
	}

	if req.CheckID == "" {
		s.handleBatchValidate(w, r, req, trigger)
		return
	}

	result, err := s.orchestrator.RunCheck(r.Context(), req.CheckID, req.TenantID, trigger)
	if err != nil {
		var noRule *rules.ErrNoActiveRule
		var noTenant *tenants.ErrNotFound
		switch {
		case errors.As(err, &noRule):
			respondError(w, http.StatusNotFound, "no active rule for check", err)
		case errors.As(err, &noTenant):
			respondError(w, http.StatusNotFound, "tenant not found", err)
		case errors.Is(err, validation.ErrCheckDisabled):
			respondError(w, http.StatusConflict, "check disabled for tenant", err)
		default:
			// A persistence failure still carries the finished result
			if result != nil {
				s.logger.Error("failed to record execution",
					slog.String("execution_id", result.ExecutionID),
					slog.String("error", err.Error()))
				respondJSON(w, http.StatusOK, result)
				return
			}
			respondError(w, http.StatusInternalServerError, "validation failed", err)
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleBatchValidate runs every selected check for the tenant and responds
// with per-check summaries plus status counts. Per-check failures do not
// abort the batch.
func (s *Server) handleBatchValidate(w http.ResponseWriter, r *http.Request, req ValidateRequest, trigger validation.Trigger) {
	if !req.ValidateAll && len(req.CheckFilter) == 0 {
		respondError(w, http.StatusBadRequest, "check_id, check_filter or validate_all is required", nil)
		return
	}

	checkIDs := req.CheckFilter
	if req.ValidateAll {
		active, err := s.ruleStore.ListActive()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list active rules", err)
			return
		}
		checkIDs = make([]string, 0, len(active))
		for _, rule := range active {
			checkIDs = append(checkIDs, rule.CheckID)
		}
	}

	resp := BatchValidateResponse{
		TenantID: req.TenantID,
		Results:  []CheckSummary{},
		Counts:   map[string]int{},
	}
	for _, checkID := range checkIDs {
		summary := CheckSummary{CheckID: checkID}
		result, err := s.orchestrator.RunCheck(r.Context(), checkID, req.TenantID, trigger)
		switch {
		case errors.Is(err, validation.ErrCheckDisabled):
			summary.Status = "SKIPPED"
		case err != nil && result == nil:
			summary.Status = validation.StatusError
			summary.Error = err.Error()
		default:
			if err != nil {
				s.logger.Error("failed to record execution",
					slog.String("execution_id", result.ExecutionID),
					slog.String("error", err.Error()))
			}
			summary.ExecutionID = result.ExecutionID
			summary.Status = result.Status
			summary.Score = result.Score
		}
		resp.Counts[summary.Status]++
		resp.Results = append(resp.Results, summary)
	}

	respondJSON(w, http.StatusOK, resp)
}

// Execution listing handler
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	q := validation.ExecutionQuery{
		TenantID: r.URL.Query().Get("tenant_id"),
		CheckID:  r.URL.Query().Get("check_id"),
		Status:   r.URL.Query().Get("status"),
		Limit:    50,
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		fmt.Sscanf(limit, "%d", &q.Limit)
	}

	records, err := s.execStore.List(r.Context(), q)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list executions", err)
		return
	}
	if records == nil {
		records = []*validation.ExecutionRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"executions": records})
}

// Result retrieval handler
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	executionID := chi.URLParam(r, "executionId")

	result, err := s.execStore.Get(r.Context(), executionID)
	if err != nil {
		var notFound *validation.ErrExecutionNotFound
		if errors.As(err, &notFound) {
			respondError(w, http.StatusNotFound, "execution not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get execution", err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// Rule handlers

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	var (
		list []*rules.Rule
		err  error
	)
	if r.URL.Query().Get("active") == "true" {
		list, err = s.ruleStore.ListActive()
	} else {
		list, err = s.ruleStore.List()
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if list == nil {
		list = []*rules.Rule{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": list})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if rule.CheckID == "" || rule.Version == "" {
		respondError(w, http.StatusBadRequest, "check_id and version are required", nil)
		return
	}
	if rule.Status == "" {
		rule.Status = rules.StatusActive
	}

	if err := s.ruleStore.Put(&rule); err != nil {
		respondError(w, http.StatusConflict, "failed to create rule", err)
		return
	}
	s.cache.Invalidate(rule.CheckID)

	respondJSON(w, http.StatusCreated, &rule)
}

func (s *Server) handleGetActiveRule(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "checkId")

	rule, err := s.ruleStore.GetActiveRule(checkID)
	if err != nil {
		respondError(w, http.StatusNotFound, "no active rule for check", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleGetRuleVersion(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "checkId")
	version := chi.URLParam(r, "version")

	rule, err := s.ruleStore.Get(checkID, version)
	if err != nil {
		respondError(w, http.StatusNotFound, "rule version not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRuleVersion(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "checkId")
	version := chi.URLParam(r, "version")

	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	rule.CheckID = checkID
	rule.Version = version

	if err := s.ruleStore.Update(&rule); err != nil {
		respondError(w, http.StatusNotFound, "failed to update rule", err)
		return
	}
	s.cache.Invalidate(checkID)

	respondJSON(w, http.StatusOK, &rule)
}

func (s *Server) handleDeleteRuleVersion(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "checkId")
	version := chi.URLParam(r, "version")

	if err := s.ruleStore.Delete(checkID, version); err != nil {
		respondError(w, http.StatusNotFound, "failed to delete rule", err)
		return
	}
	s.cache.Invalidate(checkID)

	w.WriteHeader(http.StatusNoContent)
}

// Tenant handlers

func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	list, err := s.tenantStore.List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tenants", err)
		return
	}
	if list == nil {
		list = []*tenants.Tenant{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"tenants": list})
}

func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var tenant tenants.Tenant
	if err := json.NewDecoder(r.Body).Decode(&tenant); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if tenant.ID == "" || tenant.AccountID == "" {
		respondError(w, http.StatusBadRequest, "id and account_id are required", nil)
		return
	}
	if tenant.Status == "" {
		tenant.Status = tenants.StatusActive
	}

	if err := s.tenantStore.Put(&tenant); err != nil {
		respondError(w, http.StatusConflict, "failed to create tenant", err)
		return
	}
	respondJSON(w, http.StatusCreated, &tenant)
}

func (s *Server) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := s.tenantStore.Get(chi.URLParam(r, "tenantId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "tenant not found", err)
		return
	}
	respondJSON(w, http.StatusOK, tenant)
}

func (s *Server) handleUpdateTenant(w http.ResponseWriter, r *http.Request) {
	var tenant tenants.Tenant
	if err := json.NewDecoder(r.Body).Decode(&tenant); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	tenant.ID = chi.URLParam(r, "tenantId")

	if err := s.tenantStore.Update(&tenant); err != nil {
		respondError(w, http.StatusNotFound, "failed to update tenant", err)
		return
	}
	respondJSON(w, http.StatusOK, &tenant)
}

func (s *Server) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	if err := s.tenantStore.Delete(chi.URLParam(r, "tenantId")); err != nil {
		respondError(w, http.StatusNotFound, "failed to delete tenant", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Override handlers

func (s *Server) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	list, err := s.overrideStore.List(chi.URLParam(r, "tenantId"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list overrides", err)
		return
	}
	if list == nil {
		list = []*rules.Override{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"overrides": list})
}

func (s *Server) handlePutOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	override := &rules.Override{
		TenantID:         chi.URLParam(r, "tenantId"),
		RuleID:           chi.URLParam(r, "ruleId"),
		Enabled:          req.Enabled,
		CustomParameters: req.CustomParameters,
	}
	if err := s.overrideStore.Put(override); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store override", err)
		return
	}
	respondJSON(w, http.StatusOK, override)
}

func (s *Server) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	if err := s.overrideStore.Delete(tenantID, ruleID); err != nil {
		respondError(w, http.StatusNotFound, "override not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	ctx := context.Background()
	log := logger.Logger

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	server, err := NewServer(ctx, databaseURL)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", slog.String("port", port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed to start", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", slog.String("error", err.Error()))
	}
	if err := logger.Shutdown(shutdownCtx); err != nil {
		log.Error("logger shutdown error", slog.String("error", err.Error()))
	}

	log.Info("server stopped")
}
