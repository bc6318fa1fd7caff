// Package chi exposes the faceted-search API over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/openfacet/facetd/internal/domain"
	"github.com/openfacet/facetd/internal/domain/column"
	"github.com/openfacet/facetd/internal/domain/facet"
	domsaved "github.com/openfacet/facetd/internal/domain/saved"
	domsearch "github.com/openfacet/facetd/internal/domain/search"
	"github.com/openfacet/facetd/internal/metrics"
	exportuc "github.com/openfacet/facetd/internal/usecase/export"
	healthuc "github.com/openfacet/facetd/internal/usecase/health"
	saveduc "github.com/openfacet/facetd/internal/usecase/saved"
	searchuc "github.com/openfacet/facetd/internal/usecase/search"
)

// searchPath scopes saved searches to the one view this service exposes.
const searchPath = "/api/v1/search"

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the search, export, and saved-search services to HTTP.
type Server struct {
	search        *searchuc.Service
	export        *exportuc.Service
	saved         *saveduc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	export *exportuc.Service,
	saved *saveduc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search: search,
		export: export,
		saved:  saved,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrMalformedPayload, http.StatusBadRequest, "malformed_payload"),
		sentinelHandler(domain.ErrMalformedRule, http.StatusBadRequest, "malformed_rule"),
		sentinelHandler(domain.ErrInvalidCondition, http.StatusBadRequest, "invalid_condition"),
		sentinelHandler(domain.ErrUnsupportedOperator, http.StatusBadRequest, "unsupported_operator"),
		sentinelHandler(domain.ErrUnknownField, http.StatusBadRequest, "unknown_field"),
		// Existence is never leaked: scoping failures read as absence.
		sentinelHandler(domain.ErrSavedSearchNotFound, http.StatusNotFound, "saved_search_not_found"),
	}
	return s
}

// Router assembles the chi router with middleware and routes.
func (s *Server) Router(apiKeys []string) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(jsonRecoverer(s.logger))
	r.Use(requestLogger(s.logger))
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Get(searchPath, s.SimpleSearch)
	r.Post(searchPath, s.AdvancedSearch)
	r.Get(searchPath+"/export", s.ExportSearch)

	r.Get("/api/v1/saved", s.ListSavedSearches)
	r.Post("/api/v1/saved", s.CreateSavedSearch)
	r.Get("/api/v1/saved/{id}", s.GetSavedSearch)
	r.Patch("/api/v1/saved/{id}", s.UpdateSavedSearch)
	r.Delete("/api/v1/saved/{id}", s.DeleteSavedSearch)

	return r
}

// SimpleSearch handles GET /api/v1/search: the querystring-driven path, plus
// the facet-typeahead, CSV-export, and saved-search-recall dispatches.
func (s *Server) SimpleSearch(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)
	req := domsearch.ParseRequest(r.URL.Query())

	if req.SavedSearch != "" {
		recalled, err := s.saved.Get(r.Context(), searchPath, req.SavedSearch, user)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		values, err := url.ParseQuery(recalled.Querystring)
		if err != nil {
			s.handleDomainError(w, err)
			return
		}
		req = domsearch.ParseRequest(values)
	} else if len(r.URL.Query()) == 0 {
		// A bare landing applies the user's default search when one exists.
		if def, ok, err := s.saved.Default(r.Context(), searchPath, user); err == nil && ok {
			if values, err := url.ParseQuery(def.Querystring); err == nil {
				req = domsearch.ParseRequest(values)
			}
		}
	}

	switch {
	case req.FacetLookup != "":
		s.facetLookup(w, r, req)
	case req.Export:
		s.exportCSV(w, r, req)
	default:
		s.renderPage(w, r, req, user)
	}
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, req domsearch.Request, user string) {
	start := time.Now()
	page, err := s.search.Simple(r.Context(), req)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("simple", "error").Inc()
		s.handleDomainError(w, err)
		return
	}
	metrics.SearchesTotal.WithLabelValues("simple", "ok").Inc()
	metrics.SearchDuration.WithLabelValues("simple").Observe(time.Since(start).Seconds())

	resp := pageToResponse(page)

	// Saved-search context is best-effort; the page renders without it.
	if searches, err := s.saved.List(r.Context(), searchPath, user); err == nil {
		resp.SavedSearches = searches
	}
	if current, ok, err := s.saved.Match(r.Context(), searchPath, user, req.Values); err == nil && ok {
		resp.CurrentSaved = &current
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) facetLookup(w http.ResponseWriter, r *http.Request, req domsearch.Request) {
	start := time.Now()
	buckets, err := s.search.FacetLookup(r.Context(), req)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("facet_lookup", "error").Inc()
		s.handleDomainError(w, err)
		return
	}
	metrics.SearchesTotal.WithLabelValues("facet_lookup", "ok").Inc()
	metrics.SearchDuration.WithLabelValues("facet_lookup").Observe(time.Since(start).Seconds())

	counts := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		counts[b.Value] = b.Count
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request, req domsearch.Request) {
	query := s.search.BuildSimple(req)
	cols := s.search.ResolveColumns(req.Display)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename=`+s.export.Filename(time.Now()))

	if err := s.export.WriteCSV(r.Context(), w, query, cols); err != nil {
		// Headers are out; all we can do is cut the stream short and log.
		metrics.ExportsTotal.WithLabelValues("error").Inc()
		s.logger.Error("csv export aborted", zap.Error(err))
		return
	}
	metrics.ExportsTotal.WithLabelValues("ok").Inc()
}

// ExportSearch handles GET /api/v1/search/export: the explicit export route,
// equivalent to passing _export on the search path.
func (s *Server) ExportSearch(w http.ResponseWriter, r *http.Request) {
	req := domsearch.ParseRequest(r.URL.Query())
	s.exportCSV(w, r, req)
}

// AdvancedSearch handles POST /api/v1/search: the JSON rule-tree path.
func (s *Server) AdvancedSearch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "cannot read request body")
		return
	}

	start := time.Now()
	page, err := s.search.Advanced(r.Context(), body)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("advanced", "error").Inc()
		s.handleDomainError(w, err)
		return
	}
	metrics.SearchesTotal.WithLabelValues("advanced", "ok").Inc()
	metrics.SearchDuration.WithLabelValues("advanced").Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, pageToResponse(page))
}

// createSavedSearchRequest is the POST /api/v1/saved body.
type createSavedSearchRequest struct {
	Name  string `json:"name"`
	Query string `json:"query"` // raw querystring to persist
}

// CreateSavedSearch handles POST /api/v1/saved.
func (s *Server) CreateSavedSearch(w http.ResponseWriter, r *http.Request) {
	var req createSavedSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_payload", "invalid request body: "+err.Error())
		return
	}
	values, err := url.ParseQuery(req.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed_payload", "invalid query: "+err.Error())
		return
	}

	created, err := s.saved.Create(r.Context(), searchPath, requestUser(r), req.Name, values)
	if err != nil {
		metrics.SavedSearchOpsTotal.WithLabelValues("create", "error").Inc()
		s.handleDomainError(w, err)
		return
	}
	metrics.SavedSearchOpsTotal.WithLabelValues("create", "ok").Inc()
	writeJSON(w, http.StatusCreated, created)
}

// ListSavedSearches handles GET /api/v1/saved.
func (s *Server) ListSavedSearches(w http.ResponseWriter, r *http.Request) {
	searches, err := s.saved.List(r.Context(), searchPath, requestUser(r))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if searches == nil {
		searches = []domsaved.Search{}
	}
	writeJSON(w, http.StatusOK, searches)
}

// GetSavedSearch handles GET /api/v1/saved/{id}. Execution happens on the
// search path via the saved_search parameter; this returns the entity.
func (s *Server) GetSavedSearch(w http.ResponseWriter, r *http.Request) {
	found, err := s.saved.Get(r.Context(), searchPath, chi.URLParam(r, "id"), requestUser(r))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// DeleteSavedSearch handles DELETE /api/v1/saved/{id}.
func (s *Server) DeleteSavedSearch(w http.ResponseWriter, r *http.Request) {
	err := s.saved.Delete(r.Context(), searchPath, chi.URLParam(r, "id"), requestUser(r))
	if err != nil {
		metrics.SavedSearchOpsTotal.WithLabelValues("delete", "error").Inc()
		s.handleDomainError(w, err)
		return
	}
	metrics.SavedSearchOpsTotal.WithLabelValues("delete", "ok").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// updateSavedSearchRequest carries the four independent flag toggles. Nil
// means "leave unchanged".
type updateSavedSearchRequest struct {
	IsDefault *bool `json:"is_default"`
	IsSaved   *bool `json:"is_saved"`
}

// UpdateSavedSearch handles PATCH /api/v1/saved/{id}.
func (s *Server) UpdateSavedSearch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user := requestUser(r)

	var req updateSavedSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_payload", "invalid request body: "+err.Error())
		return
	}

	if req.IsDefault != nil {
		var err error
		if *req.IsDefault {
			err = s.saved.MarkDefault(r.Context(), searchPath, id, user)
		} else {
			err = s.saved.UnmarkDefault(r.Context(), searchPath, id, user)
		}
		if err != nil {
			metrics.SavedSearchOpsTotal.WithLabelValues("toggle_default", "error").Inc()
			s.handleDomainError(w, err)
			return
		}
		metrics.SavedSearchOpsTotal.WithLabelValues("toggle_default", "ok").Inc()
	}

	if req.IsSaved != nil {
		var err error
		if *req.IsSaved {
			err = s.saved.MarkSaved(r.Context(), searchPath, id, user)
		} else {
			err = s.saved.UnmarkSaved(r.Context(), searchPath, id, user)
		}
		if err != nil {
			metrics.SavedSearchOpsTotal.WithLabelValues("toggle_saved", "error").Inc()
			s.handleDomainError(w, err)
			return
		}
		metrics.SavedSearchOpsTotal.WithLabelValues("toggle_saved", "ok").Inc()
	}

	updated, err := s.saved.Get(r.Context(), searchPath, id, user)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// healthResponse is the JSON shape of the health report.
type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /health. A degraded report answers 503 so load
// balancers rotate the instance out.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for name, result := range report.Checks {
		checks[name] = string(result)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// requestUser identifies the caller for saved-search scoping. Identity is
// asserted upstream; an unauthenticated deployment shares one bucket.
func requestUser(r *http.Request) string {
	if user := r.Header.Get("X-User"); user != "" {
		return user
	}
	return "anonymous"
}

// searchResponse is the JSON shape of one rendered result page.
type searchResponse struct {
	Hits             []hitResponse             `json:"hits"`
	Page             pageInfo                  `json:"page"`
	Sort             string                    `json:"sort,omitempty"`
	Querystring      string                    `json:"querystring"`
	ResetQuerystring string                    `json:"reset_querystring"`
	SelectedFacets   []string                  `json:"selected_facets,omitempty"`
	Facets           map[string][]facet.Bucket `json:"facets"`
	Columns          []columnResponse          `json:"columns"`
	SavedSearches    []domsaved.Search         `json:"saved_searches,omitempty"`
	CurrentSaved     *domsaved.Search          `json:"current_saved,omitempty"`
}

type hitResponse struct {
	ID        string                 `json:"id"`
	Score     float64                `json:"score"`
	Source    map[string]interface{} `json:"source"`
	Highlight map[string][]string    `json:"highlight,omitempty"`
}

type pageInfo struct {
	Number int   `json:"number"`
	Size   int   `json:"size"`
	Total  int64 `json:"total"`
}

type columnResponse struct {
	Field    string `json:"field"`
	Label    string `json:"label"`
	Sortable bool   `json:"sortable"`
	Visible  bool   `json:"visible"`
	NextSort string `json:"next_sort,omitempty"`
}

func pageToResponse(page *searchuc.Page) *searchResponse {
	hits := make([]hitResponse, len(page.Hits))
	for i, h := range page.Hits {
		hits[i] = hitResponse{ID: h.ID, Score: h.Score, Source: h.Source, Highlight: h.Highlight}
	}

	cols := make([]columnResponse, len(page.Columns))
	for i, c := range page.Columns {
		cols[i] = columnResponse{
			Field:    c.Field,
			Label:    c.Label,
			Sortable: c.SortKey != "",
			Visible:  c.Visible,
			NextSort: column.NextSort(c, page.Sort),
		}
	}

	facets := page.Facets
	if facets == nil {
		facets = map[string][]facet.Bucket{}
	}

	return &searchResponse{
		Hits:             hits,
		Page:             pageInfo{Number: page.Number, Size: page.Size, Total: page.Total},
		Sort:             page.Sort,
		Querystring:      page.Querystring,
		ResetQuerystring: page.Reset,
		SelectedFacets:   page.SelectedFacets,
		Facets:           facets,
		Columns:          cols,
	}
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrUnknownField,
		domain.ErrUnsupportedOperator,
		domain.ErrInvalidCondition,
		domain.ErrMalformedRule,
		domain.ErrMalformedPayload,
		domain.ErrSavedSearchNotFound,
	}
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return err.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
