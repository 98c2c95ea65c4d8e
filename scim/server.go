package scim

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// DiscardLogger returns a logger that drops everything written to it, the
// default when no logger is supplied.
func DiscardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// UpstreamClient is everything the server needs from the upstream SCIM
// provider. upstream.Client satisfies this structurally; the scim package
// never imports upstream to avoid a cycle (upstream imports scim for its
// wire types).
type UpstreamClient interface {
	ListUsers(ctx context.Context, headers http.Header, startIndex, count int) ([]Resource, int, error)
	ListGroups(ctx context.Context, headers http.Header, startIndex, count int) ([]Resource, int, error)
	GetUser(ctx context.Context, id string, headers http.Header) (Resource, error)
	GetGroup(ctx context.Context, id string, headers http.Header) (Resource, error)
	CreateUser(ctx context.Context, body Resource, headers http.Header) (Resource, error)
	CreateGroup(ctx context.Context, body Resource, headers http.Header) (Resource, error)
	UpdateUser(ctx context.Context, id string, body Resource, headers http.Header) (Resource, error)
	UpdateGroup(ctx context.Context, id string, body Resource, headers http.Header) (Resource, error)
	PatchUser(ctx context.Context, id string, patch PatchOp, headers http.Header) (Resource, error)
	PatchGroup(ctx context.Context, id string, patch PatchOp, headers http.Header) (Resource, error)
	DeleteUser(ctx context.Context, id string, headers http.Header) error
	DeleteGroup(ctx context.Context, id string, headers http.Header) error
}

// Metrics is the set of counters the server increments. A concrete otel
// implementation lives in internal/telemetry; this package stays free of
// any concrete metrics SDK import.
type Metrics interface {
	IncUndercount(ctx context.Context)
	AddBackfillPages(ctx context.Context, n int)
	IncPatchRewrite(ctx context.Context, applied bool)
}

// noopMetrics discards everything, used when no Metrics is supplied.
type noopMetrics struct{}

func (noopMetrics) IncUndercount(context.Context)        {}
func (noopMetrics) AddBackfillPages(context.Context, int) {}
func (noopMetrics) IncPatchRewrite(context.Context, bool) {}

// Options configures a Server beyond the upstream client.
type Options struct {
	BaseURL               string
	Client                UpstreamClient
	Metrics               Metrics
	Logger                zerolog.Logger
	FilterFetchMultiplier int
	MaxFilterFetchSize    int
	MaxFilterComplexity   int
}

// Server is the SCIM HTTP surface: a thin router over the filter/backfill/
// PATCH core, backed by a single upstream SCIM provider.
type Server struct {
	baseURL string
	handler *Handler
	client  UpstreamClient
	metrics Metrics
	logger  zerolog.Logger
	mux     *http.ServeMux

	filterFetchMultiplier int
	maxFilterFetchSize    int
	maxFilterComplexity   int
}

// NewServer builds a Server from opts, falling back to a filter fetch
// multiplier of 20, a max_filter_fetch_size of 2000, and a
// max_filter_complexity of 50 when opts leaves them unset.
func NewServer(opts Options) *Server {
	multiplier := opts.FilterFetchMultiplier
	if multiplier <= 0 {
		multiplier = 20
	}
	maxFetch := opts.MaxFilterFetchSize
	if maxFetch <= 0 {
		maxFetch = 2000
	}
	maxComplexity := opts.MaxFilterComplexity
	if maxComplexity <= 0 {
		maxComplexity = 50
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	logger := opts.Logger

	s := &Server{
		baseURL:               strings.TrimSuffix(opts.BaseURL, "/"),
		handler:               NewHandler(opts.BaseURL),
		client:                opts.Client,
		metrics:               metrics,
		logger:                logger,
		mux:                   http.NewServeMux(),
		filterFetchMultiplier: multiplier,
		maxFilterFetchSize:    maxFetch,
		maxFilterComplexity:   maxComplexity,
	}

	s.setupRoutes()
	return s
}

// setupRoutes registers every path both at root and under /v2/..., per §6.
func (s *Server) setupRoutes() {
	for _, prefix := range []string{"", "/v2"} {
		s.mux.HandleFunc("GET "+prefix+"/ServiceProviderConfig", s.handleServiceProviderConfig)
		s.mux.HandleFunc("GET "+prefix+"/ResourceTypes", s.handleResourceTypes)
		s.mux.HandleFunc("GET "+prefix+"/Schemas", s.handleSchemas)

		s.mux.HandleFunc("GET "+prefix+"/Users", s.handleListUsers)
		s.mux.HandleFunc("POST "+prefix+"/Users", s.handleCreateUser)
		s.mux.HandleFunc("GET "+prefix+"/Users/{id}", s.handleGetUser)
		s.mux.HandleFunc("PUT "+prefix+"/Users/{id}", s.handleUpdateUser)
		s.mux.HandleFunc("PATCH "+prefix+"/Users/{id}", s.handlePatchUser)
		s.mux.HandleFunc("DELETE "+prefix+"/Users/{id}", s.handleDeleteUser)

		s.mux.HandleFunc("GET "+prefix+"/Groups", s.handleListGroups)
		s.mux.HandleFunc("POST "+prefix+"/Groups", s.handleCreateGroup)
		s.mux.HandleFunc("GET "+prefix+"/Groups/{id}", s.handleGetGroup)
		s.mux.HandleFunc("PUT "+prefix+"/Groups/{id}", s.handleUpdateGroup)
		s.mux.HandleFunc("PATCH "+prefix+"/Groups/{id}", s.handlePatchGroup)
		s.mux.HandleFunc("DELETE "+prefix+"/Groups/{id}", s.handleDeleteGroup)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.handler.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleServiceProviderConfig(w http.ResponseWriter, r *http.Request) {
	s.handler.WriteJSON(w, http.StatusOK, GetServiceProviderConfig(nil, s.maxFilterFetchSize))
}

func (s *Server) handleResourceTypes(w http.ResponseWriter, r *http.Request) {
	s.handler.WriteJSON(w, http.StatusOK, map[string]any{"Resources": GetResourceTypes()})
}

func (s *Server) handleSchemas(w http.ResponseWriter, r *http.Request) {
	s.handler.WriteJSON(w, http.StatusOK, []any{GetUserSchema(), GetGroupSchema()})
}

// writeUpstreamErr maps an error returned by the UpstreamClient to a SCIM
// error response, preserving the upstream's own status where meaningful.
func (s *Server) writeUpstreamErr(w http.ResponseWriter, r *http.Request, resourceType, id string, err error) {
	type statusError interface {
		error
		StatusCode() int
	}
	if se, ok := err.(statusError); ok {
		status := se.StatusCode()
		if status == http.StatusNotFound {
			s.handler.WriteSCIMError(w, ErrNotFound(resourceType, id))
			return
		}
		if status == http.StatusTooManyRequests {
			s.handler.WriteSCIMError(w, ErrTooMany(se.Error()))
			return
		}
		s.handler.WriteSCIMError(w, ErrUpstream(status, se.Error()))
		return
	}
	s.handler.WriteSCIMError(w, ErrUpstream(0, err.Error()))
	s.logRequestError(r, err)
}

func (s *Server) logRequestError(r *http.Request, err error) {
	s.logger.Error().Str("method", r.Method).Str("path", r.URL.Path).Err(err).Msg("upstream request failed")
}

// handleListUsers handles GET /Users: the filtered-list pipeline from §4.4.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	s.handleListResources(w, r, "User", s.client.ListUsers)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	s.handleListResources(w, r, "Group", s.client.ListGroups)
}

type upstreamPageFunc func(ctx context.Context, headers http.Header, startIndex, count int) ([]Resource, int, error)

func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request, resourceType string, listPage upstreamPageFunc) {
	params, err := s.handler.ParseQueryParams(r)
	if err != nil {
		s.handler.WriteSCIMError(w, ErrInvalidFilter(err.Error()))
		return
	}
	if err := ValidateQueryParams(&params); err != nil {
		if scimErr, ok := err.(*SCIMError); ok {
			s.handler.WriteSCIMError(w, scimErr)
			return
		}
		s.handler.WriteSCIMError(w, ErrInvalidValue(err.Error()))
		return
	}

	filter, err := ParseFilter(params.Filter)
	if err != nil {
		if scimErr, ok := err.(*SCIMError); ok {
			s.handler.WriteSCIMError(w, scimErr)
			return
		}
		s.handler.WriteSCIMError(w, ErrInvalidFilter(err.Error()))
		return
	}
	if NodeCount(filter) > s.maxFilterComplexity {
		s.handler.WriteSCIMError(w, ErrInvalidFilter("filter exceeds maximum complexity"))
		return
	}

	if filter == nil {
		// No filter: a single upstream page request at the client's own
		// pagination window is all that's needed, no backfill.
		page, total, err := listPage(r.Context(), r.Header, params.StartIndex, params.Count)
		if err != nil {
			s.writeUpstreamErr(w, r, resourceType, "", err)
			return
		}
		projected := ProjectAll(page, params.Attributes, params.ExcludedAttr)
		s.writeListResponse(w, projected, params.StartIndex, total, len(projected))
		return
	}

	workingSize := WorkingSize(params.Count, s.filterFetchMultiplier, s.maxFilterFetchSize)
	fetchPages := 0
	fetch := func(ctx context.Context, startIndex, count int) ([]Resource, int, error) {
		fetchPages++
		return listPage(ctx, r.Header, startIndex, count)
	}

	result := RunBackfill(r.Context(), fetch, workingSize)
	s.metrics.AddBackfillPages(r.Context(), fetchPages)
	if result.Undercounted {
		s.metrics.IncUndercount(r.Context())
	}

	matched := FilterResources(result.Resources, filter)
	if params.SortBy != "" {
		matched = SortResources(matched, params.SortBy, params.SortOrder)
	}

	paged, startIndex, pageLen := ApplyPagination(matched, params.StartIndex, params.Count)
	projected := ProjectAll(paged, params.Attributes, params.ExcludedAttr)
	s.writeListResponse(w, projected, startIndex, len(matched), pageLen)
}

func (s *Server) writeListResponse(w http.ResponseWriter, resources []Resource, startIndex, total, itemsPerPage int) {
	s.handler.WriteJSON(w, http.StatusOK, ListResponse{
		Schemas:      []string{SchemaListResponse},
		TotalResults: total,
		StartIndex:   startIndex,
		ItemsPerPage: itemsPerPage,
		Resources:    resources,
	})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	s.handleCreate(w, r, "User", s.client.CreateUser)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	s.handleCreate(w, r, "Group", s.client.CreateGroup)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, resourceType string, create func(ctx context.Context, body Resource, headers http.Header) (Resource, error)) {
	var body Resource
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.handler.WriteSCIMError(w, ErrInvalidSyntax("invalid JSON body"))
		return
	}

	created, err := create(r.Context(), body, r.Header)
	if err != nil {
		s.writeUpstreamErr(w, r, resourceType, "", err)
		return
	}

	endpoint := "Users"
	if resourceType == "Group" {
		endpoint = "Groups"
	}
	w.Header().Set("Location", s.handler.GetResourceLocation(endpoint, ID(created)))
	s.handler.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.handleGet(w, r, "User", s.client.GetUser)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	s.handleGet(w, r, "Group", s.client.GetGroup)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, resourceType string, get func(ctx context.Context, id string, headers http.Header) (Resource, error)) {
	id := r.PathValue("id")
	params, err := s.handler.ParseQueryParams(r)
	if err != nil {
		s.handler.WriteSCIMError(w, ErrInvalidValue(err.Error()))
		return
	}

	resource, err := get(r.Context(), id, r.Header)
	if err != nil {
		s.writeUpstreamErr(w, r, resourceType, id, err)
		return
	}

	projected := Project(resource, params.Attributes, params.ExcludedAttr)
	s.handler.WriteJSON(w, http.StatusOK, projected)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	s.handleUpdate(w, r, "User", s.client.UpdateUser)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	s.handleUpdate(w, r, "Group", s.client.UpdateGroup)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, resourceType string, update func(ctx context.Context, id string, body Resource, headers http.Header) (Resource, error)) {
	id := r.PathValue("id")
	var body Resource
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.handler.WriteSCIMError(w, ErrInvalidSyntax("invalid JSON body"))
		return
	}

	updated, err := update(r.Context(), id, body, r.Header)
	if err != nil {
		s.writeUpstreamErr(w, r, resourceType, id, err)
		return
	}

	s.handler.WriteJSON(w, http.StatusOK, updated)
}

func (s *Server) handlePatchUser(w http.ResponseWriter, r *http.Request) {
	s.handlePatch(w, r, "User", s.client.GetUser, s.client.PatchUser)
}

func (s *Server) handlePatchGroup(w http.ResponseWriter, r *http.Request) {
	s.handlePatch(w, r, "Group", s.client.GetGroup, s.client.PatchGroup)
}

func (s *Server) handlePatch(
	w http.ResponseWriter,
	r *http.Request,
	resourceType string,
	get func(ctx context.Context, id string, headers http.Header) (Resource, error),
	patch func(ctx context.Context, id string, patch PatchOp, headers http.Header) (Resource, error),
) {
	id := r.PathValue("id")

	var body PatchOp
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.handler.WriteSCIMError(w, ErrInvalidSyntax("invalid JSON body"))
		return
	}
	if err := ValidatePatchOp(&body); err != nil {
		if scimErr, ok := err.(*SCIMError); ok {
			s.handler.WriteSCIMError(w, scimErr)
			return
		}
		s.handler.WriteSCIMError(w, ErrInvalidPatch(err.Error()))
		return
	}

	fetch := func(ctx context.Context) (Resource, error) {
		return get(ctx, id, r.Header)
	}

	rewritten, outcomes := AdaptPatch(r.Context(), body, fetch)
	for _, outcome := range outcomes {
		s.metrics.IncPatchRewrite(r.Context(), outcome.Applied)
	}

	updated, err := patch(r.Context(), id, rewritten, r.Header)
	if err != nil {
		s.writeUpstreamErr(w, r, resourceType, id, err)
		return
	}

	s.handler.WriteJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, "User", s.client.DeleteUser)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	s.handleDelete(w, r, "Group", s.client.DeleteGroup)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, resourceType string, del func(ctx context.Context, id string, headers http.Header) error) {
	id := r.PathValue("id")
	if err := del(r.Context(), id, r.Header); err != nil {
		s.writeUpstreamErr(w, r, resourceType, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
