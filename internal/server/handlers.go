package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hyperjump/spravka/internal/config"
	"github.com/hyperjump/spravka/internal/indexer"
	"github.com/hyperjump/spravka/internal/models"
	"github.com/hyperjump/spravka/internal/storage"
)

const defaultTitleLimit = 20

// QueryRequest is the body of POST /api/v1/query and /api/v1/search.
type QueryRequest struct {
	Query           string `json:"query" validate:"required"`
	TopK            int    `json:"top_k,omitempty" validate:"omitempty,min=1,max=50"`
	Mode            string `json:"mode,omitempty" validate:"omitempty,oneof=hybrid semantic"`
	IncludeInactive bool   `json:"include_inactive,omitempty"`
	Tag             string `json:"tag,omitempty"`
}

func (q *QueryRequest) model() *models.QueryRequest {
	return &models.QueryRequest{
		Query:           q.Query,
		TopK:            q.TopK,
		Mode:            models.SearchMode(q.Mode),
		IncludeInactive: q.IncludeInactive,
		Tag:             q.Tag,
	}
}

// IngestRequest is the body of POST /api/v1/instructions. Path may be a file or a directory.
type IngestRequest struct {
	Path   string   `json:"path" validate:"required"`
	Author string   `json:"author,omitempty"`
	Tags   []string `json:"tags,omitempty" validate:"dive,required"`
	Active *bool    `json:"active,omitempty"`
}

// IngestResponse reports what an ingest request stored.
type IngestResponse struct {
	Path           string   `json:"path"`
	InstructionIDs []string `json:"instruction_ids,omitempty"`
	Titles         []string `json:"titles,omitempty"`
	Chunks         int      `json:"chunks"`
	Files          int      `json:"files,omitempty"`
	Replaced       int      `json:"replaced,omitempty"`
}

// TagRequest is the body of POST /api/v1/tags.
type TagRequest struct {
	Name     string `json:"name" validate:"required"`
	Category string `json:"category,omitempty"`
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Stats          *models.PipelineStats `json:"stats"`
	DiskUsage      []storage.PathUsage   `json:"disk_usage,omitempty"`
	DiskUsageBytes int64                 `json:"disk_usage_bytes"`
	Config         map[string]any        `json:"config"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	answer, err := s.pipeline.Query(r.Context(), req.model())
	if err != nil {
		s.fail(w, "query failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, answer)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("top_k", req.TopK))
	result, err := s.pipeline.Retrieve(r.Context(), req.model())
	if err != nil {
		s.fail(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.logger.Debug("ingest request", zap.String("path", req.Path))
	resp, err := Ingest(r.Context(), s.ingestor, &req, s.config.Watch.Extensions, s.logger)
	if err != nil {
		s.fail(w, "ingest failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListInstructions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if text := strings.TrimSpace(q.Get("q")); text != "" {
		if s.titles == nil {
			s.respondError(w, http.StatusNotImplemented, "title search not enabled")
			return
		}
		limit := defaultTitleLimit
		if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
			limit = v
		}
		list, err := FindByTitle(r.Context(), s.titles, s.catalog, text, limit)
		if err != nil {
			s.fail(w, "title search failed", err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"instructions": list})
		return
	}

	activeOnly, _ := strconv.ParseBool(q.Get("active_only"))
	list, err := ListInstructions(r.Context(), s.catalog, activeOnly, q.Get("tag"))
	if err != nil {
		s.fail(w, "list instructions failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"instructions": list})
}

func (s *Server) handleGetInstruction(w http.ResponseWriter, r *http.Request) {
	inst, err := s.catalog.GetInstruction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get instruction failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, inst)
}

func (s *Server) handleDeleteInstruction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete instruction request", zap.String("id", id))
	if err := s.ingestor.DeleteInstruction(r.Context(), id); err != nil {
		s.fail(w, "deletion failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleSetActive(active bool) http.HandlerFunc {
	status := "deactivated"
	if active {
		status = "activated"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var err error
		if active {
			err = s.ingestor.ActivateInstruction(r.Context(), id)
		} else {
			err = s.ingestor.DeactivateInstruction(r.Context(), id)
		}
		if err != nil {
			s.fail(w, "status change failed", err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": status})
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.catalog.GetInstruction(ctx, id); err != nil {
		s.fail(w, "history failed", err)
		return
	}
	entries, err := s.catalog.History(ctx, id)
	if err != nil {
		s.fail(w, "history failed", err)
		return
	}
	if entries == nil {
		entries = []*models.HistoryEntry{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.catalog.ListTags(r.Context())
	if err != nil {
		s.fail(w, "list tags failed", err)
		return
	}
	if tags == nil {
		tags = []*models.Tag{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"tags": tags})
}

func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	var req TagRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.catalog.AddTag(r.Context(), req.Name, req.Category); err != nil {
		s.fail(w, "add tag failed", err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"name": req.Name, "status": "added"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := BuildStatus(r.Context(), s.pipeline, s.config, s.logger)
	if err != nil {
		s.fail(w, "status failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path" validate:"required"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if !s.decode(w, r, &req) {
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.fail(w, "watch add directory failed", err)
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.fail(w, "watch add directory failed", err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, models.ErrEmptyQuery),
		errors.Is(err, models.ErrUnsupportedFormat),
		errors.Is(err, models.ErrMalformedChunkingConfig),
		errors.Is(err, indexer.ErrEmptyDocument),
		errors.As(err, &verrs):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrEmbeddingUnavailable),
		errors.Is(err, models.ErrIndexUnavailable),
		errors.Is(err, models.ErrGenerationUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
