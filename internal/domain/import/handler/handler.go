// Package handler exposes the import pipeline over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/FACorreiaa/collections-import/internal/domain/import/normalizer"
	"github.com/FACorreiaa/collections-import/internal/domain/import/parser"
	"github.com/FACorreiaa/collections-import/internal/domain/import/service"
	"github.com/FACorreiaa/collections-import/pkg/storage"
)

const (
	defaultPageSize  = 100
	maxPageSize      = 1000
	multipartMemory  = 8 << 20
	defaultMaxUpload = 32 << 20
	uploadFormField  = "file"
	maxPatternLen    = 200
)

// AliasStore manages the payer → client alias table.
type AliasStore interface {
	SaveAlias(ctx context.Context, pattern string, clientNumber int) (*normalizer.ClientAlias, error)
	ListAliases(ctx context.Context) ([]normalizer.ClientAlias, error)
	DeleteAlias(ctx context.Context, id uuid.UUID) error
}

// ImportHandler serves the import endpoints
type ImportHandler struct {
	importSvc *service.ImportService
	aliases   AliasStore
	matcher   *normalizer.ClientMatcher
	maxUpload int64
	logger    *slog.Logger
}

// NewImportHandler creates a new import handler. aliases and matcher may
// be nil, in which case the alias endpoints are not registered.
func NewImportHandler(importSvc *service.ImportService, aliases AliasStore, matcher *normalizer.ClientMatcher, maxUpload int64, logger *slog.Logger) *ImportHandler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &ImportHandler{
		importSvc: importSvc,
		aliases:   aliases,
		matcher:   matcher,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Register mounts the routes on r.
func (h *ImportHandler) Register(r *mux.Router) {
	r.HandleFunc("/imports", h.ListPending).Methods(http.MethodGet)
	r.HandleFunc("/imports/{kind}", h.Upload).Methods(http.MethodPost)
	r.HandleFunc("/imports/{id}", h.GetPreview).Methods(http.MethodGet)
	r.HandleFunc("/imports/{id}/export", h.Export).Methods(http.MethodGet)
	r.HandleFunc("/imports/{id}/source", h.Source).Methods(http.MethodGet)
	r.HandleFunc("/imports/{id}/confirm", h.Confirm).Methods(http.MethodPost)
	r.HandleFunc("/imports/{id}", h.Cancel).Methods(http.MethodDelete)

	if h.aliases != nil {
		r.HandleFunc("/aliases", h.ListAliases).Methods(http.MethodGet)
		r.HandleFunc("/aliases", h.SaveAlias).Methods(http.MethodPost)
		r.HandleFunc("/aliases/{id}", h.DeleteAlias).Methods(http.MethodDelete)
	}
}

// Upload reads a multipart file and returns the first preview page.
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	kind, err := service.ParseKind(mux.Vars(r)["kind"])
	if err != nil {
		h.respondError(w, http.StatusNotFound, err)
		return
	}

	if r.ContentLength > h.maxUpload {
		h.respondError(w, http.StatusRequestEntityTooLarge, parser.ErrFileTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, http.StatusRequestEntityTooLarge, parser.ErrFileTooLarge)
			return
		}
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, service.ErrNoFileSelected)
		return
	}
	defer file.Close()

	preview, err := h.importSvc.Preview(r.Context(), kind, header.Filename, file)
	if err != nil {
		h.respondError(w, statusFor(err), err)
		return
	}
	h.respondJSON(w, http.StatusCreated, preview)
}

// GetPreview returns one window of a pending run.
func (h *ImportHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	offset, limit, err := pageParams(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}

	preview, err := h.importSvc.GetPreview(id, offset, limit)
	if err != nil {
		h.respondError(w, statusFor(err), err)
		return
	}
	h.respondJSON(w, http.StatusOK, preview)
}

// Source streams back the file a pending run was built from.
func (h *ImportHandler) Source(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	rc, info, err := h.importSvc.Source(r.Context(), id)
	if err != nil {
		h.respondError(w, statusFor(err), err)
		return
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": info.Name}))
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream source file", slog.String("run_id", id.String()), slog.Any("error", err))
	}
}

// ListPending lists runs awaiting confirmation.
func (h *ImportHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{"runs": h.importSvc.Pending()})
}

// Confirm submits a pending run.
func (h *ImportHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}

	res, err := h.importSvc.Confirm(r.Context(), id)
	switch {
	case res != nil && err != nil:
		h.logger.Error("import confirm failed", slog.String("run_id", id.String()), slog.Any("error", err))
		h.respondJSON(w, http.StatusBadGateway, map[string]any{
			"run_id": res.RunID,
			"state":  res.State,
			"error":  err.Error(),
		})
	case err != nil:
		h.respondError(w, statusFor(err), err)
	default:
		h.respondJSON(w, http.StatusOK, res)
	}
}

// Cancel discards a pending run.
func (h *ImportHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	if err := h.importSvc.Cancel(r.Context(), id); err != nil {
		h.respondError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type aliasRequest struct {
	Pattern      string `json:"pattern"`
	ClientNumber int    `json:"client_number"`
}

// ListAliases returns the alias table.
func (h *ImportHandler) ListAliases(w http.ResponseWriter, r *http.Request) {
	aliases, err := h.aliases.ListAliases(r.Context())
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"aliases": aliases})
}

// SaveAlias creates or repoints an alias and reloads the matcher.
func (h *ImportHandler) SaveAlias(w http.ResponseWriter, r *http.Request) {
	var req aliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return
	}
	req.Pattern = strings.TrimSpace(req.Pattern)
	switch {
	case req.Pattern == "":
		h.respondError(w, http.StatusBadRequest, errors.New("pattern is required"))
		return
	case len(req.Pattern) > maxPatternLen:
		h.respondError(w, http.StatusBadRequest, errors.New("pattern is too long"))
		return
	case req.ClientNumber <= 0:
		h.respondError(w, http.StatusBadRequest, errors.New("client_number must be positive"))
		return
	}

	alias, err := h.aliases.SaveAlias(r.Context(), req.Pattern, req.ClientNumber)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.refreshMatcher(r.Context())
	h.respondJSON(w, http.StatusCreated, alias)
}

// DeleteAlias removes an alias and reloads the matcher.
func (h *ImportHandler) DeleteAlias(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, errors.New("invalid alias id"))
		return
	}
	if err := h.aliases.DeleteAlias(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, normalizer.ErrAliasNotFound) {
			status = http.StatusNotFound
		}
		h.respondError(w, status, err)
		return
	}
	h.refreshMatcher(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *ImportHandler) refreshMatcher(ctx context.Context) {
	if h.matcher == nil {
		return
	}
	if _, err := h.matcher.Refresh(ctx, h.aliases); err != nil {
		h.logger.Warn("failed to reload client aliases", slog.Any("error", err))
	}
}

func (h *ImportHandler) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, errors.New("invalid run id"))
		return uuid.Nil, false
	}
	return id, true
}

func pageParams(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	limit = defaultPageSize
	if v := q.Get("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return offset, limit, nil
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrRunNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, parser.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrEmptyFile),
		errors.Is(err, service.ErrNoFileSelected),
		errors.Is(err, service.ErrNoHeader),
		errors.Is(err, parser.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotCancellable),
		errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *ImportHandler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func (h *ImportHandler) respondError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.Int("status", status), slog.Any("error", err))
	}
	h.respondJSON(w, status, map[string]any{"error": err.Error()})
}
