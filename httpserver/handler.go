package httpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/labcode-dev/labcode-log-server/hal"
	"github.com/labcode-dev/labcode-log-server/interfaces"
)

// ContentService is the slice of the hybrid access layer the handlers need.
type ContentService interface {
	ListContents(ctx context.Context, runID int64, prefix string) ([]hal.ContentItem, error)
	LoadContent(ctx context.Context, runID int64, path string) ([]byte, error)
	GetDownloadURL(ctx context.Context, runID int64, path string) (string, error)
	GetStorageInfo(ctx context.Context, runID int64) (*hal.StorageInfo, error)
}

// Handler processes storage API requests.
type Handler struct {
	content ContentService
	ops     interfaces.OperationLogStore

	// direct is the backend serving /api/storage/download-direct, chosen
	// by the configured default storage mode.
	direct interfaces.StorageBackend

	log *slog.Logger
}

// NewHandler creates a handler around the hybrid access layer.
func NewHandler(content ContentService, ops interfaces.OperationLogStore, direct interfaces.StorageBackend, log *slog.Logger) *Handler {
	return &Handler{content: content, ops: ops, direct: direct, log: log}
}

type listResponse struct {
	RunID  int64             `json:"run_id"`
	Prefix string            `json:"prefix"`
	Items  []hal.ContentItem `json:"items"`
}

type contentResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type downloadResponse struct {
	URL   string `json:"url"`
	RunID int64  `json:"run_id"`
	Path  string `json:"path"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleListContents serves GET /api/v2/storage/list/{run_id}.
func (h *Handler) HandleListContents(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	prefix := r.URL.Query().Get("prefix")

	items, err := h.content.ListContents(r.Context(), runID, prefix)
	if err != nil {
		h.serviceError(w, err, "list contents")
		return
	}
	if items == nil {
		items = []hal.ContentItem{}
	}

	h.writeJSON(w, http.StatusOK, listResponse{RunID: runID, Prefix: prefix, Items: items})
}

// HandleLoadContent serves GET /api/v2/storage/content/{run_id}. Text
// content is returned as UTF-8; binary content is base64 encoded.
func (h *Handler) HandleLoadContent(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	virtualPath := r.URL.Query().Get("path")
	if virtualPath == "" {
		h.writeError(w, http.StatusBadRequest, "missing path parameter")
		return
	}

	data, err := h.content.LoadContent(r.Context(), runID, virtualPath)
	if err != nil {
		h.serviceError(w, err, "load content")
		return
	}

	if utf8.Valid(data) {
		h.writeJSON(w, http.StatusOK, contentResponse{Content: string(data), Encoding: "utf-8"})
		return
	}
	h.writeJSON(w, http.StatusOK, contentResponse{
		Content:  base64.StdEncoding.EncodeToString(data),
		Encoding: "base64",
	})
}

// HandleDownloadURL serves GET /api/v2/storage/download/{run_id}.
func (h *Handler) HandleDownloadURL(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}
	virtualPath := r.URL.Query().Get("path")
	if virtualPath == "" {
		h.writeError(w, http.StatusBadRequest, "missing path parameter")
		return
	}

	url, err := h.content.GetDownloadURL(r.Context(), runID, virtualPath)
	if err != nil {
		h.serviceError(w, err, "resolve download URL")
		return
	}

	h.writeJSON(w, http.StatusOK, downloadResponse{URL: url, RunID: runID, Path: virtualPath})
}

// HandleStorageInfo serves GET /api/v2/storage/info/{run_id}.
func (h *Handler) HandleStorageInfo(w http.ResponseWriter, r *http.Request) {
	runID, ok := h.runID(w, r)
	if !ok {
		return
	}

	info, err := h.content.GetStorageInfo(r.Context(), runID)
	if err != nil {
		h.serviceError(w, err, "get storage info")
		return
	}

	h.writeJSON(w, http.StatusOK, info)
}

// HandleDBContent serves GET /api/v2/storage/db-content/{run_id}, returning
// a database-resident operation log as a plain text attachment.
func (h *Handler) HandleDBContent(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.runID(w, r); !ok {
		return
	}
	virtualPath := r.URL.Query().Get("path")
	opIDParam := r.URL.Query().Get("op_id")

	operationID, err := strconv.ParseInt(opIDParam, 10, 64)
	if err != nil || !hal.IsOperationLogPath(virtualPath) {
		h.writeError(w, http.StatusNotFound, "content not found in database")
		return
	}

	data, err := h.ops.LoadOperationLog(r.Context(), operationID)
	if err != nil {
		if errors.Is(err, interfaces.ErrObjectNotFound) {
			h.writeError(w, http.StatusNotFound, "content not found in database")
			return
		}
		h.serviceError(w, err, "load operation log")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=log_%d.txt", operationID))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleDirectDownload serves GET /api/storage/download-direct, streaming
// from the default backend.
func (h *Handler) HandleDirectDownload(w http.ResponseWriter, r *http.Request) {
	storagePath := r.URL.Query().Get("path")
	if storagePath == "" {
		h.writeError(w, http.StatusBadRequest, "missing path parameter")
		return
	}

	stream, err := h.direct.LoadStream(r.Context(), storagePath)
	if err != nil {
		if errors.Is(err, interfaces.ErrObjectNotFound) || errors.Is(err, interfaces.ErrInvalidPath) {
			h.writeError(w, http.StatusNotFound, "file not found")
			return
		}
		h.serviceError(w, err, "open download stream")
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", path.Base(storagePath)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, stream); err != nil {
		h.log.Debug("download stream interrupted", "err", err)
	}
}

func (h *Handler) runID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	runID, err := strconv.ParseInt(chi.URLParam(r, "run_id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid run id")
		return 0, false
	}
	return runID, true
}

// serviceError maps typed HAL errors to status codes.
func (h *Handler) serviceError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, interfaces.ErrRunNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, interfaces.ErrObjectNotFound):
		h.writeError(w, http.StatusNotFound, "content not found")
	default:
		h.log.Error("request failed", slog.String("op", op), "err", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}
