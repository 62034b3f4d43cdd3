package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/fetchbox/internal/fetch"
	"github.com/italolelis/fetchbox/internal/logctx"
	"github.com/italolelis/fetchbox/internal/storage"
	"github.com/italolelis/fetchbox/internal/transfer"
)

const maxRequestBody = 1 << 20

var _ Files = (*storage.Dir)(nil)

// Files is the storage root as seen by the API.
type Files interface {
	List(ctx context.Context) ([]storage.StoredFile, error)
	Open(name string) (*os.File, fs.FileInfo, error)
	Delete(name string) error
}

type DownloadRequest struct {
	URL string `json:"url"`
}

type DownloadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type FilesResponse struct {
	Files []storage.StoredFile `json:"files"`
	Count int                  `json:"count"`
}

type HistoryResponse struct {
	History []storage.TransferRecord `json:"history"`
	Count   int                      `json:"count"`
}

// FilesHandler serves pre-checks, the storage listing and file access.
type FilesHandler struct {
	fetcher fetch.Fetcher
	files   Files
	history storage.HistoryReadRepository
}

// NewFilesHandler creates the handler. history may be nil.
func NewFilesHandler(fetcher fetch.Fetcher, files Files, history storage.HistoryReadRepository) *FilesHandler {
	return &FilesHandler{
		fetcher: fetcher,
		files:   files,
		history: history,
	}
}

func (h *FilesHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/download", h.HandlePrecheck)
	r.Get("/getfiles", h.HandleListFiles)
	r.Get("/file/{filename}", h.HandleGetFile)
	r.Delete("/file/{filename}", h.HandleDeleteFile)
	r.Get("/history", h.HandleHistory)

	return r
}

// HandlePrecheck checks the remote resource and reports its name and size.
// The transfer itself is started over the websocket.
func (h *FilesHandler) HandlePrecheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	var req DownloadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		logger.WarnContext(ctx, "failed to decode request", "err", err)
		writeError(ctx, w, http.StatusBadRequest, "Invalid request body")

		return
	}

	meta, err := h.fetcher.Precheck(ctx, req.URL)
	if err != nil {
		status, msg := precheckError(err)
		logger.InfoContext(ctx, "precheck rejected", "url", req.URL, "status", status, "err", err)
		writeError(ctx, w, status, msg)

		return
	}

	logger.InfoContext(ctx, "precheck accepted", "url", req.URL, "filename", meta.Filename, "size", meta.TotalSize)

	writeJSON(ctx, w, http.StatusOK, DownloadResponse{
		Message:  "download started",
		Filename: meta.Filename,
		Size:     meta.TotalSize,
	})
}

// precheckError maps a pre-check failure onto a status code and client message.
func precheckError(err error) (int, string) {
	var (
		invalid     *transfer.InvalidURLError
		badStatus   *transfer.BadStatusError
		timeout     *transfer.TimeoutError
		unreachable *transfer.UnreachableError
	)

	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, transfer.MsgInvalidURL
	case errors.As(err, &badStatus):
		return http.StatusBadRequest, fmt.Sprintf("File not accessible returned status code %d", badStatus.StatusCode)
	case errors.As(err, &timeout):
		return http.StatusRequestTimeout, "Connection timeout - server too slow to respond"
	case errors.As(err, &unreachable):
		return http.StatusBadRequest, "Unable to connect to server"
	default:
		return http.StatusInternalServerError, transfer.MsgDownloadFailed
	}
}

// HandleListFiles lists the storage root. Read errors yield an empty list.
func (h *FilesHandler) HandleListFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	files, err := h.files.List(ctx)
	if err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to list files", "err", err)

		files = []storage.StoredFile{}
	}

	writeJSON(ctx, w, http.StatusOK, FilesResponse{Files: files, Count: len(files)})
}

func (h *FilesHandler) HandleGetFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	name, ok := fileParam(r)
	if !ok {
		http.Error(w, "File not found", http.StatusNotFound)

		return
	}

	f, info, err := h.files.Open(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			http.Error(w, "File not found", http.StatusNotFound)

			return
		}

		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to open file", "file", name, "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)

		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (h *FilesHandler) HandleDeleteFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logctx.LoggerFromContext(ctx)

	name, ok := fileParam(r)
	if !ok {
		http.Error(w, "File not found", http.StatusNotFound)

		return
	}

	if err := h.files.Delete(name); err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
			http.Error(w, "File not found", http.StatusNotFound)

			return
		}

		logger.ErrorContext(ctx, "failed to delete file", "file", name, "err", err)
		http.Error(w, "Failed to delete file", http.StatusInternalServerError)

		return
	}

	logger.InfoContext(ctx, "file deleted", "file", name)
	w.WriteHeader(http.StatusNoContent)
}

// HandleHistory lists recorded transfers, newest first.
func (h *FilesHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(ctx, w, http.StatusBadRequest, "Invalid limit")

			return
		}

		limit = n
	}

	records := []storage.TransferRecord{}

	if h.history != nil {
		var err error

		records, err = h.history.ListTransfers(ctx, limit)
		if err != nil {
			logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to list history", "err", err)
			writeError(ctx, w, http.StatusInternalServerError, "Failed to load history")

			return
		}
	}

	writeJSON(ctx, w, http.StatusOK, HistoryResponse{History: records, Count: len(records)})
}

// fileParam returns the decoded {filename} path segment. chi matches on
// RawPath when it is set, so only then is the segment still escaped.
func fileParam(r *http.Request) (string, bool) {
	name := chi.URLParam(r, "filename")

	if r.URL.RawPath != "" {
		var err error

		name, err = url.PathUnescape(name)
		if err != nil {
			return "", false
		}
	}

	if name == "" {
		return "", false
	}

	return name, true
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "err", err)
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	writeJSON(ctx, w, status, ErrorResponse{Error: msg})
}
