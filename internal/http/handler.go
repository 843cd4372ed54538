// Package http exposes the download service over a chi router: an SSE
// download endpoint, single-file and zip retrieval, status and health.
package http

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/NamanBalaji/vodbatch/internal/archive"
	"github.com/NamanBalaji/vodbatch/internal/downloader"
	"github.com/NamanBalaji/vodbatch/internal/errors"
	"github.com/NamanBalaji/vodbatch/internal/logger"
	"github.com/NamanBalaji/vodbatch/internal/progress"
	"github.com/NamanBalaji/vodbatch/internal/repository"
)

// Service is what the handlers need from the download pipeline.
type Service interface {
	Download(ctx context.Context, req downloader.Request, sink progress.Sink) (progress.Event, error)
	OpenFile(id string) (downloader.Delivery, error)
	BuildArchive(ctx context.Context, ids []string) (archive.Result, error)
	Delivered(ids []string, extra ...string)
	Status(id string) (*repository.Job, error)
	Cancel(id string) error
	Health(ctx context.Context) downloader.Health
}

type Handler struct {
	service     Service
	archiveName string
}

func NewHandler(service Service, archiveName string) *Handler {
	return &Handler{service: service, archiveName: archiveName}
}

type downloadBody struct {
	Filename    string `json:"filename"`
	IncludeDate bool   `json:"includeDate"`
	IncludeType bool   `json:"includeType"`
	VideoType   string `json:"videoType"`
	Batch       bool   `json:"batch"`
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	credential := bearerToken(r)
	if credential == "" {
		writeError(w, r, errors.NewAuthError(errors.ErrMissingCredential, id))
		return
	}

	var body downloadBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, errors.NewInputError(errors.New("invalid json body"), id))
		return
	}

	req := downloader.Request{
		ID:          id,
		Credential:  credential,
		Filename:    body.Filename,
		IncludeDate: body.IncludeDate,
		IncludeType: body.IncludeType,
		VideoType:   body.VideoType,
		Batch:       body.Batch,
	}

	stream := newEventStream(w)
	defer stream.close()

	// The request context ends the job when the client goes away.
	if _, err := h.service.Download(r.Context(), req, stream); err != nil {
		if !stream.Started() {
			writeError(w, r, err)
			return
		}
		logger.Warnf("Stream for %s ended without completion: %v", id, err)
	}
}

func (h *Handler) file(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := h.service.OpenFile(id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	f, err := os.Open(d.Path)
	if err != nil {
		writeError(w, r, errors.NewNotFoundError(errors.ErrNotFound, id))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType(d.Name))
	w.Header().Set("Content-Disposition", attachment(d.Name))

	rec := &statusRecorder{ResponseWriter: w}
	http.ServeContent(rec, r, d.Name, d.ModTime, f)

	// Only a complete 200 body counts. A ranged read is usually one of
	// several, and a 304 or a dropped client left the file unread.
	if queryBool(r, "batch") || r.Header.Get("Range") != "" {
		return
	}
	if rec.status != http.StatusOK || rec.bytes != d.Size {
		logger.Debugf("File %s not delivered (status %d, %d of %d bytes)", id, rec.status, rec.bytes, d.Size)
		return
	}
	h.service.Delivered([]string{id})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Cancel(chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) downloadZip(w http.ResponseWriter, r *http.Request) {
	ids := parseIDs(r.URL.Query().Get("files"))

	res, err := h.service.BuildArchive(r.Context(), ids)
	if err != nil {
		writeError(w, r, err)
		return
	}

	f, err := os.Open(res.Path)
	if err != nil {
		h.service.Delivered(nil, res.Path)
		writeError(w, r, errors.NewArchiveError(err, res.Path))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", attachment(h.archiveName))
	w.Header().Set("Content-Length", strconv.FormatInt(res.Size, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		logger.Warnf("Archive %s not fully delivered: %v", res.Path, err)
		h.service.Delivered(nil, res.Path)
		return
	}

	h.service.Delivered(ids, res.Path)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.Status(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	health := h.service.Health(r.Context())

	code := http.StatusOK
	if !health.OK() {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, health)
}

func (h *Handler) fallback(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Server is running",
		"path":    r.URL.Path,
		"method":  r.Method,
	})
}

// parseIDs splits a comma separated list, dropping blanks and repeats.
func parseIDs(raw string) []string {
	var ids []string
	seen := make(map[string]struct{})

	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	return ids
}

func queryBool(r *http.Request, key string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && v
}

func attachment(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}

func contentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
