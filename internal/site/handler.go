package site

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/starford/leaf/internal/apperr"
	"github.com/starford/leaf/internal/digest"
	"github.com/starford/leaf/internal/metrics"
	"github.com/starford/leaf/internal/storage"
)

// Handler serves pages, the stylesheet, static files and the admin API.
type Handler struct {
	site   *Site
	stats  *metrics.Tracker
	logger *slog.Logger
}

// NewHandler creates a Handler. stats may be nil.
func NewHandler(s *Site, stats *metrics.Tracker, logger *slog.Logger) *Handler {
	return &Handler{site: s, stats: stats, logger: logger}
}

// ServePath handles every non-reserved GET request.
func (h *Handler) ServePath(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	if !ValidURL(p) {
		http.NotFound(w, r)
		return
	}
	if strings.HasSuffix(p, "/") {
		h.servePage(w, r, p)
		return
	}

	name := strings.TrimPrefix(p, "/")
	if _, err := fs.Stat(h.site.Store(), path.Join(name, storage.PageFile)); err == nil {
		http.Redirect(w, r, p+"/", http.StatusMovedPermanently)
		return
	}

	ext := path.Ext(name)
	if ext == "" || !h.site.Config(r.Context()).Allows(ext) {
		http.NotFound(w, r)
		return
	}
	if info, err := fs.Stat(h.site.Store(), name); err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, h.site.Store(), name)
}

func (h *Handler) servePage(w http.ResponseWriter, r *http.Request, urlDir string) {
	body, err := h.site.RenderPage(r.Context(), urlDir)
	if err != nil {
		h.writeError(w, r, "render page failed", err)
		return
	}
	h.writeBody(w, r, "text/html; charset=utf-8", body)
}

// Stylesheet serves the compiled site stylesheet.
func (h *Handler) Stylesheet(w http.ResponseWriter, r *http.Request) {
	css, err := h.site.Stylesheet(r.Context())
	if err != nil {
		h.writeError(w, r, "stylesheet failed", err)
		return
	}
	h.writeBody(w, r, "text/css; charset=utf-8", []byte(css))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, apperr.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		h.logger.Error(msg,
			slog.String("url", r.URL.Path), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeBody(w http.ResponseWriter, r *http.Request, contentType string, body []byte) {
	etag := fmt.Sprintf(`"%016x"`, digest.Sum(body))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if matchETag(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}

func matchETag(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		c := strings.TrimSpace(candidate)
		if c == "*" || strings.TrimPrefix(c, "W/") == etag {
			return true
		}
	}
	return false
}

type statsResponse struct {
	Metrics     *metrics.Snapshot `json:"metrics,omitempty"`
	CachedPages []string          `json:"cached_pages"`
}

// Stats handles GET /_admin/stats.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{CachedPages: h.site.CachedPages()}
	if h.stats != nil {
		snap := h.stats.Snapshot()
		resp.Metrics = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// Expire handles POST /_admin/expire. With ?path= it expires one source,
// otherwise every cache.
func (h *Handler) Expire(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("path")
	if name == "" {
		h.site.ExpireAll()
		writeJSON(w, http.StatusOK, map[string]any{"expired": "all"})
		return
	}
	if !h.site.Expire(name) {
		writeJSON(w, http.StatusNotFound, errorBody("not cached"))
		return
	}
	h.logger.Info("cache expired", slog.String("path", name))
	writeJSON(w, http.StatusOK, map[string]any{"expired": name})
}
