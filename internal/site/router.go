package site

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterOptions configures the optional endpoints of NewRouter.
type RouterOptions struct {
	// Live, if non-nil, is mounted at GET /_live.
	Live         http.Handler
	AdminEnabled bool
	AdminToken   string
}

// NewRouter creates a chi router serving the site.
func NewRouter(h *Handler, opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	if opts.Live != nil {
		r.Get("/_live", opts.Live.ServeHTTP)
	}

	r.Route("/_admin", func(r chi.Router) {
		r.Use(AuthMiddleware(opts.AdminEnabled, opts.AdminToken))
		r.Get("/stats", h.Stats)
		r.Post("/expire", h.Expire)
	})

	r.Get("/default.css", h.Stylesheet)
	r.Head("/default.css", h.Stylesheet)
	r.Get("/*", h.ServePath)
	r.Head("/*", h.ServePath)

	return r
}
