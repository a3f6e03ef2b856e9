// Package site serves a directory of Markdown pages over HTTP. Every source
// it renders (pages, layout, stylesheet, site config) is held in a cache and
// re-derived only when the file changes.
package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"path"

	"github.com/starford/leaf/internal/apperr"
	"github.com/starford/leaf/internal/cache"
	"github.com/starford/leaf/internal/render"
	"github.com/starford/leaf/internal/storage"
)

// Default source locations, relative to the site root.
const (
	DefaultConfigFile = "_config.yaml"
	DefaultStyleDir   = "_style"
	layoutFile        = "default.html"
)

// Stylesheet sources in lookup order. A default.scss is served as plain CSS;
// Sass features are not compiled.
var stylesheetFiles = []string{"default.css", "default.scss"}

// Options configures a Site.
type Options struct {
	ConfigFile string
	StyleDir   string
	LiveReload bool
	Cache      []cache.Option
}

// Site owns the caches for one site directory.
type Site struct {
	store      storage.Provider
	logger     *slog.Logger
	liveReload bool

	config *cache.Cache[*render.SiteConfig]
	layout *cache.Cache[*template.Template]
	styles []*cache.Cache[string]
	pages  *cache.Map[*render.Page]
}

// New creates a Site over store. Nothing is read until the first request.
func New(store storage.Provider, logger *slog.Logger, opts Options) *Site {
	if opts.ConfigFile == "" {
		opts.ConfigFile = DefaultConfigFile
	}
	if opts.StyleDir == "" {
		opts.StyleDir = DefaultStyleDir
	}
	copts := append([]cache.Option{cache.WithLogger(logger)}, opts.Cache...)

	styles := make([]*cache.Cache[string], 0, len(stylesheetFiles))
	for _, name := range stylesheetFiles {
		styles = append(styles, cache.New(store, path.Join(opts.StyleDir, name),
			"", render.CompileStylesheet, copts...))
	}

	return &Site{
		store:      store,
		logger:     logger,
		liveReload: opts.LiveReload,
		config: cache.New(store, opts.ConfigFile,
			render.DefaultSiteConfig(), render.ParseSiteConfig, copts...),
		layout: cache.New(store, path.Join(opts.StyleDir, layoutFile),
			defaultLayout, render.ParseTemplate, copts...),
		styles: styles,
		pages:  cache.NewMap[*render.Page](store, nil, render.RenderPage, copts...),
	}
}

// Store returns the underlying storage.
func (s *Site) Store() storage.Provider {
	return s.store
}

// Config returns the current site config, falling back to the last good
// (or default) config when the file cannot be loaded.
func (s *Site) Config(ctx context.Context) *render.SiteConfig {
	cfg, err := s.config.Load(ctx)
	s.warnStale(s.config.Path(), err)
	return cfg
}

// Page returns the rendered page stored in the page.md named name.
// It returns apperr.ErrNotFound when no version of the page was ever loaded
// and the source does not exist.
func (s *Site) Page(ctx context.Context, name string) (*render.Page, error) {
	if _, ok := s.pages.Lookup(name); !ok {
		// Only track sources that exist, so arbitrary URLs do not grow the map.
		if _, err := fs.Stat(s.store, name); err != nil {
			return nil, classify(err)
		}
	}

	p, err := s.pages.Load(ctx, name)
	if p == nil {
		if err == nil {
			return nil, apperr.ErrNotFound
		}
		return nil, classify(err)
	}
	s.warnStale(name, err)
	return p, nil
}

// RenderPage renders the page for the URL directory urlDir into HTML.
func (s *Site) RenderPage(ctx context.Context, urlDir string) ([]byte, error) {
	p, err := s.Page(ctx, storage.PageName(urlDir))
	if err != nil {
		return nil, err
	}
	tpl, err := s.layout.Load(ctx)
	s.warnStale(s.layout.Path(), err)

	var buf bytes.Buffer
	if err := render.Execute(&buf, tpl, render.PageData{
		Page:       p,
		Site:       s.Config(ctx),
		URL:        urlDir,
		LiveReload: s.liveReload,
	}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Stylesheet returns the compiled site stylesheet from the first source
// that ever compiled. Until one has, it returns apperr.ErrNotFound when no
// source exists, or the load error otherwise.
func (s *Site) Stylesheet(ctx context.Context) (string, error) {
	var loadErr error
	for _, c := range s.styles {
		css, err := c.Load(ctx)
		if c.Computed() {
			s.warnStale(c.Path(), err)
			return css, nil
		}
		if err != nil && loadErr == nil && !errors.Is(err, fs.ErrNotExist) {
			loadErr = err
		}
	}
	if loadErr != nil {
		return "", classify(loadErr)
	}
	return "", apperr.ErrNotFound
}

// Expire marks the cache for the source name stale so the next request
// re-checks it. It reports whether any cache tracks name.
func (s *Site) Expire(name string) bool {
	switch name {
	case s.config.Path():
		s.config.Expire()
		return true
	case s.layout.Path():
		s.layout.Expire()
		return true
	}
	for _, c := range s.styles {
		if c.Path() == name {
			c.Expire()
			return true
		}
	}
	return s.pages.Expire(name)
}

// ExpireAll marks every cache stale.
func (s *Site) ExpireAll() {
	s.config.Expire()
	s.layout.Expire()
	for _, c := range s.styles {
		c.Expire()
	}
	s.pages.ExpireAll()
}

// CachedPages returns the page sources currently tracked.
func (s *Site) CachedPages() []string {
	return s.pages.Paths()
}

// classify maps filesystem errors onto the apperr sentinels.
func classify(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrInvalid):
		return fmt.Errorf("%w: %w", apperr.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", apperr.ErrForbidden, err)
	}
	return err
}

func (s *Site) warnStale(name string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Warn("site: serving cached value after reload failure",
		slog.String("path", name),
		slog.String("error", err.Error()))
}
