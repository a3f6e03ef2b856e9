package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// SiteConfig is the per-site configuration read from the site's config file.
type SiteConfig struct {
	Title             string   `yaml:"title" json:"title"`
	AllowedExtensions []string `yaml:"allowed_extensions" json:"allowed_extensions"`
}

// DefaultSiteConfig is used until the site config file loads.
func DefaultSiteConfig() *SiteConfig {
	return &SiteConfig{}
}

// ParseSiteConfig decodes a site config file. Unknown keys are rejected so
// a typo does not silently disable a setting. An empty file yields the
// default config.
func ParseSiteConfig(_ context.Context, src string) (*SiteConfig, error) {
	cfg := DefaultSiteConfig()
	dec := yaml.NewDecoder(strings.NewReader(src))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("render: site config: %w", err)
	}
	for i, ext := range cfg.AllowedExtensions {
		cfg.AllowedExtensions[i] = normalizeExt(ext)
	}
	return cfg, nil
}

// Allows reports whether files with extension ext may be served.
func (c *SiteConfig) Allows(ext string) bool {
	ext = normalizeExt(ext)
	return ext != "" && slices.Contains(c.AllowedExtensions, ext)
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
