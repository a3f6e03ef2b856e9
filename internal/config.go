package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/leaf/internal/cache"
	"github.com/starford/leaf/internal/site"
)

// Admin auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App   ApplicationConfig `yaml:"app"`
	Site  SiteConfig        `yaml:"site"`
	Cache CacheConfig       `yaml:"cache"`
	Watch WatchConfig       `yaml:"watch"`
	Admin AdminConfig       `yaml:"admin"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Site.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	return c.Admin.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SiteConfig locates the site directory and its special files.
type SiteConfig struct {
	Root       string `yaml:"root"`
	ConfigFile string `yaml:"config_file"`
	StyleDir   string `yaml:"style_dir"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	if c.ConfigFile == "" {
		c.ConfigFile = site.DefaultConfigFile
	}
	if c.StyleDir == "" {
		c.StyleDir = site.DefaultStyleDir
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
	)
}

// CacheConfig tunes the content caches.
type CacheConfig struct {
	// CheckInterval is the minimum time between two checks of one source.
	CheckInterval time.Duration `yaml:"check_interval"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CheckInterval, validation.Required, validation.Min(time.Millisecond)),
	)
}

// WatchConfig controls the filesystem watcher and live reload.
type WatchConfig struct {
	Enabled        bool          `yaml:"enabled"`
	ReloadThrottle time.Duration `yaml:"reload_throttle"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ReloadThrottle, validation.Min(time.Duration(0))),
	)
}

// AdminConfig holds authentication for the admin endpoints.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AdminConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the admin configuration.
func (c *AdminConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("admin: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AdminConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Site: SiteConfig{
			Root:       "./site",
			ConfigFile: site.DefaultConfigFile,
			StyleDir:   site.DefaultStyleDir,
		},
		Cache: CacheConfig{
			CheckInterval: cache.DefaultInterval,
		},
		Watch: WatchConfig{
			Enabled:        true,
			ReloadThrottle: 500 * time.Millisecond,
		},
		Admin: AdminConfig{
			Mode: AuthModeDisabled,
		},
	}
}
