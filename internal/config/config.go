// Package config provides configuration management for wikisync.
// It supports YAML or TOML configuration files, environment variables, and sensible defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/klauern/wikisync/internal/convert"
	"github.com/klauern/wikisync/internal/protect"
	"github.com/klauern/wikisync/internal/util"
	"github.com/klauern/wikisync/internal/wiki"
)

// ErrNoServer is returned by Validate when no server URL is configured.
var ErrNoServer = errors.New("no wiki server configured")

// Config represents the complete wikisync configuration.
type Config struct {
	// Server configures the wiki connection
	Server ServerConfig `yaml:"server" toml:"server"`

	// Repositories configures the local folders
	Repositories RepositoriesConfig `yaml:"repositories" toml:"repositories"`

	// Editing configures how pages are edited and saved
	Editing EditingConfig `yaml:"editing" toml:"editing"`

	// Output configures display preferences
	Output OutputConfig `yaml:"output" toml:"output"`
}

// ServerConfig holds the wiki connection settings.
type ServerConfig struct {
	// URL is the wiki base URL, e.g. http://localhost:8080/xwiki
	URL string `yaml:"url" toml:"url"`
	// Wiki is the wiki name used in REST paths
	Wiki string `yaml:"wiki" toml:"wiki"`
	Username string `yaml:"username" toml:"username"`
	// Password may be left empty and given with WIKISYNC_SERVER_PASSWORD
	Password string `yaml:"password,omitempty" toml:"password,omitempty"`
	// Encoding is the charset the server stores pages in
	Encoding string `yaml:"encoding" toml:"encoding"`
	// Timeout bounds each HTTP request
	Timeout time.Duration `yaml:"timeout" toml:"timeout"`
	// MaxRetries is the number of retries for transient failures. Zero
	// reports the first failure.
	MaxRetries uint `yaml:"max_retries" toml:"max_retries"`
}

// RepositoriesConfig holds the local folders.
type RepositoriesConfig struct {
	// Pages holds the local copies of opened and created pages
	Pages string `yaml:"pages" toml:"pages"`
	// Attachments receives downloaded attachments
	Attachments string `yaml:"attachments" toml:"attachments"`
}

// EditingConfig holds editing settings.
type EditingConfig struct {
	// Syntax is the markup syntax pages are saved with
	Syntax string `yaml:"syntax" toml:"syntax"`
	// ProtectedPages are wildcard patterns of pages that must not be edited
	ProtectedPages []string `yaml:"protected_pages" toml:"protected_pages"`
	// CaseSensitiveProtection matches ProtectedPages case-sensitively
	CaseSensitiveProtection bool `yaml:"case_sensitive_protection" toml:"case_sensitive_protection"`
	// HiddenSpaces are wildcard patterns of spaces left out of listings
	HiddenSpaces []string `yaml:"hidden_spaces,omitempty" toml:"hidden_spaces,omitempty"`
	// UploadLocalResources uploads new files of a page's resource folder on save
	UploadLocalResources bool `yaml:"upload_local_resources" toml:"upload_local_resources"`
	// DownloadResources fetches a page's images and files on open
	DownloadResources bool `yaml:"download_resources" toml:"download_resources"`
	// Editor is the command that opens local pages; empty uses $VISUAL or $EDITOR
	Editor string `yaml:"editor,omitempty" toml:"editor,omitempty"`
}

// OutputConfig holds display preferences.
type OutputConfig struct {
	// Color controls color output (auto, always, never)
	Color string `yaml:"color" toml:"color"`
	// Verbose enables verbose output
	Verbose bool `yaml:"verbose" toml:"verbose"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Wiki:       "xwiki",
			Encoding:   convert.DefaultCharset,
			Timeout:    30 * time.Second,
			MaxRetries: 0,
		},
		Repositories: RepositoriesConfig{
			Pages:       util.PagesRepositoryPath(),
			Attachments: util.AttachmentsRepositoryPath(),
		},
		Editing: EditingConfig{
			Syntax:               wiki.DefaultSyntax,
			ProtectedPages:       append([]string(nil), protect.DefaultPatterns...),
			UploadLocalResources: true,
			DownloadResources:    true,
		},
		Output: OutputConfig{
			Color:   "auto",
			Verbose: false,
		},
	}
}

// configFileName is the name of the config file.
const configFileName = "config.yaml"

// FilePath returns the path to the config file.
func FilePath() string {
	return filepath.Join(util.WikisyncConfigPath(), configFileName)
}

// Load loads the configuration from file, merging with defaults.
// If the config file doesn't exist, returns default configuration.
func Load() (*Config, error) {
	cfg := Default()

	configPath := FilePath()
	// #nosec G304 - configPath is constructed from trusted config directory
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvironment()
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path. Files ending in
// .toml are read as TOML, everything else as YAML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	// #nosec G304 - path is provided by caller
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyEnvironment()
	return cfg, nil
}

// Save writes the configuration to the config file.
func (c *Config) Save() error {
	return c.SaveToPath(FilePath())
}

// SaveToPath writes the configuration to a specific path, as TOML when the
// path ends in .toml.
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		var b strings.Builder
		err = toml.NewEncoder(&b).Encode(c)
		data = []byte(b.String())
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}

	// The file may hold a password.
	return os.WriteFile(path, data, 0o600)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// applyEnvironment applies environment variable overrides.
// Environment variables follow the pattern WIKISYNC_<SECTION>_<KEY>.
func (c *Config) applyEnvironment() {
	// Server settings
	if v := os.Getenv("WIKISYNC_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("WIKISYNC_SERVER_WIKI"); v != "" {
		c.Server.Wiki = v
	}
	if v := os.Getenv("WIKISYNC_SERVER_USERNAME"); v != "" {
		c.Server.Username = v
	}
	if v := os.Getenv("WIKISYNC_SERVER_PASSWORD"); v != "" {
		c.Server.Password = v
	}
	if v := os.Getenv("WIKISYNC_SERVER_ENCODING"); v != "" {
		c.Server.Encoding = v
	}
	if v := os.Getenv("WIKISYNC_SERVER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Server.Timeout = d
		}
	}
	if v := os.Getenv("WIKISYNC_SERVER_MAX_RETRIES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			c.Server.MaxRetries = uint(n)
		}
	}

	// Repository folders
	if v := os.Getenv("WIKISYNC_REPOSITORIES_PAGES"); v != "" {
		c.Repositories.Pages = v
	}
	if v := os.Getenv("WIKISYNC_REPOSITORIES_ATTACHMENTS"); v != "" {
		c.Repositories.Attachments = v
	}

	// Editing settings
	if v := os.Getenv("WIKISYNC_EDITING_SYNTAX"); v != "" {
		c.Editing.Syntax = v
	}
	if v := os.Getenv("WIKISYNC_EDITING_PROTECTED_PAGES"); v != "" {
		c.Editing.ProtectedPages = splitList(v)
	}
	if v := os.Getenv("WIKISYNC_EDITING_HIDDEN_SPACES"); v != "" {
		c.Editing.HiddenSpaces = splitList(v)
	}
	if v := os.Getenv("WIKISYNC_EDITING_EDITOR"); v != "" {
		c.Editing.Editor = v
	}

	// Output settings
	if v := os.Getenv("WIKISYNC_OUTPUT_COLOR"); v != "" {
		c.Output.Color = v
	}
	if v := os.Getenv("WIKISYNC_OUTPUT_VERBOSE"); v != "" {
		c.Output.Verbose = parseBool(v)
	}
}

// parseBool parses a boolean from common string representations.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// splitList splits a comma-separated list. Empty items are filtered out.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Validate reports configuration that cannot work.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return ErrNoServer
	}
	u, err := url.Parse(c.Server.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid server url %q", c.Server.URL)
	}
	if _, err := convert.Reencode("", c.Server.Encoding); err != nil {
		return fmt.Errorf("server encoding: %w", err)
	}
	if _, err := c.ProtectionPolicy(); err != nil {
		return err
	}
	if _, err := c.HiddenPolicy(); err != nil {
		return err
	}
	return nil
}

// ProtectionPolicy compiles the protected page patterns.
func (c *Config) ProtectionPolicy() (*protect.Policy, error) {
	p, err := protect.NewPolicy(c.Editing.ProtectedPages, c.Editing.CaseSensitiveProtection)
	if err != nil {
		return nil, fmt.Errorf("protected_pages: %w", err)
	}
	return p, nil
}

// HiddenPolicy compiles the hidden space patterns.
func (c *Config) HiddenPolicy() (*protect.Policy, error) {
	p, err := protect.NewPolicy(c.Editing.HiddenSpaces, false)
	if err != nil {
		return nil, fmt.Errorf("hidden_spaces: %w", err)
	}
	return p, nil
}

// PagesDir returns the expanded pages folder.
func (c *Config) PagesDir() string {
	return util.ExpandPath(c.Repositories.Pages, "")
}

// AttachmentsDir returns the expanded download folder.
func (c *Config) AttachmentsDir() string {
	return util.ExpandPath(c.Repositories.Attachments, "")
}

// HTTPOptions returns the wiki client options for this configuration.
func (c *Config) HTTPOptions() wiki.HTTPOptions {
	return wiki.HTTPOptions{
		Wiki:       c.Server.Wiki,
		Timeout:    c.Server.Timeout,
		MaxRetries: c.Server.MaxRetries,
	}
}

// Exists returns true if a config file exists.
func Exists() bool {
	_, err := os.Stat(FilePath())
	return err == nil
}
