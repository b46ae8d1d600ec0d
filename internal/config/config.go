// Package config manages blocksync configuration and the .blocksync directory.
// It handles loading, saving and initializing the project configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	Dir              = ".blocksync"
	ConfigFile       = "config.toml"
	ReposFile        = "repos.db"
	CacheDir         = "cache"
	EnvFile          = ".env"
	TokenEnv         = "BLOCKSYNC_TOKEN"
	DefaultAPIURL    = "https://api.github.com/"
	DefaultBranch    = "main"
	MinCacheLifetime = 300 // seconds
)

// Defaults for a freshly initialized project.
const (
	defaultCacheLifetime  = 3600
	defaultHTTPTimeout    = 30
	defaultDatabase       = "cms.db"
	defaultClassDir       = "classes"
	defaultAssetDir       = "assets"
	defaultRenderCacheDir = "render-cache"
)

// Upload is the default target of upload commands.
type Upload struct {
	Owner  string `toml:"owner"`
	Repo   string `toml:"repo"`
	Branch string `toml:"branch"`
	Author string `toml:"author"`
}

// Config represents the blocksync configuration
type Config struct {
	GitHubToken    string `toml:"github_token"`
	APIURL         string `toml:"api_url"`
	CacheLifetime  int    `toml:"cache_lifetime"` // seconds
	HTTPTimeout    int    `toml:"http_timeout"`   // seconds
	Database       string `toml:"database"`       // relative to the .blocksync directory
	ClassDir       string `toml:"class_dir"`      // relative to the project root
	AssetDir       string `toml:"asset_dir"`
	RenderCacheDir string `toml:"render_cache_dir"`
	Upload         Upload `toml:"upload"`

	path     string // path to .blocksync directory
	envToken string
}

// Default returns a configuration with every setting at its default.
func Default() *Config {
	return &Config{
		APIURL:         DefaultAPIURL,
		CacheLifetime:  defaultCacheLifetime,
		HTTPTimeout:    defaultHTTPTimeout,
		Database:       defaultDatabase,
		ClassDir:       defaultClassDir,
		AssetDir:       defaultAssetDir,
		RenderCacheDir: defaultRenderCacheDir,
		Upload:         Upload{Branch: DefaultBranch},
	}
}

// FindRoot finds the .blocksync directory by walking up from the current directory
func FindRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return FindRootFrom(dir)
}

// FindRootFrom finds the .blocksync directory by walking up from dir
func FindRootFrom(dir string) (string, error) {
	for {
		p := filepath.Join(dir, Dir)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return p, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a blocksync project (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration of the project containing the current directory
func Load() (*Config, error) {
	root, err := FindRoot()
	if err != nil {
		return nil, err
	}
	return LoadFrom(root)
}

// LoadFrom loads the configuration from a .blocksync directory. A .env file in
// the project root is read into the environment first; variables already set
// win over it.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(path, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.path = path
	cfg.normalize()

	envPath := filepath.Join(filepath.Dir(path), EnvFile)
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", EnvFile, err)
	}
	cfg.envToken = os.Getenv(TokenEnv)

	return cfg, nil
}

func (c *Config) normalize() {
	if c.CacheLifetime < MinCacheLifetime {
		c.CacheLifetime = MinCacheLifetime
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}
	if c.Upload.Branch == "" {
		c.Upload.Branch = DefaultBranch
	}
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0600)
}

// Initialize creates a new .blocksync directory in dir with the default configuration
func Initialize(dir string) (*Config, error) {
	path := filepath.Join(dir, Dir)

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("blocksync project already exists")
	}

	if err := os.MkdirAll(filepath.Join(path, CacheDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", Dir, err)
	}

	cfg := Default()
	cfg.path = path
	if err := cfg.Save(); err != nil {
		os.RemoveAll(path)
		return nil, err
	}
	return cfg, nil
}

// Token returns the GitHub token, preferring BLOCKSYNC_TOKEN over the stored one.
func (c *Config) Token() string {
	if c.envToken != "" {
		return c.envToken
	}
	return c.GitHubToken
}

// TokenFromEnv reports whether the effective token comes from the environment.
func (c *Config) TokenFromEnv() bool {
	return c.envToken != ""
}

// Path returns the path to the .blocksync directory
func (c *Config) Path() string {
	return c.path
}

// ProjectRoot returns the directory holding .blocksync
func (c *Config) ProjectRoot() string {
	return filepath.Dir(c.path)
}

// DatabasePath returns the path to the SQLite database
func (c *Config) DatabasePath() string {
	return c.resolve(c.path, c.Database)
}

// ReposPath returns the path to the bbolt repository registry
func (c *Config) ReposPath() string {
	return filepath.Join(c.path, ReposFile)
}

// CachePath returns the path to the response cache directory
func (c *Config) CachePath() string {
	return filepath.Join(c.path, CacheDir)
}

// ClassPath returns the base directory of installed classes
func (c *Config) ClassPath() string {
	return c.resolve(c.ProjectRoot(), c.ClassDir)
}

// AssetPath returns the public asset root
func (c *Config) AssetPath() string {
	return c.resolve(c.ProjectRoot(), c.AssetDir)
}

// RenderCachePath returns the directory of cached rendered output
func (c *Config) RenderCachePath() string {
	return c.resolve(c.ProjectRoot(), c.RenderCacheDir)
}

// CacheTTL returns the response cache lifetime
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheLifetime) * time.Second
}

// Timeout returns the HTTP timeout for API requests
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Second
}

func (c *Config) resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Keys lists the settings accepted by Set, in display order.
func Keys() []string {
	return []string{
		"github_token", "api_url", "cache_lifetime", "http_timeout", "database",
		"class_dir", "asset_dir", "render_cache_dir",
		"upload.owner", "upload.repo", "upload.branch", "upload.author",
	}
}

// Get returns the value of a setting by key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "github_token":
		return c.GitHubToken, nil
	case "api_url":
		return c.APIURL, nil
	case "cache_lifetime":
		return strconv.Itoa(c.CacheLifetime), nil
	case "http_timeout":
		return strconv.Itoa(c.HTTPTimeout), nil
	case "database":
		return c.Database, nil
	case "class_dir":
		return c.ClassDir, nil
	case "asset_dir":
		return c.AssetDir, nil
	case "render_cache_dir":
		return c.RenderCacheDir, nil
	case "upload.owner":
		return c.Upload.Owner, nil
	case "upload.repo":
		return c.Upload.Repo, nil
	case "upload.branch":
		return c.Upload.Branch, nil
	case "upload.author":
		return c.Upload.Author, nil
	}
	return "", fmt.Errorf("unknown config key %q", key)
}

// Set changes a setting by key. Numeric settings are validated; the cache
// lifetime is raised to its floor.
func (c *Config) Set(key, value string) error {
	switch key {
	case "github_token":
		c.GitHubToken = value
	case "api_url":
		c.APIURL = value
	case "cache_lifetime", "http_timeout":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive number of seconds", key)
		}
		if key == "cache_lifetime" {
			c.CacheLifetime = max(n, MinCacheLifetime)
		} else {
			c.HTTPTimeout = n
		}
	case "database":
		c.Database = value
	case "class_dir":
		c.ClassDir = value
	case "asset_dir":
		c.AssetDir = value
	case "render_cache_dir":
		c.RenderCacheDir = value
	case "upload.owner":
		c.Upload.Owner = value
	case "upload.repo":
		c.Upload.Repo = value
	case "upload.branch":
		c.Upload.Branch = value
	case "upload.author":
		c.Upload.Author = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}
