// Package cli implements the command-line interface for blocksync.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kilupskalvis/blocksync/internal/cms"
	"github.com/kilupskalvis/blocksync/internal/config"
	"github.com/kilupskalvis/blocksync/internal/core"
	"github.com/kilupskalvis/blocksync/internal/remote"
	"github.com/kilupskalvis/blocksync/internal/store"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string
	logger    *slog.Logger
)

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config *config.Config
	Store  *store.Store
	Repos  *store.RepoStore
	Client *remote.GitHubClient
	Engine *core.Engine
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
	if c.Repos != nil {
		c.Repos.Close()
	}
}

// initContext loads the configuration only
func initContext() *cmdContext {
	cfg, err := config.Load()
	if err != nil {
		exitError("%v", err)
	}
	return &cmdContext{Config: cfg}
}

// initStoreContext opens the database and repository registry and runs migrations
func initStoreContext() *cmdContext {
	c := initContext()

	st, err := store.New(c.Config.DatabasePath())
	if err != nil {
		exitError("failed to open store: %v", err)
	}
	c.Store = st

	if err := st.RunMigrations(context.Background()); err != nil {
		c.Close()
		exitError("failed to run migrations: %v", err)
	}

	repos, err := store.NewRepoStore(c.Config.ReposPath())
	if err != nil {
		c.Close()
		exitError("failed to open repository registry: %v", err)
	}
	c.Repos = repos

	if err := repos.Initialize(); err != nil {
		c.Close()
		exitError("failed to initialize repository registry: %v", err)
	}
	return c
}

// initFullContext additionally builds the GitHub client and the sync engine
func initFullContext() *cmdContext {
	c := initStoreContext()
	cfg := c.Config
	fsys := afero.NewOsFs()

	cache, err := remote.NewCache(fsys, cfg.CachePath(), cfg.CacheTTL())
	if err != nil {
		c.Close()
		exitError("failed to open cache: %v", err)
	}

	client, err := remote.NewGitHubClient(remote.Options{
		Token:   cfg.Token(),
		BaseURL: cfg.APIURL,
		Timeout: cfg.Timeout(),
		Cache:   cache,
		Logger:  logger,
	})
	if err != nil {
		c.Close()
		exitError("failed to create GitHub client: %v", err)
	}
	c.Client = client

	caps, err := cms.DetectCapabilities(context.Background(), c.Store.DB())
	if err != nil {
		c.Close()
		exitError("failed to inspect database: %v", err)
	}

	c.Engine = core.NewEngine(core.Deps{
		Remote:       client,
		Registry:     c.Store,
		Repositories: c.Repos,
		Entities:     cms.NewSQLEntityStore(c.Store.DB(), caps),
		Capabilities: caps,
		Classes:      cms.NewClassTree(fsys, cfg.ClassPath()),
		Assets:       cms.NewAssetTree(fsys, cfg.AssetPath()),
		RenderCache:  cms.NewDirRenderCache(fsys, cfg.RenderCachePath()),
		Upload: core.UploadTarget{
			Owner:  cfg.Upload.Owner,
			Repo:   cfg.Upload.Repo,
			Branch: cfg.Upload.Branch,
			Author: cfg.Upload.Author,
		},
		Logger: logger,
	})
	return c
}

var rootCmd = &cobra.Command{
	Use:   "blocksync",
	Short: "Sync CMS modules, templates and classes with GitHub",
	Long: `blocksync installs, updates and uploads CMS building blocks (modules,
templates and PHP classes) between GitHub repositories and the local
installation, and tracks which remote commit each installed item came from.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(logLevel, logFormat)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOrDefault("BLOCKSYNC_LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", envOrDefault("BLOCKSYNC_LOG_FORMAT", "text"), "Log format (json, text)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(newItemCmd(itemModules))
	rootCmd.AddCommand(newItemCmd(itemTemplates))
	rootCmd.AddCommand(newItemCmd(itemClasses))
	rootCmd.AddCommand(installedCmd)
	rootCmd.AddCommand(checkUpdatesCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(localCmd)
}

// newLogger builds the process logger. Logs go to stderr so command output
// stays machine readable.
func newLogger(levelName, format string) *slog.Logger {
	var level slog.Level
	switch levelName {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// exitError prints an error and exits
func exitError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

// shortSHA returns first 7 characters of a commit sha
func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
