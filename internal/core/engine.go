// Package core implements the synchronization engine: it classifies remote items
// against the local installation and performs install, update and upload.
package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kilupskalvis/blocksync/internal/cms"
	"github.com/kilupskalvis/blocksync/internal/metadata"
	"github.com/kilupskalvis/blocksync/internal/models"
	"github.com/kilupskalvis/blocksync/internal/remote"
	"github.com/kilupskalvis/blocksync/internal/store"
)

// UploadTarget is the repository uploads go to when the caller names none.
type UploadTarget struct {
	Owner  string
	Repo   string
	Branch string
	Author string
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Remote       remote.RemoteClient
	Registry     *store.Store
	Repositories *store.RepoStore
	Entities     cms.EntityStore
	Capabilities cms.Capabilities
	Classes      *cms.ClassTree
	Assets       *cms.AssetTree
	RenderCache  cms.RenderCache
	Upload       UploadTarget
	Logger       *slog.Logger
	Now          func() time.Time
}

// Engine reconciles remote repository state with the local installation.
// Calls are not coordinated: two concurrent installs of the same key can race.
type Engine struct {
	remote   remote.RemoteClient
	resolver *metadata.Resolver
	registry *store.Store
	repos    *store.RepoStore
	entities cms.EntityStore
	caps     cms.Capabilities
	classes  *cms.ClassTree
	assets   *cms.AssetTree
	render   cms.RenderCache
	upload   UploadTarget
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an engine from its collaborators.
func NewEngine(d Deps) *Engine {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		remote:   d.Remote,
		resolver: metadata.NewResolver(d.Remote, logger),
		registry: d.Registry,
		repos:    d.Repositories,
		entities: d.Entities,
		caps:     d.Capabilities,
		classes:  d.Classes,
		assets:   d.Assets,
		render:   d.RenderCache,
		upload:   d.Upload,
		logger:   logger,
		now:      now,
	}
}

// repository looks up a configured repository. An empty key selects the default.
func (e *Engine) repository(key string) (*models.Repository, error) {
	if key == "" {
		def, err := e.repos.DefaultRepository()
		if err != nil {
			return nil, fmt.Errorf("get default repository: %w", err)
		}
		if def == "" {
			return nil, &RepositoryNotFoundError{}
		}
		key = def
	}

	repo, err := e.repos.GetRepository(key)
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}
	if repo == nil {
		return nil, &RepositoryNotFoundError{Key: key}
	}
	if repo.Branch == "" {
		repo.Branch = models.DefaultBranch
	}
	return repo, nil
}

// itemNames lists the item directories of kind. A missing top-level folder means
// the repository has no items of that kind.
func (e *Engine) itemNames(ctx context.Context, repo *models.Repository, kind models.ItemKind) ([]string, error) {
	entries, err := e.remote.ListDirectory(ctx, repo.Owner, repo.Repo, kind.Folder(), repo.Branch)
	if err != nil {
		if remote.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", kind.Folder(), err)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type == remote.EntryDir {
			names = append(names, entry.Name)
		}
	}
	return names, nil
}

// findItem confirms name is listed in the repository and resolves its metadata.
func (e *Engine) findItem(ctx context.Context, repo *models.Repository, kind models.ItemKind, name string) (models.Item, error) {
	names, err := e.itemNames(ctx, repo, kind)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		if n == name {
			return e.resolver.Resolve(ctx, repo, kind, name), nil
		}
	}
	return nil, &ItemNotFoundError{Kind: kind, Name: name, Repo: repo.Key()}
}

func (e *Engine) invalidateRenderCache() {
	if e.render == nil {
		return
	}
	if err := e.render.Invalidate(); err != nil {
		e.logger.Warn("render cache invalidation failed", "error", err)
	}
}

func origin(repo *models.Repository, path string) store.Origin {
	return store.Origin{Owner: repo.Owner, Repo: repo.Repo, Branch: repo.Branch, Path: path}
}
